package marketdata

import (
	"context"
	"fmt"
	"sort"
	"time"

	"quantSim/internal/domain"
	"quantSim/internal/ports"
)

// SliceSource replays an in-memory slice of bars. The slice is never modified,
// so many sources may share it across goroutines.
type SliceSource struct {
	bars []domain.Bar
	pos  int
}

// NewSliceSource creates a replayable source over bars.
func NewSliceSource(bars []domain.Bar) *SliceSource {
	return &SliceSource{bars: bars}
}

// Next returns the next bar.
func (s *SliceSource) Next() (domain.Bar, bool) {
	if s.pos >= len(s.bars) {
		return domain.Bar{}, false
	}
	b := s.bars[s.pos]
	s.pos++
	return b, true
}

// Reset rewinds to the first bar.
func (s *SliceSource) Reset() {
	s.pos = 0
}

// Len returns the number of bars in the source.
func (s *SliceSource) Len() int {
	return len(s.bars)
}

// Drain resets src and reads it to exhaustion into memory.
func Drain(src ports.BarSource) []domain.Bar {
	src.Reset()
	var bars []domain.Bar
	for {
		b, ok := src.Next()
		if !ok {
			break
		}
		bars = append(bars, b)
	}
	src.Reset()
	return bars
}

// Merge time-aligns several per-symbol series into one stream ordered by
// timestamp. Bars with equal timestamps are ordered by symbol.
func Merge(series ...[]domain.Bar) []domain.Bar {
	var total int
	for _, s := range series {
		total += len(s)
	}
	merged := make([]domain.Bar, 0, total)
	for _, s := range series {
		merged = append(merged, s...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].Timestamp.Equal(merged[j].Timestamp) {
			return merged[i].Timestamp.Before(merged[j].Timestamp)
		}
		return merged[i].Symbol < merged[j].Symbol
	})
	return merged
}

// Window returns the bars with timestamps in [start, end]. Zero bounds are open.
func Window(bars []domain.Bar, start, end time.Time) []domain.Bar {
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if !start.IsZero() && b.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// FetchRequest describes one historical series to download.
type FetchRequest struct {
	Symbol   string
	Interval string
	Start    time.Time
	End      time.Time
}

// FromFetcher downloads every requested series, validates it and merges the
// result into one in-memory, replayable source.
func FromFetcher(ctx context.Context, fetcher ports.KlineFetcher, requests ...FetchRequest) (*SliceSource, error) {
	series := make([][]domain.Bar, 0, len(requests))
	for _, req := range requests {
		bars, err := fetcher.GetKlinesRange(ctx, req.Symbol, req.Interval, req.Start, req.End)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s %s bars: %w", req.Symbol, req.Interval, err)
		}
		series = append(series, bars)
	}
	merged := Merge(series...)
	if len(merged) == 0 {
		return nil, ports.ErrEmptyDataset
	}
	v := NewValidator()
	for _, b := range merged {
		if err := v.Check(b); err != nil {
			return nil, err
		}
	}
	return NewSliceSource(merged), nil
}
