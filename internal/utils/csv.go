package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"quantSim/internal/domain"
	"quantSim/internal/ports"
)

var barHeader = []string{"timestamp", "symbol", "interval", "open", "high", "low", "close", "volume"}

// WriteBarsToCSV writes bars to filename with a header row.
func WriteBarsToCSV(bars []domain.Bar, filename string) error {
	return writeFile(filename, func(w *csv.Writer) {
		w.Write(barHeader)
		for _, b := range bars {
			w.Write([]string{
				b.Timestamp.UTC().Format(time.RFC3339),
				b.Symbol,
				b.Interval,
				formatFloat(b.Open),
				formatFloat(b.High),
				formatFloat(b.Low),
				formatFloat(b.Close),
				formatFloat(b.Volume),
			})
		}
	})
}

// WriteTradesToCSV writes a run's trade log to filename.
func WriteTradesToCSV(trades []domain.Trade, filename string) error {
	return writeFile(filename, func(w *csv.Writer) {
		w.Write([]string{"timestamp", "symbol", "side", "quantity", "fill_price", "reference_price",
			"commission", "tax", "slippage", "realized_pnl", "closing", "reason"})
		for _, t := range trades {
			w.Write([]string{
				t.Timestamp.UTC().Format(time.RFC3339),
				t.Symbol,
				string(t.Side),
				formatFloat(t.Quantity),
				formatFloat(t.FillPrice),
				formatFloat(t.ReferencePrice),
				formatFloat(t.Commission),
				formatFloat(t.Tax),
				formatFloat(t.Slippage),
				formatFloat(t.RealizedPnL),
				strconv.FormatBool(t.Closing),
				string(t.Reason),
			})
		}
	})
}

// WriteEquityCurveToCSV writes an equity curve to filename.
func WriteEquityCurveToCSV(curve []domain.EquityPoint, filename string) error {
	return writeFile(filename, func(w *csv.Writer) {
		w.Write([]string{"timestamp", "equity", "cash", "drawdown", "exposure"})
		for _, p := range curve {
			w.Write([]string{
				p.Timestamp.UTC().Format(time.RFC3339),
				formatFloat(p.Equity),
				formatFloat(p.Cash),
				formatFloat(p.Drawdown),
				formatFloat(p.Exposure),
			})
		}
	})
}

func writeFile(filename string, write func(w *csv.Writer)) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	write(writer)
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ReadBarsFromCSV loads bars from filename. The header selects the columns:
// "timestamp" (or "open_time") plus open, high, low, close and volume are required;
// symbol and interval are optional and default to defaultSymbol and "".
// Timestamps are RFC3339 or Unix milliseconds.
func ReadBarsFromCSV(filename, defaultSymbol string) ([]domain.Bar, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadBars(file, defaultSymbol)
}

// ReadBars parses bars from r in the format described by ReadBarsFromCSV.
func ReadBars(r io.Reader, defaultSymbol string) ([]domain.Bar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ports.ErrEmptyDataset
		}
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols["timestamp"]; !ok {
		if i, ok := cols["open_time"]; ok {
			cols["timestamp"] = i
		}
	}
	for _, required := range []string{"timestamp", "open", "high", "low", "close", "volume"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: csv is missing column %q", ports.ErrInvalidRequest, required)
		}
	}

	var bars []domain.Bar
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading csv line %d: %w", line, err)
		}
		bar, err := parseBar(record, cols, defaultSymbol)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ports.ErrMalformedBar, line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseBar(record []string, cols map[string]int, defaultSymbol string) (domain.Bar, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	ts, err := parseTimestamp(field("timestamp"))
	if err != nil {
		return domain.Bar{}, err
	}
	bar := domain.Bar{
		Symbol:    field("symbol"),
		Interval:  field("interval"),
		Timestamp: ts,
	}
	if bar.Symbol == "" {
		bar.Symbol = defaultSymbol
	}
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"open", &bar.Open}, {"high", &bar.High}, {"low", &bar.Low}, {"close", &bar.Close}, {"volume", &bar.Volume},
	} {
		v, err := strconv.ParseFloat(field(f.name), 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("parsing %s: %w", f.name, err)
		}
		*f.dst = v
	}
	return bar, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return ts.UTC(), nil
}
