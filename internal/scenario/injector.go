package scenario

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"time"

	"quantSim/internal/domain"
	"quantSim/internal/ports"
)

// Injector decorates a BarSource with one scenario. Every transform is a pure
// function of the original bar and its position in the window, so replaying
// the source yields identical bars.
type Injector struct {
	src     ports.BarSource
	cfg     Config
	symbols map[string]struct{}
}

// New wraps src with the scenario described by cfg.
func New(src ports.BarSource, cfg Config) (*Injector, error) {
	if src == nil {
		return nil, ports.ErrInvalidRequest
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Kind == KindCrash && cfg.Shape == "" {
		cfg.Shape = ShapeLinear
	}
	if cfg.Kind == KindLiquidityCrisis && cfg.SlippageMultiplier == 0 {
		cfg.SlippageMultiplier = 1
	}
	inj := &Injector{src: src, cfg: cfg}
	if len(cfg.Symbols) > 0 {
		inj.symbols = make(map[string]struct{}, len(cfg.Symbols))
		for _, s := range cfg.Symbols {
			inj.symbols[s] = struct{}{}
		}
	}
	return inj, nil
}

// Config returns the normalized scenario config.
func (i *Injector) Config() Config {
	return i.cfg
}

// Next returns the next bar with the scenario applied.
func (i *Injector) Next() (domain.Bar, bool) {
	b, ok := i.src.Next()
	if !ok {
		return b, false
	}
	return i.Apply(b), true
}

// Reset rewinds the underlying source.
func (i *Injector) Reset() {
	i.src.Reset()
}

// SlippageMultiplier returns the execution slippage multiplier for bar.
// It is 1 outside a liquidity crisis window.
func (i *Injector) SlippageMultiplier(bar domain.Bar) float64 {
	if i.cfg.Kind != KindLiquidityCrisis || !i.applies(bar) || !i.inWindow(bar.Timestamp) {
		return 1
	}
	return i.cfg.SlippageMultiplier
}

// Apply returns the perturbed copy of b.
func (i *Injector) Apply(b domain.Bar) domain.Bar {
	if !i.applies(b) {
		return b
	}
	switch i.cfg.Kind {
	case KindCrash:
		drop, ok := i.crashDrop(b)
		if !ok {
			return b
		}
		return scalePrices(b, 1-drop)
	case KindLiquidityCrisis:
		if !i.inWindow(b.Timestamp) {
			return b
		}
		b.Volume *= 1 - i.cfg.VolumeReduction
		return b
	case KindVolatilityShock:
		if !i.inWindow(b.Timestamp) {
			return b
		}
		return widenRange(b, i.cfg.VolatilityFactor)
	}
	return b
}

func (i *Injector) applies(b domain.Bar) bool {
	if i.symbols == nil {
		return true
	}
	_, ok := i.symbols[b.Symbol]
	return ok
}

func (i *Injector) inWindow(ts time.Time) bool {
	return !ts.Before(i.cfg.Start) && !ts.After(i.cfg.End)
}

// progress returns the position of ts in the window as a fraction in [0, 1].
func (i *Injector) progress(ts time.Time) float64 {
	span := i.cfg.End.Sub(i.cfg.Start)
	if span <= 0 {
		return 1
	}
	return float64(ts.Sub(i.cfg.Start)) / float64(span)
}

// crashDrop returns the price decline for b, or false before the crash starts.
// After the window the unrecovered part of the decline persists.
func (i *Injector) crashDrop(b domain.Bar) (float64, bool) {
	c := i.cfg
	if b.Timestamp.Before(c.Start) {
		return 0, false
	}
	var drop float64
	jitter := true
	switch {
	case i.inWindow(b.Timestamp):
		p := i.progress(b.Timestamp)
		if c.Shape == ShapeStepped {
			step := math.Min(math.Floor(p*float64(c.Steps))+1, float64(c.Steps))
			drop = c.CrashPct * step / float64(c.Steps)
		} else {
			drop = c.CrashPct * p
		}
	case c.Recovery > 0 && !b.Timestamp.After(c.End.Add(c.Recovery)):
		q := float64(b.Timestamp.Sub(c.End)) / float64(c.Recovery)
		drop = c.CrashPct * (1 - c.RecoveryPct*q)
	case c.Recovery > 0:
		drop = c.CrashPct * (1 - c.RecoveryPct)
		jitter = false
	default:
		drop = c.CrashPct
		jitter = false
	}
	if jitter && c.Jitter > 0 {
		drop += c.Jitter * (2*i.noise(b) - 1)
	}
	return math.Min(math.Max(drop, 0), 0.999), true
}

// noise returns a value in [0, 1) derived only from the seed, symbol and timestamp.
func (i *Injector) noise(b domain.Bar) float64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(i.cfg.Seed))
	h.Write(buf[:])
	h.Write([]byte(b.Symbol))
	binary.LittleEndian.PutUint64(buf[:], uint64(b.Timestamp.UnixNano()))
	h.Write(buf[:])
	return float64(h.Sum64()>>11) / float64(1<<53)
}

func scalePrices(b domain.Bar, factor float64) domain.Bar {
	b.Open *= factor
	b.High *= factor
	b.Low *= factor
	b.Close *= factor
	return b
}

// widenRange scales High - Low by factor around the bar body, keeping Open and
// Close and the OHLC ordering intact.
func widenRange(b domain.Bar, factor float64) domain.Bar {
	top := math.Max(b.Open, b.Close)
	bottom := math.Min(b.Open, b.Close)
	rng := b.High - b.Low
	extra := (factor - 1) * rng / 2
	b.High = math.Max(b.High+extra, top)
	low := b.Low - extra
	if low <= 0 {
		low = bottom / 2
	}
	b.Low = math.Min(low, bottom)
	return b
}
