package analytics

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"quantSim/internal/domain"
)

const minStdDev = 1e-12

// Options holds the parameters performance metrics are computed with.
type Options struct {
	InitialCapital float64
	PeriodsPerYear float64 // Bars per year used to annualize, e.g. 252 for daily bars
	RiskFreeRate   float64 // Annual risk-free rate
}

// DefaultPeriodsPerYear is used when Options.PeriodsPerYear is not set.
const DefaultPeriodsPerYear = 252

// Analyze calculates performance metrics from an equity curve and the booked
// trades of a run. It is a pure function of its inputs. Points sharing a
// timestamp count as one period.
func Analyze(curve []domain.EquityPoint, trades []domain.Trade, opts Options) domain.Metrics {
	if opts.PeriodsPerYear <= 0 {
		opts.PeriodsPerYear = DefaultPeriodsPerYear
	}
	curve = PeriodCurve(curve)

	metrics := domain.Metrics{
		InitialCapital: opts.InitialCapital,
		FinalEquity:    opts.InitialCapital,
		Drawdowns:      make([]domain.DrawdownPeriod, 0),
		MonthlyReturns: make([]domain.MonthlyReturn, 0),
	}
	if len(curve) > 0 {
		metrics.FinalEquity = curve[len(curve)-1].Equity
	}
	if opts.InitialCapital > 0 {
		metrics.TotalReturn = metrics.FinalEquity/opts.InitialCapital - 1
	}

	returns := Returns(curve, opts.InitialCapital)
	analyzeReturns(&metrics, returns, opts)

	metrics.MaxDrawdown = MaxDrawdown(curve, opts.InitialCapital)
	if metrics.MaxDrawdown > 0 {
		metrics.CalmarRatio = ptr(metrics.AnnualizedReturn / metrics.MaxDrawdown)
	}
	metrics.Drawdowns = DrawdownPeriods(curve, opts.InitialCapital)
	metrics.MonthlyReturns = MonthlyReturns(curve, opts.InitialCapital)

	if len(curve) > 0 {
		var exposed int
		for _, p := range curve {
			if p.Exposure > 0 {
				exposed++
			}
		}
		metrics.Exposure = float64(exposed) / float64(len(curve))
	}

	analyzeTrades(&metrics, trades)
	return metrics
}

// PeriodCurve keeps the last point of each run of equal timestamps. A
// multi-symbol stream marks one point per symbol bar, and only the last one
// of a timestamp has every symbol marked.
func PeriodCurve(curve []domain.EquityPoint) []domain.EquityPoint {
	if len(curve) < 2 {
		return curve
	}
	out := make([]domain.EquityPoint, 0, len(curve))
	for _, p := range curve {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(p.Timestamp) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

// Returns computes simple period-over-period returns of the equity curve,
// starting from the initial capital.
func Returns(curve []domain.EquityPoint, initial float64) []float64 {
	returns := make([]float64, 0, len(curve))
	prev := initial
	for _, p := range curve {
		if prev > 0 {
			returns = append(returns, p.Equity/prev-1)
		} else {
			returns = append(returns, 0)
		}
		prev = p.Equity
	}
	return returns
}

func analyzeReturns(m *domain.Metrics, returns []float64, opts Options) {
	n := len(returns)
	if n == 0 {
		return
	}

	growth := 1 + m.TotalReturn
	if growth > 0 {
		m.AnnualizedReturn = math.Pow(growth, opts.PeriodsPerYear/float64(n)) - 1
	} else {
		m.AnnualizedReturn = -1
	}

	if n < 2 {
		return
	}
	rf := opts.RiskFreeRate / opts.PeriodsPerYear
	excess := make([]float64, n)
	for i, r := range returns {
		excess[i] = r - rf
	}

	mean, std := stat.MeanStdDev(excess, nil)
	_, rawStd := stat.MeanStdDev(returns, nil)
	m.Volatility = rawStd * math.Sqrt(opts.PeriodsPerYear)
	if std > minStdDev {
		m.SharpeRatio = ptr(mean / std * math.Sqrt(opts.PeriodsPerYear))
	}

	var downside float64
	for _, r := range excess {
		if r < 0 {
			downside += r * r
		}
	}
	downsideDev := math.Sqrt(downside / float64(n))
	if downsideDev > minStdDev {
		m.SortinoRatio = ptr(mean / downsideDev * math.Sqrt(opts.PeriodsPerYear))
	}
}

func analyzeTrades(m *domain.Metrics, trades []domain.Trade) {
	m.TotalTrades = len(trades)
	if len(trades) == 0 {
		return
	}

	var gains, losses, realized float64
	var consecutiveWins, consecutiveLosses int
	for _, t := range trades {
		m.TotalCommission += t.Commission
		m.TotalTax += t.Tax
		m.TotalSlippage += t.Slippage
		if !t.Closing {
			continue
		}

		m.ClosingTrades++
		realized += t.RealizedPnL
		switch {
		case t.RealizedPnL > 0:
			m.WinningTrades++
			gains += t.RealizedPnL
			consecutiveWins++
			consecutiveLosses = 0
		case t.RealizedPnL < 0:
			m.LosingTrades++
			losses += t.RealizedPnL
			consecutiveLosses++
			consecutiveWins = 0
		default:
			consecutiveWins, consecutiveLosses = 0, 0
		}
		if consecutiveWins > m.MaxConsecutiveWins {
			m.MaxConsecutiveWins = consecutiveWins
		}
		if consecutiveLosses > m.MaxConsecutiveLosses {
			m.MaxConsecutiveLosses = consecutiveLosses
		}
	}
	m.RealizedPnL = realized

	if m.ClosingTrades == 0 {
		return
	}
	m.WinRate = ptr(float64(m.WinningTrades) / float64(m.ClosingTrades))
	m.Expectancy = ptr(realized / float64(m.ClosingTrades))
	if m.WinningTrades > 0 {
		m.AverageWin = ptr(gains / float64(m.WinningTrades))
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = ptr(losses / float64(m.LosingTrades))
		m.ProfitFactor = ptr(gains / math.Abs(losses))
	}
}

// MaxDrawdown returns max over t of (peak[t] - equity[t]) / peak[t].
func MaxDrawdown(curve []domain.EquityPoint, initial float64) float64 {
	peak := initial
	var maxDD float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := (peak - p.Equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// DrawdownPeriods splits the equity curve into peak-to-recovery episodes.
// The last episode is marked unrecovered if the curve ends below its peak.
func DrawdownPeriods(curve []domain.EquityPoint, initial float64) []domain.DrawdownPeriod {
	periods := make([]domain.DrawdownPeriod, 0)
	if len(curve) == 0 {
		return periods
	}

	peak := initial
	peakTime := curve[0].Timestamp
	var current *domain.DrawdownPeriod
	for _, p := range curve {
		if p.Equity >= peak {
			if current != nil {
				current.EndTime = p.Timestamp
				current.Duration = current.EndTime.Sub(current.StartTime)
				current.Recovered = true
				periods = append(periods, *current)
				current = nil
			}
			peak = p.Equity
			peakTime = p.Timestamp
			continue
		}
		depth := (peak - p.Equity) / peak
		if current == nil {
			current = &domain.DrawdownPeriod{StartTime: peakTime, PeakValue: peak}
		}
		if depth > current.Depth {
			current.Depth = depth
			current.TroughTime = p.Timestamp
		}
	}
	if current != nil {
		current.EndTime = curve[len(curve)-1].Timestamp
		current.Duration = current.EndTime.Sub(current.StartTime)
		periods = append(periods, *current)
	}
	return periods
}

// MonthlyReturns returns the calendar-month returns of the equity curve, oldest first.
func MonthlyReturns(curve []domain.EquityPoint, initial float64) []domain.MonthlyReturn {
	returns := make([]domain.MonthlyReturn, 0)
	if len(curve) == 0 {
		return returns
	}

	monthOf := func(t time.Time) time.Time {
		t = t.UTC()
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}

	lastByMonth := make(map[time.Time]float64)
	var months []time.Time
	for _, p := range curve {
		m := monthOf(p.Timestamp)
		if _, seen := lastByMonth[m]; !seen {
			months = append(months, m)
		}
		lastByMonth[m] = p.Equity
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	prev := initial
	for _, m := range months {
		end := lastByMonth[m]
		r := 0.0
		if prev > 0 {
			r = end/prev - 1
		}
		returns = append(returns, domain.MonthlyReturn{Month: m, Return: r})
		prev = end
	}
	return returns
}

func ptr(v float64) *float64 {
	return &v
}
