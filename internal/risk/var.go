package risk

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ValueAtRisk estimates the one-period loss, as a positive fraction of equity,
// that is not exceeded with the given confidence. Returns 0 when the estimate
// would be a gain or when there are fewer than two returns.
func ValueAtRisk(returns []float64, confidence float64, method VarMethod) float64 {
	if len(returns) < 2 {
		return 0
	}
	var q float64
	switch method {
	case VarParametric:
		mean, std := stat.MeanStdDev(returns, nil)
		q = mean + distuv.UnitNormal.Quantile(1-confidence)*std
	default:
		sorted := make([]float64, len(returns))
		copy(sorted, returns)
		sort.Float64s(sorted)
		q = stat.Quantile(1-confidence, stat.Empirical, sorted, nil)
	}
	return math.Max(0, -q)
}
