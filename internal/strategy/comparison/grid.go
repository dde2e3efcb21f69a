package comparison

import (
	"fmt"
	"math"

	"quantSim/internal/ports"
	"quantSim/internal/strategy"
)

// ParameterRange defines the values a strategy parameter sweeps through
type ParameterRange struct {
	Name  string  `yaml:"name"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
	Step  float64 `yaml:"step"`
	IsInt bool    `yaml:"int"`
}

// Values returns Min, Min+Step, ... up to Max inclusive.
func (p ParameterRange) Values() ([]float64, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("%w: parameter name is required", ports.ErrInvalidParameterRange)
	}
	if p.Step <= 0 || p.Max < p.Min || math.IsNaN(p.Min) || math.IsNaN(p.Max) {
		return nil, fmt.Errorf("%w: %s: need step > 0 and min <= max", ports.ErrInvalidParameterRange, p.Name)
	}
	n := int(math.Floor((p.Max-p.Min)/p.Step+1e-9)) + 1
	values := make([]float64, 0, n)
	for k := 0; k < n; k++ {
		v := p.Min + float64(k)*p.Step
		if p.IsInt {
			v = math.Round(v)
			if len(values) > 0 && values[len(values)-1] == v {
				continue
			}
		}
		values = append(values, v)
	}
	return values, nil
}

// ExpandGrid returns one strategy config per combination of parameter values,
// in lexicographic order of the ranges. Each config is named after its parameters.
func ExpandGrid(base strategy.Config, ranges []ParameterRange) ([]strategy.Config, error) {
	if len(ranges) == 0 {
		return []strategy.Config{base}, nil
	}
	axes := make([][]float64, len(ranges))
	for i, r := range ranges {
		values, err := r.Values()
		if err != nil {
			return nil, err
		}
		axes[i] = values
	}

	var configs []strategy.Config
	current := make(map[string]float64, len(ranges))
	var generate func(int)
	generate = func(i int) {
		if i == len(ranges) {
			configs = append(configs, base.WithParams(current))
			return
		}
		for _, v := range axes[i] {
			current[ranges[i].Name] = v
			generate(i + 1)
		}
	}
	generate(0)
	return configs, nil
}
