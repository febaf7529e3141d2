// Package optim searches fitting parameters for the setting that minimizes a
// run metric.
package optim

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"

	"github.com/san-kum/densfit/internal/config"
	"github.com/san-kum/densfit/internal/experiment"
)

// setters are the configuration fields a search may vary.
var setters = map[string]func(*config.Config, float64){
	"force_constant":        func(c *config.Config, v float64) { c.Fitting.ForceConstant = v },
	"spread_width":          func(c *config.Config, v float64) { c.Fitting.SpreadWidth = v },
	"spread_range_in_sigma": func(c *config.Config, v float64) { c.Fitting.SpreadRangeInSigma = v },
	"every":                 func(c *config.Config, v float64) { c.Fitting.Every = int64(v) },
	"dt":                    func(c *config.Config, v float64) { c.Run.Dt = v },
	"max_step":              func(c *config.Config, v float64) { c.Run.MaxStep = v },
	"friction":              func(c *config.Config, v float64) { c.Run.Friction = v },
}

// Parameters lists the names accepted by NewGridSearch.
func Parameters() []string {
	return slices.Sorted(maps.Keys(setters))
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	logger     *slog.Logger
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("%d parameters but %d ranges", len(params), len(ranges))
	}
	for i, name := range params {
		if _, ok := setters[name]; !ok {
			return nil, fmt.Errorf("unknown parameter: %s", name)
		}
		if len(ranges[i]) == 0 {
			return nil, fmt.Errorf("parameter %s: empty range", name)
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges, logger: slog.Default()}, nil
}

func (g *GridSearch) SetLogger(l *slog.Logger) { g.logger = l }

// Point is one evaluated setting. Err is set when the configuration was
// rejected or the run failed; Value is then +Inf.
type Point struct {
	Params map[string]float64
	Value  float64
	Err    error
}

// Search runs base once for every combination in the grid and returns the
// point with the smallest metricName alongside all evaluated points.
func (g *GridSearch) Search(ctx context.Context, base *config.Config, metricName string) (Point, []Point, error) {
	var points []Point
	if err := g.searchRecursive(ctx, 0, make(map[string]float64), base, metricName, &points); err != nil {
		return Point{}, points, err
	}

	best := Point{Value: math.Inf(1)}
	for _, p := range points {
		if p.Err == nil && p.Value < best.Value {
			best = p
		}
	}
	if best.Params == nil {
		return best, points, fmt.Errorf("no setting produced %s", metricName)
	}
	return best, points, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	base *config.Config,
	metricName string,
	points *[]Point,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if depth == len(g.paramNames) {
		*points = append(*points, g.evaluate(ctx, current, base, metricName))
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := maps.Clone(current)
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, base, metricName, points); err != nil {
			return err
		}
	}
	return nil
}

func (g *GridSearch) evaluate(ctx context.Context, params map[string]float64, base *config.Config, metricName string) Point {
	p := Point{Params: params, Value: math.Inf(1)}

	cfg := *base
	for name, v := range params {
		setters[name](&cfg, v)
	}

	exp, err := experiment.New(&cfg, g.logger)
	if err != nil {
		p.Err = err
		return p
	}
	result, err := exp.Run(ctx)
	if err != nil {
		p.Err = err
		return p
	}
	val, ok := result.Metrics[metricName]
	if !ok {
		p.Err = fmt.Errorf("run has no metric %q", metricName)
		return p
	}
	p.Value = val
	g.logger.Debug("grid point", "params", params, metricName, val)
	return p
}
