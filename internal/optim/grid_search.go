package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/chassisctl/internal/experiment"
)

// UnsettledPenalty is added to a score for every step that did not settle.
const UnsettledPenalty = 10.0

// Objective scores a finished run. Lower is better.
type Objective func(res *experiment.Result) float64

// SettleScore is the simulated script time plus a penalty per unsettled
// step.
func SettleScore(res *experiment.Result) float64 {
	score := res.Elapsed.Seconds()
	for _, s := range res.Steps {
		if s.Outcome != experiment.OutcomeSettled {
			score += UnsettledPenalty
		}
	}
	return score
}

// Candidate is one evaluated point of the grid.
type Candidate struct {
	Params map[string]float64
	Score  float64
	Err    error
}

// GridSearch evaluates every combination of parameter values. Runs happen
// in real time, so candidates are evaluated concurrently.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	workers    int
}

func NewGridSearch(params []string, ranges [][]float64, workers int) *GridSearch {
	if workers < 1 {
		workers = 1
	}
	return &GridSearch{paramNames: params, ranges: ranges, workers: workers}
}

// Points expands the grid in parameter order.
func (g *GridSearch) Points() []map[string]float64 {
	var points []map[string]float64
	g.expand(0, map[string]float64{}, &points)
	return points
}

func (g *GridSearch) expand(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, current)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		g.expand(depth+1, newParams, out)
	}
}

// Search builds, sets up and runs an experiment for every grid point and
// returns all candidates sorted best first. Failed candidates sort last with
// an infinite score. It fails only when the grid is malformed, ctx ends, or
// no candidate could be scored.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	objective Objective,
) ([]Candidate, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, fmt.Errorf("optim: %d parameters but %d ranges", len(g.paramNames), len(g.ranges))
	}

	points := g.Points()
	if len(points) == 0 {
		return nil, fmt.Errorf("optim: empty grid")
	}
	candidates := make([]Candidate, len(points))

	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i, params := range points {
		i, params := i, params
		eg.Go(func() error {
			score, err := evaluate(ctx, buildExperiment, objective, params)
			if err != nil {
				score = math.Inf(1)
			}
			mu.Lock()
			candidates[i] = Candidate{Params: params, Score: score, Err: err}
			mu.Unlock()
			return ctx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(a, b int) bool { return candidates[a].Score < candidates[b].Score })
	if candidates[0].Err != nil {
		errs := make([]error, 0, len(candidates))
		for _, c := range candidates {
			errs = append(errs, c.Err)
		}
		return candidates, fmt.Errorf("optim: no candidate finished: %w", errors.Join(errs...))
	}
	return candidates, nil
}

func evaluate(
	ctx context.Context,
	buildExperiment func(map[string]float64) (*experiment.Experiment, error),
	objective Objective,
	params map[string]float64,
) (float64, error) {
	exp, err := buildExperiment(params)
	if err != nil {
		return 0, err
	}
	if err := exp.Setup(); err != nil {
		return 0, err
	}
	result, err := exp.Run(ctx)
	if err != nil {
		return 0, err
	}
	return objective(result), nil
}
