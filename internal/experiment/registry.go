package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/chassisctl/internal/chassis"
	"github.com/san-kum/chassisctl/internal/metrics"
	"github.com/san-kum/chassisctl/internal/simbot"
)

// Registry resolves the names a config may use for pluggable pieces of a
// run.
type Registry struct {
	integrators map[string]func() simbot.Integrator
}

func NewRegistry() *Registry {
	r := &Registry{
		integrators: make(map[string]func() simbot.Integrator),
	}

	r.integrators["euler"] = func() simbot.Integrator { return simbot.NewEuler() }
	r.integrators["rk4"] = func() simbot.Integrator { return simbot.NewRK4() }

	return r
}

func (r *Registry) GetIntegrator(name string) (simbot.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

func (r *Registry) ListIntegrators() []string {
	names := make([]string, 0, len(r.integrators))
	for name := range r.integrators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics returns fresh metrics for a plan. Drift metrics are left
// out when nothing estimates the pose.
func (r *Registry) DefaultMetrics(p chassis.Plan) []metrics.Metric {
	if p.Estimator != chassis.EstimatorNone {
		return metrics.Default()
	}
	return []metrics.Metric{
		metrics.NewPathLength(),
		metrics.NewControlEffort(),
	}
}
