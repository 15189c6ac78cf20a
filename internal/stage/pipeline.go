package stage

import (
	"context"
	"errors"
	"fmt"
)

// Step binds an executor to its stage.
type Step struct {
	Name     Name
	Executor Executor
}

// Pipeline is the validated, ordered list of steps.
type Pipeline struct {
	steps []Step
}

// NewPipeline requires exactly one executor per stage, in stage order.
func NewPipeline(steps ...Step) (*Pipeline, error) {
	if len(steps) != len(order) {
		return nil, fmt.Errorf("pipeline needs %d steps, got %d", len(order), len(steps))
	}
	for i, step := range steps {
		if step.Name != order[i] {
			return nil, fmt.Errorf("step %d is %q, want %q", i, step.Name, order[i])
		}
		if step.Executor == nil {
			return nil, fmt.Errorf("step %q has no executor", step.Name)
		}
	}
	out := make([]Step, len(steps))
	copy(out, steps)
	return &Pipeline{steps: out}, nil
}

// Steps returns the steps in execution order.
func (p *Pipeline) Steps() []Step {
	out := make([]Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// Health reports readiness for every stage. Executors without a health
// check are assumed ready.
func (p *Pipeline) Health(ctx context.Context) []Health {
	out := make([]Health, 0, len(p.steps))
	for _, step := range p.steps {
		if checker, ok := step.Executor.(HealthChecker); ok {
			h := checker.HealthCheck(ctx)
			h.Name = string(step.Name)
			out = append(out, h)
			continue
		}
		out = append(out, Healthy(step.Name))
	}
	return out
}

// Ready reports whether every stage is healthy, joining the details of
// those that are not.
func (p *Pipeline) Ready(ctx context.Context) error {
	var errs []error
	for _, h := range p.Health(ctx) {
		if !h.Ready {
			errs = append(errs, fmt.Errorf("%s: %s", h.Name, h.Detail))
		}
	}
	return errors.Join(errs...)
}
