package testsupport

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"lofi/internal/stage"
)

// StageRecorder captures the inputs each stub executor received.
type StageRecorder struct {
	mu     sync.Mutex
	calls  []stage.Name
	inputs map[stage.Name]stage.Input
}

// Calls returns the stages executed, in order.
func (r *StageRecorder) Calls() []stage.Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]stage.Name, len(r.calls))
	copy(out, r.calls)
	return out
}

// Input returns what the named stage received.
func (r *StageRecorder) Input(name stage.Name) (stage.Input, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.inputs[name]
	return in, ok
}

func (r *StageRecorder) wrap(name stage.Name, exec stage.Executor) stage.Executor {
	return stage.ExecutorFunc(func(ctx context.Context, in stage.Input) (stage.Artifact, error) {
		r.mu.Lock()
		r.calls = append(r.calls, name)
		r.inputs[name] = in
		r.mu.Unlock()
		return exec.Execute(ctx, in)
	})
}

// StubExecutor returns an executor that succeeds with <workdir>/<name>.out.
func StubExecutor(name stage.Name) stage.Executor {
	return stage.ExecutorFunc(func(_ context.Context, in stage.Input) (stage.Artifact, error) {
		return stage.Artifact{
			Ref:    filepath.Join(in.WorkDir, string(name)+".out"),
			Detail: map[string]any{"stub": true},
		}, nil
	})
}

// StubPipeline builds a pipeline of stub executors, replacing the stages
// present in overrides.
func StubPipeline(t testing.TB, overrides map[stage.Name]stage.Executor) (*stage.Pipeline, *StageRecorder) {
	t.Helper()
	rec := &StageRecorder{inputs: make(map[stage.Name]stage.Input)}
	steps := make([]stage.Step, 0, len(stage.Order()))
	for _, name := range stage.Order() {
		exec := StubExecutor(name)
		if override, ok := overrides[name]; ok {
			exec = override
		}
		steps = append(steps, stage.Step{Name: name, Executor: rec.wrap(name, exec)})
	}
	p, err := stage.NewPipeline(steps...)
	if err != nil {
		t.Fatalf("build stub pipeline: %v", err)
	}
	return p, rec
}
