package stage

import (
	"context"
	"fmt"
	"log/slog"

	"lofi/internal/logging"
)

// Name identifies a pipeline stage.
type Name string

const (
	Image     Name = "image"
	Loop      Name = "loop"
	Audio     Name = "audio"
	Render    Name = "render"
	Thumbnail Name = "thumbnail"
	Publish   Name = "publish"
)

var order = []Name{Image, Loop, Audio, Render, Thumbnail, Publish}

// Order returns the fixed stage sequence.
func Order() []Name {
	out := make([]Name, len(order))
	copy(out, order)
	return out
}

// Names returns the stage sequence as strings.
func Names() []string {
	out := make([]string, len(order))
	for i, name := range order {
		out[i] = string(name)
	}
	return out
}

// ParseName validates a stage name.
func ParseName(raw string) (Name, error) {
	for _, name := range order {
		if string(name) == raw {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", raw)
}

// Input is everything an executor may read.
type Input struct {
	RunID   string
	Params  Params
	Prior   Artifacts
	WorkDir string
	// Logger is scoped to the run and stage of this invocation. Nil discards.
	Logger *slog.Logger
}

// Log returns the invocation logger tagged with component.
func (in Input) Log(component string) *slog.Logger {
	return logging.NewComponentLogger(in.Logger, component)
}

// Executor performs one stage.
type Executor interface {
	Execute(ctx context.Context, in Input) (Artifact, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, in Input) (Artifact, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, in Input) (Artifact, error) {
	return f(ctx, in)
}

// HealthChecker is implemented by executors that can report readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}

