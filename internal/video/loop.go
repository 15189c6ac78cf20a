package video

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"lofi/internal/config"
	"lofi/internal/ffmpeg"
	"lofi/internal/logging"
	"lofi/internal/services"
	"lofi/internal/stage"
)

const loopFileName = "loop.mp4"

// LoopExecutor is the loop stage.
type LoopExecutor struct {
	configured string
	seconds    int
	tool       *ffmpeg.Tool
}

// NewLoopExecutor constructs the loop stage.
func NewLoopExecutor(cfg *config.Config, tool *ffmpeg.Tool) *LoopExecutor {
	return &LoopExecutor{
		configured: cfg.Media.LoopVideo,
		seconds:    cfg.Media.LoopSeconds,
		tool:       tool,
	}
}

// HealthCheck verifies whichever input the stage will use.
func (e *LoopExecutor) HealthCheck(context.Context) stage.Health {
	if e.configured != "" {
		if _, err := os.Stat(e.configured); err != nil {
			return stage.Unhealthy(stage.Loop, fmt.Sprintf("loop video: %v", err))
		}
		return stage.Healthy(stage.Loop)
	}
	if err := e.tool.Check(); err != nil {
		return stage.Unhealthy(stage.Loop, err.Error())
	}
	return stage.Healthy(stage.Loop)
}

// Execute returns the configured loop when present and otherwise animates
// the image artifact into <workdir>/loop.mp4.
func (e *LoopExecutor) Execute(ctx context.Context, in stage.Input) (stage.Artifact, error) {
	if e.configured != "" {
		if _, err := os.Stat(e.configured); err != nil {
			return stage.Artifact{}, services.Wrap(services.ErrConfiguration, string(stage.Loop), "configured loop", "", err)
		}
		in.Log("loop").Info("reusing configured loop", logging.String("loop_video", e.configured))
		return stage.Artifact{
			Ref:    e.configured,
			Detail: map[string]any{"source": "configured"},
		}, nil
	}

	if err := in.Prior.Require(stage.Loop, stage.Image); err != nil {
		return stage.Artifact{}, err
	}
	out := filepath.Join(in.WorkDir, loopFileName)
	if err := e.tool.WithLogger(in.Logger).AnimateStill(ctx, in.Prior.Ref(stage.Image), out, e.seconds); err != nil {
		return stage.Artifact{}, err
	}
	if err := requireOutput(stage.Loop, out); err != nil {
		return stage.Artifact{}, err
	}
	return stage.Artifact{
		Ref: out,
		Detail: map[string]any{
			"source":  "animated",
			"seconds": e.seconds,
		},
	}, nil
}

func requireOutput(name stage.Name, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, string(name), "output", "no output produced", err)
	}
	if info.Size() == 0 {
		return services.Wrap(services.ErrExternalTool, string(name), "output", filepath.Base(path)+" is empty", nil)
	}
	return nil
}
