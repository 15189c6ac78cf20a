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

const renderFileName = "video.mp4"

// RenderExecutor is the render stage.
type RenderExecutor struct {
	intro string
	outro string
	tool  *ffmpeg.Tool
}

// NewRenderExecutor constructs the render stage.
func NewRenderExecutor(cfg *config.Config, tool *ffmpeg.Tool) *RenderExecutor {
	return &RenderExecutor{
		intro: cfg.Media.IntroVideo,
		outro: cfg.Media.OutroVideo,
		tool:  tool,
	}
}

// HealthCheck verifies ffmpeg and the bookend clips.
func (e *RenderExecutor) HealthCheck(context.Context) stage.Health {
	if err := e.tool.Check(); err != nil {
		return stage.Unhealthy(stage.Render, err.Error())
	}
	if err := e.checkBookends(); err != nil {
		return stage.Unhealthy(stage.Render, err.Error())
	}
	return stage.Healthy(stage.Render)
}

// Execute loops the loop artifact for the length of the audio artifact.
func (e *RenderExecutor) Execute(ctx context.Context, in stage.Input) (stage.Artifact, error) {
	if err := in.Prior.Require(stage.Render, stage.Loop, stage.Audio); err != nil {
		return stage.Artifact{}, err
	}
	if err := e.checkBookends(); err != nil {
		return stage.Artifact{}, services.Wrap(services.ErrConfiguration, string(stage.Render), "bookends", "", err)
	}

	out := filepath.Join(in.WorkDir, renderFileName)
	seconds, err := e.tool.WithLogger(in.Logger).LoopToDuration(ctx, ffmpeg.LoopRequest{
		Loop:   in.Prior.Ref(stage.Loop),
		Audio:  in.Prior.Ref(stage.Audio),
		Output: out,
		Intro:  e.intro,
		Outro:  e.outro,
	})
	if err != nil {
		return stage.Artifact{}, err
	}
	if err := requireOutput(stage.Render, out); err != nil {
		return stage.Artifact{}, err
	}
	in.Log("render").Info("render complete",
		logging.String("output", out),
		logging.Any("duration_seconds", seconds),
	)
	return stage.Artifact{
		Ref: out,
		Detail: map[string]any{
			"duration_seconds": seconds,
			"intro":            e.intro != "",
			"outro":            e.outro != "",
		},
	}, nil
}

func (e *RenderExecutor) checkBookends() error {
	for label, clip := range map[string]string{"intro": e.intro, "outro": e.outro} {
		if clip == "" {
			continue
		}
		if _, err := os.Stat(clip); err != nil {
			return fmt.Errorf("%s video: %w", label, err)
		}
	}
	return nil
}
