package daemon

import (
	"log/slog"

	"lofi/internal/artwork"
	"lofi/internal/audio"
	"lofi/internal/config"
	"lofi/internal/ffmpeg"
	"lofi/internal/publish"
	"lofi/internal/stage"
	"lofi/internal/video"
)

// BuildPipeline wires the production stage executors in pipeline order.
// All media stages share one ffmpeg tool.
func BuildPipeline(cfg *config.Config, logger *slog.Logger, opts ...ffmpeg.Option) (*stage.Pipeline, error) {
	tool := ffmpeg.New(cfg, logger, opts...)
	target, err := publish.NewTarget(cfg)
	if err != nil {
		return nil, err
	}
	return stage.NewPipeline(
		stage.Step{Name: stage.Image, Executor: artwork.NewImageExecutor(cfg)},
		stage.Step{Name: stage.Loop, Executor: video.NewLoopExecutor(cfg, tool)},
		stage.Step{Name: stage.Audio, Executor: audio.NewPlaylistExecutor(cfg, tool)},
		stage.Step{Name: stage.Render, Executor: video.NewRenderExecutor(cfg, tool)},
		stage.Step{Name: stage.Thumbnail, Executor: artwork.NewThumbnailExecutor(cfg)},
		stage.Step{Name: stage.Publish, Executor: publish.NewExecutor(cfg, target)},
	)
}
