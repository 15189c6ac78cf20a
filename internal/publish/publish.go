package publish

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lofi/internal/config"
	"lofi/internal/logging"
	"lofi/internal/services"
	"lofi/internal/stage"
)

// Upload is what a target receives.
type Upload struct {
	RunID       string    `json:"run_id"`
	Video       string    `json:"source_file"`
	Thumbnail   string    `json:"thumbnail"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
}

// Receipt identifies a published video.
type Receipt struct {
	VideoID  string
	Location string
}

// Target receives finished videos.
type Target interface {
	Name() string
	Publish(ctx context.Context, up Upload) (Receipt, error)
}

// NewTarget builds the target selected by publish.target.
func NewTarget(cfg *config.Config) (Target, error) {
	switch cfg.Publish.Target {
	case config.PublishSimulated, "":
		return NewSimulated(cfg.SimulatedUploadsDir()), nil
	case config.PublishObjectStore:
		return NewObjectStoreTarget(cfg.ObjectStore)
	default:
		return nil, services.Wrap(services.ErrConfiguration, string(stage.Publish), "target",
			fmt.Sprintf("unsupported target %q", cfg.Publish.Target), nil)
	}
}

// Executor is the publish stage.
type Executor struct {
	target      Target
	title       string
	description string
	tags        []string
	now         func() time.Time
}

// NewExecutor constructs the publish stage around target.
func NewExecutor(cfg *config.Config, target Target) *Executor {
	return &Executor{
		target:      target,
		title:       cfg.Publish.Title,
		description: cfg.Publish.Description,
		tags:        append([]string(nil), cfg.Publish.Tags...),
		now:         time.Now,
	}
}

// HealthCheck reports target reachability when the target can tell.
func (e *Executor) HealthCheck(ctx context.Context) stage.Health {
	checker, ok := e.target.(interface{ Check(context.Context) error })
	if !ok {
		return stage.Healthy(stage.Publish)
	}
	if err := checker.Check(ctx); err != nil {
		return stage.Unhealthy(stage.Publish, fmt.Sprintf("%s target: %v", e.target.Name(), err))
	}
	return stage.Healthy(stage.Publish)
}

// Execute publishes the render and thumbnail artifacts.
func (e *Executor) Execute(ctx context.Context, in stage.Input) (stage.Artifact, error) {
	if err := in.Prior.Require(stage.Publish, stage.Render, stage.Thumbnail); err != nil {
		return stage.Artifact{}, err
	}
	up := e.upload(in)

	receipt, err := e.target.Publish(ctx, up)
	if err != nil {
		return stage.Artifact{}, err
	}
	in.Log("publish").Info("video published",
		logging.String("target", e.target.Name()),
		logging.String("video_id", receipt.VideoID),
		logging.String("location", receipt.Location),
	)
	return stage.Artifact{
		Ref: receipt.Location,
		Detail: map[string]any{
			"target":   e.target.Name(),
			"video_id": receipt.VideoID,
			"title":    up.Title,
		},
	}, nil
}

func (e *Executor) upload(in stage.Input) Upload {
	created := e.now().UTC()
	title := strings.TrimSpace(in.Params.Title)
	if title == "" {
		title = fmt.Sprintf("%s | %s", e.title, created.Format(time.DateOnly))
	}
	description := strings.TrimSpace(in.Params.Description)
	if description == "" {
		description = e.description
	}
	tags := in.Params.Tags
	if len(tags) == 0 {
		tags = e.tags
	}
	return Upload{
		RunID:       in.RunID,
		Video:       in.Prior.Ref(stage.Render),
		Thumbnail:   in.Prior.Ref(stage.Thumbnail),
		Title:       title,
		Description: description,
		Tags:        append([]string(nil), tags...),
		CreatedAt:   created,
	}
}
