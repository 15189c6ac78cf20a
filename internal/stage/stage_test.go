package stage

import (
	"context"
	"errors"
	"testing"

	"lofi/internal/services"
)

func noop() Executor {
	return ExecutorFunc(func(context.Context, Input) (Artifact, error) {
		return Artifact{Ref: "x"}, nil
	})
}

type unready struct{ Executor }

func (unready) HealthCheck(context.Context) Health {
	return Unhealthy(Render, "ffmpeg not found")
}

func fullSteps() []Step {
	steps := make([]Step, 0, len(order))
	for _, name := range order {
		steps = append(steps, Step{Name: name, Executor: noop()})
	}
	return steps
}

func TestNewPipelineValidatesOrder(t *testing.T) {
	if _, err := NewPipeline(fullSteps()...); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	short := fullSteps()[:5]
	if _, err := NewPipeline(short...); err == nil {
		t.Fatal("expected error for missing step")
	}

	swapped := fullSteps()
	swapped[1], swapped[2] = swapped[2], swapped[1]
	if _, err := NewPipeline(swapped...); err == nil {
		t.Fatal("expected error for reordered steps")
	}

	missingExec := fullSteps()
	missingExec[3].Executor = nil
	if _, err := NewPipeline(missingExec...); err == nil {
		t.Fatal("expected error for nil executor")
	}
}

func TestPipelineHealth(t *testing.T) {
	steps := fullSteps()
	steps[3].Executor = unready{noop()}
	p, err := NewPipeline(steps...)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	health := p.Health(context.Background())
	if len(health) != 6 {
		t.Fatalf("expected 6 health entries, got %d", len(health))
	}
	if health[3].Ready || health[3].Name != "render" {
		t.Fatalf("expected render unhealthy, got %+v", health[3])
	}
	if err := p.Ready(context.Background()); err == nil {
		t.Fatal("expected Ready to report the unhealthy stage")
	}
}

func TestArtifactsAreImmutable(t *testing.T) {
	var empty Artifacts
	first := empty.With(Image, Artifact{Ref: "/work/image.png", Detail: map[string]any{"width": 1920}})
	second := first.With(Loop, Artifact{Ref: "/work/loop.mp4"})

	if empty.Len() != 0 || first.Len() != 1 || second.Len() != 2 {
		t.Fatalf("unexpected lengths %d %d %d", empty.Len(), first.Len(), second.Len())
	}

	art, _ := second.Get(Image)
	art.Detail["width"] = 1
	refs := second.Refs()
	refs["image"] = "mutated"

	again, _ := second.Get(Image)
	if again.Detail["width"] != 1920 || second.Ref(Image) != "/work/image.png" {
		t.Fatalf("view mutated through returned copies: %+v", again)
	}
}

func TestArtifactsRequire(t *testing.T) {
	view := Artifacts{}.With(Loop, Artifact{Ref: "/work/loop.mp4"})
	if err := view.Require(Render, Loop); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := view.Require(Render, Loop, Audio)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParamsRoundTrip(t *testing.T) {
	raw, err := Params{Prompt: "  rainy window ", Tags: []string{"lofi", " ", "chill"}}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	p, err := ParseParams(raw)
	if err != nil {
		t.Fatalf("ParseParams: %v", err)
	}
	if p.Prompt != "rainy window" || len(p.Tags) != 2 {
		t.Fatalf("unexpected params %+v", p)
	}

	if _, err := ParseParams("{invalid json"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if p, err := ParseParams(""); err != nil || p.Prompt != "" {
		t.Fatalf("expected zero params for empty input, got %+v %v", p, err)
	}
}

func TestParseName(t *testing.T) {
	if name, err := ParseName("thumbnail"); err != nil || name != Thumbnail {
		t.Fatalf("unexpected %q %v", name, err)
	}
	if _, err := ParseName("encode"); err == nil {
		t.Fatal("expected error for unknown stage")
	}
	if got := Names(); len(got) != 6 || got[0] != "image" || got[5] != "publish" {
		t.Fatalf("unexpected names %v", got)
	}
}
