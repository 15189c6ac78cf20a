package video_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"lofi/internal/ffmpeg"
	"lofi/internal/services"
	"lofi/internal/stage"
	"lofi/internal/testsupport"
	"lofi/internal/video"
)

func TestLoopReusesConfiguredClip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Media.LoopVideo = filepath.Join(testsupport.BaseDir(cfg), "loop.mp4")
	testsupport.WriteFile(t, cfg.Media.LoopVideo, 128)
	fake := &testsupport.FakeFFmpeg{}
	exec := video.NewLoopExecutor(cfg, ffmpeg.New(cfg, nil, ffmpeg.WithCommandRunner(fake.Runner)))

	art, err := exec.Execute(context.Background(), stage.Input{WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if art.Ref != cfg.Media.LoopVideo || art.Detail["source"] != "configured" {
		t.Fatalf("unexpected artifact %+v", art)
	}
	if len(fake.Commands()) != 0 {
		t.Fatal("configured loop must not invoke ffmpeg")
	}
}

func TestLoopMissingConfiguredClipIsConfigurationError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Media.LoopVideo = filepath.Join(t.TempDir(), "absent.mp4")
	exec := video.NewLoopExecutor(cfg, ffmpeg.New(cfg, nil))
	_, err := exec.Execute(context.Background(), stage.Input{WorkDir: t.TempDir()})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if health := exec.HealthCheck(context.Background()); health.Ready {
		t.Fatal("expected unhealthy loop stage")
	}
}

func TestLoopAnimatesStill(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fake := &testsupport.FakeFFmpeg{}
	exec := video.NewLoopExecutor(cfg, ffmpeg.New(cfg, nil, ffmpeg.WithCommandRunner(fake.Runner)))
	workDir := t.TempDir()
	in := stage.Input{
		WorkDir: workDir,
		Prior:   stage.Artifacts{}.With(stage.Image, stage.Artifact{Ref: filepath.Join(workDir, "frame.png")}),
	}

	art, err := exec.Execute(context.Background(), in)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if art.Ref != filepath.Join(workDir, "loop.mp4") || art.Detail["source"] != "animated" {
		t.Fatalf("unexpected artifact %+v", art)
	}
	args := fake.Commands()[0].Args
	if !slices.Contains(args, filepath.Join(workDir, "frame.png")) {
		t.Fatalf("expected image input, got %v", args)
	}
}

func TestLoopAnimationNeedsImage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	exec := video.NewLoopExecutor(cfg, ffmpeg.New(cfg, nil))
	_, err := exec.Execute(context.Background(), stage.Input{WorkDir: t.TempDir()})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func renderInput(t *testing.T) stage.Input {
	workDir := t.TempDir()
	prior := stage.Artifacts{}.
		With(stage.Loop, stage.Artifact{Ref: filepath.Join(workDir, "loop.mp4")}).
		With(stage.Audio, stage.Artifact{Ref: filepath.Join(workDir, "audio.mp3")})
	return stage.Input{WorkDir: workDir, Prior: prior}
}

func TestRenderLoopsToAudioLength(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fake := &testsupport.FakeFFmpeg{Duration: 7200}
	exec := video.NewRenderExecutor(cfg, ffmpeg.New(cfg, nil, ffmpeg.WithCommandRunner(fake.Runner)))
	in := renderInput(t)

	art, err := exec.Execute(context.Background(), in)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if art.Ref != filepath.Join(in.WorkDir, "video.mp4") {
		t.Fatalf("unexpected ref %q", art.Ref)
	}
	if art.Detail["duration_seconds"] != 7200.0 {
		t.Fatalf("unexpected duration %v", art.Detail["duration_seconds"])
	}
	if art.Detail["intro"] != false || art.Detail["outro"] != false {
		t.Fatalf("expected no bookends, got %+v", art.Detail)
	}
}

func TestRenderWithBookends(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	cfg.Media.IntroVideo = filepath.Join(base, "intro.mp4")
	cfg.Media.OutroVideo = filepath.Join(base, "outro.mp4")
	testsupport.WriteFile(t, cfg.Media.IntroVideo, 64)
	testsupport.WriteFile(t, cfg.Media.OutroVideo, 64)
	fake := &testsupport.FakeFFmpeg{Duration: 60}
	exec := video.NewRenderExecutor(cfg, ffmpeg.New(cfg, nil, ffmpeg.WithCommandRunner(fake.Runner)))

	art, err := exec.Execute(context.Background(), renderInput(t))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if art.Detail["intro"] != true || art.Detail["outro"] != true {
		t.Fatalf("expected bookends, got %+v", art.Detail)
	}
	if len(fake.Commands()) != 4 {
		t.Fatalf("expected probe, body, join, mux; got %d", len(fake.Commands()))
	}
}

func TestRenderMissingIntroIsConfigurationError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Media.IntroVideo = filepath.Join(t.TempDir(), "absent.mp4")
	fake := &testsupport.FakeFFmpeg{}
	exec := video.NewRenderExecutor(cfg, ffmpeg.New(cfg, nil, ffmpeg.WithCommandRunner(fake.Runner)))

	_, err := exec.Execute(context.Background(), renderInput(t))
	if !errors.Is(err, services.ErrConfiguration) || !strings.Contains(err.Error(), "intro") {
		t.Fatalf("expected intro configuration error, got %v", err)
	}
	if len(fake.Commands()) != 0 {
		t.Fatal("ffmpeg must not run with a broken configuration")
	}
}

func TestRenderRequiresLoopAndAudio(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	exec := video.NewRenderExecutor(cfg, ffmpeg.New(cfg, nil))
	in := stage.Input{WorkDir: t.TempDir(), Prior: stage.Artifacts{}.With(stage.Loop, stage.Artifact{Ref: "loop.mp4"})}
	_, err := exec.Execute(context.Background(), in)
	if !errors.Is(err, services.ErrValidation) || !strings.Contains(err.Error(), "audio") {
		t.Fatalf("expected missing audio error, got %v", err)
	}
}
