package artwork_test

import (
	"context"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"lofi/internal/artwork"
	"lofi/internal/services"
	"lofi/internal/stage"
	"lofi/internal/testsupport"
)

func decodeFile(t *testing.T, path string, decode func(*os.File) (image.Image, error)) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	img, err := decode(f)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return img
}

func TestImageExecutorWritesStill(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	exec := artwork.NewImageExecutor(cfg)
	workDir := t.TempDir()

	art, err := exec.Execute(context.Background(), stage.Input{RunID: "r1", WorkDir: workDir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if art.Ref != filepath.Join(workDir, "frame.png") {
		t.Fatalf("unexpected ref %q", art.Ref)
	}
	if art.Detail["prompt"] != cfg.Media.ImagePrompt {
		t.Fatalf("expected default prompt, got %v", art.Detail["prompt"])
	}
	img := decodeFile(t, art.Ref, func(f *os.File) (image.Image, error) { return png.Decode(f) })
	if b := img.Bounds(); b.Dx() != artwork.ImageWidth || b.Dy() != artwork.ImageHeight {
		t.Fatalf("unexpected size %v", b)
	}
	entries, _ := os.ReadDir(workDir)
	if len(entries) != 1 {
		t.Fatalf("expected only the frame in workdir, got %d entries", len(entries))
	}
}

func TestRenderStillIsDeterministic(t *testing.T) {
	a := artwork.RenderStill("rainy window")
	b := artwork.RenderStill("rainy window")
	c := artwork.RenderStill("sunny beach")
	if string(a.Pix) != string(b.Pix) {
		t.Fatal("same prompt should render identical frames")
	}
	if string(a.Pix) == string(c.Pix) {
		t.Fatal("different prompts should render different captions")
	}
	top := a.RGBAAt(10, 0)
	if top.R != 20 || top.G != 24 || top.B != 52 {
		t.Fatalf("unexpected gradient top %v", top)
	}
}

func TestImageExecutorHonoursCancellation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := artwork.NewImageExecutor(cfg).Execute(ctx, stage.Input{WorkDir: t.TempDir()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestThumbnailExecutorScalesFrame(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	workDir := t.TempDir()
	frame, err := artwork.NewImageExecutor(cfg).Execute(context.Background(), stage.Input{WorkDir: workDir})
	if err != nil {
		t.Fatalf("image: %v", err)
	}

	in := stage.Input{
		WorkDir: workDir,
		Params:  stage.Params{Title: "Late Night Tapes"},
		Prior:   stage.Artifacts{}.With(stage.Image, frame),
	}
	art, err := artwork.NewThumbnailExecutor(cfg).Execute(context.Background(), in)
	if err != nil {
		t.Fatalf("thumbnail: %v", err)
	}
	if art.Detail["title"] != "Late Night Tapes" {
		t.Fatalf("unexpected title %v", art.Detail["title"])
	}
	img := decodeFile(t, art.Ref, func(f *os.File) (image.Image, error) { return jpeg.Decode(f) })
	if b := img.Bounds(); b.Dx() != artwork.ThumbnailWidth || b.Dy() != artwork.ThumbnailHeight {
		t.Fatalf("unexpected size %v", b)
	}
}

func TestThumbnailExecutorRequiresImage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := artwork.NewThumbnailExecutor(cfg).Execute(context.Background(), stage.Input{WorkDir: t.TempDir()})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestThumbnailExecutorRejectsCorruptFrame(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	workDir := t.TempDir()
	bogus := filepath.Join(workDir, "frame.png")
	testsupport.WriteFile(t, bogus, 64)

	in := stage.Input{WorkDir: workDir, Prior: stage.Artifacts{}.With(stage.Image, stage.Artifact{Ref: bogus})}
	_, err := artwork.NewThumbnailExecutor(cfg).Execute(context.Background(), in)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
