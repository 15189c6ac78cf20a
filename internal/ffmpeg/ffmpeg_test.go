package ffmpeg_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"lofi/internal/ffmpeg"
	"lofi/internal/logging"
	"lofi/internal/services"
	"lofi/internal/testsupport"
)

func newTool(t *testing.T, fake *testsupport.FakeFFmpeg) *ffmpeg.Tool {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return ffmpeg.New(cfg, nil, ffmpeg.WithCommandRunner(fake.Runner))
}

func TestProbeDuration(t *testing.T) {
	fake := &testsupport.FakeFFmpeg{Duration: 5400.5}
	tool := newTool(t, fake)

	seconds, err := tool.ProbeDuration(context.Background(), "/tmp/audio.mp3")
	if err != nil {
		t.Fatalf("ProbeDuration: %v", err)
	}
	if seconds != 5400.5 {
		t.Fatalf("expected 5400.5, got %v", seconds)
	}
	cmds := fake.Commands()
	if len(cmds) != 1 || cmds[0].Name != "ffprobe" || cmds[0].Args[len(cmds[0].Args)-1] != "/tmp/audio.mp3" {
		t.Fatalf("unexpected probe invocation %+v", cmds)
	}
}

func TestProbeDurationRejectsMissingDuration(t *testing.T) {
	runner := func(context.Context, string, ...string) ([]byte, error) {
		return []byte(`{"format":{"duration":"N/A"}}`), nil
	}
	tool := ffmpeg.New(nil, nil, ffmpeg.WithCommandRunner(runner))
	_, err := tool.ProbeDuration(context.Background(), "clip.mp4")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestProbeResultHelpers(t *testing.T) {
	result := ffmpeg.ProbeResult{
		Streams: []ffmpeg.ProbeStream{{CodecType: "video"}, {CodecType: "audio"}, {CodecType: "Audio"}},
		Format:  ffmpeg.ProbeFormat{Duration: "bad"},
	}
	if result.StreamCount("audio") != 2 || result.StreamCount("video") != 1 {
		t.Fatalf("unexpected stream counts")
	}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected NaN for unparseable duration")
	}
}

func TestConcatAudioArgs(t *testing.T) {
	fake := &testsupport.FakeFFmpeg{}
	tool := newTool(t, fake)
	out := filepath.Join(t.TempDir(), "audio.mp3")

	if err := tool.ConcatAudio(context.Background(), "/work/playlist.txt", out); err != nil {
		t.Fatalf("ConcatAudio: %v", err)
	}
	args := fake.Commands()[0].Args
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-f concat -safe 0 -i /work/playlist.txt -c copy") {
		t.Fatalf("unexpected args %q", joined)
	}
	if args[0] != "-y" || args[len(args)-1] != out {
		t.Fatalf("expected overwrite flag and output last, got %v", args)
	}
}

func TestLoopToDurationWithoutBookends(t *testing.T) {
	fake := &testsupport.FakeFFmpeg{Duration: 90}
	tool := newTool(t, fake)
	out := filepath.Join(t.TempDir(), "final.mp4")

	seconds, err := tool.LoopToDuration(context.Background(), ffmpeg.LoopRequest{Loop: "loop.mp4", Audio: "audio.mp3", Output: out})
	if err != nil {
		t.Fatalf("LoopToDuration: %v", err)
	}
	if seconds != 90 {
		t.Fatalf("expected 90 seconds, got %v", seconds)
	}
	cmds := fake.Commands()
	if len(cmds) != 2 {
		t.Fatalf("expected probe + render, got %d commands", len(cmds))
	}
	render := cmds[1].Args
	if !slices.Contains(render, "-stream_loop") || !slices.Contains(render, "90.000") {
		t.Fatalf("unexpected render args %v", render)
	}
}

func TestLoopToDurationWithIntroAndOutro(t *testing.T) {
	fake := &testsupport.FakeFFmpeg{Duration: 42}
	tool := newTool(t, fake)
	dir := t.TempDir()
	out := filepath.Join(dir, "final.mp4")

	_, err := tool.LoopToDuration(context.Background(), ffmpeg.LoopRequest{
		Loop: "loop.mp4", Audio: "audio.mp3", Output: out, Intro: "intro.mp4", Outro: "outro.mp4",
	})
	if err != nil {
		t.Fatalf("LoopToDuration: %v", err)
	}
	cmds := fake.Commands()
	if len(cmds) != 4 {
		t.Fatalf("expected probe, body, join, mux; got %d", len(cmds))
	}
	join := strings.Join(cmds[2].Args, " ")
	if !strings.Contains(join, "-i intro.mp4") || !strings.Contains(join, "-i outro.mp4") || !strings.Contains(join, "concat=n=3:v=1:a=0[v]") {
		t.Fatalf("unexpected join args %q", join)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("expected output: %v", err)
	}
	for _, tmp := range []string{".render-body.mp4", ".render-joined.mp4"} {
		if _, err := os.Stat(filepath.Join(dir, tmp)); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed, stat err %v", tmp, err)
		}
	}
}

func TestFailuresAreExternalToolErrors(t *testing.T) {
	fake := &testsupport.FakeFFmpeg{FailOn: "zoompan"}
	tool := newTool(t, fake)
	err := tool.AnimateStill(context.Background(), "image.png", filepath.Join(t.TempDir(), "loop.mp4"), 0)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "animate still") {
		t.Fatalf("expected operation in error, got %v", err)
	}
	args := strings.Join(fake.Commands()[0].Args, " ")
	if !strings.Contains(args, "-t 1") {
		t.Fatalf("expected clip length clamped to 1s, got %q", args)
	}
}

func TestDefaultRunnerIncludesStderrTail(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "ffmpeg")
	body := "#!/bin/sh\necho first >&2\necho 'Invalid data found when processing input' >&2\nexit 1\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	cfg := testsupport.NewConfig(t)
	cfg.Media.FFmpegBinary = script
	tool := ffmpeg.New(cfg, nil)

	err := tool.ConcatAudio(context.Background(), "list.txt", filepath.Join(dir, "out.mp3"))
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(err.Error(), "first | Invalid data found when processing input") {
		t.Fatalf("expected stderr tail in error, got %v", err)
	}
}

func TestCheckReportsMissingBinaries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Media.FFmpegBinary = "lofi-missing-ffmpeg"
	cfg.Media.FFprobeBinary = "lofi-missing-ffprobe"
	err := ffmpeg.New(cfg, nil).Check()
	if err == nil || !strings.Contains(err.Error(), "lofi-missing-ffprobe") {
		t.Fatalf("expected both binaries reported, got %v", err)
	}
}

func TestWithLoggerLeavesSharedToolUntouched(t *testing.T) {
	var base, scoped bytes.Buffer
	baseLogger, err := logging.New(logging.Options{Format: "json", Level: "debug", Output: &base})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	scopedLogger, err := logging.New(logging.Options{Format: "json", Level: "debug", Output: &scoped})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	fake := &testsupport.FakeFFmpeg{}
	tool := ffmpeg.New(nil, baseLogger, ffmpeg.WithCommandRunner(fake.Runner))
	out := filepath.Join(t.TempDir(), "audio.mp3")

	if err := tool.WithLogger(scopedLogger.With(logging.RunID("r1"))).ConcatAudio(context.Background(), "list.txt", out); err != nil {
		t.Fatalf("ConcatAudio: %v", err)
	}
	if !strings.Contains(scoped.String(), `"run_id":"r1"`) || base.Len() != 0 {
		t.Fatalf("expected the call to log only to the scoped logger\nscoped=%q\nbase=%q", scoped.String(), base.String())
	}

	if err := tool.ConcatAudio(context.Background(), "list.txt", out); err != nil {
		t.Fatalf("ConcatAudio: %v", err)
	}
	if !strings.Contains(base.String(), "running ffmpeg") || strings.Contains(base.String(), "r1") {
		t.Fatalf("expected the shared tool to keep its own logger, got %q", base.String())
	}
	if tool.WithLogger(nil) != tool {
		t.Fatal("expected nil logger to return the tool unchanged")
	}
}
