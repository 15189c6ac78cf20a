package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"lofi/internal/config"
	"lofi/internal/logging"
	"lofi/internal/services"
)

// Output geometry for generated video.
const (
	FrameWidth  = 1920
	FrameHeight = 1080
	frameRate   = 30
)

// Tool runs ffmpeg operations with the configured binaries.
type Tool struct {
	ffmpeg  string
	ffprobe string
	run     CommandRunner
	logger  *slog.Logger
}

// Option customises a Tool.
type Option func(*Tool)

// WithCommandRunner injects a custom command runner (primarily for tests).
func WithCommandRunner(r CommandRunner) Option {
	return func(t *Tool) {
		if r != nil {
			t.run = r
		}
	}
}

// New constructs a Tool from media configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Tool {
	t := &Tool{
		ffmpeg:  "ffmpeg",
		ffprobe: "ffprobe",
		run:     defaultCommandRunner,
		logger:  logging.NewComponentLogger(logger, "ffmpeg"),
	}
	if cfg != nil {
		if bin := strings.TrimSpace(cfg.Media.FFmpegBinary); bin != "" {
			t.ffmpeg = bin
		}
		if bin := strings.TrimSpace(cfg.Media.FFprobeBinary); bin != "" {
			t.ffprobe = bin
		}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// WithLogger returns a copy of t that logs to logger. The receiver is not
// modified, so a shared Tool can serve concurrent stage invocations.
func (t *Tool) WithLogger(logger *slog.Logger) *Tool {
	if logger == nil {
		return t
	}
	clone := *t
	clone.logger = logging.NewComponentLogger(logger, "ffmpeg")
	return &clone
}

// Check reports whether both binaries resolve.
func (t *Tool) Check() error {
	var errs []error
	for _, bin := range []string{t.ffmpeg, t.ffprobe} {
		if _, err := exec.LookPath(bin); err != nil {
			errs = append(errs, fmt.Errorf("binary %q not found", bin))
		}
	}
	return errors.Join(errs...)
}

// Probe inspects path with ffprobe.
func (t *Tool) Probe(ctx context.Context, path string) (ProbeResult, error) {
	if strings.TrimSpace(path) == "" {
		return ProbeResult{}, services.Wrap(services.ErrValidation, "ffprobe", "probe", "empty path", nil)
	}
	out, err := t.run(ctx, t.ffprobe, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	if err != nil {
		return ProbeResult{}, services.Wrap(services.ErrExternalTool, "ffprobe", "probe", filepath.Base(path), err)
	}
	result, err := parseProbe(out)
	if err != nil {
		return ProbeResult{}, services.Wrap(services.ErrExternalTool, "ffprobe", "parse output", filepath.Base(path), err)
	}
	return result, nil
}

// ProbeDuration returns the media duration of path in seconds.
func (t *Tool) ProbeDuration(ctx context.Context, path string) (float64, error) {
	result, err := t.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	seconds := result.DurationSeconds()
	if math.IsNaN(seconds) || seconds <= 0 {
		return 0, services.Wrap(services.ErrValidation, "ffprobe", "duration",
			fmt.Sprintf("%s reports no usable duration (%q)", filepath.Base(path), result.Format.Duration), nil)
	}
	return seconds, nil
}

// ConcatAudio joins the files named in an ffmpeg concat list without
// re-encoding.
func (t *Tool) ConcatAudio(ctx context.Context, listFile, output string) error {
	return t.ffmpegRun(ctx, "concat audio",
		"-f", "concat", "-safe", "0", "-i", listFile, "-c", "copy", output)
}

// AnimateStill turns an image into a short clip with a slow zoom.
func (t *Tool) AnimateStill(ctx context.Context, image, output string, seconds int) error {
	if seconds < 1 {
		seconds = 1
	}
	filter := fmt.Sprintf("scale=%d:%d,zoompan=z='min(zoom+0.0015,1.1)':d=%d:s=%dx%d:fps=%d",
		FrameWidth, FrameHeight, seconds*frameRate, FrameWidth, FrameHeight, frameRate)
	return t.ffmpegRun(ctx, "animate still",
		"-loop", "1", "-i", image,
		"-vf", filter,
		"-t", strconv.Itoa(seconds),
		"-c:v", "libx264", "-pix_fmt", "yuv420p", "-an",
		output)
}

// LoopRequest describes a render of a looping clip against an audio track.
type LoopRequest struct {
	Loop   string
	Audio  string
	Output string
	Intro  string
	Outro  string
}

// LoopToDuration repeats the loop clip for the length of the audio track and
// muxes both. Intro and outro clips, when set, bracket the looped body.
func (t *Tool) LoopToDuration(ctx context.Context, req LoopRequest) (float64, error) {
	duration, err := t.ProbeDuration(ctx, req.Audio)
	if err != nil {
		return 0, err
	}
	length := strconv.FormatFloat(duration, 'f', 3, 64)

	if req.Intro == "" && req.Outro == "" {
		err := t.ffmpegRun(ctx, "loop to duration",
			"-stream_loop", "-1", "-i", req.Loop, "-t", length,
			"-i", req.Audio, "-shortest",
			"-c:v", "libx264", "-pix_fmt", "yuv420p", "-c:a", "aac",
			req.Output)
		return duration, err
	}

	dir := filepath.Dir(req.Output)
	body := filepath.Join(dir, ".render-body.mp4")
	joined := filepath.Join(dir, ".render-joined.mp4")
	defer func() {
		_ = os.Remove(body)
		_ = os.Remove(joined)
	}()

	if err := t.ffmpegRun(ctx, "loop body",
		"-stream_loop", "-1", "-i", req.Loop, "-t", length,
		"-c:v", "libx264", "-pix_fmt", "yuv420p", "-an", body); err != nil {
		return 0, err
	}

	var inputs []string
	for _, clip := range []string{req.Intro, body, req.Outro} {
		if clip != "" {
			inputs = append(inputs, "-i", clip)
		}
	}
	segments := len(inputs) / 2
	args := append(inputs,
		"-filter_complex", fmt.Sprintf("concat=n=%d:v=1:a=0[v]", segments),
		"-map", "[v]", "-c:v", "libx264", "-pix_fmt", "yuv420p", joined)
	if err := t.ffmpegRun(ctx, "join intro/outro", args...); err != nil {
		return 0, err
	}

	err = t.ffmpegRun(ctx, "mux audio",
		"-i", joined, "-i", req.Audio, "-shortest",
		"-c:v", "copy", "-c:a", "aac", req.Output)
	return duration, err
}

func (t *Tool) ffmpegRun(ctx context.Context, operation string, args ...string) error {
	full := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)
	t.logger.Debug("running ffmpeg",
		logging.String("operation", operation),
		logging.String("args", strings.Join(full, " ")),
	)
	if _, err := t.run(ctx, t.ffmpeg, full...); err != nil {
		return services.Wrap(services.ErrExternalTool, "ffmpeg", operation, "", err)
	}
	return nil
}
