package artwork

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"lofi/internal/config"
	"lofi/internal/services"
	"lofi/internal/stage"
)

// Still frame geometry.
const (
	ImageWidth  = 1920
	ImageHeight = 1080

	imageFileName     = "frame.png"
	promptCaptionRune = 120
	fallbackCaption   = "Lo-Fi Midnight Cafe"
)

// ImageExecutor produces the 16:9 still the rest of the run builds on.
type ImageExecutor struct {
	defaultPrompt string
}

// NewImageExecutor constructs the image stage.
func NewImageExecutor(cfg *config.Config) *ImageExecutor {
	return &ImageExecutor{defaultPrompt: cfg.Media.ImagePrompt}
}

// Execute renders <workdir>/frame.png.
func (e *ImageExecutor) Execute(ctx context.Context, in stage.Input) (stage.Artifact, error) {
	prompt := strings.TrimSpace(in.Params.Prompt)
	if prompt == "" {
		prompt = e.defaultPrompt
	}
	if err := ctx.Err(); err != nil {
		return stage.Artifact{}, err
	}

	frame := RenderStill(prompt)
	out := filepath.Join(in.WorkDir, imageFileName)
	if err := writeAtomic(out, func(w io.Writer) error { return png.Encode(w, frame) }); err != nil {
		return stage.Artifact{}, services.Wrap(services.ErrTransient, string(stage.Image), "write frame", "", err)
	}
	return stage.Artifact{
		Ref: out,
		Detail: map[string]any{
			"prompt": prompt,
			"width":  ImageWidth,
			"height": ImageHeight,
		},
	}, nil
}

// RenderStill draws the placeholder illustration for prompt.
func RenderStill(prompt string) *image.RGBA {
	frame := image.NewRGBA(image.Rect(0, 0, ImageWidth, ImageHeight))
	fillGradient(frame, gradientTop, gradientBottom)

	radius := ImageHeight * 18 / 100
	cx, cy := ImageWidth*32/100, ImageHeight*58/100
	fillCircle(frame, cx, cy, radius, lampOuter)
	fillCircle(frame, cx, cy, radius/2, lampInner)

	band := image.Rect(0, ImageHeight-ImageHeight*22/100, ImageWidth, ImageHeight)
	shade(frame, band, color.RGBA{0, 0, 0, 160})

	caption := strings.TrimSpace(prompt)
	if caption == "" {
		caption = fallbackCaption
	}
	drawCaption(frame, band, truncate(caption, promptCaptionRune), captionInk, 4)
	return frame
}
