package artwork

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"

	"lofi/internal/config"
	"lofi/internal/services"
	"lofi/internal/stage"
)

// Thumbnail geometry.
const (
	ThumbnailWidth  = 1280
	ThumbnailHeight = 720

	thumbnailFileName = "thumbnail.jpg"
	titleCaptionRunes = 60
	jpegQuality       = 90
)

var (
	titleBar = color.RGBA{16, 16, 30, 200}
	titleInk = color.RGBA{245, 238, 219, 255}
)

// ThumbnailExecutor derives the upload thumbnail from the still frame.
type ThumbnailExecutor struct {
	defaultTitle string
}

// NewThumbnailExecutor constructs the thumbnail stage.
func NewThumbnailExecutor(cfg *config.Config) *ThumbnailExecutor {
	return &ThumbnailExecutor{defaultTitle: cfg.Publish.Title}
}

// Execute renders <workdir>/thumbnail.jpg from the image artifact.
func (e *ThumbnailExecutor) Execute(ctx context.Context, in stage.Input) (stage.Artifact, error) {
	if err := in.Prior.Require(stage.Thumbnail, stage.Image); err != nil {
		return stage.Artifact{}, err
	}
	title := strings.TrimSpace(in.Params.Title)
	if title == "" {
		title = e.defaultTitle
	}

	base, err := loadImage(in.Prior.Ref(stage.Image))
	if err != nil {
		return stage.Artifact{}, services.Wrap(services.ErrValidation, string(stage.Thumbnail), "load frame", "", err)
	}
	if err := ctx.Err(); err != nil {
		return stage.Artifact{}, err
	}

	thumb := RenderThumbnail(base, title)
	out := filepath.Join(in.WorkDir, thumbnailFileName)
	encode := func(w io.Writer) error {
		return jpeg.Encode(w, thumb, &jpeg.Options{Quality: jpegQuality})
	}
	if err := writeAtomic(out, encode); err != nil {
		return stage.Artifact{}, services.Wrap(services.ErrTransient, string(stage.Thumbnail), "write thumbnail", "", err)
	}
	return stage.Artifact{
		Ref: out,
		Detail: map[string]any{
			"title":  title,
			"width":  ThumbnailWidth,
			"height": ThumbnailHeight,
		},
	}, nil
}

// RenderThumbnail scales base to thumbnail size and overlays the title bar.
func RenderThumbnail(base image.Image, title string) *image.RGBA {
	thumb := image.NewRGBA(image.Rect(0, 0, ThumbnailWidth, ThumbnailHeight))
	xdraw.CatmullRom.Scale(thumb, thumb.Bounds(), base, base.Bounds(), xdraw.Src, nil)

	bar := image.Rect(0, ThumbnailHeight-ThumbnailHeight*28/100, ThumbnailWidth, ThumbnailHeight)
	shade(thumb, bar, titleBar)

	caption := strings.TrimSpace(title)
	if caption == "" {
		caption = fallbackCaption
	}
	drawCaption(thumb, bar, truncate(caption, titleCaptionRunes), titleInk, 6)
	return thumb
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}
