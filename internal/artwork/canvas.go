package artwork

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	gradientTop    = color.RGBA{20, 24, 52, 255}
	gradientBottom = color.RGBA{112, 93, 198, 255}
	lampOuter      = color.RGBA{255, 179, 71, 255}
	lampInner      = color.RGBA{90, 50, 30, 255}
	captionInk     = color.RGBA{240, 240, 255, 255}
)

func fillGradient(dst *image.RGBA, top, bottom color.RGBA) {
	b := dst.Bounds()
	span := b.Dy() - 1
	if span < 1 {
		span = 1
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		ratio := float64(y-b.Min.Y) / float64(span)
		row := color.RGBA{
			R: lerp(top.R, bottom.R, ratio),
			G: lerp(top.G, bottom.G, ratio),
			B: lerp(top.B, bottom.B, ratio),
			A: 255,
		}
		draw.Draw(dst, image.Rect(b.Min.X, y, b.Max.X, y+1), image.NewUniform(row), image.Point{}, draw.Src)
	}
}

func lerp(a, b uint8, ratio float64) uint8 {
	return uint8(float64(a) + ratio*(float64(b)-float64(a)))
}

func fillCircle(dst *image.RGBA, cx, cy, radius int, c color.RGBA) {
	r2 := radius * radius
	for y := cy - radius; y <= cy+radius; y++ {
		for x := cx - radius; x <= cx+radius; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r2 && (image.Point{X: x, Y: y}).In(dst.Bounds()) {
				dst.SetRGBA(x, y, c)
			}
		}
	}
}

// shade blends a translucent band over rect.
func shade(dst *image.RGBA, rect image.Rectangle, c color.RGBA) {
	draw.Draw(dst, rect, image.NewUniform(c), image.Point{}, draw.Over)
}

// truncate shortens s to at most limit runes, marking the cut with "...".
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit-3])) + "..."
}

// drawCaption renders text centred inside rect, scaled up as far as the
// rect allows, using the basicfont face.
func drawCaption(dst *image.RGBA, rect image.Rectangle, text string, ink color.Color, maxScale int) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()
	if width == 0 || height == 0 {
		return
	}

	glyphs := image.NewRGBA(image.Rect(0, 0, width, height))
	d := &font.Drawer{
		Dst:  glyphs,
		Src:  image.NewUniform(ink),
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)

	scale := maxScale
	for scale > 1 && (width*scale > rect.Dx()*9/10 || height*scale > rect.Dy()*8/10) {
		scale--
	}
	w, h := width*scale, height*scale
	origin := image.Point{
		X: rect.Min.X + (rect.Dx()-w)/2,
		Y: rect.Min.Y + (rect.Dy()-h)/2,
	}
	xdraw.NearestNeighbor.Scale(dst, image.Rectangle{Min: origin, Max: origin.Add(image.Pt(w, h))}, glyphs, glyphs.Bounds(), xdraw.Over, nil)
}

// writeAtomic encodes into a temp file next to path and renames it into place.
func writeAtomic(path string, encode func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if err := encode(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
