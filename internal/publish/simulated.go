package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"lofi/internal/services"
	"lofi/internal/stage"
)

// Simulated records uploads on local disk.
type Simulated struct {
	dir string
}

// NewSimulated writes into dir.
func NewSimulated(dir string) *Simulated {
	return &Simulated{dir: dir}
}

// Name identifies the target.
func (s *Simulated) Name() string { return "simulated" }

// Publish writes <video_id>.json and <video_id>_thumbnail<ext>.
func (s *Simulated) Publish(ctx context.Context, up Upload) (Receipt, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Receipt{}, wrapIO("create uploads directory", err)
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if _, err := os.Stat(up.Video); err != nil {
		return Receipt{}, services.Wrap(services.ErrValidation, string(stage.Publish), "source video", "", err)
	}

	videoID := fmt.Sprintf("sim-%d-%s", up.CreatedAt.Unix(), shortID(up.RunID))
	thumbCopy := filepath.Join(s.dir, videoID+"_thumbnail"+filepath.Ext(up.Thumbnail))
	if err := copyFile(up.Thumbnail, thumbCopy); err != nil {
		return Receipt{}, wrapIO("copy thumbnail", err)
	}

	if abs, err := filepath.Abs(up.Video); err == nil {
		up.Video = abs
	}
	up.Thumbnail = thumbCopy
	data, err := json.MarshalIndent(up, "", "  ")
	if err != nil {
		return Receipt{}, services.Wrap(services.ErrPermanent, string(stage.Publish), "encode metadata", "", err)
	}
	metadataPath := filepath.Join(s.dir, videoID+".json")
	if err := os.WriteFile(metadataPath, data, 0o644); err != nil {
		return Receipt{}, wrapIO("write metadata", err)
	}
	return Receipt{VideoID: videoID, Location: metadataPath}, nil
}

func wrapIO(operation string, err error) error {
	return services.Wrap(services.ErrTransient, string(stage.Publish), operation, "", err)
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "local"
	}
	return id
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
