package publish

import (
	"context"
	"encoding/json"
	"path"
	"path/filepath"
	"time"

	"lofi/internal/config"
	"lofi/internal/objectstore"
	"lofi/internal/services"
	"lofi/internal/stage"
)

// ObjectStoreTarget uploads into an S3-compatible bucket.
type ObjectStoreTarget struct {
	client *objectstore.Client
	prefix string
}

// NewObjectStoreTarget connects to the configured bucket.
func NewObjectStoreTarget(cfg config.ObjectStore) (*ObjectStoreTarget, error) {
	client, err := objectstore.New(cfg)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, string(stage.Publish), "object store", "", err)
	}
	return &ObjectStoreTarget{client: client, prefix: cfg.Prefix}, nil
}

// Name identifies the target.
func (t *ObjectStoreTarget) Name() string { return "object_store" }

// Check reports whether the bucket is reachable.
func (t *ObjectStoreTarget) Check(ctx context.Context) error {
	return t.client.Check(ctx)
}

// Publish uploads the video, thumbnail and a metadata document.
func (t *ObjectStoreTarget) Publish(ctx context.Context, up Upload) (Receipt, error) {
	if err := t.client.EnsureBucket(ctx); err != nil {
		return Receipt{}, unavailable("ensure bucket", err)
	}
	folder := path.Join(t.prefix, up.CreatedAt.Format(time.DateOnly)+"-"+Slug(up.Title))

	videoKey := path.Join(folder, "video"+filepath.Ext(up.Video))
	if _, err := t.client.PutFile(ctx, videoKey, up.Video, "video/mp4"); err != nil {
		return Receipt{}, unavailable("upload video", err)
	}
	thumbKey := path.Join(folder, "thumbnail"+filepath.Ext(up.Thumbnail))
	if _, err := t.client.PutFile(ctx, thumbKey, up.Thumbnail, "image/jpeg"); err != nil {
		return Receipt{}, unavailable("upload thumbnail", err)
	}

	up.Video = videoKey
	up.Thumbnail = thumbKey
	metadata, err := json.MarshalIndent(up, "", "  ")
	if err != nil {
		return Receipt{}, services.Wrap(services.ErrPermanent, string(stage.Publish), "encode metadata", "", err)
	}
	metaKey := path.Join(folder, "metadata.json")
	if _, err := t.client.PutBytes(ctx, metaKey, metadata, "application/json"); err != nil {
		return Receipt{}, unavailable("upload metadata", err)
	}

	return Receipt{
		VideoID:  folder,
		Location: "s3://" + t.client.Bucket() + "/" + videoKey,
	}, nil
}

func unavailable(operation string, err error) error {
	return services.Wrap(services.ErrUnavailable, string(stage.Publish), operation, "", err)
}
