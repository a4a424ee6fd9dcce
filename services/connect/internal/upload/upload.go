// Package upload stores item images and returns the URL they are served from.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"github.com/google/uuid"

	"github.com/ruet-connect/connect/services/connect/internal/apperr"
)

// ErrTooLarge is returned when an image exceeds the configured limit.
var ErrTooLarge = fmt.Errorf("%w: image too large", apperr.ErrValidation)

// Uploader stores one image owned by ownerID and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, ownerID, filename, contentType string, r io.Reader) (string, error)
}

// objectStore opens writers for new objects. The GCS bucket handle is the
// production implementation.
type objectStore interface {
	NewWriter(ctx context.Context, name, contentType string, metadata map[string]string) io.WriteCloser
}

type bucketStore struct {
	bucket *gcs.BucketHandle
}

func (b bucketStore) NewWriter(ctx context.Context, name, contentType string, metadata map[string]string) io.WriteCloser {
	w := b.bucket.Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata
	return w
}

// StorageUploader writes images to a Firebase Storage (GCS) bucket under
// images/<owner>/<unix millis>_<name> and returns a Firebase download URL.
type StorageUploader struct {
	objects  objectStore
	bucket   string
	maxBytes int64
	now      func() time.Time
	logger   *slog.Logger
}

// NewFirebase opens the app's storage bucket.
func NewFirebase(ctx context.Context, app *firebase.App, bucket string, maxBytes int64, logger *slog.Logger) (*StorageUploader, error) {
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase storage: %w", err)
	}
	handle, err := client.Bucket(bucket)
	if err != nil {
		return nil, fmt.Errorf("bucket %s: %w", bucket, err)
	}
	return newStorageUploader(bucketStore{bucket: handle}, bucket, maxBytes, logger), nil
}

func newStorageUploader(objects objectStore, bucket string, maxBytes int64, logger *slog.Logger) *StorageUploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &StorageUploader{
		objects:  objects,
		bucket:   bucket,
		maxBytes: maxBytes,
		now:      time.Now,
		logger:   logger,
	}
}

// Upload streams r into the bucket. The object is discarded if r is larger
// than the limit or the write fails.
func (u *StorageUploader) Upload(ctx context.Context, ownerID, filename, contentType string, r io.Reader) (string, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: unsupported content type %q", apperr.ErrValidation, contentType)
	}

	name := ObjectName(ownerID, filename, u.now())
	downloadToken := uuid.New().String()

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := u.objects.NewWriter(wctx, name, contentType, map[string]string{
		"firebaseStorageDownloadTokens": downloadToken,
	})
	n, err := io.Copy(w, io.LimitReader(r, u.maxBytes+1))
	if err == nil && n > u.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		// Cancelling before Close aborts the upload.
		cancel()
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", name, err)
	}

	u.logger.InfoContext(ctx, "image uploaded", "object", name, "bytes", n, "owner", ownerID)
	return DownloadURL(u.bucket, name, downloadToken), nil
}

// ObjectName builds the storage path for an image.
func ObjectName(ownerID, filename string, at time.Time) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "image"
	}
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, base)
	return fmt.Sprintf("images/%s/%d_%s", ownerID, at.UnixMilli(), base)
}

// DownloadURL is the Firebase Storage URL for an object carrying token.
func DownloadURL(bucket, object, token string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket, url.PathEscape(object), token)
}

// Placeholder ignores the image and returns a fixed URL. It is used when no
// bucket is configured.
type Placeholder struct {
	URL string
}

func (p Placeholder) Upload(_ context.Context, _, _, _ string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return p.URL, nil
}
