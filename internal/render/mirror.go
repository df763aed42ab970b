package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"docview/internal/model"
	"docview/internal/storage"
)

// Mirror copies published pages to object storage and signs download URLs for them.
type Mirror struct {
	store  storage.Storage
	expiry time.Duration
	logger *slog.Logger
}

// NewMirror returns a Mirror writing to store. Signed URLs are valid for expiry.
func NewMirror(store storage.Storage, expiry time.Duration, logger *slog.Logger) *Mirror {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &Mirror{store: store, expiry: expiry, logger: logger.With(slog.String("component", "mirror"))}
}

// ObjectKey is the object storage key of page n of filename.
func ObjectKey(filename string, n int) string {
	return path.Join(cacheDirName, filename, PageName(filename, n))
}

// Upload copies every page to object storage. Failures are logged and reported in the
// returned count of failed pages; the local render stays authoritative.
func (m *Mirror) Upload(ctx context.Context, filename string, pages []model.Page) int {
	failed := 0
	for _, p := range pages {
		if err := m.put(ctx, filename, p); err != nil {
			failed++
			m.logger.Warn("page upload failed",
				slog.String("filename", filename),
				slog.Int("page", p.Index),
				slog.String("error", err.Error()),
			)
		}
	}
	return failed
}

func (m *Mirror) put(ctx context.Context, filename string, p model.Page) error {
	f, err := os.Open(p.Location)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	_, err = m.store.Put(ctx, ObjectKey(filename, p.Index), f, storage.PutObjectOptions{
		Size:        st.Size(),
		ContentType: "image/png",
		Metadata:    map[string]string{"source-filename": filename},
	})
	return err
}

// Remove deletes the mirrored copies of pages.
func (m *Mirror) Remove(ctx context.Context, filename string, pages []model.Page) {
	for _, p := range pages {
		if err := m.store.Delete(ctx, ObjectKey(filename, p.Index)); err != nil {
			m.logger.Warn("page delete failed",
				slog.String("filename", filename),
				slog.Int("page", p.Index),
				slog.String("error", err.Error()),
			)
		}
	}
}

// URL signs a download URL for page n of filename.
func (m *Mirror) URL(ctx context.Context, filename string, n int) (string, error) {
	u, err := m.store.PresignGet(ctx, ObjectKey(filename, n), m.expiry)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", filepath.Base(ObjectKey(filename, n)), err)
	}
	return u, nil
}
