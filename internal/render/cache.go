// Package render converts source documents into page images and text excerpts.
// Conversions run on the offload pool, are de-duplicated per filename while in
// flight, and are memoized in bounded LRU tables. Rendered pages are published
// to the render cache directory with an atomic rename so a failed conversion
// never leaves a directory that looks complete.
package render

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"docview/internal/apperr"
	"docview/internal/memo"
	"docview/internal/model"
	"docview/internal/offload"
)

var tracer = otel.Tracer("docview/internal/render")

type pageKey struct {
	source      string
	filename    string
	fingerprint string
}

// Options carries the collaborators of a Cache or Excerpts.
type Options struct {
	Layout     Layout
	Rasterizer Rasterizer
	Pool       *offload.Pool
	Capacity   int
	Mode       KeyMode
	Mirror     *Mirror
	Metrics    *Metrics
	Memo       *memo.Metrics
	Logger     *slog.Logger
}

// Cache serves the ordered page images of a document, rendering them on first use.
type Cache struct {
	layout  Layout
	rast    Rasterizer
	pool    *offload.Pool
	mode    KeyMode
	mirror  *Mirror
	metrics *Metrics
	logger  *slog.Logger

	memo   *memo.LRU[pageKey, []model.Page]
	flight singleflight.Group
}

// NewCache builds a render cache from opts.
func NewCache(opts Options) (*Cache, error) {
	if opts.Rasterizer == nil || opts.Pool == nil {
		return nil, errors.New("render cache requires a rasterizer and an offload pool")
	}
	table, err := memo.New[pageKey, []model.Page]("render", opts.Capacity, memo.WithMetrics(opts.Memo))
	if err != nil {
		return nil, err
	}
	return &Cache{
		layout:  opts.Layout,
		rast:    opts.Rasterizer,
		pool:    opts.Pool,
		mode:    opts.Mode,
		mirror:  opts.Mirror,
		metrics: opts.Metrics,
		logger:  opts.Logger.With(slog.String("component", "render")),
		memo:    table,
	}, nil
}

// Pages returns the page images of filename ordered by page index.
//
// In KeyByFilename mode a memoized or published render is served without touching
// the source directories, so it survives its source until the next reconcile pass
// invalidates it. KeyByFingerprint mode stats the source first to build its key.
//
// It fails with apperr.ErrNotFound when neither a published render nor a source file
// exists, and with *apperr.RenderError when the document cannot be converted. Failed
// conversions are not memoized, so a later call retries.
func (c *Cache) Pages(ctx context.Context, filename string) ([]model.Page, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}
	key := pageKey{filename: filename}
	if c.mode == KeyByFingerprint {
		_, src, info, err := c.layout.Resolve(filename)
		if err != nil {
			return nil, err
		}
		key.source = src
		key.fingerprint = c.mode.fingerprint(info)
	}
	if pages, ok := c.memo.Get(key); ok {
		return clonePages(pages), nil
	}

	// The flight outlives any single caller; each caller may still stop waiting.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(filename, func() (any, error) {
		if pages, ok := c.memo.Peek(key); ok {
			return pages, nil
		}
		pages, err := c.load(flightCtx, key)
		if err != nil {
			return nil, err
		}
		c.memo.Put(key, pages)
		return pages, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clonePages(res.Val.([]model.Page)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PageURL signs a mirror download URL for page n of filename, rendering it first if needed.
func (c *Cache) PageURL(ctx context.Context, filename string, n int) (string, error) {
	if c.mirror == nil {
		return "", apperr.ErrMirrorDisabled
	}
	pages, err := c.Pages(ctx, filename)
	if err != nil {
		return "", err
	}
	if n < 0 || n >= len(pages) {
		return "", fmt.Errorf("%w: %s page %d", apperr.ErrNotFound, filename, n)
	}
	return c.mirror.URL(ctx, filename, n)
}

// Invalidate forgets every memoized render of filename and removes its published
// directory and mirrored pages.
func (c *Cache) Invalidate(ctx context.Context, filename string) error {
	if err := ValidateFilename(filename); err != nil {
		return err
	}
	c.memo.RemoveFunc(func(k pageKey) bool { return k.filename == filename })

	dir := c.layout.DocDir(filename)
	pages, err := listPages(dir, filename)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove %s: %w", dir, err)
	}
	if c.mirror != nil && len(pages) > 0 {
		c.mirror.Remove(ctx, filename, pages)
	}
	c.logger.Info("render invalidated", slog.String("filename", filename), slog.Int("pages", len(pages)))
	return nil
}

// CleanStaging removes staging and retired directories left behind by an interrupted process.
func (c *Cache) CleanStaging() error {
	entries, err := os.ReadDir(c.layout.CacheRoot())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, stagingPrefix) || strings.HasPrefix(name, trashPrefix) {
			if err := os.RemoveAll(filepath.Join(c.layout.CacheRoot(), name)); err != nil {
				return err
			}
			c.logger.Info("removed leftover staging directory", slog.String("dir", name))
		}
	}
	return nil
}

// Len returns the number of memoized renders.
func (c *Cache) Len() int { return c.memo.Len() }

func (c *Cache) load(ctx context.Context, key pageKey) ([]model.Page, error) {
	if pages, ok := c.published(key); ok {
		return pages, nil
	}
	if key.source == "" {
		_, src, _, err := c.layout.Resolve(key.filename)
		if err != nil {
			return nil, err
		}
		key.source = src
	}
	pages, err := offload.Run(ctx, c.pool, "render", func(ctx context.Context) ([]model.Page, error) {
		return c.convert(ctx, key)
	})
	if err != nil {
		if apperr.IsRenderError(err) {
			return nil, err
		}
		return nil, &apperr.RenderError{Filename: key.filename, Err: err}
	}
	return pages, nil
}

// published returns the pages of an existing, complete render of key.
func (c *Cache) published(key pageKey) ([]model.Page, bool) {
	dir := c.layout.DocDir(key.filename)
	if key.fingerprint != "" {
		b, err := os.ReadFile(filepath.Join(dir, markerFileName))
		if err != nil || string(b) != key.fingerprint {
			return nil, false
		}
	}
	pages, err := listPages(dir, key.filename)
	if err != nil || len(pages) == 0 {
		return nil, false
	}
	return pages, true
}

func (c *Cache) convert(ctx context.Context, key pageKey) ([]model.Page, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "render.convert", trace.WithAttributes(
		attribute.String("document.filename", key.filename),
	))
	defer span.End()

	pages, err := c.rasterize(ctx, key)
	c.metrics.observe("pages", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("render failed", slog.String("filename", key.filename), slog.String("error", err.Error()))
		return nil, err
	}
	span.SetAttributes(attribute.Int("document.pages", len(pages)))

	if c.mirror != nil {
		c.mirror.Upload(ctx, key.filename, pages)
	}
	c.logger.Info("document rendered",
		slog.String("filename", key.filename),
		slog.Int("pages", len(pages)),
		slog.Duration("latency", time.Since(start)),
	)
	return pages, nil
}

// rasterize writes every page into a private staging directory and publishes it.
func (c *Cache) rasterize(ctx context.Context, key pageKey) ([]model.Page, error) {
	root := c.layout.CacheRoot()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create render cache: %w", err)
	}
	staging := filepath.Join(root, stagingPrefix+uuid.NewString())
	if err := os.Mkdir(staging, 0o755); err != nil {
		return nil, fmt.Errorf("create staging: %w", err)
	}
	published := false
	defer func() {
		if !published {
			_ = os.RemoveAll(staging)
		}
	}()

	doc, err := c.rast.Open(key.source)
	if err != nil {
		return nil, &apperr.RenderError{Filename: key.filename, Err: err}
	}
	defer doc.Close()

	n := doc.NumPage()
	if n <= 0 {
		return nil, &apperr.RenderError{Filename: key.filename, Err: errors.New("document has no pages")}
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.Image(i)
		if err != nil {
			return nil, &apperr.RenderError{Filename: key.filename, Err: fmt.Errorf("page %d: %w", i, err)}
		}
		if err := writePNG(filepath.Join(staging, PageName(key.filename, i)), img); err != nil {
			return nil, fmt.Errorf("write page %d: %w", i, err)
		}
	}
	if key.fingerprint != "" {
		if err := os.WriteFile(filepath.Join(staging, markerFileName), []byte(key.fingerprint), 0o644); err != nil {
			return nil, fmt.Errorf("write fingerprint: %w", err)
		}
	}

	dir := c.layout.DocDir(key.filename)
	if err := publish(staging, dir); err != nil {
		return nil, err
	}
	published = true
	c.metrics.pagesWritten(n)

	pages := make([]model.Page, n)
	for i := range pages {
		pages[i] = model.Page{Index: i, Location: filepath.Join(dir, PageName(key.filename, i))}
	}
	return pages, nil
}

// publish renames staging to dir, retiring any previous directory first.
func publish(staging, dir string) error {
	if err := os.Rename(staging, dir); err == nil {
		return nil
	}
	trash := filepath.Join(filepath.Dir(dir), trashPrefix+uuid.NewString())
	if err := os.Rename(dir, trash); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("retire %s: %w", dir, err)
	}
	if err := os.Rename(staging, dir); err != nil {
		return fmt.Errorf("publish %s: %w", dir, err)
	}
	_ = os.RemoveAll(trash)
	return nil
}

func clonePages(pages []model.Page) []model.Page {
	out := make([]model.Page, len(pages))
	copy(out, pages)
	return out
}
