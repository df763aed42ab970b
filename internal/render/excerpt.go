package render

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/singleflight"

	"docview/internal/apperr"
	"docview/internal/memo"
	"docview/internal/offload"
)

type excerptKey struct {
	path        string
	fingerprint string
}

// Excerpts serves the first-page text of documents as lines, extracting it once per file.
type Excerpts struct {
	rast    Rasterizer
	pool    *offload.Pool
	mode    KeyMode
	metrics *Metrics
	logger  *slog.Logger

	memo   *memo.LRU[excerptKey, []string]
	flight singleflight.Group
}

// NewExcerpts builds an excerpt cache from opts. Layout and Mirror are not used.
func NewExcerpts(opts Options) (*Excerpts, error) {
	if opts.Rasterizer == nil || opts.Pool == nil {
		return nil, errors.New("excerpt cache requires a rasterizer and an offload pool")
	}
	table, err := memo.New[excerptKey, []string]("excerpt", opts.Capacity, memo.WithMetrics(opts.Memo))
	if err != nil {
		return nil, err
	}
	return &Excerpts{
		rast:    opts.Rasterizer,
		pool:    opts.Pool,
		mode:    opts.Mode,
		metrics: opts.Metrics,
		logger:  opts.Logger.With(slog.String("component", "excerpt")),
		memo:    table,
	}, nil
}

// Lines returns the text lines of the first page of the document at path.
// Any failure is reported as *apperr.ExtractionError and is not memoized.
func (e *Excerpts) Lines(ctx context.Context, path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &apperr.ExtractionError{Path: path, Err: err}
	}
	key := excerptKey{path: path, fingerprint: e.mode.fingerprint(info)}
	if lines, ok := e.memo.Get(key); ok {
		return cloneLines(lines), nil
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := e.flight.DoChan(path, func() (any, error) {
		if lines, ok := e.memo.Peek(key); ok {
			return lines, nil
		}
		lines, err := offload.Run(flightCtx, e.pool, "excerpt", func(ctx context.Context) ([]string, error) {
			return e.extract(ctx, path)
		})
		if err != nil {
			if apperr.IsExtractionError(err) {
				return nil, err
			}
			return nil, &apperr.ExtractionError{Path: path, Err: err}
		}
		e.memo.Put(key, lines)
		return lines, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneLines(res.Val.([]string)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Forget drops the memoized excerpt of path.
func (e *Excerpts) Forget(path string) {
	e.memo.RemoveFunc(func(k excerptKey) bool { return k.path == path })
}

// Len returns the number of memoized excerpts.
func (e *Excerpts) Len() int { return e.memo.Len() }

func (e *Excerpts) extract(ctx context.Context, path string) (lines []string, err error) {
	start := time.Now()
	defer func() { e.metrics.observe("excerpt", start, err) }()

	doc, err := e.rast.Open(path)
	if err != nil {
		return nil, &apperr.ExtractionError{Path: path, Err: err}
	}
	defer doc.Close()

	if doc.NumPage() <= 0 {
		return nil, &apperr.ExtractionError{Path: path, Err: errors.New("document has no pages")}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := doc.Text(0)
	if err != nil {
		return nil, &apperr.ExtractionError{Path: path, Err: err}
	}
	e.logger.Debug("excerpt extracted", slog.String("path", path), slog.Duration("latency", time.Since(start)))
	return splitLines(text), nil
}

func cloneLines(lines []string) []string {
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}
