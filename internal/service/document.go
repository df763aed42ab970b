package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"docview/internal/apperr"
	"docview/internal/model"
	"docview/internal/reconcile"
	"docview/internal/render"
	"docview/internal/repository"
)

// DefaultPreviewConcurrency bounds the excerpt extractions of one batch preview.
const DefaultPreviewConcurrency = 4

// Reconciler converges the metadata store of one class with its directory.
type Reconciler interface {
	Reconcile(ctx context.Context, class model.Class) (reconcile.Result, error)
}

// PageRenderer serves rendered page images.
type PageRenderer interface {
	Pages(ctx context.Context, filename string) ([]model.Page, error)
	PageURL(ctx context.Context, filename string, n int) (string, error)
	Invalidate(ctx context.Context, filename string) error
}

// ExcerptSource serves first-page text excerpts.
type ExcerptSource interface {
	Lines(ctx context.Context, path string) ([]string, error)
	Forget(path string)
}

// DocumentService defines the use cases of the document viewer.
type DocumentService interface {
	// EnsureConverged reconciles the metadata store of class with its source directory.
	EnsureConverged(ctx context.Context, class model.Class) (reconcile.Result, error)

	// List reconciles class and returns its stored records ordered by filename.
	List(ctx context.Context, class model.Class) ([]model.DocumentRecord, error)

	// OpenDocument returns the ordered page images of filename.
	OpenDocument(ctx context.Context, filename string) ([]model.Page, error)

	// PreviewExcerpt returns the first-page lines of one periodic notice.
	PreviewExcerpt(ctx context.Context, filename string) ([]string, error)

	// PreviewNotices returns an excerpt for every PDF notice. A failed extraction is
	// reported on its own item and does not fail the batch.
	PreviewNotices(ctx context.Context) ([]model.Excerpt, error)

	// SourcePath returns the path of a source file of class for download.
	SourcePath(ctx context.Context, class model.Class, filename string) (string, error)

	// PageURL returns a presigned URL of page n of filename.
	PageURL(ctx context.Context, filename string, n int) (string, error)
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	layout      render.Layout
	repo        repository.DocumentRepository
	reconciler  Reconciler
	pages       PageRenderer
	excerpts    ExcerptSource
	concurrency int
	logger      *slog.Logger
}

// Config carries the collaborators of the document service.
type Config struct {
	Layout             render.Layout
	Repo               repository.DocumentRepository
	Reconciler         Reconciler
	Pages              PageRenderer
	Excerpts           ExcerptSource
	PreviewConcurrency int
	Logger             *slog.Logger
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(cfg Config) DocumentService {
	if cfg.PreviewConcurrency <= 0 {
		cfg.PreviewConcurrency = DefaultPreviewConcurrency
	}
	return &documentService{
		layout:      cfg.Layout,
		repo:        cfg.Repo,
		reconciler:  cfg.Reconciler,
		pages:       cfg.Pages,
		excerpts:    cfg.Excerpts,
		concurrency: cfg.PreviewConcurrency,
		logger:      cfg.Logger,
	}
}

func (s *documentService) EnsureConverged(ctx context.Context, class model.Class) (reconcile.Result, error) {
	res, err := s.reconciler.Reconcile(ctx, class)
	if err != nil {
		return res, err
	}
	// Rendered pages and excerpts of removed sources are stale from now on.
	for _, name := range res.Deleted {
		if err := s.pages.Invalidate(ctx, name); err != nil {
			s.logger.Warn("invalidate render cache failed",
				slog.String("filename", name),
				slog.String("error", err.Error()),
			)
		}
		s.excerpts.Forget(s.layout.SourcePath(class, name))
	}
	return res, nil
}

func (s *documentService) List(ctx context.Context, class model.Class) ([]model.DocumentRecord, error) {
	if _, err := s.EnsureConverged(ctx, class); err != nil {
		return nil, err
	}
	records, err := s.repo.ListAll(ctx, class)
	if err != nil {
		return nil, &apperr.StoreError{Op: "list", Class: class, Err: err}
	}
	return records, nil
}

func (s *documentService) OpenDocument(ctx context.Context, filename string) ([]model.Page, error) {
	return s.pages.Pages(ctx, filename)
}

func (s *documentService) PreviewExcerpt(ctx context.Context, filename string) ([]string, error) {
	path, err := s.SourcePath(ctx, model.ClassNotices, filename)
	if err != nil {
		return nil, err
	}
	return s.excerpts.Lines(ctx, path)
}

func (s *documentService) PreviewNotices(ctx context.Context) ([]model.Excerpt, error) {
	records, err := s.List(ctx, model.ClassNotices)
	if err != nil {
		return nil, err
	}

	out := make([]model.Excerpt, 0, len(records))
	for _, rec := range records {
		if !isPDF(rec.Filename) {
			continue
		}
		out = append(out, model.Excerpt{Filename: rec.Filename, DateAdded: rec.DateAdded})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range out {
		g.Go(func() error {
			path := s.layout.SourcePath(model.ClassNotices, out[i].Filename)
			lines, err := s.excerpts.Lines(gctx, path)
			if err != nil {
				s.logger.Warn("excerpt failed",
					slog.String("filename", out[i].Filename),
					slog.String("error", err.Error()),
				)
				out[i].Err = err
				return nil
			}
			out[i].Lines = lines
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *documentService) SourcePath(_ context.Context, class model.Class, filename string) (string, error) {
	if class.Dir() == "" {
		return "", fmt.Errorf("unknown document class %q", class)
	}
	if err := render.ValidateFilename(filename); err != nil {
		return "", err
	}
	path := s.layout.SourcePath(class, filename)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", filename, apperr.ErrNotFound)
		}
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s: %w", filename, apperr.ErrNotFound)
	}
	return path, nil
}

func (s *documentService) PageURL(ctx context.Context, filename string, n int) (string, error) {
	return s.pages.PageURL(ctx, filename, n)
}

func isPDF(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".pdf")
}
