// Package reconcile keeps the metadata store converged with the files present in
// each class directory.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"docview/internal/apperr"
	"docview/internal/model"
	"docview/internal/repository"
)

// statFile is replaced in tests to simulate files removed between listing and stat.
var statFile = os.Stat

// Result describes the mutations issued by one reconciliation pass.
type Result struct {
	Class   model.Class            `json:"class"`
	Added   []model.DocumentRecord `json:"added"`
	Deleted []string               `json:"deleted"`
}

// Changed reports whether the pass mutated the store.
func (r Result) Changed() bool {
	return len(r.Added) > 0 || len(r.Deleted) > 0
}

// Diff returns the names present in dir but not stored, and stored but not in dir.
// Both results are sorted.
func Diff(dir, stored []string) (toAdd, toDelete []string) {
	inDir := make(map[string]struct{}, len(dir))
	for _, n := range dir {
		inDir[n] = struct{}{}
	}
	inStore := make(map[string]struct{}, len(stored))
	for _, n := range stored {
		inStore[n] = struct{}{}
	}
	for n := range inDir {
		if _, ok := inStore[n]; !ok {
			toAdd = append(toAdd, n)
		}
	}
	for n := range inStore {
		if _, ok := inDir[n]; !ok {
			toDelete = append(toDelete, n)
		}
	}
	sort.Strings(toAdd)
	sort.Strings(toDelete)
	return toAdd, toDelete
}

// Reconciler converges the metadata store with the source directories.
// Passes over the same class are serialized; different classes run independently.
type Reconciler struct {
	repo   repository.DocumentRepository
	dirs   func(model.Class) string
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	locks map[model.Class]*sync.Mutex
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the clock used for the date-added of new records.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New returns a Reconciler reading class directories from dirs.
func New(repo repository.DocumentRepository, dirs func(model.Class) string, logger *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		repo:   repo,
		dirs:   dirs,
		now:    time.Now,
		logger: logger.With(slog.String("component", "reconciler")),
		locks:  make(map[model.Class]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) classLock(class model.Class) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[class]
	if !ok {
		l = &sync.Mutex{}
		r.locks[class] = l
	}
	return l
}

// Reconcile runs one pass for class. It issues no store mutation when the directory
// and the store already agree. A store failure aborts the pass with *apperr.StoreError;
// the next pass recomputes the difference from scratch.
func (r *Reconciler) Reconcile(ctx context.Context, class model.Class) (Result, error) {
	if class.Dir() == "" {
		return Result{}, fmt.Errorf("unknown document class %q", class)
	}
	lock := r.classLock(class)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	res := Result{Class: class}
	dir := r.dirs(class)

	names, err := listDir(dir)
	if err != nil {
		return res, fmt.Errorf("list %s: %w", dir, err)
	}

	stored, err := r.repo.ListAll(ctx, class)
	if err != nil {
		return res, &apperr.StoreError{Op: "list", Class: class, Err: err}
	}
	storedNames := make([]string, len(stored))
	for i, rec := range stored {
		storedNames[i] = rec.Filename
	}

	toAdd, toDelete := Diff(names, storedNames)

	today := model.Date(r.now())
	for _, name := range toAdd {
		info, err := statFile(filepath.Join(dir, name))
		if err != nil {
			// Removed after listing; the next pass will not see it either.
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Result{Class: class}, fmt.Errorf("stat %s: %w", name, err)
		}
		res.Added = append(res.Added, model.DocumentRecord{
			Filename:  name,
			SizeKB:    model.SizeInKB(info.Size()),
			DateAdded: today,
		})
	}
	res.Deleted = toDelete

	if !res.Changed() {
		return res, nil
	}
	if err := r.repo.Apply(ctx, class, res.Added, res.Deleted); err != nil {
		return Result{Class: class}, &apperr.StoreError{Op: "apply", Class: class, Err: err}
	}

	r.logger.Info("reconciled",
		slog.String("class", string(class)),
		slog.Int("added", len(res.Added)),
		slog.Int("deleted", len(res.Deleted)),
		slog.Duration("latency", time.Since(start)),
	)
	return res, nil
}

// listDir returns the base names of the regular files in dir, skipping hidden entries.
// Symlinks count when they resolve to a regular file, matching how documents are
// opened. A missing directory is treated as empty.
func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		switch {
		case e.Type().IsRegular():
		case e.Type()&fs.ModeSymlink != 0:
			info, err := statFile(filepath.Join(dir, e.Name()))
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
		default:
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}
