package render

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"docview/internal/apperr"
	"docview/internal/model"
)

const (
	cacheDirName   = "render-cache"
	stagingPrefix  = ".staging-"
	trashPrefix    = ".trash-"
	markerFileName = ".fingerprint"
	pageExt        = ".png"
)

// Layout maps document classes and rendered pages onto the documents root:
//
//	<root>/archival-documents/<filename>
//	<root>/periodic-notices/<filename>
//	<root>/render-cache/<filename>/<filename>page-<n>.png
type Layout struct {
	Root string
}

// NewLayout returns a Layout rooted at root.
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

// SourceDir is the directory holding the source files of class.
func (l Layout) SourceDir(class model.Class) string {
	return filepath.Join(l.Root, class.Dir())
}

// SourcePath is the path a file of class would have.
func (l Layout) SourcePath(class model.Class, filename string) string {
	return filepath.Join(l.SourceDir(class), filename)
}

// CacheRoot is the directory holding every published render.
func (l Layout) CacheRoot() string {
	return filepath.Join(l.Root, cacheDirName)
}

// DocDir is the published render directory of filename.
func (l Layout) DocDir(filename string) string {
	return filepath.Join(l.CacheRoot(), filename)
}

// PageName is the image file name of page n of filename.
func PageName(filename string, n int) string {
	return filename + "page-" + strconv.Itoa(n) + pageExt
}

// ValidateFilename accepts only plain base names that cannot escape their directory
// or collide with staging entries.
func ValidateFilename(filename string) error {
	switch {
	case filename == "",
		strings.ContainsAny(filename, `/\`),
		strings.HasPrefix(filename, "."),
		filepath.Base(filename) != filename:
		return fmt.Errorf("%w: %q", apperr.ErrInvalidFilename, filename)
	}
	return nil
}

// Resolve finds the source file of filename by probing each class directory in
// priority order. It fails with apperr.ErrNotFound when no class holds the file.
func (l Layout) Resolve(filename string) (model.Class, string, fs.FileInfo, error) {
	if err := ValidateFilename(filename); err != nil {
		return "", "", nil, err
	}
	for _, class := range model.Classes() {
		p := l.SourcePath(class, filename)
		info, err := os.Stat(p)
		if err == nil {
			if info.Mode().IsRegular() {
				return class, p, info, nil
			}
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", "", nil, fmt.Errorf("stat %s: %w", p, err)
		}
	}
	return "", "", nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, filename)
}

// listPages returns the page images of filename found in dir ordered by page index.
// Entries that are not page images of filename are ignored.
func listPages(dir, filename string) ([]model.Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	prefix := filename + "page-"
	pages := make([]model.Page, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, pageExt) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), pageExt))
		if err != nil || n < 0 {
			continue
		}
		pages = append(pages, model.Page{Index: n, Location: filepath.Join(dir, name)})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Index < pages[j].Index })
	return pages, nil
}
