package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"docview/internal/model"
	"docview/internal/offload"
)

// fakeRasterizer interprets source files written by writeDoc:
//
//	<pages>[ fail=<page>]
//	<first page text...>
//
// Empty files and files starting with "corrupt" fail to open.
type fakeRasterizer struct {
	mu    sync.Mutex
	opens map[string]int
	gate  chan struct{}
}

func newFakeRasterizer() *fakeRasterizer {
	return &fakeRasterizer{opens: make(map[string]int)}
}

func (f *fakeRasterizer) Open(path string) (Document, error) {
	f.mu.Lock()
	f.opens[path]++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 || strings.HasPrefix(string(b), "corrupt") {
		return nil, errors.New("cannot open document: no objects found")
	}
	head, text, _ := strings.Cut(string(b), "\n")
	fields := strings.Fields(head)
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("bad fixture header %q", head)
	}
	doc := &fakeDocument{pages: n, text: text, failAt: -1}
	for _, fld := range fields[1:] {
		if v, ok := strings.CutPrefix(fld, "fail="); ok {
			doc.failAt, _ = strconv.Atoi(v)
		}
	}
	return doc, nil
}

func (f *fakeRasterizer) openCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[path]
}

func (f *fakeRasterizer) totalOpens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.opens {
		n += c
	}
	return n
}

type fakeDocument struct {
	pages  int
	text   string
	failAt int
}

func (d *fakeDocument) NumPage() int { return d.pages }

func (d *fakeDocument) Image(page int) (image.Image, error) {
	if page == d.failAt {
		return nil, fmt.Errorf("page %d: broken content stream", page)
	}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{R: uint8(page), A: 255})
	return img, nil
}

func (d *fakeDocument) Text(page int) (string, error) {
	if page != 0 {
		return "", errors.New("only the first page has text")
	}
	return d.text, nil
}

func (d *fakeDocument) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func writeDoc(t *testing.T, layout Layout, class model.Class, name, content string) string {
	t.Helper()
	dir := layout.SourceDir(class)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func newTestPool(t *testing.T) *offload.Pool {
	t.Helper()
	p := offload.NewPool(4, testLogger())
	t.Cleanup(p.Close)
	return p
}
