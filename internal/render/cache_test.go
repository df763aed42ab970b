package render

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docview/internal/apperr"
	"docview/internal/model"
	"docview/internal/storage"
	storeMocks "docview/internal/storage/mocks"
)

func newTestCache(t *testing.T, mode KeyMode, capacity int) (*Cache, *fakeRasterizer, Layout) {
	t.Helper()
	layout := NewLayout(t.TempDir())
	rast := newFakeRasterizer()
	c, err := NewCache(Options{
		Layout:     layout,
		Rasterizer: rast,
		Pool:       newTestPool(t),
		Capacity:   capacity,
		Mode:       mode,
		Logger:     testLogger(),
	})
	require.NoError(t, err)
	return c, rast, layout
}

func TestCache_PagesOrderedAndMemoized(t *testing.T) {
	ctx := context.Background()
	c, rast, layout := newTestCache(t, KeyByFilename, 0)
	src := writeDoc(t, layout, model.ClassArchival, "a.pdf", "3\n")

	pages, err := c.Pages(ctx, "a.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 3)
	for i, p := range pages {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, filepath.Join(layout.Root, "render-cache", "a.pdf", PageName("a.pdf", i)), p.Location)
		assert.FileExists(t, p.Location)
	}

	again, err := c.Pages(ctx, "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, pages, again)
	assert.Equal(t, 1, rast.openCount(src), "second call must not convert again")
}

func TestCache_ReusesPublishedDirectory(t *testing.T) {
	ctx := context.Background()
	layout := NewLayout(t.TempDir())
	writeDoc(t, layout, model.ClassNotices, "minutes.pdf", "12\n")

	first, err := NewCache(Options{Layout: layout, Rasterizer: newFakeRasterizer(), Pool: newTestPool(t), Logger: testLogger()})
	require.NoError(t, err)
	_, err = first.Pages(ctx, "minutes.pdf")
	require.NoError(t, err)

	// A fresh process sees the published directory and skips conversion.
	rast := newFakeRasterizer()
	second, err := NewCache(Options{Layout: layout, Rasterizer: rast, Pool: newTestPool(t), Logger: testLogger()})
	require.NoError(t, err)

	pages, err := second.Pages(ctx, "minutes.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 12)
	for i, p := range pages {
		assert.Equal(t, i, p.Index)
		assert.True(t, strings.HasSuffix(p.Location, PageName("minutes.pdf", i)))
	}
	assert.Equal(t, 0, rast.totalOpens())
}

func TestCache_NotFound(t *testing.T) {
	c, _, _ := newTestCache(t, KeyByFilename, 0)

	_, err := c.Pages(context.Background(), "missing.pdf")

	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCache_InvalidFilename(t *testing.T) {
	c, _, _ := newTestCache(t, KeyByFilename, 0)

	for _, name := range []string{"", "../etc/passwd", "a/b.pdf", ".staging-x", ".."} {
		_, err := c.Pages(context.Background(), name)
		assert.ErrorIs(t, err, apperr.ErrInvalidFilename, name)
	}
}

func TestCache_ProbesArchivalFirst(t *testing.T) {
	ctx := context.Background()
	c, rast, layout := newTestCache(t, KeyByFilename, 0)
	archival := writeDoc(t, layout, model.ClassArchival, "report.pdf", "1\n")
	notices := writeDoc(t, layout, model.ClassNotices, "report.pdf", "2\n")
	onlyNotice := writeDoc(t, layout, model.ClassNotices, "notice.pdf", "2\n")

	pages, err := c.Pages(ctx, "report.pdf")
	require.NoError(t, err)
	assert.Len(t, pages, 1)
	assert.Equal(t, 1, rast.openCount(archival))
	assert.Equal(t, 0, rast.openCount(notices))

	pages, err = c.Pages(ctx, "notice.pdf")
	require.NoError(t, err)
	assert.Len(t, pages, 2)
	assert.Equal(t, 1, rast.openCount(onlyNotice))
}

func TestCache_ConcurrentMissesConvertOnce(t *testing.T) {
	ctx := context.Background()
	c, rast, layout := newTestCache(t, KeyByFilename, 0)
	src := writeDoc(t, layout, model.ClassArchival, "big.pdf", "5\n")
	rast.gate = make(chan struct{})

	const callers = 16
	var wg sync.WaitGroup
	results := make([][]model.Page, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Pages(ctx, "big.pdf")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(rast.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	assert.Equal(t, 1, rast.openCount(src))
}

func TestCache_RenderErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	c, rast, layout := newTestCache(t, KeyByFilename, 0)
	src := writeDoc(t, layout, model.ClassArchival, "broken.pdf", "corrupt")

	_, err := c.Pages(ctx, "broken.pdf")
	require.Error(t, err)
	assert.True(t, apperr.IsRenderError(err))
	assert.NoDirExists(t, layout.DocDir("broken.pdf"))
	assert.Equal(t, 0, c.Len())

	// A repaired file renders on the next call.
	require.NoError(t, os.WriteFile(src, []byte("2\n"), 0o644))
	pages, err := c.Pages(ctx, "broken.pdf")
	require.NoError(t, err)
	assert.Len(t, pages, 2)
	assert.Equal(t, 2, rast.openCount(src))
}

func TestCache_PartialRenderLeavesNoDirectory(t *testing.T) {
	ctx := context.Background()
	c, _, layout := newTestCache(t, KeyByFilename, 0)
	writeDoc(t, layout, model.ClassArchival, "half.pdf", "4 fail=2\n")

	_, err := c.Pages(ctx, "half.pdf")

	require.Error(t, err)
	assert.True(t, apperr.IsRenderError(err))
	assert.NoDirExists(t, layout.DocDir("half.pdf"))
	entries, err := os.ReadDir(layout.CacheRoot())
	require.NoError(t, err)
	assert.Empty(t, entries, "staging directory must be removed")
}

func TestCache_FingerprintModeRendersReplacedSource(t *testing.T) {
	ctx := context.Background()
	c, rast, layout := newTestCache(t, KeyByFingerprint, 0)
	src := writeDoc(t, layout, model.ClassNotices, "budget.pdf", "2\n")

	pages, err := c.Pages(ctx, "budget.pdf")
	require.NoError(t, err)
	assert.Len(t, pages, 2)

	require.NoError(t, os.WriteFile(src, []byte("3\nrevised"), 0o644))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(src, future, future))

	pages, err = c.Pages(ctx, "budget.pdf")
	require.NoError(t, err)
	assert.Len(t, pages, 3)
	assert.Equal(t, 2, rast.openCount(src))

	listed, err := listPages(layout.DocDir("budget.pdf"), "budget.pdf")
	require.NoError(t, err)
	assert.Len(t, listed, 3, "stale pages must not survive the republish")
}

func TestCache_FilenameModeKeepsServingStaleRender(t *testing.T) {
	ctx := context.Background()
	c, rast, layout := newTestCache(t, KeyByFilename, 0)
	src := writeDoc(t, layout, model.ClassNotices, "budget.pdf", "2\n")

	_, err := c.Pages(ctx, "budget.pdf")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(src, []byte("3\nrevised"), 0o644))

	pages, err := c.Pages(ctx, "budget.pdf")
	require.NoError(t, err)
	assert.Len(t, pages, 2)
	assert.Equal(t, 1, rast.openCount(src))
}

func TestCache_FilenameModeServesRenderAfterSourceRemoved(t *testing.T) {
	ctx := context.Background()
	c, rast, layout := newTestCache(t, KeyByFilename, 0)
	src := writeDoc(t, layout, model.ClassArchival, "a.pdf", "3\n")

	_, err := c.Pages(ctx, "a.pdf")
	require.NoError(t, err)
	require.NoError(t, os.Remove(src))

	t.Run("memoized", func(t *testing.T) {
		pages, err := c.Pages(ctx, "a.pdf")
		require.NoError(t, err)
		assert.Len(t, pages, 3)
	})

	t.Run("published only", func(t *testing.T) {
		fresh, err := NewCache(Options{Layout: layout, Rasterizer: rast, Pool: newTestPool(t), Logger: testLogger()})
		require.NoError(t, err)

		pages, err := fresh.Pages(ctx, "a.pdf")
		require.NoError(t, err)
		assert.Len(t, pages, 3)
	})

	assert.Equal(t, 1, rast.openCount(src))
}

func TestCache_FingerprintModeRequiresSource(t *testing.T) {
	ctx := context.Background()
	c, _, layout := newTestCache(t, KeyByFingerprint, 0)
	src := writeDoc(t, layout, model.ClassArchival, "a.pdf", "2\n")

	_, err := c.Pages(ctx, "a.pdf")
	require.NoError(t, err)
	require.NoError(t, os.Remove(src))

	_, err = c.Pages(ctx, "a.pdf")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCache_MemoIsBounded(t *testing.T) {
	ctx := context.Background()
	c, _, layout := newTestCache(t, KeyByFilename, 2)
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		writeDoc(t, layout, model.ClassArchival, name, "1\n")
		_, err := c.Pages(ctx, name)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, c.Len())
}

func TestCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	c, rast, layout := newTestCache(t, KeyByFilename, 0)
	src := writeDoc(t, layout, model.ClassArchival, "a.pdf", "2\n")

	_, err := c.Pages(ctx, "a.pdf")
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(ctx, "a.pdf"))
	assert.NoDirExists(t, layout.DocDir("a.pdf"))
	assert.Equal(t, 0, c.Len())

	_, err = c.Pages(ctx, "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, rast.openCount(src))

	assert.NoError(t, c.Invalidate(ctx, "never-rendered.pdf"))
}

func TestCache_CleanStaging(t *testing.T) {
	c, _, layout := newTestCache(t, KeyByFilename, 0)
	require.NoError(t, c.CleanStaging(), "missing cache root is fine")

	leftover := filepath.Join(layout.CacheRoot(), stagingPrefix+"dead")
	require.NoError(t, os.MkdirAll(leftover, 0o755))
	kept := layout.DocDir("a.pdf")
	require.NoError(t, os.MkdirAll(kept, 0o755))

	require.NoError(t, c.CleanStaging())

	assert.NoDirExists(t, leftover)
	assert.DirExists(t, kept)
}

func TestCache_MirrorUploadsAndSigns(t *testing.T) {
	ctx := context.Background()
	layout := NewLayout(t.TempDir())
	writeDoc(t, layout, model.ClassArchival, "a.pdf", "2\n")

	store := new(storeMocks.MockStorage)
	store.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "render-cache/a.pdf/a.pdfpage-")
	}), mock.Anything, mock.MatchedBy(func(opt storage.PutObjectOptions) bool {
		return opt.ContentType == "image/png" && opt.Size > 0
	})).Return(func(_ context.Context, key string, r io.Reader, _ storage.PutObjectOptions) storage.ObjectInfo {
		_, _ = io.Copy(io.Discard, r)
		return storage.ObjectInfo{Key: key}
	}, nil).Twice()
	store.On("PresignGet", mock.Anything, "render-cache/a.pdf/a.pdfpage-1.png", 5*time.Minute).
		Return("https://minio.local/render-cache/a.pdf/a.pdfpage-1.png?sig=x", nil)

	c, err := NewCache(Options{
		Layout:     layout,
		Rasterizer: newFakeRasterizer(),
		Pool:       newTestPool(t),
		Mirror:     NewMirror(store, 5*time.Minute, testLogger()),
		Logger:     testLogger(),
	})
	require.NoError(t, err)

	u, err := c.PageURL(ctx, "a.pdf", 1)
	require.NoError(t, err)
	assert.Contains(t, u, "a.pdfpage-1.png")

	_, err = c.PageURL(ctx, "a.pdf", 7)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	store.AssertExpectations(t)
}

func TestCache_PageURLWithoutMirror(t *testing.T) {
	c, _, _ := newTestCache(t, KeyByFilename, 0)

	_, err := c.PageURL(context.Background(), "a.pdf", 0)

	assert.ErrorIs(t, err, apperr.ErrMirrorDisabled)
}

func TestParseKeyMode(t *testing.T) {
	m, err := ParseKeyMode("")
	require.NoError(t, err)
	assert.Equal(t, KeyByFilename, m)

	m, err = ParseKeyMode("Fingerprint")
	require.NoError(t, err)
	assert.Equal(t, KeyByFingerprint, m)

	_, err = ParseKeyMode("content-hash")
	assert.Error(t, err)
}
