package render

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docview/internal/apperr"
	"docview/internal/model"
)

func newTestExcerpts(t *testing.T, mode KeyMode, capacity int) (*Excerpts, *fakeRasterizer, Layout) {
	t.Helper()
	rast := newFakeRasterizer()
	e, err := NewExcerpts(Options{
		Rasterizer: rast,
		Pool:       newTestPool(t),
		Capacity:   capacity,
		Mode:       mode,
		Logger:     testLogger(),
	})
	require.NoError(t, err)
	return e, rast, NewLayout(t.TempDir())
}

func TestExcerpts_FirstPageLines(t *testing.T) {
	ctx := context.Background()
	e, rast, layout := newTestExcerpts(t, KeyByFilename, 0)
	p := writeDoc(t, layout, model.ClassNotices, "meeting.pdf", "3\nGeneral meeting\r\nAgenda\n\nItem 1\f")

	lines, err := e.Lines(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []string{"General meeting", "Agenda", "", "Item 1"}, lines)

	again, err := e.Lines(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, lines, again)
	assert.Equal(t, 1, rast.openCount(p))
}

func TestExcerpts_FailuresAreExtractionErrors(t *testing.T) {
	ctx := context.Background()
	e, rast, layout := newTestExcerpts(t, KeyByFilename, 0)
	empty := writeDoc(t, layout, model.ClassNotices, "empty.pdf", "")
	noPages := writeDoc(t, layout, model.ClassNotices, "blank.pdf", "0\n")

	for _, p := range []string{empty, noPages, layout.SourcePath(model.ClassNotices, "gone.pdf")} {
		_, err := e.Lines(ctx, p)
		require.Error(t, err, p)
		assert.True(t, apperr.IsExtractionError(err), p)
	}
	assert.Equal(t, 0, e.Len())

	// Failures are retried on the next call.
	_, _ = e.Lines(ctx, empty)
	assert.Equal(t, 2, rast.openCount(empty))
}

func TestExcerpts_ConcurrentCallsExtractOnce(t *testing.T) {
	ctx := context.Background()
	e, rast, layout := newTestExcerpts(t, KeyByFilename, 0)
	p := writeDoc(t, layout, model.ClassNotices, "a.pdf", "1\nhello")
	rast.gate = make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lines, err := e.Lines(ctx, p)
			assert.NoError(t, err)
			assert.Equal(t, []string{"hello"}, lines)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(rast.gate)
	wg.Wait()

	assert.Equal(t, 1, rast.openCount(p))
}

func TestExcerpts_BoundedGrowth(t *testing.T) {
	ctx := context.Background()
	e, rast, layout := newTestExcerpts(t, KeyByFilename, 3)
	paths := make([]string, 0, 4)
	for _, name := range []string{"1.pdf", "2.pdf", "3.pdf", "4.pdf"} {
		p := writeDoc(t, layout, model.ClassNotices, name, "1\n"+name)
		paths = append(paths, p)
		_, err := e.Lines(ctx, p)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, e.Len())

	// The oldest entry was evicted and is extracted again.
	_, err := e.Lines(ctx, paths[0])
	require.NoError(t, err)
	assert.Equal(t, 2, rast.openCount(paths[0]))
	assert.Equal(t, 3, e.Len())
}

func TestExcerpts_Forget(t *testing.T) {
	ctx := context.Background()
	e, rast, layout := newTestExcerpts(t, KeyByFingerprint, 0)
	p := writeDoc(t, layout, model.ClassNotices, "a.pdf", "1\nhello")

	_, err := e.Lines(ctx, p)
	require.NoError(t, err)
	e.Forget(p)
	_, err = e.Lines(ctx, p)
	require.NoError(t, err)

	assert.Equal(t, 2, rast.openCount(p))
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"one", []string{"one"}},
		{"one\n", []string{"one"}},
		{"a\r\nb\rc\nd", []string{"a", "b", "c", "d"}},
		{"a\n\nb\n", []string{"a", "", "b"}},
		{"page\f", []string{"page"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitLines(tt.in), "%q", tt.in)
	}
}
