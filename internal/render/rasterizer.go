package render

import (
	"bufio"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// Rasterizer opens source documents for page rendering and text extraction.
type Rasterizer interface {
	Open(path string) (Document, error)
}

// Document is an opened source document. A Document is used by one goroutine at a time.
type Document interface {
	NumPage() int
	Image(page int) (image.Image, error)
	Text(page int) (string, error)
	Close() error
}

// DefaultDPI matches the resolution of a default MuPDF pixmap.
const DefaultDPI = 72

type mupdf struct {
	dpi float64
}

// NewMuPDF returns a Rasterizer backed by MuPDF, rendering at dpi.
func NewMuPDF(dpi float64) Rasterizer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return mupdf{dpi: dpi}
}

func (m mupdf) Open(path string) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return &mupdfDocument{doc: doc, dpi: m.dpi}, nil
}

type mupdfDocument struct {
	doc *fitz.Document
	dpi float64
}

func (d *mupdfDocument) NumPage() int { return d.doc.NumPage() }

func (d *mupdfDocument) Image(page int) (image.Image, error) {
	img, err := d.doc.ImageDPI(page, d.dpi)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (d *mupdfDocument) Text(page int) (string, error) { return d.doc.Text(page) }

func (d *mupdfDocument) Close() error { return d.doc.Close() }

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(w, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// KeyMode selects how cache entries are keyed.
type KeyMode string

const (
	// KeyByFilename keys entries by filename only. A replaced source file keeps
	// serving the output rendered from its previous content.
	KeyByFilename KeyMode = "filename"
	// KeyByFingerprint adds the source modification time and size to the key so a
	// replaced source file is rendered again.
	KeyByFingerprint KeyMode = "fingerprint"
)

// ParseKeyMode maps a configuration value to a KeyMode.
func ParseKeyMode(s string) (KeyMode, error) {
	switch KeyMode(strings.ToLower(s)) {
	case "", KeyByFilename:
		return KeyByFilename, nil
	case KeyByFingerprint:
		return KeyByFingerprint, nil
	}
	return "", fmt.Errorf("unknown cache key mode %q", s)
}

// fingerprint identifies a source file revision; empty in KeyByFilename mode.
func (m KeyMode) fingerprint(info fs.FileInfo) string {
	if m != KeyByFingerprint || info == nil {
		return ""
	}
	return strconv.FormatInt(info.ModTime().UnixNano(), 10) + "-" + strconv.FormatInt(info.Size(), 10)
}

// splitLines splits text into lines at \n, \r\n, \r, \v and \f.
// A trailing terminator does not produce an empty final line.
func splitLines(text string) []string {
	lines := make([]string, 0, strings.Count(text, "\n")+1)
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n', '\v', '\f':
			lines = append(lines, text[start:i])
			start = i + 1
		case '\r':
			lines = append(lines, text[start:i])
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
