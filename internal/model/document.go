package model

import (
	"fmt"
	"math"
	"time"
)

// Class identifies one of the independent collections of source documents.
// Each class has its own source directory and its own metadata table.
type Class string

const (
	// ClassArchival holds statutory filings, certificates and receipts.
	ClassArchival Class = "archival"
	// ClassNotices holds periodic notices such as meeting minutes and reports.
	ClassNotices Class = "notices"
)

// Classes returns every class in source probe priority order.
func Classes() []Class {
	return []Class{ClassArchival, ClassNotices}
}

// ParseClass maps the external class name to a Class.
func ParseClass(s string) (Class, error) {
	switch Class(s) {
	case ClassArchival, ClassNotices:
		return Class(s), nil
	}
	return "", fmt.Errorf("unknown document class %q", s)
}

// Dir is the directory name holding the class source files under the documents root.
func (c Class) Dir() string {
	switch c {
	case ClassArchival:
		return "archival-documents"
	case ClassNotices:
		return "periodic-notices"
	}
	return ""
}

// Table is the metadata table backing the class.
func (c Class) Table() string {
	switch c {
	case ClassArchival:
		return "archival_documents"
	case ClassNotices:
		return "periodic_notices"
	}
	return ""
}

// DocumentRecord is the persisted metadata of one source file.
// Records are created and deleted only by the reconciler.
type DocumentRecord struct {
	Filename  string    `json:"filename"`
	SizeKB    float64   `json:"size_kb"`
	DateAdded time.Time `json:"date_added"`
}

// SizeInKB converts a byte count to kilobytes with two fraction digits.
func SizeInKB(bytes int64) float64 {
	return math.Round(float64(bytes)/1024*100) / 100
}

// Date truncates t to a calendar date at midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Page is one rendered page image of a document.
type Page struct {
	Index    int    `json:"index"`
	Location string `json:"location"`
}

// Excerpt is the per-document result of a batch preview.
// Err is set when extraction failed for this document only.
type Excerpt struct {
	Filename  string    `json:"filename"`
	DateAdded time.Time `json:"date_added"`
	Lines     []string  `json:"lines,omitempty"`
	Err       error     `json:"-"`
}
