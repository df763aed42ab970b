// Package apperr defines the failure taxonomy shared by the reconciler,
// the render caches and the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"

	"docview/internal/model"
)

var (
	// ErrNotFound reports a filename absent from every candidate source directory.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidFilename reports a filename that is not a plain base name.
	ErrInvalidFilename = errors.New("invalid filename")
	// ErrMirrorDisabled reports that no object storage mirror is configured.
	ErrMirrorDisabled = errors.New("page mirror disabled")
)

// RenderError reports a source document that exists but could not be converted.
type RenderError struct {
	Filename string
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Filename, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// ExtractionError reports a failed text extraction for a single document.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract text %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StoreError reports a failed metadata store operation.
type StoreError struct {
	Op    string
	Class model.Class
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Class, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsRenderError reports whether err carries a RenderError.
func IsRenderError(err error) bool {
	var re *RenderError
	return errors.As(err, &re)
}

// IsExtractionError reports whether err carries an ExtractionError.
func IsExtractionError(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}

// IsStoreError reports whether err carries a StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
