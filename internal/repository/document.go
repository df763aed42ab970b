package repository

import (
	"context"

	"docview/internal/model"
)

// DocumentRepository is the metadata store consumed by the reconciler and the listing flows.
// Every operation is scoped to one document class; classes never share rows.
type DocumentRepository interface {
	// ListAll returns every record of the class ordered by filename.
	ListAll(ctx context.Context, class model.Class) ([]model.DocumentRecord, error)

	// AddBatch inserts the records in a single transaction.
	// Records whose filename already exists are skipped.
	AddBatch(ctx context.Context, class model.Class, records []model.DocumentRecord) error

	// DeleteBatch removes the named records in a single transaction.
	// Missing filenames are not an error.
	DeleteBatch(ctx context.Context, class model.Class, filenames []string) error

	// Apply inserts add and removes del as one unit.
	Apply(ctx context.Context, class model.Class, add []model.DocumentRecord, del []string) error
}
