package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"docview/internal/model"
	"docview/internal/repository"
)

const dbTimeout = 5 * time.Second

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// Each document class maps to its own table with identical shape.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

func table(class model.Class) (string, error) {
	t := class.Table()
	if t == "" {
		return "", fmt.Errorf("unknown document class %q", class)
	}
	return t, nil
}

// ListAll returns every record of the class ordered by filename.
func (r *DocumentPostgres) ListAll(ctx context.Context, class model.Class) ([]model.DocumentRecord, error) {
	t, err := table(class)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	q := fmt.Sprintf(`SELECT filename, size_kb, date_add FROM %s ORDER BY filename`, t)
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t, err)
	}
	defer rows.Close()

	items := make([]model.DocumentRecord, 0)
	for rows.Next() {
		var d model.DocumentRecord
		if err := rows.Scan(&d.Filename, &d.SizeKB, &d.DateAdded); err != nil {
			return nil, fmt.Errorf("list %s scan: %w", t, err)
		}
		d.DateAdded = model.Date(d.DateAdded)
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", t, err)
	}
	return items, nil
}

// AddBatch inserts records in one transaction, skipping filenames that already exist.
func (r *DocumentPostgres) AddBatch(ctx context.Context, class model.Class, records []model.DocumentRecord) error {
	return r.Apply(ctx, class, records, nil)
}

// DeleteBatch removes the named records in one transaction.
func (r *DocumentPostgres) DeleteBatch(ctx context.Context, class model.Class, filenames []string) error {
	return r.Apply(ctx, class, nil, filenames)
}

// Apply inserts add and deletes del inside a single transaction.
// Empty input does not touch the database.
func (r *DocumentPostgres) Apply(ctx context.Context, class model.Class, add []model.DocumentRecord, del []string) error {
	if len(add) == 0 && len(del) == 0 {
		return nil
	}
	t, err := table(class)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if len(add) > 0 {
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (filename, size_kb, date_add) VALUES ($1, $2, $3) ON CONFLICT (filename) DO NOTHING`, t))
		if err != nil {
			return fmt.Errorf("prepare insert %s: %w", t, err)
		}
		defer stmt.Close()
		for _, rec := range add {
			if _, err := stmt.ExecContext(ctx, rec.Filename, rec.SizeKB, model.Date(rec.DateAdded)); err != nil {
				return fmt.Errorf("insert %s %q: %w", t, rec.Filename, err)
			}
		}
	}

	if len(del) > 0 {
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE filename = $1`, t))
		if err != nil {
			return fmt.Errorf("prepare delete %s: %w", t, err)
		}
		defer stmt.Close()
		for _, name := range del {
			if _, err := stmt.ExecContext(ctx, name); err != nil {
				return fmt.Errorf("delete %s %q: %w", t, name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
