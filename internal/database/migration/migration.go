package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"docview/internal/model"
)

type migrationStep struct {
	Name string
	SQL  string
}

func classTableSQL(class model.Class) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  filename TEXT          PRIMARY KEY,
  size_kb  NUMERIC(12,2) NOT NULL CHECK (size_kb >= 0),
  date_add DATE          NOT NULL DEFAULT CURRENT_DATE
);`, class.Table())
}

func steps() []migrationStep {
	var out []migrationStep
	for _, class := range model.Classes() {
		out = append(out,
			migrationStep{
				Name: "create_table_" + class.Table(),
				SQL:  classTableSQL(class),
			},
			migrationStep{
				Name: "create_index_" + class.Table() + "_date_add",
				SQL:  fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_date_add ON %s (date_add);`, class.Table(), class.Table()),
			},
		)
	}
	return out
}

// sentinelTable is created last by the step list; its presence means the schema is complete.
func sentinelTable() string {
	classes := model.Classes()
	return classes[len(classes)-1].Table()
}

// EnsureMigrated checks whether the class tables exist and creates them if they don't.
func EnsureMigrated(ctx context.Context, db *sql.DB, logger *slog.Logger, dbHost string) error {
	start := time.Now()
	log := logger.With(slog.String("component", "database"), slog.String("db_host", dbHost))

	log.Info("db_migration_check", slog.String("status", "starting"))

	var exists bool
	query := fmt.Sprintf("SELECT to_regclass('public.%s') IS NOT NULL", sentinelTable())
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.Error("db_migration_failed",
			slog.String("status", "error"),
			slog.String("error_message", fmt.Sprintf("failed to check sentinel table: %v", err)),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("db_migration_skip",
			slog.String("status", "success"),
			slog.String("msg", "schema already exists, skipping migration"),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return nil
	}

	log.Info("db_migration_start", slog.String("status", "in_progress"))

	for _, step := range steps() {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed",
				slog.String("status", "error"),
				slog.String("migration_step", step.Name),
				slog.String("error_message", err.Error()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Info("db_migration_step",
			slog.String("status", "success"),
			slog.String("migration_step", step.Name),
			slog.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
		)
	}

	log.Info("db_migration_success",
		slog.String("status", "success"),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}
