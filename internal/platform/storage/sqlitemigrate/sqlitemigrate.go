// Package sqlitemigrate applies embedded SQL migrations to a SQLite database.
package sqlitemigrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

const migrationTable = "schema_migrations"

// ApplyMigrations executes embedded migrations from migrationRoot at most once per file.
// Files are applied in lexical order; each file runs in its own transaction.
func ApplyMigrations(sqlDB *sql.DB, migrationFS fs.FS, migrationRoot string) error {
	if sqlDB == nil {
		return fmt.Errorf("sql db is required")
	}

	root := strings.TrimSpace(migrationRoot)
	if root == "" {
		root = "."
	}

	entries, err := fs.ReadDir(migrationFS, root)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var sqlFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			sqlFiles = append(sqlFiles, entry.Name())
		}
	}
	sort.Strings(sqlFiles)

	createSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`, migrationTable)
	if _, err := sqlDB.Exec(createSQL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range sqlFiles {
		key := file
		if root != "." {
			key = path.Join(root, file)
		}

		applied, err := isApplied(sqlDB, key)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if applied {
			continue
		}

		content, err := fs.ReadFile(migrationFS, path.Join(root, file))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			continue
		}

		tx, err := sqlDB.BeginTx(context.Background(), nil)
		if err != nil {
			return fmt.Errorf("begin migration transaction %s: %w", file, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}

		if _, err := tx.Exec(
			fmt.Sprintf("INSERT OR IGNORE INTO %s (name, applied_at) VALUES (?, ?)", migrationTable),
			key,
			time.Now().UTC().UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}

	return nil
}

func isApplied(sqlDB *sql.DB, key string) (bool, error) {
	var count int
	err := sqlDB.QueryRow(
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE name = ?", migrationTable),
		key,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
