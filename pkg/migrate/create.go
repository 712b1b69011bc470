package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/angelmondragon/library-backend/pkg/config"
)

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

// Dialects lists the migration subdirectories kept in lockstep under BaseDir.
var Dialects = []string{config.DBDriverPostgres, config.DBDriverSQLite}

// CreatePairedMigration writes one goose SQL file per dialect under root, all
// sharing the same version:
//
//	<root>/postgres/<YYYYMMDDHHMMSS>_<name>.sql
//	<root>/sqlite/<YYYYMMDDHHMMSS>_<name>.sql
//
// Nothing is written when any target already exists.
func CreatePairedMigration(root, name string, now time.Time) ([]string, error) {
	if root == "" {
		return nil, fmt.Errorf("root is required")
	}
	safe, err := sanitizeName(name)
	if err != nil {
		return nil, err
	}

	version := now.UTC().Format("20060102150405")
	filename := fmt.Sprintf("%s_%s.sql", version, safe)

	paths := make([]string, 0, len(Dialects))
	for _, dialect := range Dialects {
		full := filepath.Join(root, dialect, filename)
		if _, err := os.Stat(full); err == nil {
			return nil, fmt.Errorf("migration already exists: %s", full)
		}
		paths = append(paths, full)
	}

	for i, dialect := range Dialects {
		if err := os.MkdirAll(filepath.Dir(paths[i]), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %q: %w", filepath.Dir(paths[i]), err)
		}
		if err := os.WriteFile(paths[i], []byte(migrationTemplate(dialect, safe)), 0o644); err != nil {
			return nil, fmt.Errorf("write migration %q: %w", paths[i], err)
		}
	}
	return paths, nil
}

func sanitizeName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("name is required")
	}
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = strings.ReplaceAll(safe, " ", "_")
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	safe = strings.Trim(safe, "_")
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}
	return safe, nil
}

func migrationTemplate(dialect, name string) string {
	return fmt.Sprintf(`-- %s dialect
-- +goose Up
-- +goose StatementBegin
-- %s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %s
-- +goose StatementEnd
`, dialect, name, name)
}
