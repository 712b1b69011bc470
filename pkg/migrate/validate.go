package migrate

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

var migrationName = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

var requiredMarkers = [][]byte{
	[]byte("-- +goose Up"),
	[]byte("-- +goose Down"),
}

// ValidateDir checks that every .sql file in dir is named
// YYYYMMDDHHMMSS_name.sql, has a unique version and carries both goose
// markers.
func ValidateDir(dir string) error {
	_, err := scanDir(dir)
	return err
}

// ValidatePaired validates every dialect directory under root and requires
// them to carry the same set of versions.
func ValidatePaired(root string) error {
	byDialect := make(map[string]map[string]string, len(Dialects))
	for _, dialect := range Dialects {
		versions, err := scanDir(filepath.Join(root, dialect))
		if err != nil {
			return fmt.Errorf("%s: %w", dialect, err)
		}
		byDialect[dialect] = versions
	}
	for _, a := range Dialects {
		for _, b := range Dialects {
			if a == b {
				continue
			}
			if name, ok := firstMissing(byDialect[a], byDialect[b]); ok {
				return fmt.Errorf("%s migration %q has no %s counterpart", a, name, b)
			}
		}
	}
	return nil
}

// scanDir returns version -> filename for dir after validating each file.
func scanDir(dir string) (map[string]string, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	versions := map[string]string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".sql" {
			continue
		}
		match := migrationName.FindStringSubmatch(name)
		if match == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, dup := versions[match[1]]; dup {
			return nil, fmt.Errorf("version %s used by both %q and %q", match[1], prev, name)
		}
		if err := checkMarkers(filepath.Join(dir, name)); err != nil {
			return nil, err
		}
		versions[match[1]] = name
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("no migrations found in %q", dir)
	}
	return versions, nil
}

func checkMarkers(path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	for _, marker := range requiredMarkers {
		if !bytes.Contains(body, marker) {
			return fmt.Errorf("migration %q missing %q", filepath.Base(path), marker)
		}
	}
	return nil
}

// firstMissing reports the lowest version in have that want lacks.
func firstMissing(have, want map[string]string) (string, bool) {
	keys := make([]string, 0, len(have))
	for version := range have {
		if _, ok := want[version]; !ok {
			keys = append(keys, version)
		}
	}
	if len(keys) == 0 {
		return "", false
	}
	sort.Strings(keys)
	return have[keys[0]], true
}
