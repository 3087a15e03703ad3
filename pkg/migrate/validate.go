package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir validates migration filenames + basic SQL headers. An empty
// directory is rejected since the journal tables must always exist.
func ValidateDir(dir string) error {
	_, err := scanDir(dir)
	return err
}

// ValidateSet validates every driver directory under root and requires them
// to carry the same migration filenames, so no dialect lags the journal schema.
func ValidateSet(root string) error {
	var (
		reference       map[string]string
		referenceDriver string
	)
	for _, driver := range journalDrivers {
		files, err := scanDir(DirFor(root, driver))
		if err != nil {
			return fmt.Errorf("%s: %w", driver, err)
		}
		if reference == nil {
			reference, referenceDriver = files, driver
			continue
		}
		if missing := diffVersions(reference, files); len(missing) > 0 {
			return fmt.Errorf("%s is missing migrations present in %s: %s", driver, referenceDriver, strings.Join(missing, ", "))
		}
		if missing := diffVersions(files, reference); len(missing) > 0 {
			return fmt.Errorf("%s is missing migrations present in %s: %s", referenceDriver, driver, strings.Join(missing, ", "))
		}
	}
	return nil
}

// scanDir returns version -> filename for a valid migration directory.
func scanDir(dir string) (map[string]string, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		version := m[1]
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		seen[version] = name

		full := filepath.Join(dir, name)
		b, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("read file %q: %w", full, err)
		}
		txt := string(b)
		for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(txt, marker) {
				return nil, fmt.Errorf("migration %q missing %q", name, marker)
			}
		}
	}

	if len(seen) == 0 {
		return nil, fmt.Errorf("no migrations found in %q", dir)
	}
	return seen, nil
}

// diffVersions lists filenames in want that have no identical entry in got.
func diffVersions(want, got map[string]string) []string {
	var missing []string
	for version, name := range want {
		if got[version] != name {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
