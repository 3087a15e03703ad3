package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/angelmondragon/ledgermart/pkg/config"
)

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

// journalDrivers lists every driver that carries its own copy of the journal schema.
var journalDrivers = []string{config.DriverPostgres, config.DriverSQLite}

var dialectHints = map[string]string{
	config.DriverPostgres: "-- postgres: amounts are NUMERIC(78,0), timestamps TIMESTAMPTZ",
	config.DriverSQLite:   "-- sqlite: amounts are TEXT to keep uint256 precision, timestamps DATETIME",
}

// CreateSQLMigrations creates one goose SQL migration per journal driver
// under root, all sharing a version so both schemas stay in step:
//
//	<root>/<driver>/<YYYYMMDDHHMMSS>_<name>.sql
//
// Nothing is written when any target already exists.
func CreateSQLMigrations(root, name string, now time.Time) ([]string, error) {
	if root == "" {
		return nil, fmt.Errorf("root dir is required")
	}
	safe, err := sanitizeName(name)
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("%s_%s.sql", now.UTC().Format("20060102150405"), safe)
	paths := make([]string, 0, len(journalDrivers))
	for _, driver := range journalDrivers {
		full := filepath.Join(DirFor(root, driver), filename)
		if _, err := os.Stat(full); err == nil {
			return nil, fmt.Errorf("migration already exists: %s", full)
		}
		paths = append(paths, full)
	}

	for i, driver := range journalDrivers {
		if err := os.MkdirAll(filepath.Dir(paths[i]), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %q: %w", filepath.Dir(paths[i]), err)
		}
		if err := os.WriteFile(paths[i], []byte(migrationTemplate(driver, safe)), 0o644); err != nil {
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

func migrationTemplate(driver, name string) string {
	return fmt.Sprintf(`-- +goose Up
%s
-- +goose StatementBegin
-- %s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %s
-- +goose StatementEnd
`, dialectHints[driver], name, name)
}
