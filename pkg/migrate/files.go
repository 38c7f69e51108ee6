package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	migrationNameRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	unsafeNameRe    = regexp.MustCompile(`[^a-z0-9]+`)
)

// File is one goose SQL migration as found on disk or in the embedded set.
type File struct {
	Version string
	Name    string
	Path    string
}

// ValidateDir checks the migrations under dir. An empty dir or DefaultDir
// validates the embedded set the binaries ship with.
func ValidateDir(dir string) error {
	if dir == "" || dir == DefaultDir {
		_, err := List(embeddedMigrations, embeddedDir)
		return err
	}
	_, err := List(os.DirFS(dir), ".")
	return err
}

// List returns the migrations under root sorted by version. Every file must
// carry a 14-digit timestamp version, a unique version, and both goose
// direction markers.
func List(fsys fs.FS, root string) ([]File, error) {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("read migrations %q: %w", root, err)
	}

	files := make([]File, 0, len(entries))
	byVersion := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		m := migrationNameRe.FindStringSubmatch(entry.Name())
		if m == nil {
			return nil, fmt.Errorf("migration %q must be named %s_<name>.sql", entry.Name(), versionLayout)
		}
		if _, err := time.Parse(versionLayout, m[1]); err != nil {
			return nil, fmt.Errorf("migration %q has an invalid timestamp version: %w", entry.Name(), err)
		}
		if prev, dup := byVersion[m[1]]; dup {
			return nil, fmt.Errorf("migrations %q and %q share version %s", prev, entry.Name(), m[1])
		}
		byVersion[m[1]] = entry.Name()

		full := path.Join(root, entry.Name())
		body, err := fs.ReadFile(fsys, full)
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", full, err)
		}
		for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(string(body), marker) {
				return nil, fmt.Errorf("migration %q is missing %q", entry.Name(), marker)
			}
		}
		files = append(files, File{Version: m[1], Name: m[2], Path: full})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}

// CreateSQLMigration writes an empty goose migration named after name into dir
// and returns its path.
func CreateSQLMigration(dir, name string) (string, error) {
	return createAt(dir, name, time.Now().UTC())
}

func createAt(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := strings.Trim(unsafeNameRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create migrations dir %q: %w", dir, err)
	}

	full := filepath.Join(dir, now.Format(versionLayout)+"_"+slug+".sql")
	body := "-- +goose Up\n-- +goose StatementBegin\n\n-- +goose StatementEnd\n\n" +
		"-- +goose Down\n-- +goose StatementBegin\n\n-- +goose StatementEnd\n"

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration %q: %w", full, err)
	}
	if _, err := f.WriteString(body); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write migration %q: %w", full, err)
	}
	return full, f.Close()
}
