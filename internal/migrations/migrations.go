package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed sql/*.sql
var embedded embed.FS

// MigrationsDir, when set, is searched before the embedded scripts.
var MigrationsDir = ""

// Migration is a single schema script.
type Migration struct {
	Version string
	SQL     string
}

// List returns every migration ordered by version (file name prefix).
func List() ([]Migration, error) {
	var source fs.FS = embedded
	root := "sql"
	if MigrationsDir != "" {
		if info, err := os.Stat(MigrationsDir); err == nil && info.IsDir() {
			source = os.DirFS(MigrationsDir)
			root = "."
		}
	}

	entries, err := fs.ReadDir(source, root)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var out []Migration
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}
		content, err := fs.ReadFile(source, filepath.ToSlash(filepath.Join(root, e.Name())))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", e.Name(), err)
		}
		out = append(out, Migration{
			Version: strings.TrimSuffix(e.Name(), ".sql"),
			SQL:     string(content),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no migrations found")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// GetInitialSchema returns the first migration's script.
func GetInitialSchema() (string, error) {
	all, err := List()
	if err != nil {
		return "", err
	}
	return all[0].SQL, nil
}
