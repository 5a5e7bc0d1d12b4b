package feed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Source lists and retrieves feed files.
type Source interface {
	ListFiles(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, name string) (Table, error)
}

func isCSV(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".csv")
}

// csvOnly keeps .csv names (any case), sorted.
func csvOnly(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if isCSV(n) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// DirSource reads feeds from a local directory.
type DirSource struct {
	dir string
}

// NewDirSource creates a DirSource rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (d *DirSource) ListFiles(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("feed: list %s: %w", d.dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return csvOnly(names), nil
}

func (d *DirSource) Fetch(_ context.Context, name string) (Table, error) {
	if name != filepath.Base(name) {
		return Table{}, fmt.Errorf("feed: invalid file name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(d.dir, name))
	if err != nil {
		return Table{}, fmt.Errorf("feed: fetch %q: %w", name, err)
	}
	return Parse(name, data)
}
