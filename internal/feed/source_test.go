package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"b.csv":     "SKU\nB\n",
		"A.CSV":     "SKU\nA\n",
		"notes.txt": "x",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0o700))

	src := NewDirSource(dir)
	files, err := src.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A.CSV", "b.csv"}, files)

	tbl, err := src.Fetch(context.Background(), "b.csv")
	require.NoError(t, err)
	assert.Equal(t, "B", tbl.Records[0].Get("sku"))
}

func TestDirSource_RejectsPaths(t *testing.T) {
	_, err := NewDirSource(t.TempDir()).Fetch(context.Background(), "../etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid file name")
}

func TestDirSource_Missing(t *testing.T) {
	_, err := NewDirSource(t.TempDir()).Fetch(context.Background(), "nope.csv")
	require.Error(t, err)
}
