package download

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chemview-archive/harvester/internal/plan"
)

func TestFilenameFromURL(t *testing.T) {
	t.Parallel()

	name, err := FilenameFromURL("https://example.org/docs/notice.pdf?version=2")
	require.NoError(t, err)
	assert.Equal(t, "notice.pdf", name)

	_, err = FilenameFromURL("https://example.org/")
	require.Error(t, err)
}

func TestListPlans(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{
		"downloads_20260301_120000_002.json",
		"downloads_20260301_080000_001.json",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o600))
	}

	plans, err := ListPlans(dir)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "downloads_20260301_080000_001.json", filepath.Base(plans[0]), "oldest first")
}

func writePlan(t *testing.T, dir string, root plan.Node) string {
	t.Helper()
	raw, err := json.MarshalIndent(root, "", "  ")
	require.NoError(t, err)
	path := filepath.Join(dir, "downloads_20260301_080000_001.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func TestRunFileRecreatesTreeAndSkipsExisting(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("payload for " + r.URL.Path))
	}))
	defer server.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "dest")
	root := plan.Node{
		Folder: "chemview_archive",
		Subfolders: []*plan.Node{
			{
				Folder: "CAS-71-43-2",
				Subfolders: []*plan.Node{
					{
						Folder:     "supporting_files",
						Subfolders: []*plan.Node{},
						Downloads: []string{
							server.URL + "/files/a.pdf",
							server.URL + "/files/b.pdf",
						},
					},
				},
				Downloads: []string{},
			},
		},
		Downloads: []string{},
	}
	planPath := writePlan(t, dir, root)

	// b.pdf is already on disk from an earlier pass.
	leafDir := filepath.Join(dest, "chemview_archive", "CAS-71-43-2", "supporting_files")
	require.NoError(t, os.MkdirAll(leafDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(leafDir, "b.pdf"), []byte("old"), 0o600))

	d, err := New(Config{DestRoot: dest}, zap.NewNop())
	require.NoError(t, err)

	stats, err := d.RunFile(context.Background(), planPath)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Downloaded)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Failed)

	got, err := os.ReadFile(filepath.Join(leafDir, "a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "payload for /files/a.pdf", string(got))

	existing, err := os.ReadFile(filepath.Join(leafDir, "b.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(existing), "existing files are never re-fetched")
}

func TestRunFileStopsOnStopFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	stopFile := filepath.Join(dir, "harvest.stop")
	require.NoError(t, os.WriteFile(stopFile, nil, 0o600))

	planPath := writePlan(t, dir, plan.Node{
		Folder:     "chemview_archive",
		Subfolders: []*plan.Node{},
		Downloads:  []string{"https://example.invalid/a.pdf"},
	})

	d, err := New(Config{DestRoot: filepath.Join(dir, "dest"), StopFile: stopFile}, zap.NewNop())
	require.NoError(t, err)

	_, err = d.RunFile(context.Background(), planPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop file")
}

func TestRunFileCountsFailures(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	dir := t.TempDir()
	planPath := writePlan(t, dir, plan.Node{
		Folder:     "chemview_archive",
		Subfolders: []*plan.Node{},
		Downloads:  []string{server.URL + "/files/missing.pdf"},
	})

	d, err := New(Config{DestRoot: filepath.Join(dir, "dest")}, zap.NewNop())
	require.NoError(t, err)

	stats, err := d.RunFile(context.Background(), planPath)
	require.NoError(t, err, "individual download failures do not abort the pass")
	assert.Equal(t, 1, stats.Failed)
}
