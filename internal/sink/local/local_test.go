package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/JakeFAU/article-digest/internal/crawler"
)

func digest(runID string) crawler.Digest {
	return crawler.Digest{
		RunID:      runID,
		FinishedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Articles:   []crawler.Record{{Site: "s", Title: "t", Link: "https://example.com/t"}},
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("creates missing directory", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "nested", "out")
		s, err := New(Config{Dir: dir}, nil)
		require.NoError(t, err)
		require.Equal(t, filepath.Join(dir, DefaultFileName), s.Path())
		require.DirExists(t, dir)
	})

	t.Run("missing dir", func(t *testing.T) {
		t.Parallel()
		_, err := New(Config{}, nil)
		require.Error(t, err)
	})

	t.Run("not a directory", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := New(Config{Dir: file}, nil)
		require.Error(t, err)
	})

	t.Run("file name with path", func(t *testing.T) {
		t.Parallel()
		_, err := New(Config{Dir: t.TempDir(), FileName: "../escape.json"}, nil)
		require.Error(t, err)
	})
}

func TestWriteOverwritesDigest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := New(Config{Dir: dir, FileName: "news.json"}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Write(context.Background(), digest("run-1")))
	require.NoError(t, s.Write(context.Background(), digest("run-2")))

	data, err := os.ReadFile(filepath.Join(dir, "news.json"))
	require.NoError(t, err)
	require.Equal(t, "run-2", gjson.GetBytes(data, "run_id").String())
	require.Equal(t, "https://example.com/t", gjson.GetBytes(data, "articles.0.link").String())
	require.NoDirExists(t, filepath.Join(dir, "runs"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteKeepsRuns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := New(Config{Dir: dir, KeepRuns: true}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Write(context.Background(), digest("run-1")))
	require.FileExists(t, filepath.Join(dir, "runs", "run-1.json"))

	require.Error(t, s.Write(context.Background(), digest("../../x")))
	require.Error(t, s.Write(context.Background(), digest("")))
	require.NoError(t, s.Close(context.Background()))
}
