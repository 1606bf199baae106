package files

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	t.Run("creates parents and writes content", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "meta", "bizdays.csv")

		err := WriteFileAtomic(path, func(f *os.File) error {
			_, err := f.WriteString("date\n2024-01-02\n")
			return err
		})
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "date\n2024-01-02\n", string(data))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
	})

	t.Run("failed write keeps previous content", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "assets.csv")
		require.NoError(t, os.WriteFile(path, []byte("old\n"), 0644))

		boom := errors.New("boom")
		err := WriteFileAtomic(path, func(f *os.File) error {
			f.WriteString("half")
			return boom
		})
		assert.ErrorIs(t, err, boom)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "old\n", string(data))

		// no temp files are left behind
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestAtomicFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.csv")

	af, err := CreateAtomic(path)
	require.NoError(t, err)
	_, err = af.WriteString("date,close\n")
	require.NoError(t, err)
	assert.NoFileExists(t, path, "target appears only on commit")

	require.NoError(t, af.Commit())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "date,close\n", string(data))

	aborted, err := CreateAtomic(path)
	require.NoError(t, err)
	aborted.WriteString("partial")
	aborted.Abort()

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "date,close\n", string(data))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPublishEntries(t *testing.T) {
	write := func(t *testing.T, path, body string) {
		t.Helper()
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	}
	read := func(t *testing.T, path string) string {
		t.Helper()
		b, err := os.ReadFile(path)
		require.NoError(t, err)
		return string(b)
	}

	t.Run("replaces files and directories together", func(t *testing.T) {
		root := t.TempDir()
		staged := filepath.Join(root, ".staged")
		target := filepath.Join(root, "bundle")
		write(t, filepath.Join(target, "assets.csv"), "old")
		write(t, filepath.Join(target, "daily", "0.csv"), "old")
		write(t, filepath.Join(target, "daily", "1.csv"), "gone")
		write(t, filepath.Join(staged, "assets.csv"), "new")
		write(t, filepath.Join(staged, "daily", "0.csv"), "new")

		require.NoError(t, PublishEntries(staged, target, []string{"daily", "assets.csv"}))

		assert.Equal(t, "new", read(t, filepath.Join(target, "assets.csv")))
		assert.Equal(t, "new", read(t, filepath.Join(target, "daily", "0.csv")))
		assert.NoFileExists(t, filepath.Join(target, "daily", "1.csv"))
		assert.NoDirExists(t, filepath.Join(target, "daily.old"))
		assert.NoFileExists(t, filepath.Join(target, "assets.csv.old"))
	})

	t.Run("restores every entry when one cannot be published", func(t *testing.T) {
		root := t.TempDir()
		staged := filepath.Join(root, ".staged")
		target := filepath.Join(root, "bundle")
		write(t, filepath.Join(target, "assets.csv"), "old")
		write(t, filepath.Join(target, "daily", "0.csv"), "old")
		write(t, filepath.Join(staged, "assets.csv"), "new")
		write(t, filepath.Join(staged, "daily", "0.csv"), "new")
		write(t, filepath.Join(staged, "daily", "1.csv"), "new")

		err := PublishEntries(staged, target, []string{"daily", "assets.csv", "splits.csv"})
		require.Error(t, err)

		assert.Equal(t, "old", read(t, filepath.Join(target, "assets.csv")))
		assert.Equal(t, "old", read(t, filepath.Join(target, "daily", "0.csv")))
		assert.NoFileExists(t, filepath.Join(target, "daily", "1.csv"))
		assert.NoFileExists(t, filepath.Join(target, "splits.csv"))
		assert.NoDirExists(t, filepath.Join(target, "daily.old"))
	})

	t.Run("rolls back entries that did not exist before", func(t *testing.T) {
		root := t.TempDir()
		staged := filepath.Join(root, ".staged")
		target := filepath.Join(root, "bundle")
		write(t, filepath.Join(staged, "assets.csv"), "new")

		require.Error(t, PublishEntries(staged, target, []string{"assets.csv", "daily"}))
		assert.NoFileExists(t, filepath.Join(target, "assets.csv"))
	})
}

func TestExistence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.csv")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	tests := []struct {
		name  string
		probe func() (Existence, error)
		want  Existence
		err   bool
	}{
		{"dir found", func() (Existence, error) { return DirExists(dir) }, Found, false},
		{"dir missing", func() (Existence, error) { return DirExists(filepath.Join(dir, "none")) }, NotFound, false},
		{"dir is file", func() (Existence, error) { return DirExists(file) }, Error, true},
		{"file found", func() (Existence, error) { return FileExists(file) }, Found, false},
		{"file missing", func() (Existence, error) { return FileExists(filepath.Join(dir, "b.csv")) }, NotFound, false},
		{"file is dir", func() (Existence, error) { return FileExists(dir) }, Error, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.probe()
			assert.Equal(t, tt.want, got)
			if tt.err {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Equal(t, "found", Found.String())
	assert.Equal(t, "not_found", NotFound.String())
	assert.Equal(t, "error", Error.String())
}
