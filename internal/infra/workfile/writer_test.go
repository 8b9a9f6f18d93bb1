package workfile

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFile_CreatesAndOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "data.json")
	w := NewWriter()

	require.NoError(t, w.WriteFile(path, []byte(`{"a":1,"b":[1,2,3]}`)))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `{"a":1,"b":[1,2,3]}`, string(got))

	// shorter payload must fully replace the longer one
	require.NoError(t, w.WriteFile(path, []byte(`{}`)))
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `{}`, string(got))
}

func TestWriteFile_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	w := NewWriter()
	for i := 0; i < 3; i++ {
		require.NoError(t, w.WriteFile(path, []byte(`[1]`)))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "data.json", entries[0].Name())
}

func TestWriteFile_UnwritableDir(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

	err := NewWriter().WriteFile(filepath.Join(dir, "data.json"), []byte(`{}`))
	require.Error(t, err)
}

func TestWriteFile_TargetIsDirectory(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "data.json")
	require.NoError(t, os.Mkdir(target, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "keep"), []byte("x"), 0o644))

	err := NewWriter().WriteFile(target, []byte(`{}`))
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must be cleaned up on failure")
}

func TestRemove_MissingIsOK(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.Remove(filepath.Join(t.TempDir(), "gone.json")))
}
