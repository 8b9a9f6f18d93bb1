package workfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Writer replaces working files atomically: the payload goes to a temp file
// in the same directory and is renamed over the target once fully synced.
type Writer struct {
	Perm os.FileMode
}

func NewWriter() *Writer {
	return &Writer{Perm: 0o644}
}

func (w *Writer) WriteFile(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, w.perm()); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Remove deletes path; a file that is already gone is fine
func (w *Writer) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (w *Writer) perm() os.FileMode {
	if w.Perm == 0 {
		return 0o644
	}
	return w.Perm
}
