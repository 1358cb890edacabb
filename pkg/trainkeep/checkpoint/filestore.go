package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// FileStore is the filesystem surface the Saver depends on.
type FileStore interface {
	// Write stores data at path, replacing any existing file.
	// A partially written file must never be visible at path.
	Write(path string, data []byte) error

	// Read returns the contents of path.
	// Returns an error wrapping ErrNotFound if path doesn't exist.
	Read(path string) ([]byte, error)

	// Copy duplicates src to dst, replacing dst.
	Copy(src, dst string) error

	// Remove deletes path.
	Remove(path string) error

	// Exists reports whether path exists.
	Exists(path string) (bool, error)

	// Glob returns paths matching pattern (filepath.Match syntax).
	Glob(pattern string) ([]string, error)
}

// filePerm is applied to every file the DiskStore writes.
const filePerm = 0o644

// DiskStore is the os-backed FileStore.
// Writes go to a hidden temp file in the target directory, then rename into place.
type DiskStore struct{}

// Compile-time interface check.
var _ FileStore = DiskStore{}

// NewDiskStore creates a FileStore over the local filesystem.
func NewDiskStore() DiskStore {
	return DiskStore{}
}

// Write implements FileStore.
func (DiskStore) Write(path string, data []byte) error {
	return atomicWrite(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// Read implements FileStore.
func (DiskStore) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Copy implements FileStore.
func (DiskStore) Copy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	return atomicWrite(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// Remove implements FileStore.
func (DiskStore) Remove(path string) error {
	return os.Remove(path)
}

// Exists implements FileStore.
func (DiskStore) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Glob implements FileStore.
func (DiskStore) Glob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	return matches, nil
}

// GlobEscape quotes the filepath.Match metacharacters in s, so a directory
// such as "run[1]" can prefix a Glob pattern and still match itself.
func GlobEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '*' || r == '?' || r == '[':
			b.WriteByte('[')
			b.WriteRune(r)
			b.WriteByte(']')
		case r == '\\' && runtime.GOOS != "windows":
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// atomicWrite fills a temp file beside path and renames it over path.
// The temp name starts with a dot and ends in .tmp so it never matches
// a checkpoint or recovery glob.
func atomicWrite(path string, fill func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = fill(tmp); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err = tmp.Chmod(filePerm); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
