package captions

import (
	"fmt"
	"os"
)

// FileSystem is the file access the store needs. Writes must reach stable
// storage before returning.
type FileSystem interface {
	MkdirAll(dir string) error
	// WriteFile truncates or creates name, writes data and syncs it.
	WriteFile(name string, data []byte) error
	Rename(oldpath, newpath string) error
	// AppendLine appends line to name, creating it when missing, and syncs.
	AppendLine(name, line string) error
}

// OSFileSystem implements FileSystem on the local disk.
type OSFileSystem struct{}

// MkdirAll creates dir and any missing parents.
func (OSFileSystem) MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// WriteFile replaces the contents of name and syncs it to disk.
func (OSFileSystem) WriteFile(name string, data []byte) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	return f.Close()
}

// Rename moves oldpath over newpath.
func (OSFileSystem) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

// AppendLine appends line to name and syncs it. A sync failure is returned
// after the line has been written.
func (OSFileSystem) AppendLine(name, line string) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	return f.Close()
}
