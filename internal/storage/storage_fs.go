package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// cacheDir holds one digest file per generated chapter.
const cacheDir = ".cache"

type FSStorage struct {
	Root string
}

func NewFSStorage(root string) *FSStorage {
	return &FSStorage{Root: root}
}

// Path resolves a slash-separated output path under Root.
func (s *FSStorage) Path(destPath string) string {
	return filepath.Join(s.Root, filepath.FromSlash(destPath))
}

// EnsureDir creates a directory under Root. It is a no-op when the
// directory already exists.
func (s *FSStorage) EnsureDir(destPath string) error {
	if err := os.MkdirAll(s.Path(destPath), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	return nil
}

// File is an output file being written. Content goes to a temporary file
// next to the destination and only replaces it on Commit.
type File struct {
	f    *os.File
	dest string
}

// Create starts writing destPath.
func (s *FSStorage) Create(destPath string) (*File, error) {
	dest := s.Path(destPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	return &File{f: f, dest: dest}, nil
}

func (f *File) Write(p []byte) (int, error) {
	return f.f.Write(p)
}

// Commit closes the file and moves it into place. A stale file or symlink
// at the destination is replaced, never followed.
func (f *File) Commit() error {
	tmp := f.f.Name()
	if err := f.f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmp, f.dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Abort discards the file. The destination is left untouched.
func (f *File) Abort() error {
	tmp := f.f.Name()
	closeErr := f.f.Close()
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove temp: %w", err)
	}
	if closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		return fmt.Errorf("close temp: %w", closeErr)
	}
	return nil
}

// Digest is the change-detection key for a chapter: blake3 over the
// edition name and the source bytes.
func Digest(edition string, src io.Reader) (string, error) {
	h := blake3.New()
	h.Write([]byte(edition))
	h.Write([]byte{0})
	if _, err := io.Copy(h, src); err != nil {
		return "", fmt.Errorf("hash source: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CheckCache reports whether destPath was last generated from a source
// with the given digest and is still present.
func (s *FSStorage) CheckCache(destPath string, digest string) bool {
	if _, err := os.Stat(s.Path(destPath)); err != nil {
		return false
	}
	data, err := os.ReadFile(s.cachePath(destPath))
	return err == nil && string(data) == digest
}

func (s *FSStorage) WriteCache(destPath string, digest string) error {
	if digest == "" {
		return fmt.Errorf("cache digest required")
	}
	return s.writeFileAbsolute(s.cachePath(destPath), []byte(digest))
}

func (s *FSStorage) cachePath(destPath string) string {
	return filepath.Join(s.Root, cacheDir, filepath.FromSlash(destPath)+".b3")
}

func (s *FSStorage) writeFileAbsolute(fullPath string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	// Remove any existing file or symlink so os.WriteFile does not
	// follow a stale symlink.
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing: %w", err)
	}
	if err := os.WriteFile(fullPath, content, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}
