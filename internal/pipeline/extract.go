package pipeline

import (
	"archive/tar"
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned for archive entries that would land outside
// the extraction directory.
var ErrUnsafePath = errors.New("archive entry escapes extraction directory")

type Extractor struct {
	WorkDir string
}

func NewExtractor(workDir string) *Extractor {
	return &Extractor{WorkDir: workDir}
}

// Extract unpacks archivePath into a fresh directory under WorkDir and
// lists the files it contains. The cleanup function removes the directory
// and must always be called.
func (e *Extractor) Extract(ctx context.Context, archivePath string) ([]SourceFile, func() error, error) {
	format, err := detectFormat(archivePath)
	if err != nil {
		return nil, nil, err
	}

	if e.WorkDir != "" {
		if err := os.MkdirAll(e.WorkDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create work dir: %w", err)
		}
	}
	tempDir, err := os.MkdirTemp(e.WorkDir, "chapters-")
	if err != nil {
		return nil, nil, fmt.Errorf("create temp dir: %w", err)
	}

	cleanup := func() error {
		return os.RemoveAll(tempDir)
	}

	if format == formatZip {
		err = extractZip(ctx, archivePath, tempDir)
	} else {
		err = extractTar(ctx, archivePath, format, tempDir)
	}
	if err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("extract %s: %w", filepath.Base(archivePath), err)
	}

	files, err := findSources(tempDir)
	if err != nil {
		_ = cleanup()
		return nil, nil, err
	}
	return files, cleanup, nil
}

func extractZip(ctx context.Context, archivePath string, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.FileInfo().IsDir() || !f.Mode().IsRegular() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open %s: %w", f.Name, err)
		}
		err = writeEntry(dest, f.Name, rc)
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTar(ctx context.Context, archivePath string, format archiveFormat, dest string) error {
	r, closeStream, err := openTarStream(archivePath, format)
	if err != nil {
		return err
	}
	defer func() { _ = closeStream() }()

	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := writeEntry(dest, hdr.Name, tr); err != nil {
			return err
		}
	}
}

// safeJoin resolves an archive entry name under dest.
func safeJoin(dest string, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return filepath.Join(dest, clean), nil
}

func writeEntry(dest string, name string, r io.Reader) error {
	target, err := safeJoin(dest, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return f.Close()
}

// findSources lists every regular file under root.
func findSources(root string) ([]SourceFile, error) {
	var results []SourceFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("rel path: %w", err)
		}
		results = append(results, SourceFile{
			Name:         d.Name(),
			Path:         path,
			RelativePath: filepath.ToSlash(rel),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk sources: %w", err)
	}
	return results, nil
}
