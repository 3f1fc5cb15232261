package pipeline

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"
)

type archiveFormat int

const (
	formatZip archiveFormat = iota
	formatTar
	formatTarGz
	formatTarXz
)

// detectFormat picks the archive format from the file name.
func detectFormat(path string) (archiveFormat, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return formatZip, nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return formatTarGz, nil
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return formatTarXz, nil
	case strings.HasSuffix(lower, ".tar"):
		return formatTar, nil
	}
	return 0, fmt.Errorf("unsupported archive format: %s", path)
}

// openTarStream opens a tar archive and unwraps its compression layer. The
// returned cleanup function closes all underlying readers and must always
// be called.
func openTarStream(path string, format archiveFormat) (io.Reader, func() error, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open archive: %w", err)
	}

	switch format {
	case formatTarGz:
		gz, err := gzip.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, nil, fmt.Errorf("read gzip: %w", err)
		}
		cleanup := func() error {
			_ = gz.Close()
			return file.Close()
		}
		return gz, cleanup, nil
	case formatTarXz:
		xzr, err := xz.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, nil, fmt.Errorf("read xz: %w", err)
		}
		return xzr, file.Close, nil
	}
	return file, file.Close, nil
}
