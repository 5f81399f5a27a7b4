package extraction

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nwaples/rardecode/v2"
)

// rarSignatures are the magic bytes at the start of a RAR archive, used to
// confirm a .rar-named file is actually one before handing it to the
// decoder.
var rarSignatures = [][]byte{
	{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00},       // RAR 1.5-4.x
	{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x01, 0x00}, // RAR 5.0+
}

// RarExtractor unpacks RAR archives natively via rardecode, in contrast to
// the CLI7z/CLIUnzip adapters that shell out: RAR is the one format in this
// domain common enough, and multi-volume-aware enough, to be worth a
// library rather than a subprocess.
type RarExtractor struct {
	Password string
}

func NewRarExtractor(password string) *RarExtractor {
	return &RarExtractor{Password: password}
}

func (r *RarExtractor) Name() string { return "RAR" }

// CanExtract matches the first volume of a (possibly multi-part) RAR
// archive by extension and magic bytes; later volumes are skipped since
// rardecode follows volume naming conventions on its own once given the
// first one.
func (r *RarExtractor) CanExtract(filePath string) (bool, error) {
	lower := strings.ToLower(filepath.Base(filePath))
	if !strings.HasSuffix(lower, ".rar") {
		return false, nil
	}
	if strings.Contains(lower, ".part") &&
		!strings.Contains(lower, ".part01.rar") &&
		!strings.Contains(lower, ".part001.rar") &&
		!strings.Contains(lower, ".part1.rar") {
		return false, nil
	}

	f, err := os.Open(filePath)
	if err != nil {
		return false, err
	}
	defer f.Close()

	header := make([]byte, 8)
	n, err := f.Read(header)
	if err != nil && err != io.EOF {
		return false, err
	}
	for _, sig := range rarSignatures {
		if n >= len(sig) && bytes.Equal(header[:len(sig)], sig) {
			return true, nil
		}
	}
	return false, nil
}

// Extract unpacks every entry of the archive (following volume continuation
// automatically) into destDir, returning the paths written.
func (r *RarExtractor) Extract(ctx context.Context, archivePath, destDir string) ([]string, error) {
	var opts []rardecode.Option
	if r.Password != "" {
		opts = append(opts, rardecode.Password(r.Password))
	}

	rd, err := rardecode.OpenReader(archivePath, opts...)
	if err != nil {
		return nil, fmt.Errorf("extraction: opening rar %s: %w", archivePath, err)
	}
	defer rd.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("extraction: creating dest dir: %w", err)
	}

	var written []string
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		hdr, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, fmt.Errorf("extraction: reading rar entry: %w", err)
		}
		if hdr.IsDir {
			continue
		}

		destPath := filepath.Join(destDir, filepath.Clean(hdr.Name))
		if !strings.HasPrefix(destPath, filepath.Clean(destDir)+string(filepath.Separator)) {
			return written, fmt.Errorf("extraction: rar entry %q escapes destination directory", hdr.Name)
		}

		if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
			return written, err
		}
		out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return written, err
		}
		_, err = io.Copy(out, rd)
		out.Close()
		if err != nil {
			return written, fmt.Errorf("extraction: writing %s: %w", destPath, err)
		}
		written = append(written, destPath)
	}

	return written, nil
}
