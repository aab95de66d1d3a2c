package gtfs

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// RoutesFile marks the directory holding the reference files
const RoutesFile = "routes.txt"

var (
	// ErrDataDirNotFound is returned when no directory at the archive root or
	// one level below contains routes.txt.
	ErrDataDirNotFound = errors.New("no directory containing " + RoutesFile)
	// ErrMissingFile is returned when an expected reference file is absent.
	ErrMissingFile = errors.New("missing reference file")
	// ErrTooLarge is returned when an archive or one of its entries exceeds its size limit.
	ErrTooLarge = errors.New("exceeds size limit")
)

// Size limits for downloaded archives and extracted entries
var (
	MaxArchiveBytes int64 = 1 << 30
	MaxEntryBytes   int64 = 1 << 30
)

// Download writes the archive at url to dest. URLs without an http(s)
// scheme, including file:// URLs, are read from the local filesystem.
func Download(ctx context.Context, client *http.Client, url, dest string) error {
	if path, ok := localPath(url); ok {
		return copyFile(path, dest)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("archive returned status %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	if err := copyLimited(out, resp.Body, MaxArchiveBytes); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	return out.Close()
}

func localPath(url string) (string, bool) {
	if strings.HasPrefix(url, "file://") {
		return strings.TrimPrefix(url, "file://"), true
	}
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return "", false
	}
	return url, true
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy archive: %w", err)
	}
	return out.Close()
}

// Extract unpacks the zip at zipPath into dest. Entries that would land
// outside dest are rejected.
func Extract(zipPath, dest string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	root := filepath.Clean(dest)
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	for _, f := range r.File {
		target := filepath.Join(root, f.Name)
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("illegal path in archive: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := copyLimited(out, rc, MaxEntryBytes); err != nil {
		return err
	}
	return out.Close()
}

// copyLimited copies at most limit bytes and fails if src holds more
func copyLimited(dst io.Writer, src io.Reader, limit int64) error {
	n, err := io.Copy(dst, io.LimitReader(src, limit+1))
	if err != nil {
		return err
	}
	if n > limit {
		return fmt.Errorf("%w of %d bytes", ErrTooLarge, limit)
	}
	return nil
}

// FindDataDir returns root if it contains routes.txt, otherwise the first
// immediate subdirectory (in name order) that does.
func FindDataDir(root string) (string, error) {
	if fileExists(filepath.Join(root, RoutesFile)) {
		return root, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if fileExists(filepath.Join(dir, RoutesFile)) {
			return dir, nil
		}
	}
	return "", ErrDataDirNotFound
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
