package server

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ZipStats summarizes what WriteZip packed.
type ZipStats struct {
	Files     int
	TotalSize int64
	FinalSize int64
}

// WriteZip packs every path in include into a zip at dst. Entry names are
// relative to root. The archive is written to dst.temp and renamed on
// success.
func WriteZip(ctx context.Context, dst, root string, include []string, report func(float64)) (ZipStats, error) {
	var stats ZipStats
	for _, p := range include {
		filepath.Walk(p, func(_ string, info os.FileInfo, err error) error {
			if err == nil && !info.IsDir() {
				stats.TotalSize += info.Size()
			}
			return nil
		})
	}

	tmp := dst + ".temp"
	out, err := os.Create(tmp)
	if err != nil {
		return stats, fmt.Errorf("could not create archive: %w", err)
	}

	zw := zip.NewWriter(out)
	var processed int64
	lastProgress := -1

	for _, p := range include {
		err = filepath.Walk(p, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if path == tmp || path == dst {
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}

			header, err := zip.FileInfoHeader(info)
			if err != nil {
				return err
			}
			header.Name = filepath.ToSlash(rel)

			if info.IsDir() {
				header.Name += "/"
			} else {
				header.Method = zip.Deflate
			}

			w, err := zw.CreateHeader(header)
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := io.Copy(w, f); err != nil {
				return err
			}

			stats.Files++
			processed += info.Size()
			if stats.TotalSize > 0 && report != nil {
				pct := float64(processed) / float64(stats.TotalSize) * 100
				if int(pct) > lastProgress {
					lastProgress = int(pct)
					report(pct)
				}
			}
			return nil
		})
		if err != nil {
			break
		}
	}

	zipErr := zw.Close()
	fileErr := out.Close()

	if err != nil || zipErr != nil || fileErr != nil {
		os.Remove(tmp)
		if err != nil {
			return stats, fmt.Errorf("error creating archive: %w", err)
		}
		return stats, fmt.Errorf("error closing archive: %v, %v", zipErr, fileErr)
	}

	if err := os.Rename(tmp, dst); err != nil {
		return stats, fmt.Errorf("error renaming temp file: %w", err)
	}
	if info, err := os.Stat(dst); err == nil {
		stats.FinalSize = info.Size()
	}
	return stats, nil
}

// Unzip extracts src into dest, keeping modification times. Entries that
// would land outside dest are rejected.
func Unzip(ctx context.Context, src, dest string, report func(float64)) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	dest = filepath.Clean(dest)
	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}

	for i, f := range r.File {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fpath := filepath.Join(dest, f.Name)
		if fpath != dest && !strings.HasPrefix(fpath, dest+string(os.PathSeparator)) {
			return fmt.Errorf("%s: illegal file path", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, 0755); err != nil {
				return err
			}
		} else if err := extractFile(f, fpath); err != nil {
			return err
		}

		if report != nil {
			report(float64(i+1) / float64(len(r.File)) * 100)
		}
	}
	return nil
}

func extractFile(f *zip.File, fpath string) error {
	if err := os.MkdirAll(filepath.Dir(fpath), 0755); err != nil {
		return err
	}

	out, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		out.Close()
		return err
	}
	defer rc.Close()

	_, err = io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil || f.Modified.IsZero() {
		return err
	}
	return os.Chtimes(fpath, f.Modified, f.Modified)
}
