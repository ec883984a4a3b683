package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// Modified is the fixed timestamp stamped on entries written by libforge so
// that identical inputs produce identical archives.
var Modified = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Archive is a read/write view over a packaged archive on disk: its parsed
// catalog and the headers of its entries. Entry contents stay on disk.
type Archive struct {
	Path    string
	Catalog *Catalog
	Entries []EntryInfo
}

// EntryInfo describes one entry of an archive.
type EntryInfo struct {
	Name  string
	Size  uint64
	CRC32 uint32
}

// Open reads the catalog and entry headers of the archive at path.
func Open(path string) (a *Archive, err error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer func() {
		if closeErr := zr.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("open archive %s: close: %w", path, closeErr)
		}
	}()

	a = &Archive{Path: path}
	var catalogData []byte
	for _, f := range zr.File {
		a.Entries = append(a.Entries, EntryInfo{
			Name:  f.Name,
			Size:  f.UncompressedSize64,
			CRC32: f.CRC32,
		})
		if f.Name == CatalogName {
			catalogData, err = readZipFile(f)
			if err != nil {
				return nil, fmt.Errorf("open archive %s: read %s: %w", path, CatalogName, err)
			}
		}
	}
	if catalogData == nil {
		return nil, fmt.Errorf("open archive %s: missing %s", path, CatalogName)
	}
	a.Catalog, err = UnmarshalCatalog(catalogData)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	return a, nil
}

// Clone returns a copy of a whose catalog can be changed without affecting a.
func (a *Archive) Clone() *Archive {
	return &Archive{
		Path:    a.Path,
		Catalog: a.Catalog.Clone(),
		Entries: append([]EntryInfo(nil), a.Entries...),
	}
}

// Has reports whether the archive contains an entry with the given name.
func (a *Archive) Has(name string) bool {
	for _, e := range a.Entries {
		if e.Name == name {
			return true
		}
	}
	return false
}

// ReadEntry returns the uncompressed contents of the named entry.
func ReadEntry(path, name string) (data []byte, err error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("read %s from %s: %w", name, path, err)
	}
	defer func() {
		if closeErr := zr.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	for _, f := range zr.File {
		if f.Name == name {
			return readZipFile(f)
		}
	}
	return nil, fmt.Errorf("read %s from %s: %w", name, path, os.ErrNotExist)
}

// Extract unpacks every entry of the archive at path into dir. Entries whose
// names would escape dir are rejected.
func Extract(path, dir string) (err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("extract %s: %w", path, err)
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("extract %s: %w", path, err)
	}
	defer func() {
		if closeErr := zr.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for _, f := range zr.File {
		dest := filepath.Join(absDir, filepath.FromSlash(f.Name))
		rel, relErr := filepath.Rel(absDir, dest)
		if relErr != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("extract %s: invalid entry name %q", path, f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("extract %s: %w", path, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("extract %s: %w", path, err)
		}
		if err := extractFile(f, dest); err != nil {
			return fmt.Errorf("extract %s: %s: %w", path, f.Name, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, dest string) (err error) {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	_, err = io.Copy(out, rc)
	return err
}

func readZipFile(f *zip.File) (data []byte, err error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return io.ReadAll(rc)
}

// Export rewrites the archive at a.Path with the current catalog. Every
// other entry is copied without recompression, so its stored bytes are
// unchanged. The new archive is written to a temp file in the same directory
// and renamed over the original only after it is complete.
func (a *Archive) Export() (err error) {
	catalogData, err := MarshalCatalog(a.Catalog)
	if err != nil {
		return fmt.Errorf("export %s: %w", a.Path, err)
	}

	zr, err := zip.OpenReader(a.Path)
	if err != nil {
		return fmt.Errorf("export %s: %w", a.Path, err)
	}
	defer zr.Close()

	return writeAtomic(a.Path, func(zw *zip.Writer) error {
		for _, f := range zr.File {
			if f.Name != CatalogName {
				if err := zw.Copy(f); err != nil {
					return fmt.Errorf("copy %s: %w", f.Name, err)
				}
				continue
			}
			w, err := zw.CreateHeader(&zip.FileHeader{
				Name:     f.Name,
				Method:   f.Method,
				Modified: f.Modified,
				Comment:  f.Comment,
			})
			if err != nil {
				return fmt.Errorf("create %s: %w", f.Name, err)
			}
			if _, err := w.Write(catalogData); err != nil {
				return fmt.Errorf("write %s: %w", f.Name, err)
			}
		}
		return nil
	})
}

// File is one entry of a newly written archive.
type File struct {
	Name string
	Data []byte
}

// Write creates a new archive at path holding the catalog followed by files
// in order. Like Export, the archive appears at path only once complete.
func Write(path string, catalog *Catalog, files []File) error {
	catalogData, err := MarshalCatalog(catalog)
	if err != nil {
		return fmt.Errorf("write archive %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write archive %s: mkdir: %w", path, err)
	}

	all := append([]File{{Name: CatalogName, Data: catalogData}}, files...)
	return writeAtomic(path, func(zw *zip.Writer) error {
		for _, f := range all {
			w, err := zw.CreateHeader(&zip.FileHeader{
				Name:     f.Name,
				Method:   zip.Deflate,
				Modified: Modified,
			})
			if err != nil {
				return fmt.Errorf("create %s: %w", f.Name, err)
			}
			if _, err := w.Write(f.Data); err != nil {
				return fmt.Errorf("write %s: %w", f.Name, err)
			}
		}
		return nil
	})
}

// writeAtomic writes a zip stream to a temp file next to path and renames it
// into place when fill and every close succeed.
func writeAtomic(path string, fill func(zw *zip.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".archive-tmp-*")
	if err != nil {
		return fmt.Errorf("write archive %s: tmpfile: %w", path, err)
	}
	tmpName := tmp.Name()

	zw := zip.NewWriter(tmp)
	if err := fill(zw); err != nil {
		zw.Close()
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write archive %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write archive %s: finish: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write archive %s: close: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write archive %s: rename: %w", path, err)
	}
	return nil
}
