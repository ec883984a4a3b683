package catalog

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/odvcencio/libforge/pkg/archive"
)

func writeArchive(t *testing.T, path string) {
	t.Helper()
	cat := archive.NewCatalog("test", "1")
	cat.Libraries = []archive.Library{{
		Path:    archive.LibraryName,
		Digests: []archive.Digest{{Type: "SHA-256", Value: "00"}},
	}}
	if err := archive.Write(path, cat, []archive.File{{Name: archive.LibraryName, Data: []byte("image")}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestLibraryLoadsOncePerPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.swc")
	writeArchive(t, path)
	c, err := NewCache(0)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	var wg sync.WaitGroup
	views := make([]*archive.Archive, 16)
	errs := make([]error, 16)
	for i := range views {
		wg.Add(1)
		go func() {
			defer wg.Done()
			views[i], errs[i] = c.Library(path)
		}()
	}
	wg.Wait()

	for i := range views {
		if errs[i] != nil {
			t.Fatalf("Library[%d]: %v", i, errs[i])
		}
		if views[i] != views[0] {
			t.Fatal("concurrent loads produced distinct views")
		}
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

func TestSetDigestAndExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.swc")
	writeArchive(t, path)
	c, err := NewCache(1)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	if err := c.SetDigest(path, archive.LibraryName, archive.Digest{Type: "SHA-256", Value: "ff"}); err != nil {
		t.Fatalf("SetDigest: %v", err)
	}

	// Loading another archive into a size-one cache must not drop the
	// pending change.
	other := filepath.Join(t.TempDir(), "other.swc")
	writeArchive(t, other)
	if _, err := c.Library(other); err != nil {
		t.Fatalf("Library(other): %v", err)
	}

	e, err := c.Entry(path, archive.LibraryName)
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if len(e.Digests) != 1 || e.Digests[0].Value != "00" {
		t.Fatalf("digests before export = %+v, want the exported record", e.Digests)
	}

	if err := c.Export(path); err != nil {
		t.Fatalf("Export: %v", err)
	}
	e, err = c.Entry(path, archive.LibraryName)
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if len(e.Digests) != 1 || e.Digests[0].Value != "ff" {
		t.Fatalf("digests after export = %+v", e.Digests)
	}
	reopened, err := archive.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	d, ok := reopened.Catalog.Library(archive.LibraryName).Digest(false)
	if !ok || d.Value != "ff" {
		t.Fatalf("digest on disk = %+v", d)
	}
}

func TestEntryUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.swc")
	writeArchive(t, path)
	c, err := NewCache(0)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	if _, err := c.Entry(path, "missing.swf"); err == nil {
		t.Fatal("expected error for unknown entry")
	}
	if err := c.SetDigest(path, "missing.swf", archive.Digest{}); err == nil {
		t.Fatal("expected error setting digest of unknown entry")
	}
}

func TestLibraryMissingArchive(t *testing.T) {
	c, err := NewCache(0)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	if _, err := c.Library(filepath.Join(t.TempDir(), "nope.swc")); err == nil {
		t.Fatal("expected error for missing archive")
	}
}

func TestFailedExportKeepsExportedDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.swc")
	writeArchive(t, path)
	c, err := NewCache(0)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	view, err := c.Library(path)
	if err != nil {
		t.Fatalf("Library: %v", err)
	}
	if err := c.SetDigest(path, archive.LibraryName, archive.Digest{Type: "SHA-256", Value: "ff"}); err != nil {
		t.Fatalf("SetDigest: %v", err)
	}
	if got := view.Catalog.Library(archive.LibraryName).Digests[0].Value; got != "00" {
		t.Fatalf("cached view changed before export: %q", got)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := c.Export(path); err == nil {
		t.Fatal("expected export of a removed archive to fail")
	}

	e, err := c.Entry(path, archive.LibraryName)
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if e.Digests[0].Value != "00" {
		t.Fatalf("digest after failed export = %q, want 00", e.Digests[0].Value)
	}

	// The failed change is discarded rather than retried by a later export.
	writeArchive(t, path)
	if err := c.Export(path); err != nil {
		t.Fatalf("Export: %v", err)
	}
	reopened, err := archive.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := reopened.Catalog.Library(archive.LibraryName).Digests[0].Value; got != "00" {
		t.Fatalf("digest on disk = %q, want 00", got)
	}
}
