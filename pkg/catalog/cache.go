// Package catalog caches archive catalogs for the lifetime of one run.
package catalog

import (
	"fmt"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/odvcencio/libforge/pkg/archive"
)

// DefaultSize is the number of clean archive views kept in memory.
const DefaultSize = 64

// Entry is the catalog record of one internal entry of an archive.
type Entry struct {
	Archive string
	Key     string
	Digests []archive.Digest
}

// Cache indexes archives by absolute path. Each archive is parsed once;
// concurrent first accesses to the same path share one load and distinct
// paths load independently. Readers always see the catalog as it is on disk:
// digest changes go to a private copy that replaces the cached view only once
// Export has written it. Pending copies live outside the LRU, so eviction
// never drops a change.
type Cache struct {
	clean *lru.Cache[string, *archive.Archive]
	group singleflight.Group

	mu      sync.Mutex
	pending map[string]*archive.Archive
	// locks serializes mutate/export per path.
	locks map[string]*sync.Mutex
}

// NewCache returns a cache holding up to size clean archive views.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	clean, err := lru.New[string, *archive.Archive](size)
	if err != nil {
		return nil, fmt.Errorf("catalog cache: %w", err)
	}
	return &Cache{
		clean:   clean,
		pending: make(map[string]*archive.Archive),
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("catalog cache: %w", err)
	}
	return filepath.Clean(abs), nil
}

func (c *Cache) pathLock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

// Library returns the archive view for path, loading it on first access.
// The returned view must not be modified.
func (c *Cache) Library(path string) (*archive.Archive, error) {
	key, err := canonicalPath(path)
	if err != nil {
		return nil, err
	}
	if a, ok := c.clean.Get(key); ok {
		return a, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if a, ok := c.clean.Get(key); ok {
			return a, nil
		}
		a, err := archive.Open(key)
		if err != nil {
			return nil, err
		}
		c.clean.Add(key, a)
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*archive.Archive), nil
}

// Entry returns the exported catalog record for the internal entry key of
// the archive at path.
func (c *Cache) Entry(path, key string) (*Entry, error) {
	a, err := c.Library(path)
	if err != nil {
		return nil, err
	}
	lib := a.Catalog.Library(key)
	if lib == nil {
		return nil, fmt.Errorf("catalog %s: no entry %q", a.Path, key)
	}
	digests := make([]archive.Digest, len(lib.Digests))
	copy(digests, lib.Digests)
	return &Entry{Archive: a.Path, Key: key, Digests: digests}, nil
}

// SetDigest stages a replacement of the digest record of the internal entry
// key of the archive at path. Nothing is visible until Export succeeds.
func (c *Cache) SetDigest(path, key string, d archive.Digest) error {
	a, err := c.Library(path)
	if err != nil {
		return err
	}
	lock := c.pathLock(a.Path)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	staged, ok := c.pending[a.Path]
	c.mu.Unlock()
	if !ok {
		staged = a.Clone()
	}

	lib := staged.Catalog.Library(key)
	if lib == nil {
		return fmt.Errorf("catalog %s: no entry %q", a.Path, key)
	}
	lib.SetDigest(d)

	c.mu.Lock()
	c.pending[a.Path] = staged
	c.mu.Unlock()
	return nil
}

// Export writes the staged catalog of path into the archive and makes it
// the cached view. On failure the staged changes are discarded and the
// cache keeps serving the catalog on disk. Export without staged changes
// does nothing.
func (c *Cache) Export(path string) error {
	key, err := canonicalPath(path)
	if err != nil {
		return err
	}
	lock := c.pathLock(key)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	staged, ok := c.pending[key]
	delete(c.pending, key)
	c.mu.Unlock()
	if !ok {
		return nil
	}

	// A failed export leaves the archive untouched, so the cached view stays
	// valid.
	if err := staged.Export(); err != nil {
		return err
	}
	fresh, err := archive.Open(key)
	if err != nil {
		c.clean.Remove(key)
		return err
	}
	c.clean.Add(key, fresh)
	return nil
}

// Len reports how many archive views are held, staged copies included.
func (c *Cache) Len() int {
	n := c.clean.Len()
	c.mu.Lock()
	for key := range c.pending {
		if !c.clean.Contains(key) {
			n++
		}
	}
	c.mu.Unlock()
	return n
}
