package archive

import (
	"fmt"
	"net/url"
)

// EntryKind identifies what an archive entry contributes to a library.
type EntryKind uint8

const (
	KindClass EntryKind = iota + 1
	KindNamespace
	KindSource
	KindFile
	KindResourceBundle
	KindStylesheet
)

func (k EntryKind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindNamespace:
		return "namespace"
	case KindSource:
		return "source"
	case KindFile:
		return "file"
	case KindResourceBundle:
		return "resource-bundle"
	case KindStylesheet:
		return "stylesheet"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Entry is one logical include destined for an archive. Name holds the
// class name, namespace URI, archive-internal path, bundle name or
// stylesheet name depending on Kind. Path is the on-disk source for
// sources, files and stylesheets.
type Entry struct {
	Kind EntryKind
	Name string
	Path string
}

// Builder accumulates the entries of exactly one output archive. It is not
// safe for concurrent use; each build owns its own Builder.
type Builder struct {
	entries []Entry
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddComponent adds a component referenced by its fully-qualified class name.
func (b *Builder) AddComponent(className string) {
	b.entries = append(b.entries, Entry{Kind: KindClass, Name: className})
}

// AddNamespace adds every component of the namespace identified by uri.
func (b *Builder) AddNamespace(uri *url.URL) {
	b.entries = append(b.entries, Entry{Kind: KindNamespace, Name: uri.String()})
}

// AddSource adds every component found under a source root.
func (b *Builder) AddSource(dir string) {
	b.entries = append(b.entries, Entry{Kind: KindSource, Name: dir, Path: dir})
}

// AddArchiveFile stores the file at path verbatim under name.
func (b *Builder) AddArchiveFile(name, path string) {
	b.entries = append(b.entries, Entry{Kind: KindFile, Name: name, Path: path})
}

// AddResourceBundle adds a reference to a resource bundle by name.
func (b *Builder) AddResourceBundle(name string) {
	b.entries = append(b.entries, Entry{Kind: KindResourceBundle, Name: name})
}

// AddStylesheet adds a named stylesheet.
func (b *Builder) AddStylesheet(name, path string) {
	b.entries = append(b.entries, Entry{Kind: KindStylesheet, Name: name, Path: path})
}

// Entries returns a copy of the accumulated entries in insertion order.
func (b *Builder) Entries() []Entry {
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the number of accumulated entries.
func (b *Builder) Len() int {
	return len(b.entries)
}

// Count returns the number of entries of the given kind.
func (b *Builder) Count(kind EntryKind) int {
	n := 0
	for _, e := range b.entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
