// Package compiler turns an assembled archive specification into a packaged
// archive.
package compiler

import (
	"context"

	"github.com/odvcencio/libforge/pkg/archive"
)

// Spec is everything a compiler needs to produce one archive.
type Spec struct {
	Entries      *archive.Builder
	Output       string
	SourcePaths  []string
	LibraryPaths []string
	Locales      []string
	Debug        bool
	// ComputeDigest records an unsigned digest of the program image in the
	// catalog.
	ComputeDigest bool
	// Directory, when set, also receives the archive contents unpacked.
	Directory string
}

// Compiler builds one archive from a Spec and returns the archive path.
type Compiler interface {
	Build(ctx context.Context, spec *Spec) (string, error)
}
