package assemble

import (
	"path/filepath"
	"strings"

	"github.com/odvcencio/libforge/pkg/project"
)

// Roots are the candidate owners of an included file, tried in order.
type Roots struct {
	SourcePaths []string
	// ExecutionSourceRoots take precedence over CompileSourceRoots when
	// non-nil.
	ExecutionSourceRoots []string
	CompileSourceRoots   []string
	Resources            []string
	BaseDir              string
}

// RootsFor collects the resolution roots of p.
func RootsFor(p *project.Project) Roots {
	return Roots{
		SourcePaths:          p.SourcePaths,
		ExecutionSourceRoots: p.ExecutionSourceRoots,
		CompileSourceRoots:   p.CompileSourceRoots,
		Resources:            p.Resources,
		BaseDir:              p.BaseDir,
	}
}

// Resolve returns the root owning absPath: the first root, in priority
// order, whose path is a string prefix of absPath. Order wins over
// specificity. The base directory is returned when nothing matches.
func (r Roots) Resolve(absPath string) string {
	compileRoots := r.CompileSourceRoots
	if r.ExecutionSourceRoots != nil {
		compileRoots = r.ExecutionSourceRoots
	}
	for _, list := range [][]string{r.SourcePaths, compileRoots, r.Resources} {
		for _, root := range list {
			if strings.HasPrefix(absPath, root) {
				return root
			}
		}
	}
	return r.BaseDir
}

// ArchivePath returns the archive-internal name of file relative to root,
// with forward slashes. Files outside root are placed at the archive root
// under their base name.
func ArchivePath(root, file string) string {
	rel, err := filepath.Rel(root, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = filepath.Base(file)
	}
	return strings.ReplaceAll(filepath.ToSlash(rel), "\\", "/")
}
