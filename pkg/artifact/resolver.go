// Package artifact resolves artifact coordinates to files and records the
// secondary artifacts a build produces.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Coordinates identify an artifact in a repository.
type Coordinates struct {
	GroupID    string `toml:"group"`
	ArtifactID string `toml:"artifact"`
	Version    string `toml:"version"`
	Classifier string `toml:"classifier"`
	Type       string `toml:"type"`
}

func (c Coordinates) String() string {
	s := c.GroupID + ":" + c.ArtifactID + ":" + c.Type
	if c.Classifier != "" {
		s += ":" + c.Classifier
	}
	return s + ":" + c.Version
}

// FileName returns the repository file name of the artifact.
func (c Coordinates) FileName() string {
	name := c.ArtifactID + "-" + c.Version
	if c.Classifier != "" {
		name += "-" + c.Classifier
	}
	return name + "." + c.Type
}

// Resolver locates an artifact file on disk.
type Resolver interface {
	Resolve(ctx context.Context, c Coordinates) (string, error)
}

// LocalRepository resolves artifacts from a directory laid out as
// <root>/<group as path>/<artifact>/<version>/<artifact>-<version>[-<classifier>].<type>.
type LocalRepository struct {
	Root string
}

// Resolve returns the path of c inside the repository. A missing file is an
// error naming the coordinates.
func (r *LocalRepository) Resolve(ctx context.Context, c Coordinates) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.GroupID == "" || c.ArtifactID == "" || c.Version == "" || c.Type == "" {
		return "", fmt.Errorf("resolve artifact %s: incomplete coordinates", c)
	}
	if strings.TrimSpace(r.Root) == "" {
		return "", fmt.Errorf("resolve artifact %s: no repository configured", c)
	}
	path := filepath.Join(
		r.Root,
		filepath.FromSlash(strings.ReplaceAll(c.GroupID, ".", "/")),
		c.ArtifactID,
		c.Version,
		c.FileName(),
	)
	st, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("resolve artifact %s: %w", c, err)
	}
	if st.IsDir() {
		return "", fmt.Errorf("resolve artifact %s: %s is a directory", c, path)
	}
	return path, nil
}
