// Package assemble decides what goes into a library archive and drives the
// compiler over it.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/odvcencio/libforge/pkg/archive"
	"github.com/odvcencio/libforge/pkg/artifact"
	"github.com/odvcencio/libforge/pkg/compiler"
	"github.com/odvcencio/libforge/pkg/project"
)

const (
	resourceBundleType       = "properties"
	resourceBundleClassifier = "resource-bundle"
)

// Orchestrator assembles and compiles the archives of one project.
type Orchestrator struct {
	Project  *project.Project
	Compiler compiler.Compiler
	Resolver artifact.Resolver
	Logger   *log.Logger
}

func (o *Orchestrator) logger() *log.Logger {
	if o.Logger == nil {
		return log.New(io.Discard)
	}
	return o.Logger
}

// Build assembles includes into the primary archive spec and compiles it.
// Nothing is compiled when assembly fails.
func (o *Orchestrator) Build(ctx context.Context, includes project.IncludeSet) (string, error) {
	spec, err := o.Assemble(ctx, includes)
	if err != nil {
		return "", err
	}
	o.logger().Info("compiling library", "output", spec.Output, "entries", spec.Entries.Len())
	out, err := o.Compiler.Build(ctx, spec)
	if err != nil {
		return "", fmt.Errorf("build %s: %w", spec.Output, err)
	}
	return out, nil
}

// Assemble turns includes into the primary archive spec. When includes is
// entirely absent the default includes are used.
func (o *Orchestrator) Assemble(ctx context.Context, includes project.IncludeSet) (*compiler.Spec, error) {
	p := o.Project
	if includes.Absent() {
		o.logger().Warn("nothing specified to include, assuming source and resources folders")
		defaults, err := DefaultIncludes(p)
		if err != nil {
			return nil, err
		}
		includes = defaults
	}

	b := archive.NewBuilder()
	if err := o.addIncludes(ctx, b, includes); err != nil {
		return nil, err
	}

	if p.AddDescriptor {
		if p.Descriptor == "" {
			return nil, configErrorf("add descriptor", p.DescriptorEntry(), "project has no descriptor file")
		}
		b.AddArchiveFile(p.DescriptorEntry(), p.Descriptor)
	}

	return &compiler.Spec{
		Entries:       b,
		Output:        p.Output(),
		SourcePaths:   p.SourcePaths,
		Locales:       p.Locales,
		Debug:         p.Debug,
		ComputeDigest: p.ComputeDigest,
		Directory:     p.RSLDirectory,
	}, nil
}

func (o *Orchestrator) addIncludes(ctx context.Context, b *archive.Builder, inc project.IncludeSet) error {
	for _, class := range inc.Classes {
		b.AddComponent(class)
	}

	roots := RootsFor(o.Project)
	for _, file := range inc.Files {
		if file == "" {
			return configErrorf("include file", "", "cannot include a null file")
		}
		abs, err := filepath.Abs(file)
		if err != nil {
			return &ConfigError{Op: "include file", Value: file, Err: err}
		}
		root := roots.Resolve(abs)
		b.AddArchiveFile(ArchivePath(root, abs), abs)
	}

	for _, ns := range inc.Namespaces {
		uri, err := parseNamespace(ns)
		if err != nil {
			return &ConfigError{Op: "include namespace", Value: ns, Err: err}
		}
		b.AddNamespace(uri)
	}

	for _, rb := range inc.ResourceBundles {
		b.AddResourceBundle(rb)
	}

	for _, coords := range inc.ResourceBundleArtifacts {
		bundles, err := o.readBundleManifest(ctx, coords)
		if err != nil {
			return err
		}
		for _, rb := range bundles {
			b.AddResourceBundle(rb)
		}
	}

	for _, src := range inc.Sources {
		if src == "" {
			return configErrorf("include source", "", "cannot include a null file")
		}
		if !strings.Contains(filepath.Base(src), project.LocaleToken) {
			if _, err := os.Stat(src); err != nil {
				return &ConfigError{Op: "include source", Value: src, Err: err}
			}
		}
		b.AddSource(src)
	}

	for _, sheet := range inc.Stylesheets {
		if _, err := os.Stat(sheet.Path); err != nil {
			return &ConfigError{Op: "include stylesheet", Value: sheet.Path, Err: fmt.Errorf("stylesheet not found: %w", err)}
		}
		b.AddStylesheet(sheet.Name, sheet.Path)
	}
	return nil
}

// parseNamespace parses a namespace URI. url.Parse tolerates characters that
// RFC 3986 never allows, so those are rejected first.
func parseNamespace(ns string) (*url.URL, error) {
	for i, r := range ns {
		if r > 0x7e || r <= 0x20 || strings.ContainsRune(`<>"{}|\^`+"`", r) {
			return nil, fmt.Errorf("invalid URI: illegal character %q at index %d", r, i)
		}
	}
	uri, err := url.Parse(ns)
	if err != nil {
		return nil, fmt.Errorf("invalid URI: %w", err)
	}
	return uri, nil
}

// readBundleManifest resolves a resource-bundle artifact and splits its
// UTF-8 text on whitespace into bundle names.
func (o *Orchestrator) readBundleManifest(ctx context.Context, coords artifact.Coordinates) ([]string, error) {
	if coords.Type == "" {
		coords.Type = resourceBundleType
	}
	if coords.Classifier == "" {
		coords.Classifier = resourceBundleClassifier
	}
	if o.Resolver == nil {
		return nil, fmt.Errorf("resolve artifact %s: no resolver configured", coords)
	}
	path, err := o.Resolver.Resolve(ctx, coords)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resource bundle artifact %s: %w", coords, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("read resource bundle artifact %s: not valid UTF-8", coords)
	}
	return strings.Fields(string(data)), nil
}

// DefaultIncludes is what a build includes when no include was given: every
// source path except the resource-bundle path, plus every visible file
// under every existing resource directory.
func DefaultIncludes(p *project.Project) (project.IncludeSet, error) {
	sources := make([]string, 0, len(p.SourcePaths))
	for _, sp := range p.SourcePaths {
		if filepath.Clean(sp) == filepath.Clean(p.ResourceBundlePath) {
			continue
		}
		sources = append(sources, sp)
	}

	files, err := listResources(p.Resources)
	if err != nil {
		return project.IncludeSet{}, err
	}
	return project.IncludeSet{Sources: sources, Files: files}, nil
}

func listResources(dirs []string) ([]string, error) {
	files := make([]string, 0)
	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("list resources %s: %w", dir, err)
		}
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			files = append(files, abs)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("list resources %s: %w", dir, err)
		}
	}
	return files, nil
}
