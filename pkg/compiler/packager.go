package compiler

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/libforge/pkg/archive"
	"github.com/odvcencio/libforge/pkg/digest"
	"github.com/odvcencio/libforge/pkg/project"
)

// ProducerName is recorded in every catalog written by Packager.
const ProducerName = "libforge"

var classExtensions = []string{".as", ".mxml"}

// Packager is the built-in Compiler. It gathers every include into program
// image records, stores archived files verbatim and writes the catalog.
type Packager struct {
	// Version is recorded as the producer version in the catalog.
	Version string
}

// Build resolves every entry of spec and writes the archive to spec.Output.
// Any unresolved class, bundle, source root or library fails the build
// before anything is written.
func (p *Packager) Build(ctx context.Context, spec *Spec) (string, error) {
	if spec == nil || spec.Entries == nil {
		return "", fmt.Errorf("compile: no entries")
	}
	if spec.Output == "" {
		return "", fmt.Errorf("compile: output path is required")
	}

	locales := spec.Locales
	if len(locales) == 0 {
		locales = []string{""}
	}

	lib := archive.Library{Path: archive.LibraryName}
	var img archive.Image
	var files []archive.File
	var fileRecords []archive.FileRecord
	seen := map[string]bool{archive.CatalogName: true, archive.LibraryName: true}

	for _, e := range spec.Entries.Entries() {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("compile %s: %w", spec.Output, err)
		}
		switch e.Kind {
		case archive.KindClass:
			path, err := findClass(spec.SourcePaths, locales, e.Name)
			if err != nil {
				return "", fmt.Errorf("compile %s: %w", spec.Output, err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("compile %s: class %s: %w", spec.Output, e.Name, err)
			}
			img.Records = append(img.Records, archive.Record{Kind: archive.RecordClass, Name: e.Name, Data: data})
			if spec.Debug {
				img.Records = append(img.Records, debugRecord(e.Name, path))
			}
			lib.Components = append(lib.Components, archive.Component{Kind: e.Kind.String(), Name: e.Name})

		case archive.KindNamespace:
			img.Records = append(img.Records, archive.Record{Kind: archive.RecordNamespace, Name: e.Name})
			lib.Components = append(lib.Components, archive.Component{Kind: e.Kind.String(), Name: e.Name})

		case archive.KindSource:
			records, err := sourceRecords(e.Path, locales, spec.Debug)
			if err != nil {
				return "", fmt.Errorf("compile %s: %w", spec.Output, err)
			}
			img.Records = append(img.Records, records...)
			lib.Components = append(lib.Components, archive.Component{Kind: e.Kind.String(), Name: filepath.ToSlash(e.Name)})

		case archive.KindFile:
			if seen[e.Name] {
				return "", fmt.Errorf("compile %s: duplicate archive entry %q", spec.Output, e.Name)
			}
			seen[e.Name] = true
			data, err := os.ReadFile(e.Path)
			if err != nil {
				return "", fmt.Errorf("compile %s: file %s: %w", spec.Output, e.Path, err)
			}
			files = append(files, archive.File{Name: e.Name, Data: data})
			fileRecords = append(fileRecords, archive.FileRecord{Path: e.Name, Size: int64(len(data))})

		case archive.KindResourceBundle:
			for _, locale := range locales {
				path, err := findBundle(spec.SourcePaths, locale, e.Name)
				if err != nil {
					return "", fmt.Errorf("compile %s: %w", spec.Output, err)
				}
				data, err := os.ReadFile(path)
				if err != nil {
					return "", fmt.Errorf("compile %s: resource bundle %s: %w", spec.Output, e.Name, err)
				}
				name := e.Name
				if locale != "" {
					name = locale + "/" + e.Name
				}
				img.Records = append(img.Records, archive.Record{Kind: archive.RecordBundle, Name: name, Data: data})
			}
			lib.Bundles = append(lib.Bundles, e.Name)

		case archive.KindStylesheet:
			data, err := os.ReadFile(e.Path)
			if err != nil {
				return "", fmt.Errorf("compile %s: stylesheet %s: %w", spec.Output, e.Path, err)
			}
			img.Records = append(img.Records, archive.Record{Kind: archive.RecordStylesheet, Name: e.Name, Data: data})
			lib.Stylesheets = append(lib.Stylesheets, e.Name)

		default:
			return "", fmt.Errorf("compile %s: unsupported entry kind %s", spec.Output, e.Kind)
		}
	}

	for _, libPath := range spec.LibraryPaths {
		data, err := os.ReadFile(libPath)
		if err != nil {
			return "", fmt.Errorf("compile %s: library %s: %w", spec.Output, libPath, err)
		}
		lib.Dependencies = append(lib.Dependencies, archive.Dependency{
			Name: filepath.Base(libPath),
			Hash: digest.HashBytes(data),
		})
	}

	image, err := archive.EncodeImage(&img, archive.CodecLZ4)
	if err != nil {
		return "", fmt.Errorf("compile %s: %w", spec.Output, err)
	}
	if spec.ComputeDigest {
		lib.Digests = []archive.Digest{{
			Type:  string(digest.SHA256),
			Value: digest.HashBytes(image),
		}}
	}

	cat := archive.NewCatalog(ProducerName, p.Version)
	cat.Features = archive.Features{Debug: spec.Debug, Locales: spec.Locales}
	cat.Libraries = []archive.Library{lib}
	cat.Files = fileRecords

	contents := append([]archive.File{{Name: archive.LibraryName, Data: image}}, files...)
	if err := archive.Write(spec.Output, cat, contents); err != nil {
		return "", fmt.Errorf("compile: %w", err)
	}
	if spec.Directory != "" {
		if err := archive.Extract(spec.Output, spec.Directory); err != nil {
			return "", fmt.Errorf("compile: rsl directory: %w", err)
		}
	}
	return spec.Output, nil
}

func debugRecord(name, origin string) archive.Record {
	return archive.Record{Kind: archive.RecordDebug, Name: name, Data: []byte(filepath.ToSlash(origin))}
}

// expandRoots returns the source paths usable for locale. Paths carrying
// the locale token are expanded; with no locale they are skipped.
func expandRoots(roots []string, locale string) []string {
	out := make([]string, 0, len(roots))
	for _, root := range roots {
		if strings.Contains(root, project.LocaleToken) {
			if locale == "" {
				continue
			}
			root = strings.ReplaceAll(root, project.LocaleToken, locale)
		}
		out = append(out, root)
	}
	return out
}

func findClass(sourcePaths, locales []string, className string) (string, error) {
	rel := filepath.FromSlash(strings.ReplaceAll(className, ".", "/"))
	for _, locale := range locales {
		for _, root := range expandRoots(sourcePaths, locale) {
			for _, ext := range classExtensions {
				candidate := filepath.Join(root, rel+ext)
				if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
					return candidate, nil
				}
			}
		}
	}
	return "", fmt.Errorf("class %s not found in source path", className)
}

func findBundle(sourcePaths []string, locale, bundle string) (string, error) {
	for _, root := range expandRoots(sourcePaths, locale) {
		candidate := filepath.Join(root, bundle+".properties")
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
	}
	if locale == "" {
		return "", fmt.Errorf("resource bundle %s not found in source path", bundle)
	}
	return "", fmt.Errorf("resource bundle %s not found for locale %s", bundle, locale)
}

func sourceRecords(root string, locales []string, debug bool) ([]archive.Record, error) {
	var dirs []string
	if strings.Contains(root, project.LocaleToken) {
		for _, locale := range locales {
			if locale != "" {
				dirs = append(dirs, strings.ReplaceAll(root, project.LocaleToken, locale))
			}
		}
	} else {
		dirs = []string{root}
	}

	var records []archive.Record
	for _, dir := range dirs {
		st, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", dir, err)
		}
		if !st.IsDir() {
			return nil, fmt.Errorf("source %s: not a directory", dir)
		}
		err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			name := filepath.ToSlash(rel)
			records = append(records, archive.Record{Kind: archive.RecordSource, Name: name, Data: data})
			if debug {
				records = append(records, debugRecord(name, path))
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", dir, err)
		}
	}
	return records, nil
}
