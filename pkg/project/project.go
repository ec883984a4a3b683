// Package project loads the libforge.toml build descriptor.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/odvcencio/libforge/pkg/artifact"
)

// DescriptorName is the conventional descriptor file name.
const DescriptorName = "libforge.toml"

// LocaleToken is replaced by a locale code in source paths.
const LocaleToken = "{locale}"

const (
	PackagingLibrary = "swc"

	defaultBuildDir           = "target"
	defaultSourceRoot         = "src/main/flex"
	defaultResourceDir        = "src/main/resources"
	defaultResourceBundlePath = "src/main/locales/" + LocaleToken
)

// Stylesheet is a named stylesheet include.
type Stylesheet struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

// IncludeSet is the union of every include directive of one build. A nil
// slice means the kind was not given; a non-nil empty slice was given
// empty.
type IncludeSet struct {
	Classes                 []string               `toml:"classes"`
	Files                   []string               `toml:"files"`
	Namespaces              []string               `toml:"namespaces"`
	ResourceBundles         []string               `toml:"resource-bundles"`
	ResourceBundleArtifacts []artifact.Coordinates `toml:"resource-bundle-artifacts"`
	Sources                 []string               `toml:"sources"`
	Stylesheets             []Stylesheet           `toml:"stylesheets"`
}

// Absent reports whether no include kind was given at all.
func (s IncludeSet) Absent() bool {
	return s.Classes == nil &&
		s.Files == nil &&
		s.Namespaces == nil &&
		s.ResourceBundles == nil &&
		s.ResourceBundleArtifacts == nil &&
		s.Sources == nil &&
		s.Stylesheets == nil
}

// OptimizeOptions configures the digest pipeline.
type OptimizeOptions struct {
	Signed    bool
	Algorithm string
}

// Project is a loaded descriptor with every path made absolute.
type Project struct {
	GroupID    string
	ArtifactID string
	Version    string
	Packaging  string

	BaseDir    string
	Descriptor string

	BuildDir  string
	OutputDir string
	FinalName string

	SourcePaths []string
	// CompileSourceRoots are the roots declared by the project.
	CompileSourceRoots []string
	// ExecutionSourceRoots, when non-nil, override CompileSourceRoots for
	// path resolution.
	ExecutionSourceRoots []string
	Resources            []string
	ResourceBundlePath   string
	Locales              []string
	RuntimeLocales       []string
	// LocaleLibraries are linked into every locale archive; LocaleToken is
	// replaced by the locale code.
	LocaleLibraries      []string

	Debug         bool
	ComputeDigest bool
	AddDescriptor bool
	RSLDirectory  string

	Includes IncludeSet
	Optimize OptimizeOptions
}

type fileConfig struct {
	Group     string `toml:"group"`
	Artifact  string `toml:"artifact"`
	Version   string `toml:"version"`
	Packaging string `toml:"packaging"`

	Build struct {
		Directory            string   `toml:"directory"`
		OutputDirectory      string   `toml:"output-directory"`
		FinalName            string   `toml:"final-name"`
		SourcePaths          []string `toml:"source-paths"`
		CompileSourceRoots   []string `toml:"compile-source-roots"`
		ExecutionSourceRoots []string `toml:"execution-source-roots"`
		Resources            []string `toml:"resources"`
		ResourceBundlePath   string   `toml:"resource-bundle-path"`
		Locales              []string `toml:"locales"`
		RuntimeLocales       []string `toml:"runtime-locales"`
		LocaleLibraries      []string `toml:"locale-libraries"`
		Debug                *bool    `toml:"debug"`
		ComputeDigest        *bool    `toml:"compute-digest"`
		AddDescriptor        *bool    `toml:"add-descriptor"`
		RSLDirectory         string   `toml:"rsl-directory"`
	} `toml:"build"`

	Include IncludeSet `toml:"include"`

	Optimize struct {
		Signed    bool   `toml:"signed"`
		Algorithm string `toml:"algorithm"`
	} `toml:"optimize"`
}

// Load reads the descriptor at path. Relative paths inside it are resolved
// against the descriptor's directory.
func Load(path string) (*Project, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	var fc fileConfig
	md, err := toml.Decode(string(data), &fc)
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", absPath, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("load project %s: unknown key %q", absPath, undecoded[0].String())
	}
	p, err := fc.resolve(filepath.Dir(absPath))
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", absPath, err)
	}
	p.Descriptor = absPath
	return p, nil
}

func (fc *fileConfig) resolve(baseDir string) (*Project, error) {
	if strings.TrimSpace(fc.Group) == "" {
		return nil, fmt.Errorf("group is required")
	}
	if strings.TrimSpace(fc.Artifact) == "" {
		return nil, fmt.Errorf("artifact is required")
	}
	if strings.TrimSpace(fc.Version) == "" {
		return nil, fmt.Errorf("version is required")
	}

	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	absAll := func(in []string) []string {
		if in == nil {
			return nil
		}
		out := make([]string, len(in))
		for i, p := range in {
			out[i] = abs(p)
		}
		return out
	}
	orDefault := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	flag := func(v *bool, def bool) bool {
		if v == nil {
			return def
		}
		return *v
	}

	b := fc.Build
	p := &Project{
		GroupID:              fc.Group,
		ArtifactID:           fc.Artifact,
		Version:              fc.Version,
		Packaging:            orDefault(fc.Packaging, PackagingLibrary),
		BaseDir:              baseDir,
		BuildDir:             abs(orDefault(b.Directory, defaultBuildDir)),
		FinalName:            orDefault(b.FinalName, fc.Artifact+"-"+fc.Version),
		CompileSourceRoots:   absAll(b.CompileSourceRoots),
		ExecutionSourceRoots: absAll(b.ExecutionSourceRoots),
		Resources:            absAll(b.Resources),
		ResourceBundlePath:   abs(orDefault(b.ResourceBundlePath, defaultResourceBundlePath)),
		Locales:              b.Locales,
		RuntimeLocales:       b.RuntimeLocales,
		LocaleLibraries:      absAll(b.LocaleLibraries),
		Debug:                flag(b.Debug, true),
		ComputeDigest:        flag(b.ComputeDigest, true),
		AddDescriptor:        flag(b.AddDescriptor, true),
		RSLDirectory:         abs(b.RSLDirectory),
		Optimize: OptimizeOptions{
			Signed:    fc.Optimize.Signed,
			Algorithm: fc.Optimize.Algorithm,
		},
	}
	p.OutputDir = orDefault(abs(b.OutputDirectory), filepath.Join(p.BuildDir, "classes"))
	if p.CompileSourceRoots == nil {
		p.CompileSourceRoots = []string{abs(defaultSourceRoot)}
	}
	if p.Resources == nil {
		p.Resources = []string{abs(defaultResourceDir)}
	}
	p.SourcePaths = absAll(b.SourcePaths)
	if p.SourcePaths == nil {
		p.SourcePaths = append([]string{}, p.CompileSourceRoots...)
		if len(p.Locales) > 0 {
			p.SourcePaths = append(p.SourcePaths, p.ResourceBundlePath)
		}
	}

	inc := fc.Include
	p.Includes = IncludeSet{
		Classes:                 inc.Classes,
		Files:                   absAll(inc.Files),
		Namespaces:              inc.Namespaces,
		ResourceBundles:         inc.ResourceBundles,
		ResourceBundleArtifacts: inc.ResourceBundleArtifacts,
		Sources:                 absAll(inc.Sources),
	}
	if inc.Stylesheets != nil {
		p.Includes.Stylesheets = make([]Stylesheet, len(inc.Stylesheets))
		for i, s := range inc.Stylesheets {
			p.Includes.Stylesheets[i] = Stylesheet{Name: s.Name, Path: abs(s.Path)}
		}
	}
	return p, nil
}

// Output is the path of the primary archive.
func (p *Project) Output() string {
	return filepath.Join(p.BuildDir, p.FinalName+"."+PackagingLibrary)
}

// LocaleOutput is the path of the resource-bundle archive for locale.
func (p *Project) LocaleOutput(locale string) string {
	return filepath.Join(p.BuildDir, p.FinalName+"-"+locale+".rb."+PackagingLibrary)
}

// OptimizedOutput is the path of the optimized program image.
func (p *Project) OptimizedOutput() string {
	return filepath.Join(p.BuildDir, p.FinalName+".swf")
}

// AttachmentsPath is where secondary artifacts are recorded.
func (p *Project) AttachmentsPath() string {
	return filepath.Join(p.BuildDir, "attachments.json")
}

// LocalePath expands the resource-bundle path for locale.
func (p *Project) LocalePath(locale string) string {
	return strings.ReplaceAll(p.ResourceBundlePath, LocaleToken, locale)
}

// LocaleLibraryPaths expands the declared locale libraries for locale.
func (p *Project) LocaleLibraryPaths(locale string) []string {
	out := make([]string, len(p.LocaleLibraries))
	for i, lib := range p.LocaleLibraries {
		out[i] = strings.ReplaceAll(lib, LocaleToken, locale)
	}
	return out
}

// DescriptorEntry is the archive path the descriptor is stored under.
func (p *Project) DescriptorEntry() string {
	return "META-INF/libforge/" + p.GroupID + "/" + p.ArtifactID + "/" + DescriptorName
}

// Coordinates returns the primary artifact coordinates.
func (p *Project) Coordinates() artifact.Coordinates {
	return artifact.Coordinates{
		GroupID:    p.GroupID,
		ArtifactID: p.ArtifactID,
		Version:    p.Version,
		Type:       p.Packaging,
	}
}
