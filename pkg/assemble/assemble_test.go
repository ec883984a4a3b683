package assemble

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/odvcencio/libforge/pkg/archive"
	"github.com/odvcencio/libforge/pkg/artifact"
	"github.com/odvcencio/libforge/pkg/compiler"
	"github.com/odvcencio/libforge/pkg/project"
)

type countingCompiler struct {
	mu    sync.Mutex
	calls int
	specs []*compiler.Spec
}

func (c *countingCompiler) Build(ctx context.Context, spec *compiler.Spec) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.specs = append(c.specs, spec)
	return spec.Output, nil
}

type mapResolver map[string]string

func (r mapResolver) Resolve(ctx context.Context, c artifact.Coordinates) (string, error) {
	path, ok := r[c.String()]
	if !ok {
		return "", errors.New("not found: " + c.String())
	}
	return path, nil
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func testProject(t *testing.T) *project.Project {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "src", "main", "flex")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	return &project.Project{
		GroupID:            "org.example",
		ArtifactID:         "widgets",
		Version:            "1.0",
		Packaging:          project.PackagingLibrary,
		BaseDir:            dir,
		BuildDir:           filepath.Join(dir, "target"),
		FinalName:          "widgets-1.0",
		CompileSourceRoots: []string{src},
		SourcePaths:        []string{src, filepath.Join(dir, "src", "main", "locales", project.LocaleToken)},
		Resources:          []string{filepath.Join(dir, "src", "main", "resources")},
		ResourceBundlePath: filepath.Join(dir, "src", "main", "locales", project.LocaleToken),
	}
}

func TestAssembleEntryPerDirective(t *testing.T) {
	p := testProject(t)
	asset := filepath.Join(p.BaseDir, "src", "main", "resources", "img", "logo.png")
	writeFile(t, asset, "png")
	sheet := filepath.Join(p.BaseDir, "styles", "main.css")
	writeFile(t, sheet, "a{}")
	manifest := filepath.Join(p.BaseDir, "bundles.properties")
	writeFile(t, manifest, "Alpha Beta\nGamma\n")

	coords := artifact.Coordinates{GroupID: "org.example", ArtifactID: "bundles", Version: "2"}
	resolved := coords
	resolved.Type = "properties"
	resolved.Classifier = "resource-bundle"

	o := &Orchestrator{
		Project:  p,
		Compiler: &countingCompiler{},
		Resolver: mapResolver{resolved.String(): manifest},
	}
	spec, err := o.Assemble(context.Background(), project.IncludeSet{
		Classes:                 []string{"a.b.C", "a.b.D"},
		Files:                   []string{asset},
		Namespaces:              []string{"http://ns.example/lib"},
		ResourceBundles:         []string{"Foo"},
		ResourceBundleArtifacts: []artifact.Coordinates{coords},
		Sources:                 []string{p.CompileSourceRoots[0]},
		Stylesheets:             []project.Stylesheet{{Name: "main", Path: sheet}},
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	b := spec.Entries
	counts := map[archive.EntryKind]int{
		archive.KindClass:          2,
		archive.KindFile:           1,
		archive.KindNamespace:      1,
		archive.KindResourceBundle: 1 + 3,
		archive.KindSource:         1,
		archive.KindStylesheet:     1,
	}
	total := 0
	for kind, want := range counts {
		if got := b.Count(kind); got != want {
			t.Fatalf("%s entries = %d, want %d", kind, got, want)
		}
		total += want
	}
	if b.Len() != total {
		t.Fatalf("entries = %d, want %d", b.Len(), total)
	}

	for _, e := range b.Entries() {
		if e.Kind == archive.KindFile && e.Name != "img/logo.png" {
			t.Fatalf("file entry name = %q, want img/logo.png", e.Name)
		}
	}
	if spec.Output != p.Output() {
		t.Fatalf("output = %q, want %q", spec.Output, p.Output())
	}
}

func TestAssembleAddsDescriptor(t *testing.T) {
	p := testProject(t)
	p.AddDescriptor = true
	p.Descriptor = filepath.Join(p.BaseDir, project.DescriptorName)
	writeFile(t, p.Descriptor, "group = \"org.example\"\n")

	o := &Orchestrator{Project: p, Compiler: &countingCompiler{}}
	spec, err := o.Assemble(context.Background(), project.IncludeSet{Classes: []string{"a.B"}})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	entries := spec.Entries.Entries()
	last := entries[len(entries)-1]
	if last.Kind != archive.KindFile || last.Name != "META-INF/libforge/org.example/widgets/libforge.toml" {
		t.Fatalf("last entry = %+v", last)
	}
}

func TestAssembleEscapingFileUsesBaseName(t *testing.T) {
	p := testProject(t)
	p.SourcePaths = []string{filepath.Join(p.BaseDir, "proj", "src")}
	p.CompileSourceRoots = nil
	p.Resources = nil
	p.BaseDir = filepath.Join(p.BaseDir, "proj")

	outside := filepath.Join(filepath.Dir(p.BaseDir), "other", "x.txt")
	writeFile(t, outside, "x")

	o := &Orchestrator{Project: p, Compiler: &countingCompiler{}}
	spec, err := o.Assemble(context.Background(), project.IncludeSet{Files: []string{outside}})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got := spec.Entries.Entries()[0].Name; got != "x.txt" {
		t.Fatalf("entry name = %q, want x.txt", got)
	}
}

func TestDefaultIncludesWhenAbsent(t *testing.T) {
	p := testProject(t)
	res := p.Resources[0]
	writeFile(t, filepath.Join(res, "a.txt"), "a")
	writeFile(t, filepath.Join(res, "nested", "b.txt"), "b")
	writeFile(t, filepath.Join(res, ".hidden"), "h")
	p.Resources = append(p.Resources, filepath.Join(p.BaseDir, "missing"))

	first, err := DefaultIncludes(p)
	if err != nil {
		t.Fatalf("DefaultIncludes: %v", err)
	}
	second, err := DefaultIncludes(p)
	if err != nil {
		t.Fatalf("DefaultIncludes: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("default includes not idempotent:\n%+v\n%+v", first, second)
	}

	if len(first.Sources) != 1 || first.Sources[0] != p.CompileSourceRoots[0] {
		t.Fatalf("sources = %v, want only the compile root", first.Sources)
	}
	want := []string{filepath.Join(res, "a.txt"), filepath.Join(res, "nested", "b.txt")}
	if !reflect.DeepEqual(first.Files, want) {
		t.Fatalf("files = %v, want %v", first.Files, want)
	}

	cc := &countingCompiler{}
	o := &Orchestrator{Project: p, Compiler: cc}
	spec, err := o.Assemble(context.Background(), project.IncludeSet{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if spec.Entries.Count(archive.KindSource) != 1 || spec.Entries.Count(archive.KindFile) != 2 {
		t.Fatalf("default entries = %+v", spec.Entries.Entries())
	}
}

func TestEmptyIncludeListIsNotAbsent(t *testing.T) {
	p := testProject(t)
	writeFile(t, filepath.Join(p.Resources[0], "a.txt"), "a")

	o := &Orchestrator{Project: p, Compiler: &countingCompiler{}}
	spec, err := o.Assemble(context.Background(), project.IncludeSet{Classes: []string{}})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if spec.Entries.Len() != 0 {
		t.Fatalf("entries = %+v, want none: an empty list suppresses the defaults", spec.Entries.Entries())
	}
}

func TestMissingStylesheetFailsBeforeCompile(t *testing.T) {
	p := testProject(t)
	cc := &countingCompiler{}
	o := &Orchestrator{Project: p, Compiler: cc}

	_, err := o.Build(context.Background(), project.IncludeSet{
		Classes:     []string{"a.B"},
		Stylesheets: []project.Stylesheet{{Name: "main", Path: filepath.Join(p.BaseDir, "nope.css")}},
	})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want ConfigError", err)
	}
	if cc.calls != 0 {
		t.Fatalf("compiler called %d times", cc.calls)
	}
	if _, err := os.Stat(p.Output()); !os.IsNotExist(err) {
		t.Fatalf("archive produced: %v", err)
	}
}

func TestInvalidNamespaceIsConfigError(t *testing.T) {
	p := testProject(t)
	o := &Orchestrator{Project: p, Compiler: &countingCompiler{}}
	for _, ns := range []string{"http://bad/%zz", "library ns", "http://example.com/<ns>", "http://example.com/é"} {
		_, err := o.Assemble(context.Background(), project.IncludeSet{Namespaces: []string{ns}})
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Value != ns {
			t.Fatalf("Assemble(%q) error = %v, want ConfigError naming the namespace", ns, err)
		}
	}
	if c := o.Compiler.(*countingCompiler); c.calls != 0 {
		t.Fatalf("compiler calls = %d, want 0", c.calls)
	}
}

func TestNullIncludesAreConfigErrors(t *testing.T) {
	p := testProject(t)
	o := &Orchestrator{Project: p, Compiler: &countingCompiler{}}
	for name, inc := range map[string]project.IncludeSet{
		"file":   {Files: []string{""}},
		"source": {Sources: []string{""}},
	} {
		_, err := o.Assemble(context.Background(), inc)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("%s: error = %v, want ConfigError", name, err)
		}
	}
}

func TestSourcesWithLocaleTokenMayBeMissing(t *testing.T) {
	p := testProject(t)
	o := &Orchestrator{Project: p, Compiler: &countingCompiler{}}

	spec, err := o.Assemble(context.Background(), project.IncludeSet{Sources: []string{p.ResourceBundlePath}})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if spec.Entries.Count(archive.KindSource) != 1 {
		t.Fatalf("entries = %+v", spec.Entries.Entries())
	}

	_, err = o.Assemble(context.Background(), project.IncludeSet{Sources: []string{filepath.Join(p.BaseDir, "missing")}})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want ConfigError", err)
	}
}

func TestBundleArtifactResolveFailure(t *testing.T) {
	p := testProject(t)
	o := &Orchestrator{Project: p, Compiler: &countingCompiler{}, Resolver: mapResolver{}}
	_, err := o.Assemble(context.Background(), project.IncludeSet{
		ResourceBundleArtifacts: []artifact.Coordinates{{GroupID: "g", ArtifactID: "a", Version: "1"}},
	})
	if err == nil {
		t.Fatal("expected resolve failure")
	}
}
