package assemble

import (
	"path/filepath"
	"testing"
)

func TestResolveOrderWinsOverSpecificity(t *testing.T) {
	r := Roots{SourcePaths: []string{"/a", "/a/b"}, BaseDir: "/base"}
	if got := r.Resolve("/a/b/x.as"); got != "/a" {
		t.Fatalf("Resolve = %q, want /a", got)
	}
}

func TestResolvePriorityAcrossLists(t *testing.T) {
	r := Roots{
		SourcePaths:        []string{"/src"},
		CompileSourceRoots: []string{"/compile"},
		Resources:          []string{"/res"},
		BaseDir:            "/base",
	}
	cases := map[string]string{
		"/src/x":     "/src",
		"/compile/x": "/compile",
		"/res/x":     "/res",
		"/other/x":   "/base",
	}
	for in, want := range cases {
		if got := r.Resolve(in); got != want {
			t.Fatalf("Resolve(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveExecutionRootsReplaceCompileRoots(t *testing.T) {
	r := Roots{
		ExecutionSourceRoots: []string{"/exec"},
		CompileSourceRoots:   []string{"/compile"},
		BaseDir:              "/base",
	}
	if got := r.Resolve("/compile/x"); got != "/base" {
		t.Fatalf("Resolve = %q, want /base", got)
	}
	if got := r.Resolve("/exec/x"); got != "/exec" {
		t.Fatalf("Resolve = %q, want /exec", got)
	}

	r.ExecutionSourceRoots = []string{}
	if got := r.Resolve("/compile/x"); got != "/base" {
		t.Fatalf("empty execution roots: Resolve = %q, want /base", got)
	}
}

func TestArchivePath(t *testing.T) {
	root := filepath.FromSlash("/proj/src")
	if got := ArchivePath(root, filepath.FromSlash("/proj/src/assets/logo.png")); got != "assets/logo.png" {
		t.Fatalf("ArchivePath = %q", got)
	}
	if got := ArchivePath(root, filepath.FromSlash("/elsewhere/x.txt")); got != "x.txt" {
		t.Fatalf("escaping ArchivePath = %q, want x.txt", got)
	}
}

func TestResolveIsStringPrefix(t *testing.T) {
	// "/a" is a string prefix of "/ab/x" and therefore owns it.
	r := Roots{SourcePaths: []string{"/a"}, BaseDir: "/base"}
	root := r.Resolve("/ab/x.txt")
	if root != "/a" {
		t.Fatalf("Resolve = %q, want /a", root)
	}
	if got := ArchivePath(root, "/ab/x.txt"); got != "x.txt" {
		t.Fatalf("ArchivePath = %q, want x.txt", got)
	}
}
