package archive

import (
	"net/url"
	"testing"
)

func TestBuilderKeepsInsertionOrder(t *testing.T) {
	b := NewBuilder()
	b.AddComponent("a.b.C")
	ns, err := url.Parse("http://ns.example/lib")
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	b.AddNamespace(ns)
	b.AddResourceBundle("Foo")
	b.AddResourceBundle("Bar")
	b.AddArchiveFile("x.txt", "/tmp/x.txt")

	entries := b.Entries()
	if len(entries) != 5 || b.Len() != 5 {
		t.Fatalf("entries = %d, want 5", len(entries))
	}
	if entries[1].Kind != KindNamespace || entries[1].Name != "http://ns.example/lib" {
		t.Fatalf("namespace entry = %+v", entries[1])
	}
	if got := b.Count(KindResourceBundle); got != 2 {
		t.Fatalf("bundle count = %d, want 2", got)
	}

	entries[0].Name = "mutated"
	if b.Entries()[0].Name != "a.b.C" {
		t.Fatal("Entries returned an alias of internal state")
	}
}
