package builder

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndReadManifest(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "out")
	manifestPath := filepath.Join(prefix, "manifest", "glib.pkg")

	installed := map[string]string{
		"lib":     filepath.Join(prefix, "lib", "libglib-2.0.a"),
		"header":  filepath.Join(prefix, "include", "glib.h"),
		"outside": filepath.Join(dir, "elsewhere", "stray.txt"),
	}

	if err := writeManifest(manifestPath, prefix, installed); err != nil {
		t.Fatalf("writeManifest: %v", err)
	}

	rels, err := readManifest(manifestPath)
	if err != nil {
		t.Fatalf("readManifest: %v", err)
	}
	want := []string{"include/glib.h", "lib/libglib-2.0.a"}
	if len(rels) != len(want) {
		t.Fatalf("got %v, want %v", rels, want)
	}
	for i, w := range want {
		if rels[i] != w {
			t.Errorf("rels[%d] = %q, want %q", i, rels[i], w)
		}
	}
}

func TestAdjustManifestDropsMissingAndDeletesWhenEmpty(t *testing.T) {
	tempdir := t.TempDir()
	manifestPath := filepath.Join(tempdir, "manifest", "glib.pkg")
	if err := os.MkdirAll(filepath.Dir(manifestPath), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.MkdirAll(filepath.Join(tempdir, "lib"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tempdir, "lib", "libglib-2.0.a"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	content := "include/glib.h\nlib/libglib-2.0.a\n"
	if err := os.WriteFile(manifestPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := adjustManifest(manifestPath, tempdir); err != nil {
		t.Fatalf("adjustManifest: %v", err)
	}

	rels, err := readManifest(manifestPath)
	if err != nil {
		t.Fatalf("readManifest after adjust: %v", err)
	}
	if len(rels) != 1 || rels[0] != "lib/libglib-2.0.a" {
		t.Fatalf("got %v, want [lib/libglib-2.0.a]", rels)
	}

	if err := os.Remove(filepath.Join(tempdir, "lib", "libglib-2.0.a")); err != nil {
		t.Fatal(err)
	}
	if err := adjustManifest(manifestPath, tempdir); err != nil {
		t.Fatalf("adjustManifest (second pass): %v", err)
	}
	if _, err := os.Stat(manifestPath); !os.IsNotExist(err) {
		t.Fatalf("expected manifest to be deleted once empty, stat err = %v", err)
	}
}
