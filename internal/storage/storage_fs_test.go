package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAbsolute_OverwritesDanglingSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nonexistent")
	dest := filepath.Join(dir, "sitemap.xml")

	// Create a dangling symlink at the destination.
	if err := os.Symlink(target, dest); err != nil {
		t.Fatal(err)
	}

	s := &FSStorage{}
	if err := s.writeFileAbsolute(dest, []byte("hello")); err != nil {
		t.Fatalf("writeFileAbsolute failed: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}

	// Ensure it's a regular file, not a symlink.
	info, err := os.Lstat(dest)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		t.Fatal("expected regular file, got symlink")
	}
}

func TestWriteFileAbsolute_OverwritesCircularSymlink(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.html")
	b := filepath.Join(dir, "b.html")

	// Create circular symlinks: a -> b -> a
	if err := os.Symlink(b, a); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(a, b); err != nil {
		t.Fatal(err)
	}

	s := &FSStorage{}
	if err := s.writeFileAbsolute(a, []byte("content")); err != nil {
		t.Fatalf("writeFileAbsolute failed: %v", err)
	}

	got, err := os.ReadFile(a)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "content" {
		t.Fatalf("got %q, want %q", got, "content")
	}
}

func TestCreateCommit(t *testing.T) {
	s := NewFSStorage(t.TempDir())
	f, err := s.Create("genesis/1.html")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.Write([]byte("<h2>Genesis 1</h2>")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(s.Path("genesis/1.html")); !os.IsNotExist(err) {
		t.Fatalf("destination should not exist before Commit, stat err: %v", err)
	}
	if err := f.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, err := os.ReadFile(s.Path("genesis/1.html"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "<h2>Genesis 1</h2>" {
		t.Fatalf("got %q", got)
	}
	entries, err := os.ReadDir(s.Path("genesis"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestCommitReplacesSymlink(t *testing.T) {
	s := NewFSStorage(t.TempDir())
	outside := filepath.Join(t.TempDir(), "outside.html")
	if err := os.WriteFile(outside, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureDir("genesis"); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, s.Path("genesis/1.html")); err != nil {
		t.Fatal(err)
	}

	f, err := s.Create("genesis/1.html")
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte("new"))
	if err := f.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if got, _ := os.ReadFile(outside); string(got) != "keep" {
		t.Fatalf("symlink target was overwritten: %q", got)
	}
	info, err := os.Lstat(s.Path("genesis/1.html"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		t.Fatal("expected regular file, got symlink")
	}
}

func TestAbortKeepsDestination(t *testing.T) {
	s := NewFSStorage(t.TempDir())
	if err := s.writeFileAbsolute(s.Path("genesis/1.html"), []byte("old")); err != nil {
		t.Fatal(err)
	}
	f, err := s.Create("genesis/1.html")
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte("partial"))
	if err := f.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	got, err := os.ReadFile(s.Path("genesis/1.html"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "old" {
		t.Fatalf("got %q, want %q", got, "old")
	}
	entries, _ := os.ReadDir(s.Path("genesis"))
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestEnsureDirIdempotent(t *testing.T) {
	s := NewFSStorage(t.TempDir())
	for i := 0; i < 2; i++ {
		if err := s.EnsureDir("1-samuel"); err != nil {
			t.Fatalf("EnsureDir #%d: %v", i, err)
		}
	}
	if info, err := os.Stat(s.Path("1-samuel")); err != nil || !info.IsDir() {
		t.Fatalf("expected directory, got %v, %v", info, err)
	}
}

func TestDigest(t *testing.T) {
	a, err := Digest("kjv", strings.NewReader("source"))
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Digest("kjv", strings.NewReader("source"))
	c, _ := Digest("asv", strings.NewReader("source"))
	d, _ := Digest("kjv", strings.NewReader("other"))
	if a != b {
		t.Fatalf("digest not deterministic: %s != %s", a, b)
	}
	if a == c || a == d {
		t.Fatalf("digest should depend on edition and source")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestCache(t *testing.T) {
	s := NewFSStorage(t.TempDir())
	if s.CheckCache("genesis/1.html", "abc") {
		t.Fatal("empty cache should miss")
	}
	if err := s.WriteCache("genesis/1.html", "abc"); err != nil {
		t.Fatal(err)
	}
	if s.CheckCache("genesis/1.html", "abc") {
		t.Fatal("cache should miss while the output is missing")
	}
	if err := s.writeFileAbsolute(s.Path("genesis/1.html"), []byte("x")); err != nil {
		t.Fatal(err)
	}
	if !s.CheckCache("genesis/1.html", "abc") {
		t.Fatal("expected cache hit")
	}
	if s.CheckCache("genesis/1.html", "def") {
		t.Fatal("expected miss for a different digest")
	}
	if err := s.WriteCache("genesis/1.html", ""); err == nil {
		t.Fatal("expected error for empty digest")
	}
}
