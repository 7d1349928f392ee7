package finalizer

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFinalizeRenamesIntoPlace(t *testing.T) {
	dir := t.TempDir()
	merged := filepath.Join(dir, "staging", "out.tmp")
	os.MkdirAll(filepath.Dir(merged), 0755)
	os.WriteFile(merged, []byte("payload"), 0644)

	dest := filepath.Join(dir, "dest", "out.bin")
	if err := Finalize(merged, dest); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "payload" {
		t.Errorf("dest contents = %q", data)
	}
	if _, err := os.Stat(merged); !os.IsNotExist(err) {
		t.Error("expected merged source to be gone after rename")
	}
}

func TestFinalizeIsIdempotentWhenDestinationAlreadyMatches(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.bin")
	os.WriteFile(dest, []byte("payload"), 0644)

	merged := filepath.Join(dir, "out.tmp")
	os.WriteFile(merged, []byte("payload"), 0644)

	if err := Finalize(merged, dest); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if _, err := os.Stat(merged); !os.IsNotExist(err) {
		t.Error("expected merged temp file to be cleaned up on idempotent finalize")
	}
}

func TestResolveCollisionAppendsCounter(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "movie.mp4")
	os.WriteFile(base, []byte("x"), 0644)

	got := ResolveCollision(base)
	want := filepath.Join(dir, "movie (1).mp4")
	if got != want {
		t.Errorf("ResolveCollision = %q, want %q", got, want)
	}
}

func TestResolveCollisionNoOpWhenFree(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "movie.mp4")
	if got := ResolveCollision(base); got != base {
		t.Errorf("ResolveCollision = %q, want %q", got, base)
	}
}
