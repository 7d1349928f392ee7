package merger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fetchd/fetchd/internal/domain"
)

func writeParts(t *testing.T, dir string, chunks ...string) []string {
	t.Helper()
	var paths []string
	for i, c := range chunks {
		p := filepath.Join(dir, "out.part"+string(rune('0'+i)))
		if err := os.WriteFile(p, []byte(c), 0644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	return paths
}

func TestMergeConcatenatesInOrder(t *testing.T) {
	dir := t.TempDir()
	parts := writeParts(t, dir, "hello ", "cruel ", "world")
	out := filepath.Join(dir, "out.bin")

	if err := Merge(parts, out); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello cruel world" {
		t.Errorf("merged = %q", data)
	}
	for _, p := range parts {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("expected part %s to be removed after merge", p)
		}
	}
}

func TestMergeEmptyParts(t *testing.T) {
	dir := t.TempDir()
	parts := writeParts(t, dir, "", "")
	out := filepath.Join(dir, "out.bin")

	if err := Merge(parts, out); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	info, err := os.Stat(out)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Errorf("expected empty output, got size %d", info.Size())
	}
}

func TestMergeMissingPartIsFilesystemError(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.bin")

	err := Merge([]string{filepath.Join(dir, "nope.part0")}, out)
	if domain.KindOf(err) != domain.KindFilesystem {
		t.Fatalf("expected KindFilesystem, got %v (%v)", domain.KindOf(err), err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Error("expected no output file to be left behind")
	}
}
