// Package finalizer implements C5: atomic promotion of the merged file from
// staging into its destination, and staging cleanup. Grounded on TeraFetch's
// utils/fs.go AtomicRename (rename-based promotion) and
// internal/processor/fs.go's collision-handling idiom in the teacher,
// extended with the EXDEV copy-then-delete fallback spec §4.6 requires.
package finalizer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fetchd/fetchd/internal/domain"
)

// Finalize moves mergedPath to destination. It prefers an atomic rename; on
// a cross-filesystem error it falls back to copy-then-delete with
// size-based verification. If destination already exists and matches
// mergedPath's size, Finalize is a no-op that succeeds (idempotent finalize,
// spec §4.6, §8: "a completed download 'resumed' is a no-op").
func Finalize(mergedPath, destination string) error {
	if info, err := os.Stat(destination); err == nil {
		if mergedInfo, merr := os.Stat(mergedPath); merr == nil && info.Size() == mergedInfo.Size() {
			os.Remove(mergedPath)
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(destination), 0755); err != nil {
		return domain.NewError(domain.KindFilesystem, "finalize", err)
	}

	err := os.Rename(mergedPath, destination)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return domain.NewError(domain.KindFilesystem, "finalize", err)
	}

	if err := copyThenDelete(mergedPath, destination); err != nil {
		os.Remove(destination)
		return domain.NewError(domain.KindFilesystem, "finalize", err)
	}
	return nil
}

// CleanupStaging removes a staging directory recursively, best-effort (spec
// §4.6: "remove the staging directory recursively (best-effort)").
func CleanupStaging(stagingDir string) {
	os.RemoveAll(stagingDir)
}

// ResolveCollision appends "(n)" before the extension until path does not
// exist (spec §6: "collisions are resolved by appending (n) before the
// extension").
func ResolveCollision(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return errors.Is(linkErr.Err, syscall.EXDEV)
	}
	return errors.Is(err, syscall.EXDEV)
}

func copyThenDelete(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	written, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	if written != srcInfo.Size() {
		return fmt.Errorf("copied %d bytes, expected %d", written, srcInfo.Size())
	}

	return os.Remove(src)
}
