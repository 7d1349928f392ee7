// Package merger implements C4: concatenating ordered part-files into a
// single output, selecting a buffered/streaming strategy by total size, and
// verifying the merged length before handing off to the finalizer. Grounded
// on internal/downloader/merge.go's sequential-concatenate-with-cleanup
// pattern (old teacher generation), generalized from NZB segment files to
// byte-range part-files and given the size-tiered buffer strategy of spec
// §4.5.
package merger

import (
	"fmt"
	"io"
	"os"

	"github.com/fetchd/fetchd/internal/domain"
)

// Size thresholds and buffer sizes selecting the merge strategy (spec §4.5).
const (
	smallThreshold  = 50 << 20  // 50 MiB
	mediumThreshold = 500 << 20 // 500 MiB

	smallBufferSize  = 64 << 10 // 64 KiB
	mediumBufferSize = 8 << 20  // 8 MiB
	largeBufferSize  = 16 << 20 // 16 MiB
)

// Merge concatenates partPaths (in order) into a ".tmp" sibling of
// outputPath, fsyncs it, verifies its length against the sum of part
// lengths, then renames it into outputPath. On length mismatch the temp
// file is deleted and the parts are retained for diagnosis (spec §4.5).
func Merge(partPaths []string, outputPath string) error {
	tmpPath := outputPath + ".tmp"

	total, err := sumSizes(partPaths)
	if err != nil {
		return domain.NewError(domain.KindFilesystem, "merge", err)
	}

	bufSize := bufferSizeFor(total)

	out, err := os.Create(tmpPath)
	if err != nil {
		return domain.NewError(domain.KindFilesystem, "merge", err)
	}

	var written int64
	buf := make([]byte, bufSize)
	for _, p := range partPaths {
		n, err := copyFile(out, p, buf)
		written += n
		if err != nil {
			out.Close()
			os.Remove(tmpPath)
			return domain.NewError(domain.KindFilesystem, "merge", err)
		}
	}

	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return domain.NewError(domain.KindFilesystem, "merge", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return domain.NewError(domain.KindFilesystem, "merge", err)
	}

	if written != total {
		os.Remove(tmpPath)
		return domain.NewError(domain.KindMerge, "merge",
			fmt.Errorf("merged length %d != expected %d", written, total))
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return domain.NewError(domain.KindFilesystem, "merge", err)
	}

	// Best-effort cleanup of part-files after a successful rename (spec §4.5).
	for _, p := range partPaths {
		os.Remove(p)
	}

	return nil
}

func bufferSizeFor(total int64) int {
	switch {
	case total < smallThreshold:
		return smallBufferSize
	case total < mediumThreshold:
		return mediumBufferSize
	default:
		return largeBufferSize
	}
}

func sumSizes(paths []string) (int64, error) {
	var total int64
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

func copyFile(dst io.Writer, path string, buf []byte) (int64, error) {
	src, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	return io.CopyBuffer(dst, src, buf)
}
