package coordinator

import (
	"fmt"
	"syscall"

	"github.com/fetchd/fetchd/internal/domain"
)

// spaceMargin is the safety buffer spec §4.7's "new -> probed" transition
// requires on top of the known content length, matching the 10% buffer
// fetchx_cli's FileManager.check_disk_space applies before raising
// InsufficientSpaceException.
const spaceMargin = 1.1

// checkDiskSpace verifies dir's filesystem has at least requiredBytes *
// spaceMargin free, grounded on the pack's syscall.Statfs idiom (Bavail *
// Bsize for free bytes available to an unprivileged process).
func checkDiskSpace(dir string, requiredBytes int64) error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return domain.NewError(domain.KindSpace, "plan", fmt.Errorf("statfs %s: %w", dir, err))
	}

	free := stat.Bavail * uint64(stat.Bsize)
	needed := uint64(float64(requiredBytes) * spaceMargin)
	if free < needed {
		return domain.NewError(domain.KindSpace, "plan",
			fmt.Errorf("insufficient disk space at %s: have %d bytes, need %d", dir, free, needed))
	}
	return nil
}
