// Package segmenter implements C3: splitting a known (or unknown) size into
// contiguous byte ranges and laying out their part-file paths in a staging
// directory. Grounded on TeraFetch's downloader/planner.go CalculateSegments,
// generalized from a fixed thread-count planner into the coordinator's
// segment-layout step (spec §4.3).
package segmenter

import (
	"fmt"
	"path/filepath"
)

// MinSegmentBytes is the lower bound below which requested connection counts
// are collapsed downward (spec §4.3: "a quality hint, not a correctness
// requirement").
const MinSegmentBytes int64 = 1 << 20 // 1 MiB

// Plan is the segmenter's output for one segment: just the byte range and index, before the
// coordinator turns it into a domain.Segment with a part-file path and
// mutable progress fields.
type Plan struct {
	Start int64
	End   int64 // -1 for open-ended
}

// PartPath returns the staging-relative part-file path for segment i,
// following spec §4.3's "<staging>/<filename>.part<i>" naming so numeric
// sort reproduces segment order.
func PartPath(stagingDir, filename string, index int) string {
	return filepath.Join(stagingDir, fmt.Sprintf("%s.part%d", filename, index))
}

// Compute splits totalBytes into at most n contiguous ranges. totalBytes < 0
// signals an unknown size and always yields one open-ended range regardless
// of n. acceptsRanges false collapses to a single range even if totalBytes
// is known, since range requests aren't honored by the server (spec §4.3).
func Compute(totalBytes int64, n int, acceptsRanges bool) []Plan {
	if totalBytes < 0 || !acceptsRanges || n <= 1 {
		return []Plan{{Start: 0, End: sizeOrOpen(totalBytes)}}
	}

	n = collapseForMinSize(totalBytes, n)

	base := totalBytes / int64(n)
	plans := make([]Plan, n)
	for i := 0; i < n; i++ {
		start := int64(i) * base
		end := start + base - 1
		if i == n-1 {
			end = totalBytes - 1 // last segment absorbs the remainder
		}
		plans[i] = Plan{Start: start, End: end}
	}
	return plans
}

func sizeOrOpen(totalBytes int64) int64 {
	if totalBytes < 0 {
		return -1
	}
	return totalBytes - 1
}

// collapseForMinSize lowers n so that no segment would fall below
// MinSegmentBytes, without ever going below 1.
func collapseForMinSize(totalBytes int64, n int) int {
	for n > 1 && totalBytes/int64(n) < MinSegmentBytes {
		n--
	}
	return n
}
