package domain

// Segment is one contiguous byte range owned by one streamer, backed by one
// part-file in staging (spec §3 "Segment", GLOSSARY).
//
// Invariants the segmenter and streamer must preserve:
//   - ranges are contiguous, non-overlapping, and cover [0, total-1] exactly
//   - BytesPersisted equals the on-disk part-file size at every durable checkpoint
//   - a segment is complete iff BytesPersisted >= (End - Start + 1), or, when
//     End is open (-1), iff the upstream body reached EOF.
type Segment struct {
	Index           int
	Start           int64
	End             int64 // -1 means open-ended (unknown total size)
	PartPath        string
	BytesPersisted  int64
	Complete        bool
	RetryCount      int
	Paused          bool
}

// ExpectedBytes returns End-Start+1, or -1 when the range is open-ended.
func (s *Segment) ExpectedBytes() int64 {
	if s.End < 0 {
		return -1
	}
	return s.End - s.Start + 1
}

// EffectiveStart is where the streamer should resume fetching from: the
// segment start offset by whatever has already been durably written.
func (s *Segment) EffectiveStart() int64 {
	return s.Start + s.BytesPersisted
}

// completionTolerance is the fraction of ExpectedBytes a segment is allowed
// to fall short of and still be accepted as complete (spec §4.2 step 5:
// "within 1% of expected, accept as complete"). This resolves the spec's
// Open Question in favor of accepting the tolerance, since strict servers
// in the wild routinely misreport Content-Length by a handful of bytes on
// compressed or chunked responses; see DESIGN.md.
const completionTolerance = 0.01

// MeetsCompletionTolerance reports whether BytesPersisted is close enough to
// ExpectedBytes to accept the segment as done without further retry.
func (s *Segment) MeetsCompletionTolerance() bool {
	expected := s.ExpectedBytes()
	if expected < 0 {
		return false // open-ended: completion is EOF-driven, not size-driven
	}
	if s.BytesPersisted >= expected {
		return true
	}
	shortfall := float64(expected-s.BytesPersisted) / float64(expected)
	return shortfall <= completionTolerance
}

// AggregateStats is the derived, in-memory summary of a download's progress
// (spec §3 "Aggregate stats"). It is owned exclusively by the coordinator;
// callbacks receiving a copy must not mutate it (spec §5).
type AggregateStats struct {
	Downloaded        int64
	Total             int64 // -1 when unknown
	SpeedBytesPerSec   float64
	ETASeconds         float64 // 0/undefined when Total is unknown or speed is 0
	ActiveSegments     int
	CompletedSegments  int
	PausedSegments     int
	FailedSegments     int
}

// ProgressDelta is the message a streamer sends to the coordinator's
// aggregation loop (Design Notes: message passing replaces a shared-mutex
// progress object).
type ProgressDelta struct {
	SegmentIndex int
	Bytes        int64
}
