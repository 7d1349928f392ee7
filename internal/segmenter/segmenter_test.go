package segmenter

import "testing"

func TestComputeEvenSplit(t *testing.T) {
	plans := Compute(10_000_000, 4, true)
	if len(plans) != 4 {
		t.Fatalf("expected 4 segments, got %d", len(plans))
	}
	want := []Plan{
		{Start: 0, End: 2_499_999},
		{Start: 2_500_000, End: 4_999_999},
		{Start: 5_000_000, End: 7_499_999},
		{Start: 7_500_000, End: 9_999_999},
	}
	for i, p := range plans {
		if p != want[i] {
			t.Errorf("segment %d = %+v, want %+v", i, p, want[i])
		}
	}
}

func TestComputeRemainderAbsorbedByLastSegment(t *testing.T) {
	plans := Compute(10_000_001, 4, true)
	if len(plans) != 4 {
		t.Fatalf("expected 4 segments, got %d", len(plans))
	}
	if got := plans[3].End - plans[3].Start + 1; got != 2_500_001 {
		t.Errorf("last segment size = %d, want 2500001", got)
	}
	for i := 0; i < 3; i++ {
		if got := plans[i].End - plans[i].Start + 1; got != 2_500_000 {
			t.Errorf("segment %d size = %d, want 2500000", i, got)
		}
	}
}

func TestComputeUnknownSizeYieldsOneOpenSegment(t *testing.T) {
	plans := Compute(-1, 4, true)
	if len(plans) != 1 || plans[0].End != -1 || plans[0].Start != 0 {
		t.Fatalf("unexpected plan for unknown size: %+v", plans)
	}
}

func TestComputeNoRangeSupportYieldsOneSegment(t *testing.T) {
	plans := Compute(10_000_000, 8, false)
	if len(plans) != 1 {
		t.Fatalf("expected 1 segment when ranges unsupported, got %d", len(plans))
	}
	if plans[0].Start != 0 || plans[0].End != 9_999_999 {
		t.Errorf("unexpected single-segment range: %+v", plans[0])
	}
}

func TestComputeSingleByteFileCollapsesToOneSegment(t *testing.T) {
	plans := Compute(1, 8, true)
	if len(plans) != 1 {
		t.Fatalf("expected collapse to 1 segment for a 1-byte file, got %d", len(plans))
	}
	if plans[0].Start != 0 || plans[0].End != 0 {
		t.Errorf("unexpected range for 1-byte file: %+v", plans[0])
	}
}

func TestComputeCollapsesTinySegments(t *testing.T) {
	// 4 MiB requested across 8 connections would yield 512 KiB segments,
	// below MinSegmentBytes, so n should collapse.
	total := int64(4 * 1 << 20)
	plans := Compute(total, 8, true)
	if len(plans) >= 8 {
		t.Fatalf("expected n to collapse below 8, got %d segments", len(plans))
	}
	for _, p := range plans {
		if size := p.End - p.Start + 1; size < MinSegmentBytes && len(plans) > 1 {
			t.Errorf("segment size %d below MinSegmentBytes with n=%d", size, len(plans))
		}
	}
}

func TestComputeZeroByteFile(t *testing.T) {
	plans := Compute(0, 4, true)
	if len(plans) != 1 {
		t.Fatalf("expected 1 segment for empty file, got %d", len(plans))
	}
	if plans[0].Start != 0 || plans[0].End != -1 {
		t.Errorf("unexpected range for empty file: %+v", plans[0])
	}
}
