package util

import (
	"strings"
	"testing"
	"time"
)

func TestChecksumIsOrderSensitive(t *testing.T) {
	a := Checksum(1, 2, 3)
	if a != Checksum(1, 2, 3) {
		t.Fatal("Checksum is not deterministic")
	}
	if a == Checksum(3, 2, 1) {
		t.Error("Checksum should depend on value order")
	}
}

func TestFormatBytes(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
	}

	for _, tc := range testCases {
		if got := formatBytes(tc.in); got != tc.want {
			t.Errorf("formatBytes(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSnapshotDelta(t *testing.T) {
	s := &stats{}
	before := s.Snapshot()
	s.AddSent(100)
	s.AddSent(20)
	s.AddRecv(50)
	s.AddDrop()
	s.AddStep()

	d := s.Snapshot().Sub(before)
	want := Snapshot{DatagramsSent: 2, DatagramsRecv: 1, DatagramsDrop: 1, BytesSent: 120, BytesRecv: 50, Steps: 1}
	if d != want {
		t.Errorf("delta = %+v, want %+v", d, want)
	}

	line := formatStats(Snapshot{DatagramsSent: 20, BytesSent: 2048, Steps: 600, DatagramsDrop: 3}, 10*time.Second)
	for _, part := range []string{"Out:  0.2 KiB/s   2.0 dg/s", "Steps:  60.0/s", "Dropped: 3"} {
		if !strings.Contains(line, part) {
			t.Errorf("%q lacks %q", line, part)
		}
	}
}
