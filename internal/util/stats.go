package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide datagram counter.
var Stats = &stats{}

type stats struct {
	DatagramsSent atomic.Int64 // cumulative datagrams handed to the socket
	DatagramsRecv atomic.Int64 // cumulative datagrams queued for the session
	DatagramsDrop atomic.Int64 // datagrams dropped (oversized or inbox full)
	BytesSent     atomic.Int64 // cumulative bytes written
	BytesRecv     atomic.Int64 // cumulative bytes read
	StepsAdvanced atomic.Int64 // simulation steps completed
}

func (s *stats) AddSent(n int) {
	s.DatagramsSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.DatagramsRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

func (s *stats) AddDrop() { s.DatagramsDrop.Add(1) }
func (s *stats) AddStep() { s.StepsAdvanced.Add(1) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	DatagramsSent, DatagramsRecv, DatagramsDrop int64
	BytesSent, BytesRecv                        int64
	Steps                                       int64
}

func (s *stats) Snapshot() Snapshot {
	return Snapshot{
		DatagramsSent: s.DatagramsSent.Load(),
		DatagramsRecv: s.DatagramsRecv.Load(),
		DatagramsDrop: s.DatagramsDrop.Load(),
		BytesSent:     s.BytesSent.Load(),
		BytesRecv:     s.BytesRecv.Load(),
		Steps:         s.StepsAdvanced.Load(),
	}
}

// Sub returns the counter increase since prev.
func (a Snapshot) Sub(prev Snapshot) Snapshot {
	return Snapshot{
		DatagramsSent: a.DatagramsSent - prev.DatagramsSent,
		DatagramsRecv: a.DatagramsRecv - prev.DatagramsRecv,
		DatagramsDrop: a.DatagramsDrop - prev.DatagramsDrop,
		BytesSent:     a.BytesSent - prev.BytesSent,
		BytesRecv:     a.BytesRecv - prev.BytesRecv,
		Steps:         a.Steps - prev.Steps,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

const reportInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs traffic and step rates
// every reportInterval while anything moves. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		prev := Stats.Snapshot()
		for {
			select {
			case <-ticker.C:
				cur := Stats.Snapshot()
				if d := cur.Sub(prev); d != (Snapshot{}) {
					pterm.DefaultLogger.Info(formatStats(d, reportInterval))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats renders a counter delta over window as per-second rates.
func formatStats(d Snapshot, window time.Duration) string {
	sec := window.Seconds()
	return fmt.Sprintf("In: %s/s %5.1f dg/s | Out: %s/s %5.1f dg/s | Steps: %5.1f/s | Dropped: %d",
		formatBytes(float64(d.BytesRecv)/sec),
		float64(d.DatagramsRecv)/sec,
		formatBytes(float64(d.BytesSent)/sec),
		float64(d.DatagramsSent)/sec,
		float64(d.Steps)/sec,
		d.DatagramsDrop,
	)
}
