package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// Stats is the process-wide session traffic counter.
var Stats = &stats{}

type stats struct {
	ChunksSent atomic.Int64 // chunks handed to the link
	ChunksRecv atomic.Int64 // chunks received from the link
	BytesSent  atomic.Int64 // chunk bytes handed to the link
	BytesRecv  atomic.Int64 // chunk bytes received from the link
	FramesRecv atomic.Int64 // reassembled frames
	Relayed    atomic.Int64 // frames forwarded by a host to another guest
	Joins      atomic.Int64 // players admitted
	Leaves     atomic.Int64 // players departed
	Rejected   atomic.Int64 // connections torn down by the session
}

func (s *stats) AddSent(n int) {
	s.ChunksSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.ChunksRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

func (s *stats) AddFrame()  { s.FramesRecv.Add(1) }
func (s *stats) AddRelay()  { s.Relayed.Add(1) }
func (s *stats) AddJoin()   { s.Joins.Add(1) }
func (s *stats) AddLeave()  { s.Leaves.Add(1) }
func (s *stats) AddReject() { s.Rejected.Add(1) }

// StartStatsReporter launches a goroutine that logs link statistics every
// interval. Quiet intervals are skipped. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		secs := interval.Seconds()
		var prevSent, prevRecv, prevJoins, prevLeaves int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()
				joins := Stats.Joins.Load()
				leaves := Stats.Leaves.Load()

				outS := float64(sent-prevSent) / secs
				inS := float64(recv-prevRecv) / secs
				inP := joins - prevJoins
				outP := leaves - prevLeaves

				if inP > 0 || outP > 0 || inS > 10 || outS > 10 {
					pterm.DefaultLogger.Info(formatStats(inS, outS, inP, outP))
				}

				prevSent = sent
				prevRecv = recv
				prevJoins = joins
				prevLeaves = leaves

			case <-ctx.Done():
				return
			}
		}
	}()
}

var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes renders b in exactly 8 characters, e.g. "99.0   B" or " 1.5 KiB".
func formatBytes(b float64) string {
	unitIdx := 0
	for b > 99 && unitIdx < len(byteUnits)-1 {
		b /= 1024
		unitIdx++
	}
	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

func formatStats(inS, outS float64, joins, leaves int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Players: %2d↑ %2d↓",
		formatBytes(inS),
		formatBytes(outS),
		joins,
		leaves,
	)
}
