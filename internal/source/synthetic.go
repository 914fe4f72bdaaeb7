package source

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/livemea/mearec/internal/mea"
)

// syntheticRate is the effective per-electrode sample rate of a chunk:
// 4096 samples over one chunk interval.
var syntheticRate = float64(mea.SamplesPerChunk) / mea.ChunkInterval.Seconds()

// Synthetic generates a deterministic signal for a device: electrode j
// carries a sine at 5+j Hz whose phase depends on the device id. It paces
// chunks at Interval, the way the live service does.
type Synthetic struct {
	// Interval between chunks. Zero means mea.ChunkInterval.
	Interval time.Duration
	// QueueSize bounds buffered chunks; overflow drops the oldest.
	QueueSize int
	// Limit closes the stream after this many chunks. Zero means unbounded.
	Limit int
}

func (s *Synthetic) Backend() BackendType { return BackendSynthetic }

// Open starts the generator for meaID.
func (s *Synthetic) Open(ctx context.Context, meaID int) (Subscription, error) {
	if err := mea.CheckDevice(meaID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	interval := s.Interval
	if interval <= 0 {
		interval = mea.ChunkInterval
	}

	f := newFeed(meaID, s.QueueSize)
	f.start(func(f *feed) {
		for seq := 0; s.Limit == 0 || seq < s.Limit; seq++ {
			if !f.sleep(interval) {
				return
			}
			f.offer(mea.Chunk{
				Samples:  SyntheticSamples(meaID, seq),
				Received: time.Now(),
			})
		}
		slog.Debug("Synthetic stream ended", "mea", meaID, "chunks", s.Limit)
	})

	slog.Debug("Synthetic source opened", "mea", meaID, "interval", interval)
	return f, nil
}

// SyntheticSamples returns chunk seq of the synthetic signal for meaID.
func SyntheticSamples(meaID, seq int) [][]float32 {
	samples := mea.NewSamples()
	phase := float64(meaID) * math.Pi / 4
	for j := range samples {
		freq := 5 + float64(j)
		amp := 20 + 2*float64(j)
		for k := range samples[j] {
			t := float64(seq*mea.SamplesPerChunk+k) / syntheticRate
			samples[j][k] = float32(amp * math.Sin(2*math.Pi*freq*t+phase))
		}
	}
	return samples
}
