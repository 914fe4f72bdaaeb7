package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/livemea/mearec/internal/mea"
	"github.com/livemea/mearec/internal/recording"
)

// Replay re-emits the chunks of an existing recording in index order, then
// closes the stream. The MEA id only scopes logging; the file decides the
// data.
type Replay struct {
	Path string
	// Interval between chunks. Zero replays as fast as the consumer reads.
	Interval  time.Duration
	QueueSize int
}

func (r *Replay) Backend() BackendType { return BackendReplay }

// Open validates the recording and starts replaying it.
func (r *Replay) Open(ctx context.Context, meaID int) (Subscription, error) {
	if err := mea.CheckDevice(meaID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := recording.Open(r.Path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	indices := file.Indices()

	f := newFeed(meaID, r.QueueSize)
	f.start(func(f *feed) {
		defer file.Close()
		for _, idx := range indices {
			if !f.sleep(r.Interval) {
				return
			}
			samples, err := file.ReadChunk(idx)
			if err != nil {
				slog.Error("Replay stopped on unreadable chunk", "path", r.Path, "chunk", idx, "error", err)
				return
			}
			if !f.put(mea.Chunk{Samples: samples, Received: time.Now()}) {
				return
			}
		}
		slog.Debug("Replay finished", "path", r.Path, "chunks", len(indices))
	})

	slog.Debug("Replay source opened", "path", r.Path, "mea", meaID, "chunks", len(indices))
	return f, nil
}
