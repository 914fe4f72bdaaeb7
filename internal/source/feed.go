package source

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/livemea/mearec/internal/mea"
)

// DefaultQueueSize bounds the number of chunks buffered between a producer
// and the consumer.
const DefaultQueueSize = 100

// feed is a bounded FIFO between one producer goroutine and the consumer.
// The producer closes the channel when the upstream ends; buffered chunks are
// still delivered before Next reports the stream closed.
type feed struct {
	ch      chan mea.Chunk
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
	meaID   int
}

func newFeed(meaID, size int) *feed {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &feed{
		ch:    make(chan mea.Chunk, size),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		meaID: meaID,
	}
}

// start runs produce on its own goroutine. produce must return when stop is
// closed; the channel is closed once it returns.
func (f *feed) start(produce func(f *feed)) {
	go func() {
		defer close(f.done)
		defer close(f.ch)
		produce(f)
	}()
}

// offer enqueues c, dropping the oldest buffered chunk when the queue is
// full. Only the producer goroutine calls it.
func (f *feed) offer(c mea.Chunk) {
	select {
	case f.ch <- c:
		return
	default:
	}
	select {
	case <-f.ch:
		n := f.dropped.Add(1)
		slog.Warn("Chunk queue full, dropped oldest chunk", "mea", f.meaID, "dropped", n)
	default:
	}
	f.ch <- c
}

// put enqueues c, waiting for space. It reports false if the feed was stopped.
func (f *feed) put(c mea.Chunk) bool {
	select {
	case f.ch <- c:
		return true
	case <-f.stop:
		return false
	}
}

// sleep waits for d or until the feed is stopped.
func (f *feed) sleep(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-f.stop:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-f.stop:
		return false
	}
}

// Next implements Subscription.
func (f *feed) Next(ctx context.Context) (mea.Chunk, error) {
	select {
	case c, ok := <-f.ch:
		if !ok {
			return mea.Chunk{}, mea.ErrStreamClosed
		}
		return c, nil
	case <-ctx.Done():
		return mea.Chunk{}, waitError(ctx)
	}
}

// Dropped returns the number of chunks discarded because the queue was full.
func (f *feed) Dropped() int64 {
	return f.dropped.Load()
}

// Close implements Subscription. It stops the producer and waits for it.
func (f *feed) Close() error {
	f.once.Do(func() {
		close(f.stop)
	})
	<-f.done
	return nil
}
