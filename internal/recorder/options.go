package recorder

import (
	"fmt"
	"time"

	"github.com/livemea/mearec/internal/config"
	"github.com/livemea/mearec/internal/source"
)

// Option configures a Recorder.
type Option func(r *Recorder) error

// WithDuration sets the requested duration in seconds (one chunk per second).
func WithDuration(seconds int) Option {
	return func(r *Recorder) error {
		r.duration = seconds
		return nil
	}
}

// WithMEA selects the device to record from.
func WithMEA(id int) Option {
	return func(r *Recorder) error {
		r.meaID = id
		return nil
	}
}

// WithSource sets the chunk source. The synthetic generator is used otherwise.
func WithSource(src source.Source) Option {
	return func(r *Recorder) error {
		if src == nil {
			return fmt.Errorf("source cannot be nil")
		}
		r.source = src
		return nil
	}
}

// WithWriterFactory replaces the HDF5 writer.
func WithWriterFactory(f WriterFactory) Option {
	return func(r *Recorder) error {
		if f == nil {
			return fmt.Errorf("writer factory cannot be nil")
		}
		r.newWriter = f
		return nil
	}
}

// WithChunkTimeout bounds a single wait for the next chunk.
func WithChunkTimeout(d time.Duration) Option {
	return func(r *Recorder) error {
		if d <= 0 {
			return fmt.Errorf("chunk timeout must be positive, got %s", d)
		}
		r.chunkTimeout = d
		return nil
	}
}

// WithTimeoutRetries sets how many consecutive timeouts are retried before
// the session fails.
func WithTimeoutRetries(n int) Option {
	return func(r *Recorder) error {
		if n < 1 {
			return fmt.Errorf("timeout retries must be at least 1, got %d", n)
		}
		r.timeoutRetries = n
		return nil
	}
}

// WithProgress registers fn to be called after every persisted chunk.
func WithProgress(fn func(done, total int)) Option {
	return func(r *Recorder) error {
		r.progress = fn
		return nil
	}
}

// WithSourceConfig applies the wait bounds of a resolved configuration.
func WithSourceConfig(cfg config.SourceConfig) Option {
	return func(r *Recorder) error {
		if cfg.ChunkTimeout > 0 {
			r.chunkTimeout = cfg.ChunkTimeout
		}
		if cfg.TimeoutRetries > 0 {
			r.timeoutRetries = cfg.TimeoutRetries
		}
		return nil
	}
}
