// Package source provides device-scoped chunk subscriptions. A Source opens a
// Subscription for one MEA; the Subscription yields chunks one at a time
// until the upstream ends or it is closed.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/livemea/mearec/internal/config"
	"github.com/livemea/mearec/internal/mea"
)

// Source opens subscriptions to the live feed of one MEA device.
type Source interface {
	Open(ctx context.Context, meaID int) (Subscription, error)
}

// Subscription yields the chunks of one device in arrival order.
type Subscription interface {
	// Next blocks until a chunk is available. It returns mea.ErrStreamClosed
	// once the upstream ended and nothing is buffered, mea.ErrTimeout when
	// ctx's deadline passes, and the context error when ctx is cancelled.
	Next(ctx context.Context) (mea.Chunk, error)
	// Close releases the subscription. It is safe to call more than once.
	Close() error
}

// BackendType names a Source implementation.
type BackendType string

const (
	BackendSynthetic BackendType = "synthetic"
	BackendReplay    BackendType = "replay"
)

// Backends lists the available source backends.
func Backends() []BackendType {
	return []BackendType{BackendSynthetic, BackendReplay}
}

// Name reports which backend src is. Sources outside this package are named
// by their Go type.
func Name(src Source) string {
	if b, ok := src.(interface{ Backend() BackendType }); ok {
		return string(b.Backend())
	}
	return fmt.Sprintf("%T", src)
}

// New builds the source selected by the configuration.
func New(cfg config.SourceConfig) (Source, error) {
	switch BackendType(strings.ToLower(cfg.Backend)) {
	case BackendSynthetic, "":
		return &Synthetic{
			Interval:  cfg.Interval,
			QueueSize: cfg.QueueSize,
		}, nil
	case BackendReplay:
		if cfg.ReplayFile == "" {
			return nil, fmt.Errorf("replay backend requires source.replay_file")
		}
		return &Replay{
			Path:      cfg.ReplayFile,
			Interval:  cfg.Interval,
			QueueSize: cfg.QueueSize,
		}, nil
	default:
		return nil, fmt.Errorf("unknown source backend %q", cfg.Backend)
	}
}

// waitError converts a finished context into the subscription error contract.
func waitError(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", mea.ErrTimeout, err)
	}
	return err
}
