// Package recorder drives one LiveMEA recording session: it subscribes to a
// chunk source, hands every chunk to the writer with a dense index, and
// reports a single terminal state.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/livemea/mearec/internal/mea"
	"github.com/livemea/mearec/internal/planner"
	"github.com/livemea/mearec/internal/recording"
	"github.com/livemea/mearec/internal/source"
)

const (
	// DefaultChunkTimeout bounds one wait for a chunk: about twice the
	// nominal chunk interval.
	DefaultChunkTimeout = 2200 * time.Millisecond
	// DefaultTimeoutRetries is the number of consecutive timeouts tolerated.
	DefaultTimeoutRetries = 3
)

// ChunkWriter persists chunks of one session.
type ChunkWriter interface {
	WriteChunk(index int, samples [][]float32) error
	Close() error
}

// WriterFactory opens the output of a session, truncating what was there.
type WriterFactory func(path string) (ChunkWriter, error)

func createHDF5(path string) (ChunkWriter, error) {
	w, err := recording.Create(path)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// dropCounter is implemented by subscriptions that shed chunks under load.
type dropCounter interface {
	Dropped() int64
}

// Recorder runs a single session. It is not reusable: once Record has
// returned, the recorder stays in its terminal state.
type Recorder struct {
	plan planner.Plan

	duration       int
	meaID          int
	source         source.Source
	newWriter      WriterFactory
	chunkTimeout   time.Duration
	timeoutRetries int
	progress       func(done, total int)

	mutex   sync.RWMutex
	state   State
	started bool
}

// New validates the session parameters and returns an idle recorder. The
// parent directory of savePath is created here; the file itself is only
// created by Record.
func New(savePath string, options ...Option) (*Recorder, error) {
	r := &Recorder{
		duration:       planner.DefaultDuration,
		meaID:          0,
		newWriter:      createHDF5,
		chunkTimeout:   DefaultChunkTimeout,
		timeoutRetries: DefaultTimeoutRetries,
		state:          StateIdle,
	}
	for _, option := range options {
		if err := option(r); err != nil {
			return nil, err
		}
	}

	plan, err := planner.New(savePath, r.duration, r.meaID)
	if err != nil {
		return nil, err
	}
	r.plan = plan

	if r.source == nil {
		r.source = &source.Synthetic{}
	}
	return r, nil
}

// Plan returns the validated session plan.
func (r *Recorder) Plan() planner.Plan {
	return r.plan
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.state
}

func (r *Recorder) setState(s State) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.state = s
}

// Record runs the session to a terminal state. The returned error is nil
// only for StateCompleted; otherwise it is a *SessionError. Cancelling ctx
// stops the session between chunks, leaving every persisted group intact.
func (r *Recorder) Record(ctx context.Context) (Result, error) {
	r.mutex.Lock()
	if r.started {
		state := r.state
		r.mutex.Unlock()
		return Result{}, fmt.Errorf("recorder already used, current state: %s", state)
	}
	r.started = true
	r.mutex.Unlock()

	res := Result{
		SessionID: xid.New().String(),
		Plan:      r.plan,
		StartedAt: time.Now(),
	}
	log := slog.With("session", res.SessionID, "mea", r.plan.MEAID, "path", r.plan.SavePath)

	if err := ctx.Err(); err != nil {
		return r.finish(log, res, StateCancelled, fmt.Errorf("%w: %v", mea.ErrCancelled, err))
	}

	w, err := r.newWriter(r.plan.SavePath)
	if err != nil {
		return r.finish(log, res, StateFailed, err)
	}

	sub, err := r.source.Open(ctx, r.plan.MEAID)
	if err != nil {
		closeErr := w.Close()
		if ctx.Err() != nil {
			return r.finish(log, res, StateCancelled, errors.Join(fmt.Errorf("%w: %v", mea.ErrCancelled, ctx.Err()), closeErr))
		}
		return r.finish(log, res, StateFailed, errors.Join(fmt.Errorf("open source: %w", err), closeErr))
	}

	r.setState(StateAcquiring)
	backend := source.Name(r.source)
	log.Info("Recording started", "backend", backend, "chunks", r.plan.ChunkCount, "expected", r.plan.ExpectedWallTime())
	if backend == string(source.BackendSynthetic) {
		log.Warn("Samples are generated locally, not read from a device", "backend", backend)
	}

	state, loopErr := r.acquire(ctx, log, sub, w, &res)

	if d, ok := sub.(dropCounter); ok {
		res.Dropped = d.Dropped()
	}
	closeErr := errors.Join(sub.Close(), w.Close())
	if closeErr != nil {
		log.Error("Failed to release session resources", "error", closeErr)
		if state == StateCompleted {
			state = StateFailed
		}
		loopErr = errors.Join(loopErr, closeErr)
	}

	return r.finish(log, res, state, loopErr)
}

// acquire pulls chunks until the plan is met or the session must stop.
func (r *Recorder) acquire(ctx context.Context, log *slog.Logger, sub source.Subscription, w ChunkWriter, res *Result) (State, error) {
	total := r.plan.ChunkCount
	consecutive := 0

	for res.ChunksWritten < total {
		if err := ctx.Err(); err != nil {
			return StateCancelled, fmt.Errorf("%w: %v", mea.ErrCancelled, err)
		}

		chunk, err := r.next(ctx, sub)
		if err != nil {
			if ctx.Err() != nil {
				return StateCancelled, fmt.Errorf("%w: %v", mea.ErrCancelled, ctx.Err())
			}
			if errors.Is(err, mea.ErrTimeout) {
				res.Timeouts++
				consecutive++
				if consecutive > r.timeoutRetries {
					return StateFailed, fmt.Errorf("chunk %d: %w (%d consecutive)", res.ChunksWritten, err, consecutive)
				}
				log.Warn("Timed out waiting for chunk, retrying", "chunk", res.ChunksWritten, "attempt", consecutive, "retries", r.timeoutRetries)
				continue
			}
			return StateFailed, fmt.Errorf("chunk %d: %w", res.ChunksWritten, err)
		}
		consecutive = 0

		index := res.ChunksWritten
		if err := w.WriteChunk(index, chunk.Samples); err != nil {
			return StateFailed, fmt.Errorf("write chunk %d: %w", index, err)
		}
		res.ChunksWritten++
		log.Debug("Chunk persisted", "chunk", index, "latency", time.Since(chunk.Received))

		if r.progress != nil {
			r.progress(res.ChunksWritten, total)
		}
	}

	return StateCompleted, nil
}

func (r *Recorder) next(ctx context.Context, sub source.Subscription) (mea.Chunk, error) {
	waitCtx, cancel := context.WithTimeout(ctx, r.chunkTimeout)
	defer cancel()
	return sub.Next(waitCtx)
}

func (r *Recorder) finish(log *slog.Logger, res Result, state State, err error) (Result, error) {
	res.State = state
	res.FinishedAt = time.Now()
	r.setState(state)

	if state == StateCompleted {
		log.Info("Recording completed", "chunks", res.ChunksWritten, "elapsed", res.Elapsed())
		return res, nil
	}

	sessionErr := &SessionError{
		State:   state,
		Chunks:  res.ChunksWritten,
		Planned: r.plan.ChunkCount,
		Err:     err,
	}
	res.Err = sessionErr

	if state == StateCancelled {
		log.Warn("Recording cancelled", "chunks", res.ChunksWritten, "planned", r.plan.ChunkCount)
	} else {
		log.Error("Recording failed", "chunks", res.ChunksWritten, "planned", r.plan.ChunkCount, "error", err)
	}
	return res, sessionErr
}
