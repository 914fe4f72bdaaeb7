package source

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/livemea/mearec/internal/config"
	"github.com/livemea/mearec/internal/mea"
	"github.com/livemea/mearec/internal/recording"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNew(t *testing.T) {
	cfg := config.Default().Source

	src, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &Synthetic{}, src)
	assert.Equal(t, "synthetic", Name(src))

	cfg.Backend = "replay"
	_, err = New(cfg)
	assert.Error(t, err, "replay needs a file")

	cfg.ReplayFile = "/tmp/x.h5"
	src, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &Replay{}, src)
	assert.Equal(t, "replay", Name(src))

	cfg.Backend = "socket"
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestFeed_DropsOldestWhenFull(t *testing.T) {
	f := newFeed(0, 2)
	for i := 0; i < 3; i++ {
		f.offer(mea.Chunk{Index: i})
	}
	close(f.ch)
	close(f.done)

	ctx := context.Background()
	first, err := f.Next(ctx)
	require.NoError(t, err)
	second, err := f.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, []int{first.Index, second.Index})
	assert.EqualValues(t, 1, f.Dropped())

	_, err = f.Next(ctx)
	assert.ErrorIs(t, err, mea.ErrStreamClosed)
}

func TestSynthetic_DeliversLimitThenCloses(t *testing.T) {
	src := &Synthetic{Interval: time.Millisecond, Limit: 3}
	sub, err := src.Open(context.Background(), 2)
	require.NoError(t, err)
	defer sub.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		c, err := sub.Next(ctx)
		require.NoError(t, err)
		require.NoError(t, mea.CheckShape(c.Samples))
		assert.Equal(t, SyntheticSamples(2, i), c.Samples)
		assert.False(t, c.Received.IsZero())
	}
	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, mea.ErrStreamClosed)
}

func TestSynthetic_InvalidDevice(t *testing.T) {
	_, err := (&Synthetic{}).Open(context.Background(), 4)
	assert.ErrorIs(t, err, mea.ErrInvalidDevice)
}

func TestSynthetic_Timeout(t *testing.T) {
	src := &Synthetic{Interval: time.Hour}
	sub, err := src.Open(context.Background(), 0)
	require.NoError(t, err)
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, mea.ErrTimeout)
}

func TestSynthetic_Cancel(t *testing.T) {
	src := &Synthetic{Interval: time.Hour}
	sub, err := src.Open(context.Background(), 0)
	require.NoError(t, err)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, mea.ErrTimeout)
}

func TestSynthetic_CloseIsIdempotent(t *testing.T) {
	sub, err := (&Synthetic{Interval: time.Hour}).Open(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, mea.ErrStreamClosed)
}

func TestSyntheticSamples_DependOnDevice(t *testing.T) {
	assert.NotEqual(t, SyntheticSamples(0, 0), SyntheticSamples(1, 0))
	assert.Equal(t, SyntheticSamples(3, 7), SyntheticSamples(3, 7))
}

func TestReplay_EmitsRecordingInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.h5")
	w, err := recording.Create(path)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.WriteChunk(i, SyntheticSamples(1, i)))
	}
	require.NoError(t, w.Close())

	sub, err := (&Replay{Path: path, QueueSize: 1}).Open(context.Background(), 1)
	require.NoError(t, err)
	defer sub.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		c, err := sub.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, SyntheticSamples(1, i), c.Samples, "chunk %d", i)
	}
	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, mea.ErrStreamClosed)
}

func TestReplay_MissingFile(t *testing.T) {
	_, err := (&Replay{Path: filepath.Join(t.TempDir(), "none.h5")}).Open(context.Background(), 0)
	assert.ErrorIs(t, err, mea.ErrIO)
}

func TestReplay_CloseBeforeDrained(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.h5")
	w, err := recording.Create(path)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, w.WriteChunk(i, SyntheticSamples(0, i)))
	}
	require.NoError(t, w.Close())

	sub, err := (&Replay{Path: path, QueueSize: 1}).Open(context.Background(), 0)
	require.NoError(t, err)
	_, err = sub.Next(context.Background())
	require.NoError(t, err)
	require.NoError(t, sub.Close(), "close must not block on a full queue")
}
