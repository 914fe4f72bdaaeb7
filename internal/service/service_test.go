package service

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/livemea/mearec/internal/config"
	"github.com/livemea/mearec/internal/export"
	"github.com/livemea/mearec/internal/livemea"
	"github.com/livemea/mearec/internal/mea"
	"github.com/livemea/mearec/internal/recorder"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Source.Interval = time.Millisecond
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "sessions.db")
	return cfg
}

func TestRecord_CataloguesSession(t *testing.T) {
	cfg := testConfig(t)
	var progress bytes.Buffer
	svc := New(cfg, "", &progress)

	path := filepath.Join(t.TempDir(), "out", "run")
	res, err := svc.Record(context.Background(), RecordRequest{Path: path, Duration: 2, MEAID: 1})
	require.NoError(t, err)
	assert.Equal(t, recorder.StateCompleted, res.State)
	assert.Equal(t, path+".h5", res.Plan.SavePath)
	assert.Contains(t, progress.String(), "2 / 2")

	sessions, err := svc.Sessions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, res.SessionID, sessions[0].ID)
	assert.Equal(t, "COMPLETED", sessions[0].State)
	assert.Equal(t, 2, sessions[0].ChunksWritten)
	assert.Empty(t, svc.GetLastError())
}

func TestRecord_InvalidDevice(t *testing.T) {
	svc := New(testConfig(t), "", nil)

	_, err := svc.Record(context.Background(), RecordRequest{Path: filepath.Join(t.TempDir(), "b.h5"), Duration: 5, MEAID: 7})
	assert.ErrorIs(t, err, mea.ErrInvalidDevice)
	assert.NotEmpty(t, svc.GetLastError())

	sessions, err := svc.Sessions(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, sessions, "rejected sessions are not catalogued")
}

func TestRecord_CancelledIsCatalogued(t *testing.T) {
	cfg := testConfig(t)
	svc := New(cfg, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := svc.Record(ctx, RecordRequest{Path: filepath.Join(t.TempDir(), "c.h5"), Duration: 3})
	assert.ErrorIs(t, err, mea.ErrCancelled)
	assert.Equal(t, recorder.StateCancelled, res.State)

	sessions, err := svc.Sessions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "CANCELLED", sessions[0].State)
	assert.NotEmpty(t, sessions[0].Error)
}

func TestRecord_CatalogDisabled(t *testing.T) {
	cfg := testConfig(t)
	disabled := false
	cfg.Catalog.Enabled = &disabled
	svc := New(cfg, "", nil)

	_, err := svc.Record(context.Background(), RecordRequest{Path: filepath.Join(t.TempDir(), "d.h5"), Duration: 1})
	require.NoError(t, err)

	_, err = svc.Sessions(context.Background(), 0)
	assert.ErrorContains(t, err, "disabled")
}

func TestInspectAndExport(t *testing.T) {
	svc := New(testConfig(t), "", nil)
	dir := t.TempDir()
	path := filepath.Join(dir, "ins.h5")

	_, err := svc.Record(context.Background(), RecordRequest{Path: path, Duration: 2, MEAID: 2})
	require.NoError(t, err)

	ins, err := svc.Inspect(path)
	require.NoError(t, err)
	assert.NoError(t, ins.ValidErr)
	assert.Equal(t, 2, ins.Valid)
	require.Len(t, ins.Chunks, 2)
	for _, c := range ins.Chunks {
		assert.Equal(t, mea.Electrodes, c.Electrodes)
		assert.Less(t, c.Min, c.Max)
		assert.Empty(t, c.Err)
	}
	assert.Positive(t, ins.Size)

	sum, err := svc.Export(context.Background(), path, filepath.Join(dir, "ins.edf"), export.EDFOptions{RecordingID: "mea 2"})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Chunks)
}

func TestInspect_Missing(t *testing.T) {
	_, err := New(testConfig(t), "", nil).Inspect(filepath.Join(t.TempDir(), "none.h5"))
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		switch r.URL.Path {
		case "/check":
			w.Write([]byte("ok"))
		case "/islive":
			w.Write([]byte("false"))
		case "/defaultmea":
			w.Write([]byte("MEA0\n"))
		}
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Service.URL = srv.URL
	svc := New(cfg, "", nil)

	st, err := svc.Status(context.Background())
	assert.ErrorIs(t, err, livemea.ErrOffline)
	assert.Equal(t, "ok", st.Check)
	assert.Equal(t, 0, st.DefaultMEA)
	assert.Contains(t, svc.GetLastError(), "offline")
}

func TestLoadProfile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "mearec.yaml")
	svc := New(testConfig(t), configFile, nil)

	require.NoError(t, svc.LoadProfile(""), "missing file falls back to defaults")
	assert.Equal(t, "synthetic", svc.GetConfig().Source.Backend)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "16.0 MB", formatBytes(16<<20))
}
