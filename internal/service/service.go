package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"

	"github.com/livemea/mearec/internal/catalog"
	"github.com/livemea/mearec/internal/config"
	"github.com/livemea/mearec/internal/export"
	"github.com/livemea/mearec/internal/livemea"
	"github.com/livemea/mearec/internal/recorder"
	"github.com/livemea/mearec/internal/recording"
	"github.com/livemea/mearec/internal/source"
)

// Service represents the operations the mearec commands are built on
type Service interface {
	// Recording operations
	Record(ctx context.Context, req RecordRequest) (recorder.Result, error)

	// File operations
	Inspect(path string) (*Inspection, error)
	Export(ctx context.Context, h5Path, edfPath string, opts export.EDFOptions) (export.Summary, error)

	// History and service state
	Sessions(ctx context.Context, limit int) ([]catalog.Entry, error)
	Status(ctx context.Context) (livemea.Status, error)

	// Configuration operations
	LoadProfile(profile string) error
	GetConfig() *config.Config
	GetLastError() string
}

// RecordRequest holds the per-session parameters given on the command line.
type RecordRequest struct {
	Path     string
	Duration int
	MEAID    int
}

// ChunkInfo summarizes one chunk group of a recording.
type ChunkInfo struct {
	Index      int     `json:"index"`
	Electrodes int     `json:"electrodes"`
	Min        float32 `json:"min"`
	Max        float32 `json:"max"`
	Err        string  `json:"error,omitempty"`
}

// Inspection describes a recording file on disk.
type Inspection struct {
	Path       string      `json:"path"`
	Size       int64       `json:"size"`
	SizeHuman  string      `json:"size_human"`
	Chunks     []ChunkInfo `json:"chunks"`
	Unexpected []string    `json:"unexpected,omitempty"`
	// Valid is the number of chunks that satisfy the file contract; ValidErr
	// explains why the file does not, if it does not.
	Valid    int   `json:"valid"`
	ValidErr error `json:"-"`
}

// MEAService is the main service implementation
type MEAService struct {
	cfg        *config.Config
	configFile string
	logWriter  io.Writer

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a new service instance. Session progress is written to
// logWriter; nil discards it.
func New(cfg *config.Config, configFile string, logWriter io.Writer) Service {
	if logWriter == nil {
		logWriter = io.Discard
	}

	return &MEAService{
		cfg:        cfg,
		configFile: configFile,
		logWriter:  logWriter,
	}
}

// Record runs one session with the configured source and records it in the
// catalog. Catalog failures are logged and never change the outcome.
func (s *MEAService) Record(ctx context.Context, req RecordRequest) (recorder.Result, error) {
	slog.Debug("Service.Record called", "path", req.Path, "duration", req.Duration, "mea", req.MEAID)
	s.clearLastError()

	src, err := source.New(s.cfg.Source)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to build source: %v", err))
		return recorder.Result{}, err
	}

	rec, err := recorder.New(req.Path,
		recorder.WithDuration(req.Duration),
		recorder.WithMEA(req.MEAID),
		recorder.WithSource(src),
		recorder.WithSourceConfig(s.cfg.Source),
		recorder.WithProgress(s.printProgress),
	)
	if err != nil {
		s.setLastError(fmt.Sprintf("Invalid recording parameters: %v", err))
		return recorder.Result{}, err
	}

	res, err := rec.Record(ctx)
	fmt.Fprintln(s.logWriter)
	if err != nil {
		s.setLastError(err.Error())
	}

	s.catalogSession(res)
	return res, err
}

func (s *MEAService) printProgress(done, total int) {
	fmt.Fprintf(s.logWriter, "%d / %d\r", done, total)
}

func (s *MEAService) catalogSession(res recorder.Result) {
	if !s.cfg.Catalog.IsEnabled() || res.SessionID == "" {
		return
	}

	cat, err := catalog.Open(s.cfg.Catalog.Path)
	if err != nil {
		slog.Warn("Session catalog unavailable", "path", s.cfg.Catalog.Path, "error", err)
		return
	}
	defer cat.Close()

	entry := catalog.Entry{
		ID:              res.SessionID,
		MEAID:           res.Plan.MEAID,
		Path:            res.Plan.SavePath,
		DurationSeconds: res.Plan.DurationSeconds,
		ChunkCount:      res.Plan.ChunkCount,
		ChunksWritten:   res.ChunksWritten,
		State:           string(res.State),
		StartedAt:       res.StartedAt,
		FinishedAt:      res.FinishedAt,
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
	}

	// The session context may already be cancelled; the entry is still written.
	if err := cat.Record(context.Background(), entry); err != nil {
		slog.Warn("Failed to record session in catalog", "session", res.SessionID, "error", err)
		return
	}
	slog.Debug("Session recorded in catalog", "session", res.SessionID, "catalog", cat.Path())
}

// Inspect opens a recording and summarizes every chunk group.
func (s *MEAService) Inspect(path string) (*Inspection, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("recording not found: %w", err)
	}

	f, err := recording.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ins := &Inspection{
		Path:       path,
		Size:       info.Size(),
		SizeHuman:  formatBytes(info.Size()),
		Unexpected: f.Unexpected(),
	}

	for _, idx := range f.Indices() {
		ci := ChunkInfo{Index: idx, Electrodes: len(f.Electrodes(idx))}
		samples, err := f.ReadChunk(idx)
		if err != nil {
			ci.Err = err.Error()
		} else {
			ci.Min, ci.Max = sampleRange(samples)
		}
		ins.Chunks = append(ins.Chunks, ci)
	}

	ins.Valid, ins.ValidErr = f.Validate()
	return ins, nil
}

func sampleRange(samples [][]float32) (float32, float32) {
	lo, hi := float32(math.Inf(1)), float32(math.Inf(-1))
	for _, row := range samples {
		for _, v := range row {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	return lo, hi
}

// Export converts a recording to EDF.
func (s *MEAService) Export(ctx context.Context, h5Path, edfPath string, opts export.EDFOptions) (export.Summary, error) {
	sum, err := export.ToEDF(ctx, h5Path, edfPath, opts)
	if err != nil {
		s.setLastError(fmt.Sprintf("Export of %s failed: %v", h5Path, err))
		return sum, fmt.Errorf("export %s: %w", h5Path, err)
	}
	return sum, nil
}

// Sessions lists the most recent catalogued sessions.
func (s *MEAService) Sessions(ctx context.Context, limit int) ([]catalog.Entry, error) {
	if !s.cfg.Catalog.IsEnabled() {
		return nil, errors.New("session catalog is disabled (catalog.enabled: false)")
	}

	cat, err := catalog.Open(s.cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	defer cat.Close()

	return cat.List(ctx, limit)
}

// Status queries the configured LiveMEA service.
func (s *MEAService) Status(ctx context.Context) (livemea.Status, error) {
	client := livemea.NewClient(s.cfg.Service.URL, s.cfg.Service.RequestTimeout)
	st, err := client.Status(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("LiveMEA status check failed: %v", err))
	}
	return st, err
}

// LoadProfile loads a new configuration profile
func (s *MEAService) LoadProfile(profile string) error {
	newCfg, err := config.LoadWithProfile(s.configFile, profile)
	if err != nil {
		return fmt.Errorf("failed to load profile '%s': %w", profile, err)
	}

	s.cfg = newCfg
	return nil
}

// GetConfig returns the current configuration
func (s *MEAService) GetConfig() *config.Config {
	return s.cfg
}

// GetLastError returns the last error message (thread-safe)
func (s *MEAService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *MEAService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Debug("Service error recorded", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *MEAService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

// formatBytes formats bytes in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
