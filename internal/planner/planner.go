// Package planner turns a requested recording duration into a chunk count and
// validates the session parameters before anything touches the disk.
package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/livemea/mearec/internal/mea"
	"github.com/livemea/mearec/internal/recording"
)

const (
	// DefaultDuration is the recording length used when none is given.
	DefaultDuration = 5
	// DefaultPath is the output file used when none is given.
	DefaultPath = "live_data.h5"
)

// Plan is the immutable description of one recording session.
type Plan struct {
	SavePath        string
	MEAID           int
	DurationSeconds int
	// ChunkCount is always DurationSeconds: one chunk per requested second.
	ChunkCount int
}

// ExpectedWallTime is the nominal signal window the plan will capture.
// It is longer than DurationSeconds because a chunk spans ~1.09 s.
func (p Plan) ExpectedWallTime() time.Duration {
	return time.Duration(p.ChunkCount) * mea.ChunkInterval
}

// New validates the parameters and returns a plan. Checks run in order:
// duration, device, then path; the parent directory of the save path is
// created only after the first two pass.
func New(savePath string, durationSeconds, meaID int) (Plan, error) {
	if durationSeconds < 1 {
		return Plan{}, fmt.Errorf("%w: %d, must be greater than 0", mea.ErrInvalidDuration, durationSeconds)
	}
	if durationSeconds > recording.MaxChunks {
		return Plan{}, fmt.Errorf("%w: %d, a recording holds at most %d chunks", mea.ErrInvalidDuration, durationSeconds, recording.MaxChunks)
	}
	if err := mea.CheckDevice(meaID); err != nil {
		return Plan{}, err
	}

	path, err := preparePath(savePath)
	if err != nil {
		return Plan{}, err
	}

	return Plan{
		SavePath:        path,
		MEAID:           meaID,
		DurationSeconds: durationSeconds,
		ChunkCount:      durationSeconds,
	}, nil
}

// NormalizePath forces an HDF5 extension onto path. ".h5" and ".hdf5" are
// kept; any other extension is replaced with ".h5".
func NormalizePath(path string) string {
	ext := filepath.Ext(path)
	switch strings.ToLower(ext) {
	case ".h5", ".hdf5":
		return path
	}
	return strings.TrimSuffix(path, ext) + ".h5"
}

func preparePath(savePath string) (string, error) {
	if strings.TrimSpace(savePath) == "" {
		return "", fmt.Errorf("%w: path is empty", mea.ErrInvalidPath)
	}

	path := NormalizePath(savePath)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", mea.ErrInvalidPath, path)
	}

	parent := filepath.Dir(path)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return "", fmt.Errorf("%w: cannot create directory %s: %v", mea.ErrInvalidPath, parent, err)
	}
	if info, err := os.Stat(parent); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: parent %s is not a directory", mea.ErrInvalidPath, parent)
	}

	return path, nil
}
