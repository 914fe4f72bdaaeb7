// Package mea holds the shared vocabulary of a LiveMEA recording: device ids,
// chunk geometry and the chunk value passed from a source to a writer.
package mea

import (
	"fmt"
	"time"
)

const (
	// Electrodes is the number of simultaneously sampled channels on one MEA.
	Electrodes = 32
	// SamplesPerChunk is the number of samples per electrode in one chunk.
	SamplesPerChunk = 4096
	// DeviceCount is the number of MEA devices exposed by the service (ids 0..3).
	DeviceCount = 4

	// ChunkInterval is the nominal wall time covered by one chunk
	// (4096 samples after 8x downsampling of a 30 kHz signal).
	ChunkInterval = 1090 * time.Millisecond

	// DType names the element type of every persisted sample.
	DType = "float32"
)

// Chunk is one delivery unit of the live stream.
type Chunk struct {
	// Index is assigned by the recorder when the chunk is persisted.
	Index int
	// Samples is indexed [electrode][sample].
	Samples [][]float32
	// Received is the time the source took delivery of the chunk.
	Received time.Time
}

// ValidDevice reports whether id names one of the available MEA devices.
func ValidDevice(id int) bool {
	return id >= 0 && id < DeviceCount
}

// CheckDevice returns ErrInvalidDevice for ids outside 0..DeviceCount-1.
func CheckDevice(id int) error {
	if !ValidDevice(id) {
		return fmt.Errorf("%w: MEA id %d, must be in the range 0-%d", ErrInvalidDevice, id, DeviceCount-1)
	}
	return nil
}

// CheckShape returns ErrShapeMismatch unless samples is Electrodes x SamplesPerChunk.
func CheckShape(samples [][]float32) error {
	if len(samples) != Electrodes {
		return fmt.Errorf("%w: got %d electrodes, want %d", ErrShapeMismatch, len(samples), Electrodes)
	}
	for j, row := range samples {
		if len(row) != SamplesPerChunk {
			return fmt.Errorf("%w: electrode %d has %d samples, want %d", ErrShapeMismatch, j, len(row), SamplesPerChunk)
		}
	}
	return nil
}

// NewSamples allocates a zeroed Electrodes x SamplesPerChunk block.
func NewSamples() [][]float32 {
	backing := make([]float32, Electrodes*SamplesPerChunk)
	samples := make([][]float32, Electrodes)
	for j := range samples {
		samples[j] = backing[j*SamplesPerChunk : (j+1)*SamplesPerChunk : (j+1)*SamplesPerChunk]
	}
	return samples
}

// FromFlat reshapes an upstream payload laid out electrode-major
// (32 rows of 4096 samples) into a chunk sample block.
func FromFlat(flat []float32) ([][]float32, error) {
	if len(flat) != Electrodes*SamplesPerChunk {
		return nil, fmt.Errorf("%w: payload has %d values, want %d", ErrShapeMismatch, len(flat), Electrodes*SamplesPerChunk)
	}
	samples := make([][]float32, Electrodes)
	for j := range samples {
		samples[j] = flat[j*SamplesPerChunk : (j+1)*SamplesPerChunk : (j+1)*SamplesPerChunk]
	}
	return samples, nil
}
