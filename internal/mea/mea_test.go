package mea

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDevice(t *testing.T) {
	for id := 0; id < DeviceCount; id++ {
		assert.NoError(t, CheckDevice(id), "device %d", id)
	}
	for _, id := range []int{-1, 4, 7} {
		err := CheckDevice(id)
		assert.ErrorIs(t, err, ErrInvalidDevice, "device %d", id)
	}
}

func TestCheckShape(t *testing.T) {
	require.NoError(t, CheckShape(NewSamples()))

	short := NewSamples()[:31]
	assert.ErrorIs(t, CheckShape(short), ErrShapeMismatch)

	ragged := NewSamples()
	ragged[5] = ragged[5][:4095]
	err := CheckShape(ragged)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Contains(t, err.Error(), "electrode 5")
}

func TestNewSamplesRowsDoNotAlias(t *testing.T) {
	s := NewSamples()
	s[0] = append(s[0], 1)
	assert.Equal(t, float32(0), s[1][0])
}

func TestFromFlat(t *testing.T) {
	flat := make([]float32, Electrodes*SamplesPerChunk)
	for i := range flat {
		flat[i] = float32(i)
	}
	samples, err := FromFlat(flat)
	require.NoError(t, err)
	require.NoError(t, CheckShape(samples))
	assert.Equal(t, float32(SamplesPerChunk), samples[1][0])
	assert.Equal(t, float32(Electrodes*SamplesPerChunk-1), samples[31][4095])

	_, err = FromFlat(flat[:10])
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestIsValidation(t *testing.T) {
	assert.True(t, IsValidation(fmt.Errorf("plan: %w", ErrInvalidPath)))
	assert.False(t, IsValidation(ErrIO))
	assert.False(t, IsValidation(errors.New("other")))
}
