// Package export converts recordings into formats read by other tools.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/OpenPSG/edf"

	"github.com/livemea/mearec/internal/mea"
	"github.com/livemea/mearec/internal/recording"
)

const (
	// RecordsPerChunk splits a chunk so that one EDF data record of all
	// electrodes stays below the 61440 byte limit.
	RecordsPerChunk = 8
	// SamplesPerRecord is the per-signal sample count of one data record.
	SamplesPerRecord = mea.SamplesPerChunk / RecordsPerChunk

	// RecordDuration is the signal time covered by one data record.
	RecordDuration = mea.ChunkInterval / RecordsPerChunk

	digitalMin = -32767
	digitalMax = 32767

	// durationField is the offset of the 8-character record duration in the
	// fixed header.
	durationField = 244
)

// EDFOptions describes the EDF header fields that are not derived from data.
type EDFOptions struct {
	PatientID   string
	RecordingID string
	StartTime   time.Time
	// Dimension is the physical unit of the samples. Defaults to "uV".
	Dimension string
}

// Summary reports what an export wrote.
type Summary struct {
	Chunks      int
	Records     int
	Signals     int
	PhysicalMin float64
	PhysicalMax float64
}

// ToEDF writes the recording at h5Path to edfPath as one EDF signal per
// electrode. The physical range covers every sample in the file, widened to
// whole units.
func ToEDF(ctx context.Context, h5Path, edfPath string, opts EDFOptions) (Summary, error) {
	src, err := recording.Open(h5Path)
	if err != nil {
		return Summary{}, err
	}
	defer src.Close()

	indices := src.Indices()
	if len(indices) == 0 {
		return Summary{}, fmt.Errorf("%s holds no chunks", h5Path)
	}
	for want, got := range indices {
		if got != want {
			return Summary{}, fmt.Errorf("%s: missing %s", h5Path, recording.GroupName(want))
		}
	}

	pmin, pmax, err := physicalRange(ctx, src, indices)
	if err != nil {
		return Summary{}, err
	}

	out, err := os.Create(edfPath)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: create %s: %v", mea.ErrIO, edfPath, err)
	}
	defer out.Close()

	w, err := edf.Create(out, header(opts, pmin, pmax))
	if err != nil {
		return Summary{}, fmt.Errorf("%w: write EDF header: %v", mea.ErrIO, err)
	}

	sum := Summary{Signals: mea.Electrodes, PhysicalMin: pmin, PhysicalMax: pmax}
	record := make([][]float64, mea.Electrodes)
	for j := range record {
		record[j] = make([]float64, SamplesPerRecord)
	}

	for _, idx := range indices {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		samples, err := src.ReadChunk(idx)
		if err != nil {
			return sum, err
		}
		for r := 0; r < RecordsPerChunk; r++ {
			offset := r * SamplesPerRecord
			for j, row := range samples {
				for k := range record[j] {
					record[j][k] = float64(row[offset+k])
				}
			}
			if err := w.WriteRecord(record); err != nil {
				return sum, fmt.Errorf("%w: write record %d of chunk %d: %v", mea.ErrIO, r, idx, err)
			}
			sum.Records++
		}
		sum.Chunks++
	}

	if err := w.Close(); err != nil {
		return sum, fmt.Errorf("%w: finalize EDF header: %v", mea.ErrIO, err)
	}
	// The encoder keeps two decimals of the record duration; store it exactly.
	field, err := durationText(RecordDuration)
	if err != nil {
		return sum, err
	}
	if _, err := out.WriteAt([]byte(field), durationField); err != nil {
		return sum, fmt.Errorf("%w: write record duration: %v", mea.ErrIO, err)
	}
	if err := out.Close(); err != nil {
		return sum, fmt.Errorf("%w: close %s: %v", mea.ErrIO, edfPath, err)
	}

	slog.Info("Exported recording to EDF", "source", h5Path, "output", edfPath, "chunks", sum.Chunks, "records", sum.Records)
	return sum, nil
}

func physicalRange(ctx context.Context, src *recording.File, indices []int) (float64, float64, error) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, idx := range indices {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		samples, err := src.ReadChunk(idx)
		if err != nil {
			return 0, 0, err
		}
		for _, row := range samples {
			for _, v := range row {
				lo = math.Min(lo, float64(v))
				hi = math.Max(hi, float64(v))
			}
		}
	}

	// The header stores the range as text; whole units survive the round trip.
	lo, hi = math.Floor(lo), math.Ceil(hi)
	if lo == hi {
		lo, hi = lo-1, hi+1
	}
	return lo, hi, nil
}

// durationText renders d in seconds as the 8-character header field.
func durationText(d time.Duration) (string, error) {
	text := strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
	if len(text) > 8 {
		return "", fmt.Errorf("record duration %s does not fit the EDF header", d)
	}
	return fmt.Sprintf("%-8s", text), nil
}

func header(opts EDFOptions, pmin, pmax float64) edf.Header {
	dimension := opts.Dimension
	if dimension == "" {
		dimension = "uV"
	}
	start := opts.StartTime
	if start.IsZero() {
		start = time.Now()
	}

	signals := make([]edf.Signal, mea.Electrodes)
	for j := range signals {
		signals[j] = edf.Signal{
			Label:             recording.ElectrodeName(j),
			TransducerType:    "MEA electrode",
			PhysicalDimension: dimension,
			PhysicalMin:       pmin,
			PhysicalMax:       pmax,
			DigitalMin:        digitalMin,
			DigitalMax:        digitalMax,
			SamplesPerRecord:  SamplesPerRecord,
		}
	}

	return edf.Header{
		Version:            edf.Version0,
		PatientID:          opts.PatientID,
		RecordingID:        opts.RecordingID,
		StartTime:          start,
		DataRecordDuration: RecordDuration,
		SignalCount:        mea.Electrodes,
		Signals:            signals,
	}
}
