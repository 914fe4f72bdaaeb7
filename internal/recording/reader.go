package recording

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scigolib/hdf5"

	"github.com/livemea/mearec/internal/mea"
)

// File is a recording opened for reading.
type File struct {
	path       string
	h5         *hdf5.File
	groups     map[int]map[int]*hdf5.Dataset
	unexpected []string
}

// Open indexes the chunk groups and electrode datasets of a recording.
// Objects that do not follow the naming contract are collected in
// Unexpected rather than rejected.
func Open(path string) (*File, error) {
	h5, err := hdf5.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", mea.ErrIO, path, err)
	}

	f := &File{
		path:   path,
		h5:     h5,
		groups: make(map[int]map[int]*hdf5.Dataset),
	}

	h5.Walk(func(p string, obj hdf5.Object) {
		parts := splitPath(p)
		switch v := obj.(type) {
		case *hdf5.Group:
			if len(parts) == 0 {
				return
			}
			idx, err := ParseGroupName(parts[0])
			if len(parts) != 1 || err != nil {
				f.unexpected = append(f.unexpected, p)
				return
			}
			f.group(idx)
		case *hdf5.Dataset:
			if len(parts) != 2 {
				f.unexpected = append(f.unexpected, p)
				return
			}
			idx, gerr := ParseGroupName(parts[0])
			elec, eerr := ParseElectrodeName(parts[1])
			if gerr != nil || eerr != nil {
				f.unexpected = append(f.unexpected, p)
				return
			}
			f.group(idx)[elec] = v
		}
	})

	return f, nil
}

func (f *File) group(idx int) map[int]*hdf5.Dataset {
	g, ok := f.groups[idx]
	if !ok {
		g = make(map[int]*hdf5.Dataset)
		f.groups[idx] = g
	}
	return g
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Path returns the file name given to Open.
func (f *File) Path() string {
	return f.path
}

// Indices returns the chunk indices present in the file, ascending.
func (f *File) Indices() []int {
	out := make([]int, 0, len(f.groups))
	for idx := range f.groups {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Electrodes returns the electrode indices stored under chunk index, ascending.
func (f *File) Electrodes(index int) []int {
	g := f.groups[index]
	out := make([]int, 0, len(g))
	for j := range g {
		out = append(out, j)
	}
	sort.Ints(out)
	return out
}

// Unexpected lists objects that are not part of the recording layout.
func (f *File) Unexpected() []string {
	return append([]string(nil), f.unexpected...)
}

// ReadChunk loads the samples of chunk index as an Electrodes x SamplesPerChunk block.
func (f *File) ReadChunk(index int) ([][]float32, error) {
	g, ok := f.groups[index]
	if !ok {
		return nil, fmt.Errorf("%s: no group %s", f.path, GroupName(index))
	}
	if len(g) != mea.Electrodes {
		return nil, fmt.Errorf("%w: %s holds %d electrodes, want %d", mea.ErrShapeMismatch, GroupName(index), len(g), mea.Electrodes)
	}

	samples := make([][]float32, mea.Electrodes)
	for j := 0; j < mea.Electrodes; j++ {
		ds, ok := g[j]
		if !ok {
			return nil, fmt.Errorf("%w: %s is missing %s", mea.ErrShapeMismatch, GroupName(index), ElectrodeName(j))
		}
		values, err := ds.Read()
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", mea.ErrIO, datasetPath(index, j), err)
		}
		row := make([]float32, len(values))
		for k, v := range values {
			row[k] = float32(v)
		}
		samples[j] = row
	}

	if err := mea.CheckShape(samples); err != nil {
		return nil, fmt.Errorf("%s: %w", GroupName(index), err)
	}
	return samples, nil
}

// Validate checks the file contract: chunk indices form the prefix
// 0..k-1 and every group holds exactly 32 electrodes of 4096 samples.
// It returns k.
func (f *File) Validate() (int, error) {
	if len(f.unexpected) > 0 {
		return 0, fmt.Errorf("%s: unexpected objects %v", f.path, f.unexpected)
	}
	indices := f.Indices()
	for want, got := range indices {
		if got != want {
			return 0, fmt.Errorf("%s: chunk indices are not contiguous, missing %s", f.path, GroupName(want))
		}
		if _, err := f.ReadChunk(got); err != nil {
			return 0, err
		}
	}
	return len(indices), nil
}

// Close releases the underlying file.
func (f *File) Close() error {
	return f.h5.Close()
}
