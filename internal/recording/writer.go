// Package recording owns the on-disk layout of a LiveMEA session: an HDF5
// file with one "timestamp_<i>" group per chunk, each holding 32
// "electrode_<j>" datasets of 4096 float32 samples.
package recording

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"

	"github.com/livemea/mearec/internal/mea"
)

// rootMessages is the message count of an empty root header.
const rootMessages = 4

// MaxChunks is the most chunk groups one file can hold. Each chunk adds two
// messages to the root header, whose message count is 16 bits wide.
const MaxChunks = (math.MaxUint16 - rootMessages) / 2

// store is the file a Writer appends to.
type store interface {
	io.WriterAt
	Sync() error
	Close() error
}

// Writer persists chunks into an HDF5 file, one group per chunk.
//
// A chunk is written in full past the end of the file and synced before a
// single in-place write links its group into the root, so a reader only
// ever sees complete groups. Each WriteChunk syncs the file before it
// returns.
type Writer struct {
	mu      sync.Mutex
	path    string
	f       store
	eof     uint64
	slot    uint64
	count   uint16
	written map[int]struct{}
	closed  bool
}

// Create opens path for writing, truncating any existing file.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create %s: %v", mea.ErrIO, path, err)
	}

	w, err := newWriter(path, f)
	if err != nil {
		f.Close()
		return nil, err
	}

	slog.Debug("Recording file created", "path", path)
	return w, nil
}

func newWriter(path string, f store) (*Writer, error) {
	head := []message{linkInfo(), groupInfo()}
	root := objectHeader(append(head, slot())...)

	w := &Writer{
		path:    path,
		f:       f,
		eof:     rootAddr + uint64(len(root)),
		slot:    rootAddr + 16 + uint64(head[0].size()+head[1].size()),
		count:   rootMessages,
		written: make(map[int]struct{}),
	}

	if err := w.writeAt(root, rootAddr); err != nil {
		return nil, fmt.Errorf("%w: write root group of %s: %v", mea.ErrIO, path, err)
	}
	if err := w.writeAt(superblock(w.eof), 0); err != nil {
		return nil, fmt.Errorf("%w: write superblock of %s: %v", mea.ErrIO, path, err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("%w: sync %s: %v", mea.ErrIO, path, err)
	}
	return w, nil
}

// Path returns the file being written.
func (w *Writer) Path() string {
	return w.path
}

// Chunks returns the number of chunk groups written so far.
func (w *Writer) Chunks() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.written)
}

// WriteChunk stores samples as group "timestamp_<index>". Shape and index are
// checked before the file is touched, so a rejected chunk leaves no trace.
// A chunk that fails part way is never linked and the file keeps the groups
// written before it.
func (w *Writer) WriteChunk(index int, samples [][]float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("%w: writer for %s is closed", mea.ErrIO, w.path)
	}
	if index < 0 {
		return fmt.Errorf("chunk index %d is negative", index)
	}
	if _, ok := w.written[index]; ok {
		return fmt.Errorf("%w: %s already exists", mea.ErrDuplicateIndex, GroupName(index))
	}
	if len(w.written) >= MaxChunks {
		return fmt.Errorf("%w: %s already holds %d chunks", mea.ErrIO, w.path, MaxChunks)
	}
	if err := mea.CheckShape(samples); err != nil {
		return err
	}

	group := GroupName(index)
	next := w.eof

	links := make([]message, 0, len(samples))
	for j, row := range samples {
		data := encodeFloat32(row)
		headerAddr := next + uint64(len(data))
		data = append(data, datasetHeader(next, len(row))...)
		if err := w.writeAt(data, next); err != nil {
			return fmt.Errorf("%w: write dataset %s: %v", mea.ErrIO, datasetPath(index, j), err)
		}
		links = append(links, link(ElectrodeName(j), headerAddr))
		next += uint64(len(data))
	}

	groupAddr := next
	gh := groupHeader(links)
	if err := w.writeAt(gh, groupAddr); err != nil {
		return fmt.Errorf("%w: write group %s: %v", mea.ErrIO, group, err)
	}
	next += uint64(len(gh))

	entry := link(group, groupAddr)
	blockAddr := next
	block := messageBlock(entry, slot())
	if err := w.writeAt(block, blockAddr); err != nil {
		return fmt.Errorf("%w: write root entry %s: %v", mea.ErrIO, group, err)
	}
	next += uint64(len(block))

	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %v", mea.ErrIO, group, err)
	}

	// The slot stays a nil message until its type is flipped, so the group
	// becomes visible with one two-byte write.
	cont := continuation(blockAddr, uint64(len(block))).appendTo(nil)
	if err := w.writeAt(cont[8:], w.slot+8); err != nil {
		return fmt.Errorf("%w: link group %s: %v", mea.ErrIO, group, err)
	}
	if err := w.writeAt(cont[:2], w.slot); err != nil {
		return fmt.Errorf("%w: link group %s: %v", mea.ErrIO, group, err)
	}
	w.slot = blockAddr + uint64(entry.size())
	w.eof = next
	w.count += 2
	w.written[index] = struct{}{}

	if err := w.commit(); err != nil {
		return fmt.Errorf("%w: commit %s: %v", mea.ErrIO, group, err)
	}

	slog.Debug("Chunk persisted", "path", w.path, "group", group)
	return nil
}

// commit updates the root message count and the end-of-file address, then
// syncs.
func (w *Writer) commit() error {
	if err := w.writeAt(le.AppendUint16(nil, w.count), rootCountField); err != nil {
		return err
	}
	if err := w.writeAt(le.AppendUint64(nil, w.eof), eofField); err != nil {
		return err
	}
	return w.f.Sync()
}

func (w *Writer) writeAt(b []byte, off uint64) error {
	_, err := w.f.WriteAt(b, int64(off))
	return err
}

// Close finalizes the file. It is safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", mea.ErrIO, w.path, err)
	}
	slog.Debug("Recording file closed", "path", w.path, "chunks", len(w.written))
	return nil
}
