package recording

import (
	"encoding/binary"
	"math"

	"github.com/livemea/mearec/internal/mea"
)

// The file uses a version 0 superblock and version 1 object headers. Groups
// keep their members as link messages, so a chunk group holds all electrodes
// in one header and the root grows by one continuation block per chunk.

const (
	undefAddr = ^uint64(0)

	superblockSize = 96
	rootAddr       = superblockSize
	// eofField is the offset of the end-of-file address in the superblock.
	eofField = 40
	// rootCountField is the offset of the message count in the root header.
	rootCountField = rootAddr + 2
)

// Object header message types.
const (
	msgNil          = 0x0000
	msgDataspace    = 0x0001
	msgLinkInfo     = 0x0002
	msgDatatype     = 0x0003
	msgLink         = 0x0006
	msgDataLayout   = 0x0008
	msgGroupInfo    = 0x000A
	msgAttribute    = 0x000C
	msgContinuation = 0x0010
)

var le = binary.LittleEndian

type message struct {
	typ  uint16
	data []byte
}

func pad8(n int) int { return (n + 7) &^ 7 }

// size is the encoded length including the 8-byte message header.
func (m message) size() int { return 8 + pad8(len(m.data)) }

func (m message) appendTo(b []byte) []byte {
	n := pad8(len(m.data))
	b = le.AppendUint16(b, m.typ)
	b = le.AppendUint16(b, uint16(n))
	b = append(b, 0, 0, 0, 0)
	b = append(b, m.data...)
	return append(b, make([]byte, n-len(m.data))...)
}

// objectHeader encodes a version 1 object header. The trailing nil message
// keeps every real message inside the block for readers that count the
// 16-byte prefix in the header size.
func objectHeader(msgs ...message) []byte {
	msgs = append(msgs, message{typ: msgNil, data: make([]byte, 8)})
	size := 0
	for _, m := range msgs {
		size += m.size()
	}

	b := make([]byte, 0, 16+size)
	b = append(b, 1, 0)
	b = le.AppendUint16(b, uint16(len(msgs)))
	b = le.AppendUint32(b, 1)
	b = le.AppendUint32(b, uint32(size))
	b = append(b, 0, 0, 0, 0)
	for _, m := range msgs {
		b = m.appendTo(b)
	}
	return b
}

// messageBlock encodes a continuation block: bare messages, no prefix.
func messageBlock(msgs ...message) []byte {
	var b []byte
	for _, m := range msgs {
		b = m.appendTo(b)
	}
	return b
}

func superblock(eof uint64) []byte {
	b := make([]byte, 0, superblockSize)
	b = append(b, "\x89HDF\r\n\x1a\n"...)
	// versions, offset and length sizes
	b = append(b, 0, 0, 0, 0, 0, 8, 8, 0)
	b = le.AppendUint16(b, 4)  // group leaf node K
	b = le.AppendUint16(b, 16) // group internal node K
	b = le.AppendUint32(b, 0)
	b = le.AppendUint64(b, 0) // base address
	b = le.AppendUint64(b, undefAddr)
	b = le.AppendUint64(b, eof)
	b = le.AppendUint64(b, undefAddr)

	// root group symbol table entry, nothing cached
	b = le.AppendUint64(b, 0)
	b = le.AppendUint64(b, rootAddr)
	b = le.AppendUint32(b, 0)
	b = le.AppendUint32(b, 0)
	return append(b, make([]byte, 16)...)
}

func linkInfo() message {
	b := []byte{0, 0}
	b = le.AppendUint64(b, undefAddr)
	b = le.AppendUint64(b, undefAddr)
	return message{typ: msgLinkInfo, data: b}
}

func groupInfo() message {
	return message{typ: msgGroupInfo, data: []byte{0, 0}}
}

// link is a hard link message. Names are at most 255 bytes.
func link(name string, addr uint64) message {
	b := []byte{1, 0, byte(len(name))}
	b = append(b, name...)
	b = le.AppendUint64(b, addr)
	return message{typ: msgLink, data: b}
}

// slot reserves room for a continuation message that is patched in later.
func slot() message {
	return message{typ: msgNil, data: make([]byte, 16)}
}

func continuation(addr, size uint64) message {
	b := le.AppendUint64(nil, addr)
	b = le.AppendUint64(b, size)
	return message{typ: msgContinuation, data: b}
}

func dataspace1D(n int) []byte {
	b := []byte{1, 1, 0, 0, 0, 0, 0, 0}
	return le.AppendUint64(b, uint64(n))
}

func scalarDataspace() []byte {
	return []byte{1, 0, 0, 0, 0, 0, 0, 0}
}

// float32Type is an IEEE 754 little-endian single.
func float32Type() []byte {
	b := []byte{0x11, 0x20, 31, 0}
	b = le.AppendUint32(b, 4)
	b = le.AppendUint16(b, 0)
	b = le.AppendUint16(b, 32)
	b = append(b, 23, 8, 0, 23)
	return le.AppendUint32(b, 127)
}

// stringType is a null-terminated ASCII string of n bytes.
func stringType(n int) []byte {
	b := []byte{0x13, 0, 0, 0}
	return le.AppendUint32(b, uint32(n))
}

func contiguousLayout(addr, size uint64) []byte {
	b := []byte{3, 1}
	b = le.AppendUint64(b, addr)
	return le.AppendUint64(b, size)
}

// stringAttribute is a version 3 attribute message holding a scalar string.
func stringAttribute(name, value string) message {
	dt := stringType(len(value) + 1)
	ds := scalarDataspace()

	b := []byte{3, 0}
	b = le.AppendUint16(b, uint16(len(name)+1))
	b = le.AppendUint16(b, uint16(len(dt)))
	b = le.AppendUint16(b, uint16(len(ds)))
	b = append(b, 0)
	b = append(b, name...)
	b = append(b, 0)
	b = append(b, dt...)
	b = append(b, ds...)
	b = append(b, value...)
	b = append(b, 0)
	return message{typ: msgAttribute, data: b}
}

// datasetHeader describes n float32 samples stored contiguously at dataAddr.
func datasetHeader(dataAddr uint64, n int) []byte {
	return objectHeader(
		message{typ: msgDataspace, data: dataspace1D(n)},
		message{typ: msgDatatype, data: float32Type()},
		message{typ: msgDataLayout, data: contiguousLayout(dataAddr, uint64(n)*4)},
		stringAttribute(DTypeAttribute, mea.DType),
	)
}

// groupHeader encodes a group whose members are the given links.
func groupHeader(links []message) []byte {
	msgs := append([]message{linkInfo(), groupInfo()}, links...)
	return objectHeader(msgs...)
}

func encodeFloat32(row []float32) []byte {
	b := make([]byte, 0, len(row)*4)
	for _, v := range row {
		b = le.AppendUint32(b, math.Float32bits(v))
	}
	return b
}
