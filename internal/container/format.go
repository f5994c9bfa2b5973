// Package container implements the on-disk dictionary container: a
// content-addressed, integrity-checked binary file laid out as a fixed
// header, an encoding table, an index header with index data pages, and a
// string-blocks region holding the actual midashi/candidate text. The
// layout and field order are grounded on the original project's
// DictionaryFixedHeader/DictionaryBlockHeads/IndexDataHeader structs
// (src/skk/mod.rs in the retrieved original source), reimplemented here with
// explicit little-endian encoding/binary marshaling instead of raw struct
// reinterpretation, in the style of the teacher's compactindexsized.Header
// Load/Bytes pair.
package container

import (
	"encoding/binary"
	"fmt"
)

// Version is the only FixedHeader.Version value this implementation writes
// or accepts.
const Version = uint32(1)

// FixedHeaderAreaLength is the size of the reserved prefix holding
// FixedHeader; the remainder up to this length is zero padding.
const FixedHeaderAreaLength = 256

// Sha1Length is the width of the terminal integrity-hash field.
const Sha1Length = 20

// FixedHeader is the persistent container header. Field order matches the
// original DictionaryFixedHeader exactly, with Hash kept as the terminal
// field since its on-disk offset is computed as len(header)-Sha1Length.
type FixedHeader struct {
	Version       uint32
	EncTableOff   uint32
	EncTableLen   uint32
	IdxHdrOff     uint32
	IdxHdrLen     uint32
	IdxOff        uint32
	IdxLen        uint32
	BlocksOff     uint32
	BlocksLen     uint32
	TotalLen      uint32
	Encoding      uint32
	Hash          [Sha1Length]byte
}

// FixedHeaderByteLength is the wire length of FixedHeader, independent of Go
// struct padding.
const FixedHeaderByteLength = 4*11 + Sha1Length

// Bytes serializes the header to its on-disk little-endian form.
func (h *FixedHeader) Bytes() []byte {
	buf := make([]byte, FixedHeaderByteLength)
	binary.LittleEndian.PutUint32(buf[0:4], h.Version)
	binary.LittleEndian.PutUint32(buf[4:8], h.EncTableOff)
	binary.LittleEndian.PutUint32(buf[8:12], h.EncTableLen)
	binary.LittleEndian.PutUint32(buf[12:16], h.IdxHdrOff)
	binary.LittleEndian.PutUint32(buf[16:20], h.IdxHdrLen)
	binary.LittleEndian.PutUint32(buf[20:24], h.IdxOff)
	binary.LittleEndian.PutUint32(buf[24:28], h.IdxLen)
	binary.LittleEndian.PutUint32(buf[28:32], h.BlocksOff)
	binary.LittleEndian.PutUint32(buf[32:36], h.BlocksLen)
	binary.LittleEndian.PutUint32(buf[36:40], h.TotalLen)
	binary.LittleEndian.PutUint32(buf[40:44], h.Encoding)
	copy(buf[44:44+Sha1Length], h.Hash[:])
	return buf
}

// Load parses a FixedHeader from a buffer of at least FixedHeaderByteLength
// bytes.
func (h *FixedHeader) Load(buf []byte) error {
	if len(buf) < FixedHeaderByteLength {
		return fmt.Errorf("container: fixed header buffer too short: %d", len(buf))
	}
	h.Version = binary.LittleEndian.Uint32(buf[0:4])
	h.EncTableOff = binary.LittleEndian.Uint32(buf[4:8])
	h.EncTableLen = binary.LittleEndian.Uint32(buf[8:12])
	h.IdxHdrOff = binary.LittleEndian.Uint32(buf[12:16])
	h.IdxHdrLen = binary.LittleEndian.Uint32(buf[16:20])
	h.IdxOff = binary.LittleEndian.Uint32(buf[20:24])
	h.IdxLen = binary.LittleEndian.Uint32(buf[24:28])
	h.BlocksOff = binary.LittleEndian.Uint32(buf[28:32])
	h.BlocksLen = binary.LittleEndian.Uint32(buf[32:36])
	h.TotalLen = binary.LittleEndian.Uint32(buf[36:40])
	h.Encoding = binary.LittleEndian.Uint32(buf[40:44])
	copy(h.Hash[:], buf[44:44+Sha1Length])
	return nil
}

// MidashiKey is the 4-byte tag partitioning the index, derived from the
// first 1-3 bytes of an encoded midashi.
type MidashiKey [4]byte

// ComputeMidashiKey implements the construction rule of spec §3: the key is
// derived from the leading byte(s) of the legacy-encoded midashi.
func ComputeMidashiKey(encoded []byte) (MidashiKey, error) {
	if len(encoded) == 0 {
		return MidashiKey{}, fmt.Errorf("container: empty midashi")
	}
	b0 := encoded[0]
	switch {
	case (b0 >= 0xa1 && b0 <= 0xfe) || b0 == 0x8e:
		if len(encoded) < 2 {
			return MidashiKey{}, fmt.Errorf("container: truncated 2-byte midashi")
		}
		return MidashiKey{b0, encoded[1], 0, 0}, nil
	case b0 <= 0x7f:
		return MidashiKey{b0, 0, 0, 0}, nil
	case b0 == 0x8f:
		if len(encoded) < 3 {
			return MidashiKey{}, fmt.Errorf("container: truncated 3-byte midashi")
		}
		return MidashiKey{b0, encoded[1], encoded[2], 0}, nil
	default:
		return MidashiKey{}, fmt.Errorf("container: invalid leading byte 0x%02x", b0)
	}
}

// FastIndexSlot reports the 256-slot fast-array index for key, when it maps
// to one: ASCII first bytes map directly, and hiragana (first byte 0xA4)
// maps via its second byte. All other keys return ok == false and belong in
// the general hash map.
func FastIndexSlot(key MidashiKey) (slot int, ok bool) {
	if key[0] < 0x80 {
		return int(key[0]), true
	}
	if key[0] == 0xa4 {
		return int(key[1]), true
	}
	return 0, false
}

// FastIndexSize is the fixed length of the fast array.
const FastIndexSize = 256

// BlockInfo describes one physically contiguous chunk of the string-blocks
// region holding entries sharing a MidashiKey.
type BlockInfo struct {
	Midashi []byte
	Offset  uint32
	Length  uint32
}

// IndexHeader precedes the block-header table in the index-header region.
type IndexHeader struct {
	BlockBufferLength uint32
	BlockHeaderCount  uint32
}

const IndexHeaderByteLength = 8

func (h *IndexHeader) Bytes() []byte {
	buf := make([]byte, IndexHeaderByteLength)
	binary.LittleEndian.PutUint32(buf[0:4], h.BlockBufferLength)
	binary.LittleEndian.PutUint32(buf[4:8], h.BlockHeaderCount)
	return buf
}

func (h *IndexHeader) Load(buf []byte) error {
	if len(buf) < IndexHeaderByteLength {
		return fmt.Errorf("container: index header buffer too short")
	}
	h.BlockBufferLength = binary.LittleEndian.Uint32(buf[0:4])
	h.BlockHeaderCount = binary.LittleEndian.Uint32(buf[4:8])
	return nil
}

// IndexPageHeader is one entry of the index header's block-header table,
// pointing at one page of index-unit records within the index-data region.
type IndexPageHeader struct {
	Offset    uint32
	Length    uint32
	UnitCount uint32
}

const IndexPageHeaderByteLength = 12

func (p *IndexPageHeader) Bytes() []byte {
	buf := make([]byte, IndexPageHeaderByteLength)
	binary.LittleEndian.PutUint32(buf[0:4], p.Offset)
	binary.LittleEndian.PutUint32(buf[4:8], p.Length)
	binary.LittleEndian.PutUint32(buf[8:12], p.UnitCount)
	return buf
}

func (p *IndexPageHeader) Load(buf []byte) error {
	if len(buf) < IndexPageHeaderByteLength {
		return fmt.Errorf("container: index page header buffer too short")
	}
	p.Offset = binary.LittleEndian.Uint32(buf[0:4])
	p.Length = binary.LittleEndian.Uint32(buf[4:8])
	p.UnitCount = binary.LittleEndian.Uint32(buf[8:12])
	return nil
}

// IndexUnitHeader is the fixed-size prefix of one index unit:
// {info_count, joined_midashi_len, MidashiKey}.
type IndexUnitHeader struct {
	InfoCount        uint32
	JoinedMidashiLen uint32
	Key              MidashiKey
}

const IndexUnitHeaderByteLength = 12

func (u *IndexUnitHeader) Bytes() []byte {
	buf := make([]byte, IndexUnitHeaderByteLength)
	binary.LittleEndian.PutUint32(buf[0:4], u.InfoCount)
	binary.LittleEndian.PutUint32(buf[4:8], u.JoinedMidashiLen)
	copy(buf[8:12], u.Key[:])
	return buf
}

func (u *IndexUnitHeader) Load(buf []byte) error {
	if len(buf) < IndexUnitHeaderByteLength {
		return fmt.Errorf("container: index unit header buffer too short")
	}
	u.InfoCount = binary.LittleEndian.Uint32(buf[0:4])
	u.JoinedMidashiLen = binary.LittleEndian.Uint32(buf[4:8])
	copy(u.Key[:], buf[8:12])
	return nil
}

// OffsetLength is the per-BlockInfo on-disk pair following an
// IndexUnitHeader.
type OffsetLength struct {
	Offset uint32
	Length uint32
}

const OffsetLengthByteLength = 8

func (o *OffsetLength) Bytes() []byte {
	buf := make([]byte, OffsetLengthByteLength)
	binary.LittleEndian.PutUint32(buf[0:4], o.Offset)
	binary.LittleEndian.PutUint32(buf[4:8], o.Length)
	return buf
}

func (o *OffsetLength) Load(buf []byte) error {
	if len(buf) < OffsetLengthByteLength {
		return fmt.Errorf("container: offset/length buffer too short")
	}
	o.Offset = binary.LittleEndian.Uint32(buf[0:4])
	o.Length = binary.LittleEndian.Uint32(buf[4:8])
	return nil
}

// Encoding identifies the container's string encoding for candidates and
// midashi text.
type Encoding uint32

const (
	EncodingEuc  Encoding = 0
	EncodingUtf8 Encoding = 1
)

// AlignUp rounds n up to the next multiple of align (align must be a power
// of two).
func AlignUp(n, align uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}

const (
	// BlockBufferTargetLength is the target (not hard) size of one index
	// data page, per spec §4.4 step 4.
	BlockBufferTargetLength = 64 * 1024
	// StringBlocksAlignment is the alignment of the string-blocks region
	// start within the file.
	StringBlocksAlignment = 4096
	// ChunkAlignment is the padding alignment applied to each string-blocks
	// chunk.
	ChunkAlignment = 16
	// DictionaryBlockUnitLength is the target chunk size used while
	// partitioning a block's text into physical chunks (spec §4.4 step 3).
	DictionaryBlockUnitLength = 2048
)
