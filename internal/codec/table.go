// Package codec implements bidirectional conversion between UTF-8 and the
// legacy 3-byte multibyte encoding (conceptually EUC-JIS-2004), plus
// encoding detection, entirely from a packed binary conversion table
// supplied at runtime — the table itself is opaque data, per spec §1's
// explicit non-goal ("the byte-table... treated as an opaque codec").
//
// Grounded on src/skk/encoding_simple/{mod,decoder,encoder}.rs: the packed
// table layout (header + combining entries + simple entries), the two
// dense arrays for the common 2-byte-EUC <-> 3-byte-UTF-8 case with
// arithmetically computed indices, and four hash maps for the uncommon
// 3-byte-EUC / 4-byte-UTF-8 / combining-sequence cases.
package codec

import (
	"encoding/binary"
	"fmt"
)

const (
	tableHeaderLength    = 32
	combiningEntryLength = 3 + 4 + 4
	simpleEntryLength    = 3 + 4
)

// dense-array index bounds, ported verbatim from decoder.rs/encoder.rs.
const (
	euc2ToUtf8IndexEmpty   = 1
	euc2ToUtf8IndexMaximum = 0x5d70

	utf8_3ToEucIndexEmpty      = 2
	utf8_3ToEucIndexRawMinimum = 0x1e3e
	utf8_3ToEucIndexMaximum    = 0xff9f - utf8_3ToEucIndexRawMinimum - (0xdade - 0x8165)
)

// Table holds every lookup structure built from one packed conversion
// table. It is built once (see spec §3's "one-shot latch" ambient-stack
// note) and is read-only thereafter.
type Table struct {
	euc2ToUtf8Vec  [][4]byte // dense, indexed by euc2ToUtf8VecIndex
	utf8_3ToEucVec [][3]byte // dense, indexed by utf8_3ToEucVecIndex

	euc3ToUtf8Map map[[3]byte][4]byte
	utf8_4ToEucMap map[[4]byte][3]byte

	combineEucToUtf8Map  map[[3]byte][8]byte
	combineUtf8_4ToEucMap map[[4]byte][3]byte
	combineUtf8_6ToEucMap map[[6]byte][3]byte
}

// ParseTable parses the packed binary layout described in spec §4.1:
// {version, header_len, combining_entries, simple_entries, reserved[16],
// combining[(3+4+4)*N], simple[(3+4)*M]}.
func ParseTable(buf []byte) (*Table, error) {
	if len(buf) < tableHeaderLength {
		return nil, fmt.Errorf("codec: table buffer shorter than header (%d bytes)", len(buf))
	}
	version := binary.LittleEndian.Uint32(buf[0:4])
	if version != 1 {
		return nil, fmt.Errorf("codec: unsupported table version %d", version)
	}
	headerLen := binary.LittleEndian.Uint32(buf[4:8])
	combiningEntries := binary.LittleEndian.Uint32(buf[8:12])
	simpleEntries := binary.LittleEndian.Uint32(buf[12:16])
	if int(headerLen) != tableHeaderLength {
		return nil, fmt.Errorf("codec: unexpected header length %d", headerLen)
	}

	t := &Table{
		euc2ToUtf8Vec:         make([][4]byte, euc2ToUtf8IndexMaximum+1),
		utf8_3ToEucVec:        make([][3]byte, utf8_3ToEucIndexMaximum+1),
		euc3ToUtf8Map:         make(map[[3]byte][4]byte),
		utf8_4ToEucMap:        make(map[[4]byte][3]byte),
		combineEucToUtf8Map:   make(map[[3]byte][8]byte),
		combineUtf8_4ToEucMap: make(map[[4]byte][3]byte),
		combineUtf8_6ToEucMap: make(map[[6]byte][3]byte),
	}

	offset := tableHeaderLength
	for i := uint32(0); i < combiningEntries; i++ {
		if offset+combiningEntryLength > len(buf) {
			return nil, fmt.Errorf("codec: truncated combining entry %d", i)
		}
		var euc [3]byte
		copy(euc[:], buf[offset:offset+3])
		var utf8a, utf8b [4]byte
		copy(utf8a[:], buf[offset+3:offset+7])
		copy(utf8b[:], buf[offset+7:offset+11])
		offset += combiningEntryLength
		t.installCombining(euc, utf8a, utf8b)
	}
	for i := uint32(0); i < simpleEntries; i++ {
		if offset+simpleEntryLength > len(buf) {
			return nil, fmt.Errorf("codec: truncated simple entry %d", i)
		}
		var euc [3]byte
		copy(euc[:], buf[offset:offset+3])
		var utf8 [4]byte
		copy(utf8[:], buf[offset+3:offset+7])
		offset += simpleEntryLength
		t.installSimple(euc, utf8)
	}
	return t, nil
}

func (t *Table) installSimple(euc [3]byte, utf8 [4]byte) {
	if euc[2] == 0 {
		if idx := euc2ToUtf8VecIndex(euc[0], euc[1]); idx != euc2ToUtf8IndexEmpty {
			t.euc2ToUtf8Vec[idx] = utf8
		} else {
			t.euc3ToUtf8Map[euc] = utf8
		}
	} else {
		t.euc3ToUtf8Map[euc] = utf8
	}

	utf8Len := utf8SequenceLength(utf8[0])
	if utf8Len == 3 {
		var key [3]byte
		copy(key[:], utf8[:3])
		if idx := utf8_3ToEucVecIndex(key); idx != utf8_3ToEucIndexEmpty {
			t.utf8_3ToEucVec[idx] = euc
			return
		}
	}
	t.utf8_4ToEucMap[utf8] = euc
}

func (t *Table) installCombining(euc [3]byte, utf8a, utf8b [4]byte) {
	var combined [8]byte
	copy(combined[0:4], utf8a[:])
	copy(combined[4:8], utf8b[:])
	t.combineEucToUtf8Map[euc] = combined

	aLen := utf8SequenceLength(utf8a[0])
	bLen := utf8SequenceLength(utf8b[0])
	total := aLen + bLen
	switch total {
	case 4:
		var key [4]byte
		copy(key[0:aLen], utf8a[:aLen])
		copy(key[aLen:4], utf8b[:bLen])
		t.combineUtf8_4ToEucMap[key] = euc
	case 6:
		var key [6]byte
		copy(key[0:aLen], utf8a[:aLen])
		copy(key[aLen:6], utf8b[:bLen])
		t.combineUtf8_6ToEucMap[key] = euc
	}
}

func utf8SequenceLength(lead byte) int {
	switch {
	case lead >= 0xf0:
		return 4
	case lead >= 0xe0:
		return 3
	case lead >= 0xc2:
		return 2
	default:
		return 1
	}
}

// euc2ToUtf8VecIndex computes the dense-array index for a 2-byte EUC
// sequence, ported from Decoder::get_euc_2_to_utf8_vec_index.
func euc2ToUtf8VecIndex(high, low byte) int {
	if low < 0xa1 || high < 0x8e {
		return euc2ToUtf8IndexEmpty
	}
	h := int(high - 0x8e)
	l := int(low - 0xa1)
	result := (l << 8) | h
	if result > euc2ToUtf8IndexMaximum {
		return euc2ToUtf8IndexEmpty
	}
	return result
}

// utf8_3ToEucVecIndex computes the dense-array index for a 3-byte UTF-8
// sequence, ported from Encoder::get_utf8_3_to_euc_vec_index.
func utf8_3ToEucVecIndex(utf8 [3]byte) int {
	if utf8[0] < 0xe0 || utf8[1] < 0x80 || utf8[2] < 0x80 {
		return utf8_3ToEucIndexEmpty
	}
	a := int(utf8[0] - 0xe0)
	b := int(utf8[1] - 0x80)
	c := int(utf8[2] - 0x80)
	rawIndex := (a << 12) | (b << 6) | c
	if rawIndex > 0xdade {
		rawIndex -= 0xdade - 0x8165
	}
	if rawIndex < utf8_3ToEucIndexRawMinimum {
		return utf8_3ToEucIndexEmpty
	}
	result := rawIndex - utf8_3ToEucIndexRawMinimum
	if result > utf8_3ToEucIndexMaximum {
		return utf8_3ToEucIndexEmpty
	}
	return result
}
