package codec

import (
	"bytes"
	"fmt"

	"github.com/wachikun/yaskkserv2/internal/yaskkerr"
)

// Encoding identifies a detected or configured text encoding.
type Encoding int

const (
	Euc Encoding = iota
	Utf8
)

// Options records a secondary detail of the detected encoding.
type Options int

const (
	OptionsNone Options = iota
	OptionsBom
)

// escapePrefix marks the lossless passthrough escape used for bytes the
// table cannot map, per spec §4.1 and design note #4: "&#xNN..." preserves
// the original byte sequence even when the codec cannot map it.
const escapePrefix = "&#x"

// Codec performs encode/decode against one parsed Table. Strict controls
// whether unmappable input produces an escape sequence (false, default,
// lossless) or an Encoding error (true).
type Codec struct {
	table  *Table
	Strict bool
}

func New(table *Table) *Codec {
	return &Codec{table: table}
}

// Decode converts legacy-encoded bytes to UTF-8.
func (c *Codec) Decode(legacy []byte) ([]byte, error) {
	var out bytes.Buffer
	i := 0
	n := len(legacy)
	for i < n {
		b0 := legacy[i]
		if b0 <= 0x7f {
			out.WriteByte(b0)
			i++
			continue
		}
		if i+1 < n {
			if i+2 < n {
				var euc3 [3]byte
				euc3[0], euc3[1], euc3[2] = legacy[i], legacy[i+1], legacy[i+2]
				if utf8, ok := c.table.euc3ToUtf8Map[euc3]; ok {
					writeUtf8(&out, utf8)
					i += 3
					continue
				}
				if combined, ok := c.table.combineEucToUtf8Map[euc3]; ok {
					var a, b [4]byte
					copy(a[:], combined[0:4])
					copy(b[:], combined[4:8])
					writeUtf8(&out, a)
					writeUtf8(&out, b)
					i += 3
					continue
				}
			}
			idx := euc2ToUtf8VecIndex(b0, legacy[i+1])
			if idx != euc2ToUtf8IndexEmpty {
				if utf8 := c.table.euc2ToUtf8Vec[idx]; utf8 != ([4]byte{}) {
					writeUtf8(&out, utf8)
					i += 2
					continue
				}
			}
		}
		if err := c.escapeOrFail(&out, legacy[i:i+1]); err != nil {
			return nil, err
		}
		i++
	}
	return out.Bytes(), nil
}

// Encode converts UTF-8 bytes to the legacy encoding.
func (c *Codec) Encode(utf8 []byte) ([]byte, error) {
	var out bytes.Buffer
	i := 0
	n := len(utf8)
	for i < n {
		lead := utf8[i]
		if lead < 0x80 {
			out.WriteByte(lead)
			i++
			continue
		}
		length := utf8SequenceLength(lead)
		if i+length > n {
			if err := c.escapeOrFail(&out, utf8[i:n]); err != nil {
				return nil, err
			}
			i = n
			continue
		}
		if length == 6 {
			var key [6]byte
			copy(key[:], utf8[i:i+6])
			if euc, ok := c.table.combineUtf8_6ToEucMap[key]; ok {
				writeEuc(&out, euc)
				i += 6
				continue
			}
		}
		if length == 4 {
			var key4 [4]byte
			copy(key4[:], utf8[i:i+4])
			if euc, ok := c.table.combineUtf8_4ToEucMap[key4]; ok {
				writeEuc(&out, euc)
				i += 4
				continue
			}
			if euc, ok := c.table.utf8_4ToEucMap[key4]; ok {
				writeEuc(&out, euc)
				i += 4
				continue
			}
		}
		if length == 3 {
			var key3 [3]byte
			copy(key3[:], utf8[i:i+3])
			idx := utf8_3ToEucVecIndex(key3)
			if idx != utf8_3ToEucIndexEmpty {
				if euc := c.table.utf8_3ToEucVec[idx]; euc != ([3]byte{}) {
					writeEuc(&out, euc)
					i += 3
					continue
				}
			}
			var key4 [4]byte
			copy(key4[:], key3[:])
			if euc, ok := c.table.utf8_4ToEucMap[key4]; ok {
				writeEuc(&out, euc)
				i += 3
				continue
			}
		}
		if err := c.escapeOrFail(&out, utf8[i:min(i+length, n)]); err != nil {
			return nil, err
		}
		i += length
	}
	return out.Bytes(), nil
}

func (c *Codec) escapeOrFail(out *bytes.Buffer, unmappable []byte) error {
	if c.Strict {
		return yaskkerr.New(yaskkerr.Encoding, fmt.Sprintf("unmappable bytes %x", unmappable))
	}
	for _, b := range unmappable {
		fmt.Fprintf(out, "%s%02X", escapePrefix, b)
	}
	return nil
}

func writeUtf8(out *bytes.Buffer, utf8 [4]byte) {
	length := utf8SequenceLength(utf8[0])
	out.Write(utf8[:length])
}

func writeEuc(out *bytes.Buffer, euc [3]byte) {
	switch {
	case euc[0] == 0x8f:
		out.Write(euc[:3])
	case euc[0] >= 0x80:
		out.Write(euc[:2])
	default:
		out.WriteByte(euc[0])
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Detect implements the statistical/marker detector of spec §4.1, ported
// from Utility::detect_encoding.
func Detect(buffer []byte) (Encoding, Options, error) {
	if len(buffer) > 3 && buffer[0] == 0xef && buffer[1] == 0xbb && buffer[2] == 0xbf {
		return Utf8, OptionsBom, nil
	}
	if len(buffer) < 4 {
		return Euc, OptionsNone, nil
	}
	var validCount, invalidCount int
	i := 0
	for i < len(buffer)-3 {
		a, b, c, d := buffer[i], buffer[i+1], buffer[i+2], buffer[i+3]
		switch {
		case a >= 0xc2 && a <= 0xdf && b >= 0x80 && b <= 0xbf:
			i += 2
			validCount++
		case a >= 0xe0 && a <= 0xef && b >= 0x80 && b <= 0xbf && c >= 0x80 && c <= 0xbf:
			i += 3
			validCount++
		case a >= 0xf0 && a <= 0xf7 && b >= 0x80 && b <= 0xbf && c >= 0x80 && c <= 0xbf && d >= 0x80 && d <= 0xbf:
			i += 4
			validCount++
		case a >= 0x01 && a <= 0x7f:
			i++
		default:
			i++
			invalidCount++
		}
	}
	ambiguousThreshold := len(buffer) / 100
	diff := validCount - invalidCount
	if diff < 0 {
		diff = -diff
	}
	if diff < ambiguousThreshold {
		if bytes.Contains(buffer, []byte("coding: euc-")) {
			return Euc, OptionsNone, nil
		}
		if bytes.Contains(buffer, []byte("coding: utf-8")) {
			return Utf8, OptionsNone, nil
		}
		nearZeroThreshold := len(buffer) / 1000
		if nearZeroThreshold > 1000 {
			nearZeroThreshold = 1000
		}
		if validCount <= nearZeroThreshold && invalidCount <= nearZeroThreshold {
			return Euc, OptionsNone, nil
		}
		// No BOM, no marker, and not near-empty: fall through to the same
		// majority vote used for the unambiguous case (spec §4.1's
		// "otherwise majority wins" — detection never fails outright).
		if validCount >= invalidCount {
			return Utf8, OptionsNone, nil
		}
		return Euc, OptionsNone, nil
	}
	if validCount > invalidCount {
		return Utf8, OptionsNone, nil
	}
	return Euc, OptionsNone, nil
}
