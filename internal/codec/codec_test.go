package codec_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wachikun/yaskkserv2/internal/codec"
)

// buildTable packs a minimal conversion table with the given simple
// (euc[3]byte, utf8[4]byte) entries and no combining entries, matching the
// header layout documented in spec §4.1.
func buildTable(t *testing.T, simple [][2][4]byte) []byte {
	t.Helper()
	header := make([]byte, 32)
	binary.LittleEndian.PutUint32(header[0:4], 1)
	binary.LittleEndian.PutUint32(header[4:8], 32)
	binary.LittleEndian.PutUint32(header[8:12], 0)
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(simple)))
	buf := header
	for _, entry := range simple {
		buf = append(buf, entry[0][:3]...)
		buf = append(buf, entry[1][:]...)
	}
	return buf
}

func entry(euc [3]byte, utf8 [4]byte) [2][4]byte {
	var e [2][4]byte
	copy(e[0][:], euc[:])
	e[1] = utf8
	return e
}

func TestCodecRoundTripSimpleEntry(t *testing.T) {
	// EUC for hiragana "あ" (0xa4 0xa2) <-> UTF-8 "あ" (0xe3 0x81 0x82).
	euc := [3]byte{0xa4, 0xa2, 0}
	utf8 := [4]byte{0xe3, 0x81, 0x82, 0}

	raw := buildTable(t, [][2][4]byte{entry(euc, utf8)})
	table, err := codec.ParseTable(raw)
	require.NoError(t, err)
	c := codec.New(table)

	decoded, err := c.Decode([]byte{0xa4, 0xa2})
	require.NoError(t, err)
	require.Equal(t, []byte{0xe3, 0x81, 0x82}, decoded)

	encoded, err := c.Encode([]byte{0xe3, 0x81, 0x82})
	require.NoError(t, err)
	require.Equal(t, []byte{0xa4, 0xa2}, encoded)
}

func TestCodecUnmappableEscapes(t *testing.T) {
	raw := buildTable(t, nil)
	table, err := codec.ParseTable(raw)
	require.NoError(t, err)
	c := codec.New(table)

	decoded, err := c.Decode([]byte{0xa1, 0xa1})
	require.NoError(t, err)
	require.Contains(t, string(decoded), "&#x")
}

func TestCodecStrictModeFails(t *testing.T) {
	raw := buildTable(t, nil)
	table, err := codec.ParseTable(raw)
	require.NoError(t, err)
	c := codec.New(table)
	c.Strict = true

	_, err = c.Decode([]byte{0xa1, 0xa1})
	require.Error(t, err)
}

func TestCodecAsciiPassthrough(t *testing.T) {
	raw := buildTable(t, nil)
	table, err := codec.ParseTable(raw)
	require.NoError(t, err)
	c := codec.New(table)

	decoded, err := c.Decode([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), decoded)

	encoded, err := c.Encode([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), encoded)
}

func TestDetectBom(t *testing.T) {
	enc, opts, err := codec.Detect([]byte{0xef, 0xbb, 0xbf, 'a', 'b'})
	require.NoError(t, err)
	require.Equal(t, codec.Utf8, enc)
	require.Equal(t, codec.OptionsBom, opts)
}

func TestDetectCodingMarker(t *testing.T) {
	buf := make([]byte, 0, 200)
	buf = append(buf, []byte(";; coding: euc-jp\n")...)
	for i := 0; i < 100; i++ {
		buf = append(buf, 0xa4, 0xa2)
	}
	enc, _, err := codec.Detect(buf)
	require.NoError(t, err)
	require.Equal(t, codec.Euc, enc)
}

func TestDetectAsciiIsLegacy(t *testing.T) {
	buf := make([]byte, 0, 4000)
	for i := 0; i < 1000; i++ {
		buf = append(buf, []byte("abcd")...)
	}
	enc, _, err := codec.Detect(buf)
	require.NoError(t, err)
	require.Equal(t, codec.Euc, enc)
}

// TestDetectAmbiguousNoMarkerFallsBackToMajority exercises spec §4.1's
// "otherwise majority wins" tail: the valid/invalid difference is within
// the 1% ambiguity threshold, no "coding:" marker is present, and the
// buffer isn't near-empty, so detection must still return a verdict
// instead of failing.
func TestDetectAmbiguousNoMarkerFallsBackToMajority(t *testing.T) {
	buf := make([]byte, 0, 1000)
	for i := 0; i < 40; i++ {
		buf = append(buf, 0xc2, 0x80)
	}
	for i := 0; i < 35; i++ {
		buf = append(buf, 0xff)
	}
	for len(buf) < 1000 {
		buf = append(buf, 'a')
	}
	enc, _, err := codec.Detect(buf)
	require.NoError(t, err)
	require.Equal(t, codec.Utf8, enc)
}
