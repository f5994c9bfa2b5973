package container_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wachikun/yaskkserv2/internal/container"
)

func TestComputeMidashiKey(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want container.MidashiKey
	}{
		{"ascii", []byte("abc"), container.MidashiKey{'a', 0, 0, 0}},
		{"2-byte euc", []byte{0xa4, 0xa2}, container.MidashiKey{0xa4, 0xa2, 0, 0}},
		{"0x8e lead", []byte{0x8e, 0xa1}, container.MidashiKey{0x8e, 0xa1, 0, 0}},
		{"3-byte euc", []byte{0x8f, 0xa1, 0xa2, 0xff}, container.MidashiKey{0x8f, 0xa1, 0xa2, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := container.ComputeMidashiKey(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestComputeMidashiKeyInvalid(t *testing.T) {
	_, err := container.ComputeMidashiKey([]byte{0x80})
	require.Error(t, err)
	_, err = container.ComputeMidashiKey(nil)
	require.Error(t, err)
}

func TestFastIndexSlot(t *testing.T) {
	slot, ok := container.FastIndexSlot(container.MidashiKey{'a', 0, 0, 0})
	require.True(t, ok)
	require.Equal(t, int('a'), slot)

	slot, ok = container.FastIndexSlot(container.MidashiKey{0xa4, 0xa2, 0, 0})
	require.True(t, ok)
	require.Equal(t, 0xa2, slot)

	_, ok = container.FastIndexSlot(container.MidashiKey{0xa1, 0xa2, 0, 0})
	require.False(t, ok)
}

func TestFixedHeaderRoundTrip(t *testing.T) {
	h := container.FixedHeader{
		Version:     container.Version,
		EncTableOff: 256,
		EncTableLen: 100,
		IdxHdrOff:   356,
		IdxHdrLen:   20,
		IdxOff:      376,
		IdxLen:      40,
		BlocksOff:   4096,
		BlocksLen:   1000,
		TotalLen:    5096,
		Encoding:    uint32(container.EncodingUtf8),
	}
	copy(h.Hash[:], []byte("0123456789abcdefghij"))

	buf := h.Bytes()
	require.Len(t, buf, container.FixedHeaderByteLength)

	var loaded container.FixedHeader
	require.NoError(t, loaded.Load(buf))
	require.Equal(t, h, loaded)
}

func TestIndexUnitHeaderRoundTrip(t *testing.T) {
	u := container.IndexUnitHeader{
		InfoCount:        3,
		JoinedMidashiLen: 12,
		Key:              container.MidashiKey{'a', 0, 0, 0},
	}
	var loaded container.IndexUnitHeader
	require.NoError(t, loaded.Load(u.Bytes()))
	require.Equal(t, u, loaded)
}

func TestAlignUp(t *testing.T) {
	require.Equal(t, uint32(4096), container.AlignUp(1, 4096))
	require.Equal(t, uint32(4096), container.AlignUp(4096, 4096))
	require.Equal(t, uint32(8192), container.AlignUp(4097, 4096))
	require.Equal(t, uint32(16), container.AlignUp(0, 16))
}
