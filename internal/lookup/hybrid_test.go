package lookup

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wachikun/yaskkserv2/internal/container"
)

func blockList(midashis ...string) []container.BlockInfo {
	out := make([]container.BlockInfo, len(midashis))
	for i, m := range midashis {
		out[i] = container.BlockInfo{Midashi: []byte(m)}
	}
	return out
}

func TestLocateChunkSmallList(t *testing.T) {
	list := blockList("e", "c", "a")
	require.Equal(t, 1, locateChunk(list, []byte("d")))
	require.Equal(t, 0, locateChunk(list, []byte("e")))
	require.Equal(t, 2, locateChunk(list, []byte("a")))
}

func TestLocateChunkLargeList(t *testing.T) {
	// 40 entries (>= 30) to exercise the halving-distance binary search
	// branch of hybridSearchStart, each a single descending byte value.
	list := make([]container.BlockInfo, 40)
	for i := range list {
		list[i] = container.BlockInfo{Midashi: []byte{byte(200 - i)}}
	}
	for i, b := range list {
		require.Equal(t, i, locateChunk(list, b.Midashi), "midashi=%v", b.Midashi)
	}
	// A value strictly between two entries lands on the entry whose lower
	// bound is just below it (the smaller, later one).
	require.Equal(t, 5, locateChunk(list, []byte{byte(200 - 5), 'x'}))
}

func TestLocateChunkEmptyList(t *testing.T) {
	require.Equal(t, -1, locateChunk(nil, []byte("a")))
}
