package lookup

import (
	"bytes"

	"github.com/wachikun/yaskkserv2/internal/container"
)

// hybridSearchStart picks a starting index into a descending-sorted
// BlockInfo list for query midashi m, per spec §4.6's "Hybrid search":
// small lists return 0, medium lists split in half, large lists use a
// halving-distance binary search. The result is only a *guess*; locateChunk
// below always corrects it with a short scan, so an imprecise guess here
// never produces a wrong answer, only a slower one.
func hybridSearchStart(list []container.BlockInfo, m []byte) int {
	l := len(list)
	if l < 10 {
		return 0
	}
	if l < 30 {
		mid := l / 2
		if bytes.Compare(m, list[mid].Midashi) <= 0 {
			return mid
		}
		return 0
	}
	idx := l / 2
	distance := l / 4
	for distance > 0 {
		cmp := bytes.Compare(m, list[idx].Midashi)
		if cmp <= 0 {
			idx += distance
		} else {
			idx -= distance
		}
		distance /= 2
	}
	if idx < 0 {
		idx = 0
	}
	if idx > l-1 {
		idx = l - 1
	}
	return idx
}

// locateChunk returns the index of the BlockInfo whose chunk must contain
// midashi m, given list sorted descending by Midashi. Each chunk's
// recorded Midashi is its own lower bound: chunk i holds every entry in
// [list[i].Midashi, list[i-1].Midashi) (or [list[i].Midashi, +inf) for
// i==0), so the correct index is the smallest i with list[i].Midashi <= m.
// locateChunk finds hybridSearchStart's guess and corrects it with a short
// scan in whichever direction is needed, satisfying the "at most two
// positions before target" contract regardless of which direction the
// initial guess erred in.
func locateChunk(list []container.BlockInfo, m []byte) int {
	if len(list) == 0 {
		return -1
	}
	i := hybridSearchStart(list, m)
	for i < len(list) && bytes.Compare(list[i].Midashi, m) > 0 {
		i++
	}
	if i >= len(list) {
		i = len(list) - 1
	}
	for i > 0 && bytes.Compare(list[i-1].Midashi, m) <= 0 {
		i--
	}
	return i
}
