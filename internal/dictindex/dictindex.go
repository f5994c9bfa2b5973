// Package dictindex builds the two-tier in-memory index described in spec
// §4.5: a 256-slot fast array for ASCII and hiragana first bytes, and a
// general hash map for every other MidashiKey. It is populated once, at
// server startup, by walking a container.DB's index-data pages.
//
// Grounded on src/skk/dictionary.rs's create_index_map_and_index_ascii_hiragana_vec
// / update_index_map_and_index_ascii_hiragana_vec, and on the teacher's
// compactindexsized.DB page-by-page read shape (query.go).
package dictindex

import (
	"fmt"

	"github.com/wachikun/yaskkserv2/internal/container"
)

// Index is the read-only, process-wide two-tier map. Safe for concurrent
// reads from multiple goroutines; it is never mutated after Build returns.
type Index struct {
	fast [container.FastIndexSize][]container.BlockInfo
	hash map[container.MidashiKey][]container.BlockInfo
}

// Lookup returns the IndexBucket for key, or nil if absent. The fast array
// is consulted first (spec §4.5: "Lookup for a key: consult the fast array
// first; if that bucket is empty, consult the hash map").
func (idx *Index) Lookup(key container.MidashiKey) []container.BlockInfo {
	if slot, ok := container.FastIndexSlot(key); ok {
		if len(idx.fast[slot]) > 0 {
			return idx.fast[slot]
		}
	}
	return idx.hash[key]
}

// Build reads the index header and every index-data page from db, and
// constructs the fast array / hash map.
func Build(db *container.DB) (*Index, error) {
	idxHdrBuf, err := db.IndexHeaderBytes()
	if err != nil {
		return nil, err
	}
	var idxHdr container.IndexHeader
	if err := idxHdr.Load(idxHdrBuf); err != nil {
		return nil, err
	}

	idx := &Index{hash: make(map[container.MidashiKey][]container.BlockInfo)}

	pageBuf := make([]byte, idxHdr.BlockBufferLength)
	offset := container.IndexHeaderByteLength
	for i := uint32(0); i < idxHdr.BlockHeaderCount; i++ {
		var page container.IndexPageHeader
		if offset+container.IndexPageHeaderByteLength > len(idxHdrBuf) {
			return nil, fmt.Errorf("dictindex: truncated page header table at entry %d", i)
		}
		if err := page.Load(idxHdrBuf[offset:]); err != nil {
			return nil, err
		}
		offset += container.IndexPageHeaderByteLength

		data, err := db.ReadIndexPage(page, pageBuf)
		if err != nil {
			return nil, err
		}
		if err := idx.installPage(page, data); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (idx *Index) installPage(page container.IndexPageHeader, data []byte) error {
	bufOffset := 0
	for u := uint32(0); u < page.UnitCount; u++ {
		if bufOffset+container.IndexUnitHeaderByteLength > len(data) {
			return fmt.Errorf("dictindex: truncated unit header at unit %d", u)
		}
		var unitHdr container.IndexUnitHeader
		if err := unitHdr.Load(data[bufOffset:]); err != nil {
			return err
		}

		offsetsStart := bufOffset + container.IndexUnitHeaderByteLength
		offsetsLen := int(unitHdr.InfoCount) * container.OffsetLengthByteLength
		midashiStart := offsetsStart + offsetsLen
		midashiEnd := midashiStart + int(unitHdr.JoinedMidashiLen)
		if midashiEnd > len(data) {
			return fmt.Errorf("dictindex: truncated unit body at unit %d", u)
		}

		joined := data[midashiStart:midashiEnd]
		midashis := splitBySpace(joined)
		if len(midashis) != int(unitHdr.InfoCount) {
			return fmt.Errorf("dictindex: joined midashi count mismatch at unit %d: got %d want %d", u, len(midashis), unitHdr.InfoCount)
		}

		blocks := make([]container.BlockInfo, unitHdr.InfoCount)
		for i := uint32(0); i < unitHdr.InfoCount; i++ {
			var ol container.OffsetLength
			start := offsetsStart + int(i)*container.OffsetLengthByteLength
			if err := ol.Load(data[start:]); err != nil {
				return err
			}
			blocks[i] = container.BlockInfo{
				Midashi: append([]byte(nil), midashis[i]...),
				Offset:  ol.Offset,
				Length:  ol.Length,
			}
		}

		if slot, ok := container.FastIndexSlot(unitHdr.Key); ok {
			idx.fast[slot] = blocks
		} else {
			idx.hash[unitHdr.Key] = blocks
		}

		bufOffset = midashiEnd
	}
	return nil
}

func splitBySpace(joined []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, b := range joined {
		if b == ' ' {
			out = append(out, joined[start:i])
			start = i + 1
		}
	}
	out = append(out, joined[start:])
	return out
}
