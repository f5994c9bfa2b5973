// Package dictbuild implements the dictionary builder pipeline of spec §4.4:
// read one or more source jisyo files (mixed encodings, mixed line endings),
// merge duplicate midashi with annotation-aware candidate merge, group and
// physically chunk the merged entries, and hand the finished sections to
// container.Builder for sealing.
//
// Grounded on src/skk/yaskkserv2_make_dictionary/{jisyo_reader,dictionary_creator}.rs
// from the retrieved original source: the line-skip rules, the
// get_midashi_candidates split point, and the block-chunking walk
// (get_dictionary_block_informations) are all carried over step for step.
// The teacher's compactindexsized.Builder furnishes the write/hash/reseal
// idiom reused by container.Builder, which this package drives.
package dictbuild

import (
	"bytes"
	"os"
	"sort"

	"github.com/wachikun/yaskkserv2/internal/candidate"
	"github.com/wachikun/yaskkserv2/internal/codec"
	"github.com/wachikun/yaskkserv2/internal/container"
	"github.com/wachikun/yaskkserv2/internal/indexmeta"
	"github.com/wachikun/yaskkserv2/internal/yaskkerr"
	"k8s.io/klog/v2"
)

const (
	minLineLength          = 5 // "M /C/"
	maxLineLength          = 128 * 1024
	minCandidatesAreaLength = 3 // "/C/"
	encodingDetectLength    = 16 * 1024
)

// Config parameterizes one build run: the source jisyo files in the order
// they are merged, the output container path, the target encoding for
// midashi/candidates text, and the packed codec table to both convert
// between source and target encodings and to embed verbatim in the
// container (spec §4.3 region 2).
type Config struct {
	SourcePaths    []string
	OutputPath     string
	OutputEncoding container.Encoding
	Codec          *codec.Codec
	CodecTable     []byte
	Verbose        bool
}

// mergedEntry is one fully-merged, target-encoded midashi/candidates pair
// keyed by the encoded midashi text.
type mergedEntry struct {
	midashi    []byte
	candidates []byte // slash-framed, already deduplicated/merged
}

// Build runs the full pipeline described in spec §4.4 and writes a sealed
// container to cfg.OutputPath.
func Build(cfg Config) error {
	merged, err := readAndMergeSources(cfg)
	if err != nil {
		return err
	}
	if len(merged) == 0 {
		return yaskkerr.New(yaskkerr.JisyoRead, "no entries survived merging source dictionaries")
	}

	blockTexts := groupByKey(merged)

	builder, err := container.NewBuilder(cfg.OutputPath, cfg.OutputEncoding)
	if err != nil {
		return err
	}

	indexHeaderPages, indexData, stringBlocks := buildIndexAndBlocks(blockTexts)

	idxHdr := (&container.IndexHeader{
		BlockBufferLength: container.BlockBufferTargetLength,
		BlockHeaderCount:  uint32(len(indexHeaderPages)),
	}).Bytes()
	for _, p := range indexHeaderPages {
		idxHdr = append(idxHdr, p.Bytes()...)
	}

	builder.SetEncodingTable(cfg.CodecTable)
	builder.SetIndexHeader(idxHdr)
	builder.SetIndexData(indexData)
	builder.SetStringBlocks(stringBlocks)
	if err := builder.SetMetadata(buildMetadata(cfg, len(blockTexts))); err != nil {
		klog.Warningf("dictbuild: build metadata dropped: %v", err)
	}

	if err := builder.SealAndClose(); err != nil {
		return err
	}

	if cfg.Verbose {
		klog.Infof("dictbuild: %d midashi keys, %d index pages, %d bytes of string blocks",
			len(blockTexts), len(indexHeaderPages), len(stringBlocks))
	}
	return nil
}

// buildMetadata records a handful of build-provenance facts in the
// container's reserved header tail (see container.Builder.SetMetadata):
// how many source files were merged and how many distinct MidashiKey
// buckets resulted, useful for diagnosing a dictionary without re-running
// the builder.
func buildMetadata(cfg Config, keyCount int) *indexmeta.Meta {
	m := &indexmeta.Meta{}
	_ = m.AddString([]byte("builder"), "yaskkserv2-make-dictionary")
	_ = m.AddUint64([]byte("sources"), uint64(len(cfg.SourcePaths)))
	_ = m.AddUint64([]byte("keys"), uint64(keyCount))
	return m
}

// readAndMergeSources implements spec §4.4 step 1: read each source path
// line by line, skip malformed lines with a warning, encode midashi and
// candidates to the target encoding, deduplicate, and merge into an
// encoded-midashi-keyed map.
func readAndMergeSources(cfg Config) (map[string]mergedEntry, error) {
	result := make(map[string]mergedEntry)
	for _, path := range cfg.SourcePaths {
		if err := mergeOneSource(cfg, path, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func mergeOneSource(cfg Config, path string, result map[string]mergedEntry) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return yaskkerr.Wrap(yaskkerr.Io, "read source dictionary "+path, err)
	}

	detectWindow := raw
	if len(detectWindow) > encodingDetectLength {
		detectWindow = detectWindow[:encodingDetectLength]
	}
	if len(detectWindow) < minLineLength {
		return yaskkerr.New(yaskkerr.JisyoRead, path+": dictionary too short")
	}
	srcEncoding, options, err := codec.Detect(detectWindow)
	if err != nil {
		return yaskkerr.Wrap(yaskkerr.Encoding, "detect encoding of "+path, err)
	}
	if options == codec.OptionsBom {
		raw = bytes.TrimPrefix(raw, []byte{0xef, 0xbb, 0xbf})
	}

	lineNumber := 1
	for _, line := range splitLines(raw) {
		if skipReason := skipReasonFor(line); skipReason != "" {
			if skipReason != "comment" {
				klog.Warningf("dictbuild: SKIPPED! (%s) %s:%d", skipReason, path, lineNumber)
			}
			lineNumber++
			continue
		}

		midashiRaw, candidatesRaw, ok := splitMidashiCandidates(line)
		if !ok {
			klog.Warningf("dictbuild: SKIPPED! (UNKNOWN FORMAT) %s:%d", path, lineNumber)
			lineNumber++
			continue
		}

		midashi, candidates, err := convertMidashiCandidates(cfg, midashiRaw, candidatesRaw, srcEncoding)
		if err != nil {
			klog.Warningf("dictbuild: SKIPPED! (ENCODING) %s:%d: %v", path, lineNumber, err)
			lineNumber++
			continue
		}

		deduped := candidate.RemoveDuplicatesBytes(candidates)
		if !bytes.Equal(deduped, candidates) {
			klog.Warningf("dictbuild: CORRECTED! (DUPLICATE CANDIDATES) %s:%d", path, lineNumber)
		}

		key := string(midashi)
		if existing, ok := result[key]; ok {
			mergedCandidates := candidate.Merge(candidate.TrimOneSlash(existing.candidates), candidate.TrimOneSlash(deduped))
			result[key] = mergedEntry{midashi: existing.midashi, candidates: mergedCandidates}
		} else {
			result[key] = mergedEntry{midashi: midashi, candidates: deduped}
		}
		lineNumber++
	}
	return nil
}

// splitLines tokenizes raw on LF, CRLF, or CR terminators, including mixed
// terminators within a single file, dropping the terminator bytes.
func splitLines(raw []byte) [][]byte {
	var lines [][]byte
	start := 0
	i := 0
	n := len(raw)
	for i < n {
		switch raw[i] {
		case '\n':
			lines = append(lines, raw[start:i])
			i++
			start = i
		case '\r':
			lines = append(lines, raw[start:i])
			i++
			if i < n && raw[i] == '\n' {
				i++
			}
			start = i
		default:
			i++
		}
	}
	if start < n {
		lines = append(lines, raw[start:n])
	}
	return lines
}

// skipReasonFor implements spec §4.4 step 1's line-skip rules
// (is_skip_and_print_warning in the original source), returning "" when the
// line should be processed.
func skipReasonFor(line []byte) string {
	switch {
	case len(line) == 0 || isSpaceCrLfOnly(line):
		return "EMPTY LINE"
	case line[0] == ';':
		return "comment"
	case line[0] == ' ':
		return "BEGIN SPACE"
	case line[0] == '\t':
		return "BEGIN TAB"
	case len(line) < minLineLength:
		return "LINE TOO SHORT"
	case len(line) > maxLineLength:
		return "LINE TOO LONG"
	}
	space := bytes.IndexByte(line, ' ')
	if space < 0 {
		return "SPACE NOT FOUND"
	}
	if len(line) < space+minCandidatesAreaLength {
		return "CANDIDATES TOO SHORT"
	}
	if line[space+1] == ' ' {
		return "MULTI SPACE"
	}
	if bytes.Contains(line[space+1:], []byte("//")) {
		return "ILLEGAL CANDIDATES"
	}
	return ""
}

func isSpaceCrLfOnly(line []byte) bool {
	for _, b := range line {
		if b != ' ' && b != '\r' && b != '\n' {
			return false
		}
	}
	return true
}

// splitMidashiCandidates implements Dictionary::get_midashi_candidates: the
// midashi is everything up to the first space, the candidates area is
// everything from just past that space up to (and including) the last '/'.
func splitMidashiCandidates(line []byte) (midashi, candidates []byte, ok bool) {
	space := bytes.IndexByte(line, ' ')
	if space < 0 {
		return nil, nil, false
	}
	lastSlash := bytes.LastIndexByte(line, '/')
	if lastSlash < space {
		return nil, nil, false
	}
	return line[:space], line[space+1 : lastSlash+1], true
}

// convertMidashiCandidates converts candidates to the target output
// encoding, the way encode_midashi_candidates does. The midashi, however,
// is always stored legacy-encoded regardless of cfg.OutputEncoding: the
// MidashiKey construction of spec §3 assumes a legacy-encoded midashi, so a
// UTF-8 source midashi is encoded to legacy here even when the output
// encoding itself is UTF-8 (the lookup engine decodes midashi text back to
// UTF-8 at response time, per spec §4.6's completion step).
func convertMidashiCandidates(cfg Config, midashi, candidates []byte, srcEncoding codec.Encoding) ([]byte, []byte, error) {
	outUtf8 := cfg.OutputEncoding == container.EncodingUtf8
	srcUtf8 := srcEncoding == codec.Utf8

	convMidashi := midashi
	if srcUtf8 {
		encoded, err := cfg.Codec.Encode(midashi)
		if err != nil {
			return nil, nil, err
		}
		convMidashi = encoded
	}

	convCandidates := candidates
	switch {
	case !outUtf8 && srcUtf8:
		encoded, err := cfg.Codec.Encode(candidates)
		if err != nil {
			return nil, nil, err
		}
		convCandidates = encoded
	case outUtf8 && !srcUtf8:
		decoded, err := cfg.Codec.Decode(candidates)
		if err != nil {
			return nil, nil, err
		}
		convCandidates = decoded
	}

	return append([]byte(nil), convMidashi...), append([]byte(nil), convCandidates...), nil
}

// groupByKey implements spec §4.4 step 2: group merged entries by
// MidashiKey into block_text buffers, each starting with '\n' and holding
// its entries in ascending midashi order (ascending here so that step 3's
// forward chunking walk, followed by its final reversal, produces the
// required descending BlockInfo order).
func groupByKey(merged map[string]mergedEntry) map[container.MidashiKey][]byte {
	entries := make([]mergedEntry, 0, len(merged))
	for _, e := range merged {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].midashi, entries[j].midashi) < 0
	})

	blocks := make(map[container.MidashiKey][]byte)
	for _, e := range entries {
		key, err := container.ComputeMidashiKey(e.midashi)
		if err != nil {
			klog.Warningf("dictbuild: dropping midashi with invalid key: %q", e.midashi)
			continue
		}
		buf, ok := blocks[key]
		if !ok {
			buf = []byte{'\n'}
		}
		buf = append(buf, e.midashi...)
		buf = append(buf, ' ')
		buf = append(buf, e.candidates...)
		buf = append(buf, '\n')
		blocks[key] = buf
	}
	return blocks
}

// buildIndexAndBlocks implements spec §4.4 steps 3-4: chunk every key's
// block_text into physical pieces, append each key's index unit to the
// index-data stream, and close the current index page once its accumulated
// size reaches BlockBufferTargetLength (so a page may exceed the target by
// its last unit).
func buildIndexAndBlocks(blockTexts map[container.MidashiKey][]byte) ([]container.IndexPageHeader, []byte, []byte) {
	keys := make([]container.MidashiKey, 0, len(blockTexts))
	for k := range blockTexts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })

	var pages []container.IndexPageHeader
	var indexData []byte
	var stringBlocks []byte

	pageStart := 0
	unitCount := uint32(0)

	for _, key := range keys {
		blockText := blockTexts[key]
		infos, alignedBlock := chunkBlockText(blockText, len(stringBlocks))
		reverseBlockInfos(infos)
		stringBlocks = append(stringBlocks, alignedBlock...)

		unit := encodeIndexUnit(key, infos)
		indexData = append(indexData, unit...)
		unitCount++

		if len(indexData)-pageStart >= container.BlockBufferTargetLength {
			pages = append(pages, container.IndexPageHeader{
				Offset:    uint32(pageStart),
				Length:    uint32(len(indexData) - pageStart),
				UnitCount: unitCount,
			})
			pageStart = len(indexData)
			unitCount = 0
		}
	}
	if unitCount > 0 {
		pages = append(pages, container.IndexPageHeader{
			Offset:    uint32(pageStart),
			Length:    uint32(len(indexData) - pageStart),
			UnitCount: unitCount,
		})
	}
	return pages, indexData, stringBlocks
}

func encodeIndexUnit(key container.MidashiKey, infos []container.BlockInfo) []byte {
	joined := make([]byte, 0, len(infos)*8)
	for i, info := range infos {
		if i > 0 {
			joined = append(joined, ' ')
		}
		joined = append(joined, info.Midashi...)
	}

	hdr := (&container.IndexUnitHeader{
		InfoCount:        uint32(len(infos)),
		JoinedMidashiLen: uint32(len(joined)),
		Key:              key,
	}).Bytes()

	out := make([]byte, 0, len(hdr)+len(infos)*container.OffsetLengthByteLength+len(joined))
	out = append(out, hdr...)
	for _, info := range infos {
		out = append(out, (&container.OffsetLength{Offset: info.Offset, Length: info.Length}).Bytes()...)
	}
	out = append(out, joined...)
	return out
}

func reverseBlockInfos(infos []container.BlockInfo) {
	for i, j := 0, len(infos)-1; i < j; i, j = i+1, j-1 {
		infos[i], infos[j] = infos[j], infos[i]
	}
}

// maxEntryLength scans a "\nMIDASHI candidates\n"-delimited buffer once and
// returns the length of its longest "\n...\n" entry (including both
// newlines), mirroring get_max_entry_length: it bounds how far the chunker
// may need to widen its window when a unit_length guess lands with no
// interior newline.
func maxEntryLength(buffer []byte) int {
	max := 0
	offset := 0
	for offset+1 < len(buffer) {
		rel := bytes.IndexByte(buffer[offset+1:], '\n')
		if rel < 0 {
			break
		}
		length := 1 + rel + 1
		if length > max {
			max = length
		}
		offset += rel + 1
	}
	return max
}

// chunkBlockText implements spec §4.4 step 3
// (get_dictionary_block_informations): walk blockText from its start
// (always a '\n'), tentatively advancing DictionaryBlockUnitLength at a
// time, rewinding to the previous line boundary inside the window so every
// chunk begins and ends on a '\n', and padding the final chunk with 'X' up
// to a 16-byte boundary. blocksLenSoFar is the absolute offset within the
// final string-blocks region where this key's aligned output will land.
// Returned BlockInfo entries are in the ascending (forward-walk) order;
// callers reverse them per spec's descending-midashi invariant.
func chunkBlockText(blockText []byte, blocksLenSoFar int) ([]container.BlockInfo, []byte) {
	total := len(blockText)
	maxEntry := maxEntryLength(blockText)
	if maxEntry == 0 {
		maxEntry = total
	}

	var infos []container.BlockInfo
	var aligned []byte
	offset := 0

	for {
		find := bytes.IndexByte(blockText[offset:], ' ')
		if find < 0 {
			break
		}
		find += offset

		unitLength := container.DictionaryBlockUnitLength
		shouldBreak := offset+unitLength >= total
		if shouldBreak {
			unitLength = total - offset
		}

		rfind := lastIndexByteBefore(blockText, '\n', offset+unitLength)
		if rfind == offset {
			unitLength = maxEntry
			if total == unitLength {
				shouldBreak = true
			}
		}
		rfind = lastIndexByteBefore(blockText, '\n', offset+unitLength)
		if rfind < 0 {
			break
		}

		aligned = append(aligned, blockText[offset:rfind]...)
		infos = append(infos, container.BlockInfo{
			Midashi: append([]byte(nil), blockText[offset+1:find]...),
			Offset:  uint32(blocksLenSoFar + offset),
			Length:  uint32(rfind + 1 - offset),
		})

		if shouldBreak {
			aligned = append(aligned, '\n')
			alignedLen := container.AlignUp(uint32(len(aligned)), container.ChunkAlignment)
			for uint32(len(aligned)) < alignedLen {
				aligned = append(aligned, 'X')
			}
			break
		}
		offset = rfind
	}
	return infos, aligned
}

// lastIndexByteBefore returns the index of the last occurrence of b within
// buffer[:limit], or -1.
func lastIndexByteBefore(buffer []byte, b byte, limit int) int {
	if limit > len(buffer) {
		limit = len(buffer)
	}
	return bytes.LastIndexByte(buffer[:limit], b)
}
