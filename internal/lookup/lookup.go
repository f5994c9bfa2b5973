// Package lookup implements the read-side query engine described in spec
// §4.6: exact lookup, prefix completion, okuri classification, and merging
// of locally-found candidates with a remote suggestion client's results.
//
// Grounded on src/skk/dictionary.rs's lookup/completion functions and on
// the teacher's compactindexsized reusable-read-buffer idiom (a []byte that
// grows on demand and is reused across calls instead of being reallocated
// per lookup).
package lookup

import (
	"bytes"
	"context"

	"github.com/valyala/bytebufferpool"
	"github.com/wachikun/yaskkserv2/internal/candidate"
	"github.com/wachikun/yaskkserv2/internal/codec"
	"github.com/wachikun/yaskkserv2/internal/container"
	"github.com/wachikun/yaskkserv2/internal/dictindex"
)

// GoogleTiming controls when (if ever) the remote suggestion client is
// consulted relative to the local dictionary lookup, per spec §4.6 step 2/5.
type GoogleTiming int

const (
	GoogleTimingDisabled GoogleTiming = iota
	GoogleTimingFirst
	GoogleTimingLast
	GoogleTimingNotFound
)

// RemoteClient abstracts the remote suggestion source (C9); it returns
// UTF-8 candidate strings for a UTF-8 midashi.
type RemoteClient interface {
	Query(ctx context.Context, midashiUtf8 []byte) ([][]byte, error)
}

// Cache abstracts the suggestion cache (C7) so lookup does not need to
// import its concrete implementation.
type Cache interface {
	Get(midashiUtf8 []byte) ([][]byte, bool)
	Put(midashiUtf8 []byte, candidatesUtf8 [][]byte)
}

// Engine answers lookup and completion queries against one open dictionary
// container and its in-memory index.
type Engine struct {
	db     *container.DB
	index  *dictindex.Index
	codec  *codec.Codec
	remote RemoteClient
	cache  Cache
	timing GoogleTiming

	buf blockBuffer

	MaxCompletions int
}

// NewEngine builds a query engine over an already-open container and its
// already-built index. remote and cache may be nil (no remote/google
// features configured); a nil remote forces timing to Disabled.
func NewEngine(db *container.DB, index *dictindex.Index, c *codec.Codec, remote RemoteClient, cache Cache, timing GoogleTiming, maxCompletions int) *Engine {
	if remote == nil {
		timing = GoogleTimingDisabled
	}
	return &Engine{
		db: db, index: index, codec: c, remote: remote, cache: cache, timing: timing,
		buf:            blockBuffer{backing: bytebufferpool.Get()},
		MaxCompletions: maxCompletions,
	}
}

// Close returns the engine's reusable read buffer to the shared pool. It
// does not close the underlying container, which the caller still owns.
func (e *Engine) Close() {
	bytebufferpool.Put(e.buf.backing)
}

// blockBuffer is a reusable destination buffer for container.DB.ReadBlock,
// per spec §4.6 step 4 ("through a reusable file buffer that grows on
// demand and remembers the last range"), backed by a pooled
// bytebufferpool.ByteBuffer so repeated lookups on one connection do not
// reallocate once the buffer has grown to its working-set size.
type blockBuffer struct {
	backing        *bytebufferpool.ByteBuffer
	lastOff, lastN uint32
	valid          bool
}

func (b *blockBuffer) read(db *container.DB, offset, length uint32) ([]byte, error) {
	if b.valid && b.lastOff == offset && b.lastN == length {
		return b.backing.B[:length], nil
	}
	b.backing.Reset()
	out, err := db.ReadBlock(offset, length, b.backing.B[:cap(b.backing.B)])
	if err != nil {
		b.valid = false
		return nil, err
	}
	b.backing.B = out[:cap(out)]
	b.lastOff, b.lastN, b.valid = offset, length, true
	return out[:length], nil
}

// hasOkuri implements the okuri classification of spec §4.6: the last byte
// is in [a-z], and the byte two-before-last is 0xA4 with the byte
// immediately-before-last in [0xA1..0xF3].
func hasOkuri(midashi []byte) bool {
	n := len(midashi)
	if n < 3 {
		return false
	}
	last := midashi[n-1]
	if last < 'a' || last > 'z' {
		return false
	}
	if midashi[n-3] != 0xa4 {
		return false
	}
	prev := midashi[n-2]
	return prev >= 0xa1 && prev <= 0xf3
}

// findCandidatesInBlock locates "\nMIDASHI /" within a raw dictionary block
// and returns the candidate area up to (excluding) the next '\n', including
// the leading '/'.
func findCandidatesInBlock(block, midashi []byte) ([]byte, bool) {
	pattern := make([]byte, 0, len(midashi)+3)
	pattern = append(pattern, '\n')
	pattern = append(pattern, midashi...)
	pattern = append(pattern, ' ', '/')

	idx := bytes.Index(block, pattern)
	if idx < 0 {
		return nil, false
	}
	start := idx + len(pattern) - 1
	rest := block[start:]
	end := bytes.IndexByte(rest, '\n')
	if end < 0 {
		end = len(rest)
	}
	return rest[:end], true
}

// seedOrMerge folds a newly found (already slash-framed) candidate
// fragment into the running result, seeding it on first use.
func seedOrMerge(result, found []byte) []byte {
	if result == nil {
		return append([]byte(nil), found...)
	}
	return candidate.Merge(candidate.TrimOneSlash(result), candidate.TrimOneSlash(found))
}

// Lookup answers spec §4.6's lookup(midashi_buffer): buffer starts with
// '1', ends with a trailing space, with the encoded midashi in between.
// It returns a byte slice starting with '1'; length 1 means no candidates.
func (e *Engine) Lookup(ctx context.Context, buffer []byte) ([]byte, error) {
	midashi := extractMidashi(buffer, 1)

	var result []byte

	if e.timing == GoogleTimingFirst {
		if merged, err := e.queryAndMergeRemote(ctx, midashi, result); err == nil {
			result = merged
		}
	}

	if key, err := container.ComputeMidashiKey(midashi); err == nil {
		if blocks := e.index.Lookup(key); blocks != nil {
			if i := locateChunk(blocks, midashi); i >= 0 {
				info := blocks[i]
				raw, err := e.buf.read(e.db, info.Offset, info.Length)
				if err == nil {
					if found, ok := findCandidatesInBlock(raw, midashi); ok {
						result = seedOrMerge(result, found)
					}
				}
			}
		}
	}

	if e.timing == GoogleTimingLast || (e.timing == GoogleTimingNotFound && len(result) == 0) {
		if merged, err := e.queryAndMergeRemote(ctx, midashi, result); err == nil {
			result = merged
		}
	}

	out := make([]byte, 0, len(result)+1)
	out = append(out, '1')
	out = append(out, result...)
	return out, nil
}

// Completion answers spec §4.6's completion(midashi_buffer): buffer starts
// with '4'. Returns '1' + the slash-framed list of matching midashis, up
// to MaxCompletions, excluding okuri-ari entries.
//
// Ported from read_dictionary_for_read_abbrev (original_source
// src/skk/yaskkserv2/dictionary_reader.rs:404-478): each candidate chunk is
// read in full and scanned entry-by-entry for every occurrence of
// "\n"+query, not just its BlockInfo representative, since a single chunk
// can hold several prefix matches (spec S4: "abc"/"abcd"/"abcde" all share
// one chunk). The walk proceeds from the starting chunk toward index 0
// (larger per-chunk lower bounds), because BlockInfo.Midashi is a chunk's
// lower bound and every midashi sharing query's prefix is >= query itself.
func (e *Engine) Completion(buffer []byte) ([]byte, error) {
	query := extractMidashi(buffer, 1)

	out := []byte{'1'}
	key, err := container.ComputeMidashiKey(query)
	if err != nil {
		return out, nil
	}
	blocks := e.index.Lookup(key)
	if blocks == nil {
		return out, nil
	}
	i := locateChunk(blocks, query)
	if i < 0 {
		return out, nil
	}

	var hits []byte
	count := 0
	pattern := append([]byte{'\n'}, query...)

outer:
	for {
		block := blocks[i]
		if count > 0 && !bytes.HasPrefix(block.Midashi, query) {
			break
		}

		raw, err := e.buf.read(e.db, block.Offset, block.Length)
		if err == nil {
			offset := 0
			for {
				rel := bytes.Index(raw[offset:], pattern)
				if rel < 0 {
					if count == 0 {
						break outer
					}
					break
				}
				midashiStart := offset + rel + 1
				spaceSearchStart := offset + rel + len(pattern)
				spaceRel := bytes.IndexByte(raw[spaceSearchStart:], ' ')
				if spaceRel < 0 {
					break outer
				}
				midashiEnd := spaceSearchStart + spaceRel
				offset = midashiEnd

				entryMidashi := raw[midashiStart:midashiEnd]
				if !hasOkuri(entryMidashi) {
					var slash byte = '/'
					hits = append(hits, candidate.QuoteAndPrefix(entryMidashi, &slash)...)
					count++
					if count >= e.MaxCompletions {
						break outer
					}
				}
			}
		} else if count == 0 {
			break
		}

		if i == 0 {
			break
		}
		i--
	}
	hits = append(hits, '/')

	if e.db.Header.Encoding == uint32(container.EncodingUtf8) && e.codec != nil {
		decoded, err := e.codec.Decode(hits)
		if err == nil {
			hits = decoded
		}
	}

	return append(out, hits...), nil
}

// queryAndMergeRemote implements merge_remote (spec §4.6): query the
// remote client, quote+prefix each UTF-8 candidate, trim, and merge into
// result, encoding the merged fragment first if the container uses the
// legacy encoding.
func (e *Engine) queryAndMergeRemote(ctx context.Context, midashi, result []byte) ([]byte, error) {
	if e.remote == nil {
		return result, nil
	}
	query := midashi
	if e.db.Header.Encoding == uint32(container.EncodingEuc) && e.codec != nil {
		if decoded, err := e.codec.Decode(midashi); err == nil {
			query = decoded
		}
	}
	candidates, err := e.remote.Query(ctx, query)
	if err != nil {
		return result, err
	}
	if len(candidates) == 0 {
		return result, nil
	}

	var fragment []byte
	var slash byte = '/'
	for _, c := range candidates {
		fragment = append(fragment, candidate.QuoteAndPrefix(c, &slash)...)
	}
	fragment = append(fragment, '/')
	fragment = candidate.TrimOneSlash(fragment)

	if e.db.Header.Encoding == uint32(container.EncodingEuc) && e.codec != nil {
		encoded, err := e.codec.Encode(fragment)
		if err == nil {
			fragment = encoded
		}
	}

	merged := seedOrMerge(result, append([]byte{'/'}, append(fragment, '/')...))

	if e.cache != nil {
		e.cache.Put(query, candidates)
	}
	return merged, nil
}

// extractMidashi strips the leading protocol byte and trailing space/
// newline from a request buffer.
func extractMidashi(buffer []byte, skip int) []byte {
	if len(buffer) <= skip {
		return nil
	}
	end := len(buffer)
	for end > skip && (buffer[end-1] == ' ' || buffer[end-1] == '\n' || buffer[end-1] == '\r') {
		end--
	}
	return buffer[skip:end]
}
