package container

import (
	"crypto/sha1"
	"fmt"
	"io"
	"os"

	"github.com/wachikun/yaskkserv2/internal/continuity"
	"github.com/wachikun/yaskkserv2/internal/indexmeta"
)

// metadataAreaLength is how many of the FixedHeaderAreaLength bytes are
// available for an optional indexmeta.Meta blob, once the fixed fields
// themselves are accounted for.
const metadataAreaLength = FixedHeaderAreaLength - FixedHeaderByteLength

// Builder assembles a container file section by section in the strict
// offset order of spec §4.3, then seals it: write the whole file with a
// zeroed hash, stream-hash it, and rewrite just the header in place.
// Grounded on compactindexsized.Builder (build.go): sequential section
// writes followed by a continuity-chained seal step.
type Builder struct {
	path          string
	file          *os.File
	encodingTable []byte
	indexHeader   []byte
	indexData     []byte
	stringBlocks  []byte
	encoding      Encoding
	metadata      []byte
}

// NewBuilder creates (truncating) the output file at path.
func NewBuilder(path string, encoding Encoding) (*Builder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("container: create %s: %w", path, err)
	}
	return &Builder{path: path, file: f, encoding: encoding}, nil
}

// SetEncodingTable sets the packed codec table bytes that will be embedded.
func (b *Builder) SetEncodingTable(table []byte) { b.encodingTable = table }

// SetIndexHeader sets the pre-serialized IndexHeader + page table.
func (b *Builder) SetIndexHeader(buf []byte) { b.indexHeader = buf }

// SetIndexData sets the pre-serialized concatenation of index-data pages.
func (b *Builder) SetIndexData(buf []byte) { b.indexData = buf }

// SetStringBlocks sets the pre-serialized, already-chunk-aligned
// string-blocks region.
func (b *Builder) SetStringBlocks(buf []byte) { b.stringBlocks = buf }

// SetMetadata embeds build provenance (e.g. source file count, builder
// label) in the unused tail of the fixed header area, using the same
// key-value encoding the teacher uses for its index metadata blobs. The
// blob must fit in the reserved metadataAreaLength bytes; a build with too
// many or too large entries is a programmer error, not a runtime one.
func (b *Builder) SetMetadata(meta *indexmeta.Meta) error {
	raw := meta.Bytes()
	if len(raw) > metadataAreaLength {
		return fmt.Errorf("container: metadata %d bytes exceeds reserved %d", len(raw), metadataAreaLength)
	}
	b.metadata = raw
	return nil
}

// SealAndClose lays out every section at its aligned offset, writes the
// file with a zeroed hash, computes the SHA-1 over the whole file, and
// rewrites the header in place with the hash populated.
func (b *Builder) SealAndClose() error {
	header := b.computeHeader()

	var writeErr error
	chain := continuity.New().
		Thenf("write sections", func() error {
			writeErr = b.writeSections(header)
			return writeErr
		}).
		Thenf("sync", func() error {
			return b.file.Sync()
		}).
		Thenf("hash and rewrite header", func() error {
			return b.hashAndRewriteHeader(header)
		}).
		Thenf("sync after header rewrite", func() error {
			return b.file.Sync()
		}).
		Thenf("close", func() error {
			return b.file.Close()
		})
	return chain.Err()
}

func (b *Builder) computeHeader() FixedHeader {
	encTableOff := uint32(FixedHeaderAreaLength)
	encTableLen := uint32(len(b.encodingTable))

	idxHdrOff := encTableOff + encTableLen
	idxHdrLen := uint32(len(b.indexHeader))

	idxOff := idxHdrOff + idxHdrLen
	idxLen := uint32(len(b.indexData))

	blocksOff := AlignUp(idxOff+idxLen, StringBlocksAlignment)
	blocksLen := uint32(len(b.stringBlocks))

	totalLen := blocksOff + blocksLen

	return FixedHeader{
		Version:     Version,
		EncTableOff: encTableOff,
		EncTableLen: encTableLen,
		IdxHdrOff:   idxHdrOff,
		IdxHdrLen:   idxHdrLen,
		IdxOff:      idxOff,
		IdxLen:      idxLen,
		BlocksOff:   blocksOff,
		BlocksLen:   blocksLen,
		TotalLen:    totalLen,
		Encoding:    uint32(b.encoding),
	}
}

func (b *Builder) writeSections(header FixedHeader) error {
	headerArea := make([]byte, FixedHeaderAreaLength)
	copy(headerArea, header.Bytes())
	copy(headerArea[FixedHeaderByteLength:], b.metadata)
	if _, err := b.file.WriteAt(headerArea, 0); err != nil {
		return fmt.Errorf("container: write fixed header area: %w", err)
	}
	if _, err := b.file.WriteAt(b.encodingTable, int64(header.EncTableOff)); err != nil {
		return fmt.Errorf("container: write encoding table: %w", err)
	}
	if _, err := b.file.WriteAt(b.indexHeader, int64(header.IdxHdrOff)); err != nil {
		return fmt.Errorf("container: write index header: %w", err)
	}
	if _, err := b.file.WriteAt(b.indexData, int64(header.IdxOff)); err != nil {
		return fmt.Errorf("container: write index data: %w", err)
	}
	if padLen := int64(header.BlocksOff) - int64(header.IdxOff+header.IdxLen); padLen > 0 {
		if _, err := b.file.WriteAt(make([]byte, padLen), int64(header.IdxOff+header.IdxLen)); err != nil {
			return fmt.Errorf("container: write alignment padding: %w", err)
		}
	}
	if _, err := b.file.WriteAt(b.stringBlocks, int64(header.BlocksOff)); err != nil {
		return fmt.Errorf("container: write string blocks: %w", err)
	}
	if err := b.file.Truncate(int64(header.TotalLen)); err != nil {
		return fmt.Errorf("container: truncate to final size: %w", err)
	}
	return nil
}

func (b *Builder) hashAndRewriteHeader(header FixedHeader) error {
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("container: seek to start: %w", err)
	}
	hasher := sha1.New()
	zeroHeaderArea := make([]byte, FixedHeaderAreaLength)
	copy(zeroHeaderArea, header.Bytes())
	copy(zeroHeaderArea[FixedHeaderByteLength:], b.metadata)
	hasher.Write(zeroHeaderArea)

	buf := make([]byte, 1<<20)
	var offset int64 = FixedHeaderAreaLength
	total := int64(header.TotalLen)
	for offset < total {
		want := len(buf)
		if remaining := total - offset; remaining < int64(want) {
			want = int(remaining)
		}
		n, err := b.file.ReadAt(buf[:want], offset)
		if n > 0 {
			hasher.Write(buf[:n])
			offset += int64(n)
		}
		if err != nil {
			if err == io.EOF && offset == total {
				break
			}
			return fmt.Errorf("container: hashing scan: %w", err)
		}
	}
	copy(header.Hash[:], hasher.Sum(nil))
	finalHeaderArea := make([]byte, FixedHeaderAreaLength)
	copy(finalHeaderArea, header.Bytes())
	copy(finalHeaderArea[FixedHeaderByteLength:], b.metadata)
	if _, err := b.file.WriteAt(finalHeaderArea, 0); err != nil {
		return fmt.Errorf("container: rewrite header with hash: %w", err)
	}
	return nil
}
