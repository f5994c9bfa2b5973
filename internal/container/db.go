package container

import (
	"crypto/sha1"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"

	"github.com/wachikun/yaskkserv2/internal/indexmeta"
)

// DB is a read-only, validated view of one dictionary container file. It
// owns the file's FixedHeader and gives section-level access over an
// io.ReaderAt; it performs no in-memory indexing itself (that is
// internal/dictindex's job, built on top of DB).
//
// Grounded on compactindexsized.DB (query.go): Open validates, Fadvise-hints
// the kernel, and leaves lookups to a reusable buffer supplied by the
// caller.
type DB struct {
	Header FixedHeader
	reader io.ReaderAt
	closer io.Closer
}

// Open reads and validates the fixed header and the whole-file SHA-1, then
// returns a DB ready to serve section reads. When reader is an *os.File,
// the DB takes ownership of it for Close and applies a random-access
// page-cache hint the way the teacher's compactindexsized.Open does via
// unix.Fadvise.
func Open(reader io.ReaderAt, size int64) (*DB, error) {
	headerBuf := make([]byte, FixedHeaderAreaLength)
	if _, err := reader.ReadAt(headerBuf, 0); err != nil {
		return nil, fmt.Errorf("container: read fixed header: %w", err)
	}
	var header FixedHeader
	if err := header.Load(headerBuf); err != nil {
		return nil, err
	}
	if header.Version != Version {
		return nil, fmt.Errorf("container: unsupported version %d", header.Version)
	}
	if int64(header.TotalLen) != size {
		return nil, fmt.Errorf("container: total_len %d does not match file size %d", header.TotalLen, size)
	}
	if err := validateRegions(&header); err != nil {
		return nil, err
	}
	if err := verifyHash(reader, &header); err != nil {
		return nil, err
	}
	db := &DB{Header: header, reader: reader}
	if f, ok := reader.(*os.File); ok {
		db.closer = f
		adviseRandom(f)
	}
	return db, nil
}

// OpenFile opens path, wraps it as an io.ReaderAt, and calls Open.
func OpenFile(path string) (*DB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("container: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("container: stat %s: %w", path, err)
	}
	db, err := Open(f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error {
	if db.closer != nil {
		return db.closer.Close()
	}
	return nil
}

func adviseRandom(f *os.File) {
	if err := unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_RANDOM); err != nil {
		klog.V(2).Infof("container: fadvise random failed (non-fatal): %v", err)
	}
}

func validateRegions(h *FixedHeader) error {
	regions := []struct {
		name        string
		off, length uint32
	}{
		{"encoding table", h.EncTableOff, h.EncTableLen},
		{"index header", h.IdxHdrOff, h.IdxHdrLen},
		{"index data", h.IdxOff, h.IdxLen},
		{"string blocks", h.BlocksOff, h.BlocksLen},
	}
	prevEnd := uint32(FixedHeaderAreaLength)
	for _, r := range regions {
		if r.off < prevEnd {
			return fmt.Errorf("container: region %q overlaps previous region (offset %d < %d)", r.name, r.off, prevEnd)
		}
		prevEnd = r.off + r.length
	}
	if h.BlocksOff%StringBlocksAlignment != 0 {
		return fmt.Errorf("container: string blocks offset %d not aligned to %d", h.BlocksOff, StringBlocksAlignment)
	}
	return nil
}

func verifyHash(reader io.ReaderAt, header *FixedHeader) error {
	hasher := sha1.New()
	zeroed := *header
	zeroed.Hash = [Sha1Length]byte{}
	headerBuf := make([]byte, FixedHeaderAreaLength)
	if _, err := reader.ReadAt(headerBuf, 0); err != nil {
		return fmt.Errorf("container: read fixed header area: %w", err)
	}
	copy(headerBuf, zeroed.Bytes())
	hasher.Write(headerBuf)

	const chunkSize = 1 << 20
	buf := make([]byte, chunkSize)
	var offset int64 = FixedHeaderAreaLength
	total := int64(header.TotalLen)
	for offset < total {
		want := chunkSize
		if remaining := total - offset; remaining < int64(want) {
			want = int(remaining)
		}
		n, err := reader.ReadAt(buf[:want], offset)
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
	var sum [Sha1Length]byte
	copy(sum[:], hasher.Sum(nil))
	if sum != header.Hash {
		return fmt.Errorf("container: broken dictionary: sha1 mismatch")
	}
	return nil
}

func (db *DB) readAt(offset, length uint32) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := db.reader.ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("container: read region at %d len %d: %w", offset, length, err)
	}
	return buf, nil
}

// EncodingTable returns the packed codec table bytes.
func (db *DB) EncodingTable() ([]byte, error) {
	return db.readAt(db.Header.EncTableOff, db.Header.EncTableLen)
}

// Metadata decodes the build-provenance key-value blob a builder may have
// embedded in the unused tail of the fixed header area (see
// Builder.SetMetadata). A container built without metadata decodes to an
// empty Meta, not an error.
func (db *DB) Metadata() (*indexmeta.Meta, error) {
	raw, err := db.readAt(FixedHeaderByteLength, FixedHeaderAreaLength-FixedHeaderByteLength)
	if err != nil {
		return nil, err
	}
	var m indexmeta.Meta
	if err := m.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("container: decode metadata: %w", err)
	}
	return &m, nil
}

// IndexHeaderBytes returns the raw IndexHeader + page-table region.
func (db *DB) IndexHeaderBytes() ([]byte, error) {
	return db.readAt(db.Header.IdxHdrOff, db.Header.IdxHdrLen)
}

// ReadIndexPage reads one index-data page relative to IdxOff, sized by the
// caller-supplied page header (so the caller can reuse a buffer across
// pages, per spec §4.5).
func (db *DB) ReadIndexPage(page IndexPageHeader, dst []byte) ([]byte, error) {
	if int(page.Length) > len(dst) {
		dst = make([]byte, page.Length)
	}
	n, err := db.reader.ReadAt(dst[:page.Length], int64(db.Header.IdxOff+page.Offset))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("container: read index page: %w", err)
	}
	return dst[:n], nil
}

// ReadBlock reads length bytes at blocksOff+offset into dst, growing dst
// when needed. This backs the lookup engine's reusable file buffer (spec
// §4.6 step 4).
func (db *DB) ReadBlock(offset, length uint32, dst []byte) ([]byte, error) {
	if int(length) > cap(dst) {
		dst = make([]byte, length)
	}
	dst = dst[:length]
	n, err := db.reader.ReadAt(dst, int64(db.Header.BlocksOff+offset))
	if err != nil && !(err == io.EOF && uint32(n) == length) {
		return nil, fmt.Errorf("container: read block: %w", err)
	}
	return dst, nil
}
