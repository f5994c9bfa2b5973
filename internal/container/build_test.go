package container_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wachikun/yaskkserv2/internal/container"
	"github.com/wachikun/yaskkserv2/internal/indexmeta"
)

func TestBuilderSealAndOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.dict")

	b, err := container.NewBuilder(path, container.EncodingUtf8)
	require.NoError(t, err)

	encTable := []byte("fake-encoding-table")
	idxHdr := (&container.IndexHeader{BlockBufferLength: 64, BlockHeaderCount: 1}).Bytes()
	page := (&container.IndexPageHeader{Offset: 0, Length: 16, UnitCount: 1}).Bytes()
	idxHdr = append(idxHdr, page...)

	unit := (&container.IndexUnitHeader{InfoCount: 1, JoinedMidashiLen: 3, Key: container.MidashiKey{'a', 0, 0, 0}}).Bytes()
	offLen := (&container.OffsetLength{Offset: 0, Length: 16}).Bytes()
	idxData := append(append([]byte{}, unit...), offLen...)
	idxData = append(idxData, []byte("abc")...)

	stringBlocks := []byte("\nabc /X/\nXXXXXXXX")

	b.SetEncodingTable(encTable)
	b.SetIndexHeader(idxHdr)
	b.SetIndexData(idxData)
	b.SetStringBlocks(stringBlocks)

	require.NoError(t, b.SealAndClose())

	db, err := container.OpenFile(path)
	require.NoError(t, err)
	defer db.Close()

	require.Equal(t, container.Version, db.Header.Version)
	require.Equal(t, uint32(container.EncodingUtf8), db.Header.Encoding)

	gotEncTable, err := db.EncodingTable()
	require.NoError(t, err)
	require.Equal(t, encTable, gotEncTable)

	gotIdxHdr, err := db.IndexHeaderBytes()
	require.NoError(t, err)
	require.Equal(t, idxHdr, gotIdxHdr)

	block, err := db.ReadBlock(0, uint32(len(stringBlocks)), nil)
	require.NoError(t, err)
	require.Equal(t, stringBlocks, block)
}

func TestBuilderMetadataRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.dict")
	b, err := container.NewBuilder(path, container.EncodingUtf8)
	require.NoError(t, err)
	b.SetEncodingTable([]byte("x"))
	b.SetIndexHeader((&container.IndexHeader{}).Bytes())
	b.SetIndexData(nil)
	b.SetStringBlocks([]byte("\n\n"))

	meta := &indexmeta.Meta{}
	require.NoError(t, meta.AddString([]byte("builder"), "test"))
	require.NoError(t, meta.AddUint64([]byte("sources"), 3))
	require.NoError(t, b.SetMetadata(meta))
	require.NoError(t, b.SealAndClose())

	db, err := container.OpenFile(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.Metadata()
	require.NoError(t, err)
	builder, ok := got.GetString([]byte("builder"))
	require.True(t, ok)
	require.Equal(t, "test", builder)
	sources, ok := got.GetUint64([]byte("sources"))
	require.True(t, ok)
	require.Equal(t, uint64(3), sources)
}

func TestBuilderMetadataDefaultsToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nometa.dict")
	b, err := container.NewBuilder(path, container.EncodingUtf8)
	require.NoError(t, err)
	b.SetEncodingTable([]byte("x"))
	b.SetIndexHeader((&container.IndexHeader{}).Bytes())
	b.SetIndexData(nil)
	b.SetStringBlocks([]byte("\n\n"))
	require.NoError(t, b.SealAndClose())

	db, err := container.OpenFile(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.Metadata()
	require.NoError(t, err)
	require.Empty(t, got.KeyVals)
}

func TestOpenRejectsTamperedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tampered.dict")
	b, err := container.NewBuilder(path, container.EncodingUtf8)
	require.NoError(t, err)
	b.SetEncodingTable([]byte("x"))
	b.SetIndexHeader((&container.IndexHeader{}).Bytes())
	b.SetIndexData(nil)
	b.SetStringBlocks([]byte("\n\n"))
	require.NoError(t, b.SealAndClose())

	raw, err := readFile(path)
	require.NoError(t, err)
	raw[container.FixedHeaderAreaLength] ^= 0xff
	require.NoError(t, writeFile(path, raw))

	_, err = container.OpenFile(path)
	require.Error(t, err)
}
