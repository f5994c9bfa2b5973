package lookup

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wachikun/yaskkserv2/internal/container"
	"github.com/wachikun/yaskkserv2/internal/dictindex"
)

// buildOneUnitContainer seals a container with a single index unit holding
// one BlockInfo, whose string-blocks text holds two dictionary lines.
func buildOneUnitContainer(t *testing.T) *container.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lookup.dict")
	b, err := container.NewBuilder(path, container.EncodingEuc)
	require.NoError(t, err)

	blockText := "\nabc /X/Y/\ndef /Z/\n"
	key := container.MidashiKey{'a', 0, 0, 0}
	unit := (&container.IndexUnitHeader{InfoCount: 1, JoinedMidashiLen: len("abc"), Key: key}).Bytes()
	off := (&container.OffsetLength{Offset: 0, Length: uint32(len(blockText))}).Bytes()
	idxData := append(append([]byte{}, unit...), off...)
	idxData = append(idxData, []byte("abc")...)

	idxHdr := (&container.IndexHeader{BlockBufferLength: uint32(len(idxData)), BlockHeaderCount: 1}).Bytes()
	page := (&container.IndexPageHeader{Offset: 0, Length: uint32(len(idxData)), UnitCount: 1}).Bytes()
	idxHdr = append(idxHdr, page...)

	b.SetEncodingTable([]byte("x"))
	b.SetIndexHeader(idxHdr)
	b.SetIndexData(idxData)
	b.SetStringBlocks([]byte(blockText))
	require.NoError(t, b.SealAndClose())

	db, err := container.OpenFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEngineLookupFindsCandidates(t *testing.T) {
	db := buildOneUnitContainer(t)
	idx, err := dictindex.Build(db)
	require.NoError(t, err)

	e := NewEngine(db, idx, nil, nil, nil, GoogleTimingDisabled, 10)
	out, err := e.Lookup(context.Background(), []byte("1abc \n"))
	require.NoError(t, err)
	require.Equal(t, "1/X/Y/", string(out))
}

func TestEngineLookupMissReturnsBareMarker(t *testing.T) {
	db := buildOneUnitContainer(t)
	idx, err := dictindex.Build(db)
	require.NoError(t, err)

	e := NewEngine(db, idx, nil, nil, nil, GoogleTimingDisabled, 10)
	out, err := e.Lookup(context.Background(), []byte("1zzz \n"))
	require.NoError(t, err)
	require.Equal(t, "1", string(out))
}

type fakeRemote struct {
	candidates [][]byte
	calls      int
}

func (f *fakeRemote) Query(ctx context.Context, midashi []byte) ([][]byte, error) {
	f.calls++
	return f.candidates, nil
}

func TestEngineLookupMergesRemoteOnNotFound(t *testing.T) {
	db := buildOneUnitContainer(t)
	idx, err := dictindex.Build(db)
	require.NoError(t, err)

	remote := &fakeRemote{candidates: [][]byte{[]byte("W")}}
	e := NewEngine(db, idx, nil, remote, nil, GoogleTimingNotFound, 10)
	out, err := e.Lookup(context.Background(), []byte("1zzz \n"))
	require.NoError(t, err)
	require.Equal(t, 1, remote.calls)
	require.Contains(t, string(out), "W")
}

func TestHasOkuri(t *testing.T) {
	require.True(t, hasOkuri([]byte{0xa4, 0xa2, 'r'}))
	require.False(t, hasOkuri([]byte{0xa4, 0xa2, 'R'}))
	require.False(t, hasOkuri([]byte("ab")))
	require.False(t, hasOkuri([]byte{0xa3, 0xa2, 'r'}))
}

func TestEngineCompletion(t *testing.T) {
	db := buildOneUnitContainer(t)
	idx, err := dictindex.Build(db)
	require.NoError(t, err)

	e := NewEngine(db, idx, nil, nil, nil, GoogleTimingDisabled, 10)
	out, err := e.Completion([]byte("4ab \n"))
	require.NoError(t, err)
	require.Equal(t, "1/abc/", string(out))
}

// TestEngineCompletionMultipleEntriesInOneChunk matches spec S4: a single
// chunk can hold several entries sharing one query's prefix, and all of
// them (not just the first) must be returned.
func TestEngineCompletionMultipleEntriesInOneChunk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "completion.dict")
	b, err := container.NewBuilder(path, container.EncodingEuc)
	require.NoError(t, err)

	blockText := "\nabc /1/\nabcd /2/\nabcde /3/\nother /9/\n"
	key := container.MidashiKey{'a', 0, 0, 0}
	unit := (&container.IndexUnitHeader{InfoCount: 1, JoinedMidashiLen: len("abc"), Key: key}).Bytes()
	off := (&container.OffsetLength{Offset: 0, Length: uint32(len(blockText))}).Bytes()
	idxData := append(append([]byte{}, unit...), off...)
	idxData = append(idxData, []byte("abc")...)

	idxHdr := (&container.IndexHeader{BlockBufferLength: uint32(len(idxData)), BlockHeaderCount: 1}).Bytes()
	page := (&container.IndexPageHeader{Offset: 0, Length: uint32(len(idxData)), UnitCount: 1}).Bytes()
	idxHdr = append(idxHdr, page...)

	b.SetEncodingTable([]byte("x"))
	b.SetIndexHeader(idxHdr)
	b.SetIndexData(idxData)
	b.SetStringBlocks([]byte(blockText))
	require.NoError(t, b.SealAndClose())

	db, err := container.OpenFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	idx, err := dictindex.Build(db)
	require.NoError(t, err)

	e := NewEngine(db, idx, nil, nil, nil, GoogleTimingDisabled, 10)
	out, err := e.Completion([]byte("4abc \n"))
	require.NoError(t, err)
	require.Equal(t, "1/abc/abcd/abcde/", string(out))
}

func TestFindCandidatesInBlock(t *testing.T) {
	block := []byte("\nabc /X/Y/\ndef /Z/\n")
	found, ok := findCandidatesInBlock(block, []byte("abc"))
	require.True(t, ok)
	require.Equal(t, "/X/Y/", string(found))

	_, ok = findCandidatesInBlock(block, []byte("zzz"))
	require.False(t, ok)
}
