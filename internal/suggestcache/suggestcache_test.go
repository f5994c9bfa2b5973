package suggestcache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func TestPutGetRoundTrip(t *testing.T) {
	c := New(10, 3600)
	require.NoError(t, c.Put(filepath.Join(t.TempDir(), "cache"), []byte("あ"), [][]byte{[]byte("A"), []byte("B")}))

	got, ok := c.Get([]byte("あ"))
	require.True(t, ok)
	require.Equal(t, [][]byte{[]byte("A"), []byte("B")}, got)

	_, ok = c.Get([]byte("い"))
	require.False(t, ok)
}

// TestPutEviction matches spec §8 scenario S7: capacity = 2, three puts for
// distinct midashis at t, t+1, t+2 leave only the last two entries.
func TestPutEviction(t *testing.T) {
	now := time.Unix(1000, 0)
	c := New(2, 3600)
	c.now = fixedClock(&now)
	path := filepath.Join(t.TempDir(), "cache")

	require.NoError(t, c.Put(path, []byte("m1"), [][]byte{[]byte("c1")}))
	now = now.Add(time.Second)
	require.NoError(t, c.Put(path, []byte("m2"), [][]byte{[]byte("c2")}))
	now = now.Add(time.Second)
	require.NoError(t, c.Put(path, []byte("m3"), [][]byte{[]byte("c3")}))

	require.Equal(t, 2, c.Len())
	require.Equal(t, []string{"m2", "m3"}, c.Keys())
	_, ok := c.Get([]byte("m1"))
	require.False(t, ok)
}

func TestPutExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	c := New(10, 10)
	c.now = fixedClock(&now)
	path := filepath.Join(t.TempDir(), "cache")

	require.NoError(t, c.Put(path, []byte("old"), [][]byte{[]byte("c")}))
	now = now.Add(20 * time.Second)
	require.NoError(t, c.Put(path, []byte("new"), [][]byte{[]byte("c")}))

	require.Equal(t, []string{"new"}, c.Keys())
}

func TestPutNoopOnEqualValue(t *testing.T) {
	now := time.Unix(1000, 0)
	c := New(10, 3600)
	c.now = fixedClock(&now)
	path := filepath.Join(t.TempDir(), "cache")

	require.NoError(t, c.Put(path, []byte("m"), [][]byte{[]byte("c1")}))
	firstTimestamp := c.data["m"].Timestamp

	now = now.Add(time.Hour)
	require.NoError(t, c.Put(path, []byte("m"), [][]byte{[]byte("c1")}))
	require.Equal(t, firstTimestamp, c.data["m"].Timestamp)
}

func TestLoadRoundTripAndMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache")

	c := New(10, 3600)
	require.NoError(t, c.Put(path, []byte("あ"), [][]byte{[]byte("A")}))

	loaded, err := Load(path, 10, 3600)
	require.NoError(t, err)
	got, ok := loaded.Get([]byte("あ"))
	require.True(t, ok)
	require.Equal(t, [][]byte{[]byte("A")}, got)

	missing, err := Load(filepath.Join(t.TempDir(), "absent"), 10, 3600)
	require.NoError(t, err)
	require.Equal(t, 0, missing.Len())
}
