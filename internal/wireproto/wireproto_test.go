package wireproto_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wachikun/yaskkserv2/internal/wireproto"
)

func TestFindFrameSpaceTerminated(t *testing.T) {
	length, complete := wireproto.FindFrame([]byte("1abc more"))
	require.True(t, complete)
	require.Equal(t, len("1abc "), length)
}

func TestFindFrameOneByteControl(t *testing.T) {
	length, complete := wireproto.FindFrame([]byte("0trailing"))
	require.True(t, complete)
	require.Equal(t, 1, length)
}

func TestFindFrameIncomplete(t *testing.T) {
	_, complete := wireproto.FindFrame([]byte("1abc"))
	require.False(t, complete)
}

func TestFindFrameSkipsLeadingNewlinesBeforeControl(t *testing.T) {
	length, complete := wireproto.FindFrame([]byte("\r\n2"))
	require.True(t, complete)
	require.Equal(t, 3, length)
}

func TestSkipLeading(t *testing.T) {
	require.Equal(t, 2, wireproto.SkipLeading([]byte("\r\n1abc ")))
	require.Equal(t, 1, wireproto.SkipLeading([]byte("\n1abc ")))
	require.Equal(t, 0, wireproto.SkipLeading([]byte("1abc ")))
}
