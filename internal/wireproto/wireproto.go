// Package wireproto implements the request-framing rules of spec §6.1: a
// request is one control byte optionally followed by a midashi, terminated
// either by a single space or, for the zero-argument control bytes, by the
// control byte itself.
//
// Grounded on src/skk/yaskkserv2/mod.rs's read_until_skk_server and
// get_buffer_skip_count.
package wireproto

import "bytes"

const (
	// MinRequestLength is the shortest legal request, e.g. "1a ".
	MinRequestLength = 3
	// MaxRequestLength is PROTOCOL_MAXIMUM_LENGTH: 2*510 (max UTF-8 scale
	// of the legacy midashi length limit) + 1024 bytes of margin.
	MaxRequestLength = 2*510 + 1024
)

// ErrorSentinel is written back verbatim for any malformed request.
var ErrorSentinel = []byte("0\n")

// oneByteControls are the control bytes that terminate a request by
// themselves, without a trailing space: disconnect, version, host.
func isOneByteControl(b byte) bool {
	return b == '0' || b == '2' || b == '3'
}

// FindFrame scans buf for a complete request frame and reports its length
// (including the terminating byte). It returns complete=false when buf
// holds only a partial request so far.
func FindFrame(buf []byte) (length int, complete bool) {
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		return i + 1, true
	}
	for i, c := range buf {
		if isOneByteControl(c) {
			return i + 1, true
		}
		if c != '\n' && c != '\r' {
			break
		}
	}
	return 0, false
}

// SkipLeading reports how many leading '\n'/'\r' bytes (0, 1, or 2) a frame
// starts with, per get_buffer_skip_count.
func SkipLeading(frame []byte) int {
	if len(frame) >= 2 && isNewline(frame[1]) && isNewline(frame[0]) {
		return 2
	}
	if len(frame) >= 1 && isNewline(frame[0]) {
		return 1
	}
	return 0
}

func isNewline(b byte) bool {
	return b == '\n' || b == '\r'
}
