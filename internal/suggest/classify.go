// classify.go implements the UTF-8 hiragana/katakana/half-width-katakana
// range checks of spec §4.9, ported byte-range-for-byte-range from
// src/skk/yaskkserv2/request.rs's is_utf8_hiragana/is_utf8_katakana/
// is_utf8_hankaku_katakana.
package suggest

// isHiragana reports whether the 3-byte UTF-8 sequence letter encodes a
// hiragana codepoint: U+3041-U+3093, plus U+309B-U+309E (the voiced-sound
// and iteration marks, which request.rs's second branch folds in as
// hiragana).
func isHiragana(letter [3]byte) bool {
	if letter[0] != 0xe3 {
		return false
	}
	if letter[1] == 0x81 {
		return letter[2] >= 0x81 && letter[2] <= 0xbf
	}
	if letter[1] == 0x82 {
		if letter[2] >= 0x9b && letter[2] <= 0x9e {
			return true
		}
		return letter[2] >= 0x80 && letter[2] <= 0x93
	}
	return false
}

func isKatakana(letter [3]byte) bool {
	if letter[0] != 0xe3 {
		return false
	}
	if letter[1] == 0x82 {
		return letter[2] >= 0xa1 && letter[2] <= 0xbf
	}
	if letter[1] == 0x83 {
		if letter[2] >= 0xbb && letter[2] <= 0xbe {
			return true
		}
		return letter[2] >= 0x80 && letter[2] <= 0xb6
	}
	return false
}

func isHankakuKatakana(letter [3]byte) bool {
	if letter[0] != 0xef {
		return false
	}
	if letter[1] == 0xbd {
		return letter[2] >= 0xa1 && letter[2] <= 0xbf
	}
	if letter[1] == 0xbe {
		return letter[2] >= 0x80 && letter[2] <= 0x9f
	}
	return false
}

// isOnlyOf reports whether candidate is entirely composed of 3-byte UTF-8
// sequences all satisfying test, per is_utf8_*_only in request.rs: length
// must be a nonzero multiple of 3.
func isOnlyOf(candidate []byte, test func([3]byte) bool) bool {
	n := len(candidate)
	if n%3 != 0 || n < 3 {
		return false
	}
	for i := 0; i < n; i += 3 {
		var letter [3]byte
		copy(letter[:], candidate[i:i+3])
		if !test(letter) {
			return false
		}
	}
	return true
}

func isHiraganaOnly(candidate []byte) bool       { return isOnlyOf(candidate, isHiragana) }
func isKatakanaOnly(candidate []byte) bool       { return isOnlyOf(candidate, isKatakana) }
func isHankakuKatakanaOnly(candidate []byte) bool { return isOnlyOf(candidate, isHankakuKatakana) }

// shouldAddTailCandidates reports whether a multi-part Google Japanese
// Input candidate's tail segment should be appended: only when the
// midashi's last byte falls outside a-z (i.e. the midashi has no okuri
// particle baked into the suggestion payload).
func shouldAddTailCandidates(midashiTail []byte) bool {
	if len(midashiTail) < 1 {
		return false
	}
	tail := midashiTail[len(midashiTail)-1]
	return tail < 'a' || tail > 'z'
}

// shouldAdd reports whether every candidate segment in parts passes the
// include-only filters: a segment that is purely hiragana/katakana/
// half-width-katakana is dropped unless the matching include flag is set.
func shouldAdd(parts [][]byte, includeHiragana, includeKatakana, includeHankakuKatakana bool) bool {
	for _, p := range parts {
		if !includeHiragana && isHiraganaOnly(p) {
			return false
		}
		if !includeKatakana && isKatakanaOnly(p) {
			return false
		}
		if !includeHankakuKatakana && isHankakuKatakanaOnly(p) {
			return false
		}
	}
	return true
}
