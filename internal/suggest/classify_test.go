package suggest

import "testing"

func TestIsHiraganaOnly(t *testing.T) {
	if !isHiraganaOnly([]byte("あいう")) {
		t.Fatal("expected hiragana-only true")
	}
	if isHiraganaOnly([]byte("アイウ")) {
		t.Fatal("expected katakana to fail hiragana-only")
	}
	if isHiraganaOnly([]byte("")) {
		t.Fatal("empty input must not be hiragana-only")
	}
}

func TestIsKatakanaOnly(t *testing.T) {
	if !isKatakanaOnly([]byte("アイウ")) {
		t.Fatal("expected katakana-only true")
	}
	if isKatakanaOnly([]byte("あいう")) {
		t.Fatal("expected hiragana to fail katakana-only")
	}
}

func TestIsHankakuKatakanaOnly(t *testing.T) {
	halfwidth := []byte{0xef, 0xbd, 0xb1} // half-width katakana "ｱ" (U+FF71)
	if !isHankakuKatakanaOnly(halfwidth) {
		t.Fatal("expected half-width katakana-only true")
	}
}

func TestShouldAddTailCandidates(t *testing.T) {
	if shouldAddTailCandidates([]byte("abr")) {
		t.Fatal("trailing lowercase letter should suppress tail candidates")
	}
	if !shouldAddTailCandidates([]byte("abc ")) {
		t.Fatal("trailing space should allow tail candidates")
	}
	if shouldAddTailCandidates(nil) {
		t.Fatal("empty tail must not add candidates")
	}
}

func TestShouldAdd(t *testing.T) {
	if shouldAdd([][]byte{[]byte("あいう")}, false, false, false) {
		t.Fatal("pure hiragana should be filtered when include flag is false")
	}
	if !shouldAdd([][]byte{[]byte("あいう")}, true, false, false) {
		t.Fatal("pure hiragana should pass when include flag is true")
	}
	if !shouldAdd([][]byte{[]byte("漢字")}, false, false, false) {
		t.Fatal("kanji candidates are never filtered by the kana-only rules")
	}
}
