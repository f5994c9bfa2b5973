// Package candidate implements the slash-framed candidate list algebra:
// quoting, trimming, deduplication, and annotation-aware merge. A candidate
// list is a byte string shaped "/cand1/cand2/.../candN/"; a candidate may
// carry an annotation introduced by ';'.
//
// Grounded directly on src/skk/candidates.rs from the original source: the
// quoting escape table, the two-tier merge (fast path when no annotation is
// present, slow path that strips annotations for comparison but keeps
// base's annotation), and the "trim at most one leading/trailing slash"
// contract are all carried over byte-for-byte.
package candidate

import "bytes"

// NeedQuote reports whether source contains any byte that QuoteAndPrefix
// must escape.
func NeedQuote(source []byte) bool {
	for _, u := range source {
		switch u {
		case '\r', '\n', '\\', '"', ';', '/':
			return true
		}
	}
	return false
}

// QuoteAndPrefix escapes source for embedding as a single candidate and
// optionally prepends a prefix byte (e.g. '/' when building a completion
// list). \r and \n are dropped; \\ and " are backslash-escaped; ; and /
// are replaced with SKK's literal-character escapes so the result can
// still be split on '/' and ';' unambiguously.
func QuoteAndPrefix(source []byte, prefix *byte) []byte {
	result := make([]byte, 0, len(source)+2)
	if prefix != nil {
		result = append(result, *prefix)
	}
	for _, u := range source {
		switch u {
		case '\r', '\n':
			// dropped
		case '\\':
			result = append(result, '\\', '\\')
		case '"':
			result = append(result, '\\', '"')
		case ';':
			result = append(result, []byte(`(concat "\073")`)...)
		case '/':
			result = append(result, []byte(`(concat "\057")`)...)
		default:
			result = append(result, u)
		}
	}
	return result
}

// TrimOneSlash removes at most one leading and one trailing '/'. Unlike
// bytes.Trim, repeated slashes beyond the first/last are preserved.
func TrimOneSlash(source []byte) []byte {
	end := len(source)
	if end == 0 {
		return source
	}
	if end > 1 && source[end-1] == '/' {
		end--
	}
	start := 0
	if source[0] == '/' {
		start = 1
	}
	return source[start:end]
}

// RemoveDuplicatesBytes drops repeated candidates from a slash-framed
// (leading and trailing '/') candidate list, keeping the first occurrence's
// order. The split-by-'/' trick produces an empty leading and trailing
// element which collapse back into the framing slashes on rejoin.
func RemoveDuplicatesBytes(candidatesBytes []byte) []byte {
	parts := bytes.Split(candidatesBytes, []byte{'/'})
	deduped := removeDuplicates(parts)
	result := bytes.Join(deduped, []byte{'/'})
	return append(result, '/')
}

func removeDuplicates(parts [][]byte) [][]byte {
	seen := make(map[string]struct{}, len(parts))
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		key := string(p)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Merge merges two trim-one-slash'd (no leading/trailing '/') candidate
// lists, preserving base's order and appending new candidates not already
// present. Equality and annotation precedence are defined over the
// annotation-stripped stem (everything before the first ';').
//
// Two implementation tiers, per spec §4.2: a fast path when neither side
// carries an annotation, and a slow path that strips annotations for
// comparison but still decides, per matched pair, whose annotation survives.
func Merge(baseTrimmed, newTrimmed []byte) []byte {
	if bytes.IndexByte(baseTrimmed, ';') >= 0 || bytes.IndexByte(newTrimmed, ';') >= 0 {
		return mergeAnnotated(baseTrimmed, newTrimmed)
	}
	return mergeFast(baseTrimmed, newTrimmed)
}

func mergeFast(baseTrimmed, newTrimmed []byte) []byte {
	newParts := bytes.Split(newTrimmed, []byte{'/'})
	added := make([]bool, len(newParts))
	for i := range added {
		added[i] = true
	}

	result := []byte{'/'}
	if len(baseTrimmed) > 0 {
		for _, baseUnit := range bytes.Split(baseTrimmed, []byte{'/'}) {
			result = append(result, baseUnit...)
			result = append(result, '/')
			for i, newUnit := range newParts {
				if added[i] && bytes.Equal(newUnit, baseUnit) {
					added[i] = false
					break
				}
			}
		}
	}
	for i, newUnit := range newParts {
		if added[i] {
			result = append(result, newUnit...)
			result = append(result, '/')
		}
	}
	return result
}

func stem(candidate []byte) []byte {
	if idx := bytes.IndexByte(candidate, ';'); idx >= 0 {
		return candidate[:idx]
	}
	return candidate
}

func mergeAnnotated(baseTrimmed, newTrimmed []byte) []byte {
	newParts := bytes.Split(newTrimmed, []byte{'/'})
	newStems := make([][]byte, len(newParts))
	added := make([]bool, len(newParts))
	for i, p := range newParts {
		newStems[i] = stem(p)
		added[i] = true
	}

	result := []byte{'/'}
	if len(baseTrimmed) > 0 {
		for _, baseUnit := range bytes.Split(baseTrimmed, []byte{'/'}) {
			baseStem := stem(baseUnit)
			matched := false
			for i, newUnit := range newParts {
				if !added[i] || !bytes.Equal(newStems[i], baseStem) {
					continue
				}
				added[i] = false
				matched = true
				// base's annotation wins; adopt new's only if base has
				// none and new has one.
				if bytes.IndexByte(baseUnit, ';') < 0 && bytes.IndexByte(newUnit, ';') >= 0 {
					result = append(result, newUnit...)
				} else {
					result = append(result, baseUnit...)
				}
				break
			}
			if !matched {
				result = append(result, baseUnit...)
			}
			result = append(result, '/')
		}
	}
	for i, newUnit := range newParts {
		if added[i] {
			result = append(result, newUnit...)
			result = append(result, '/')
		}
	}
	return result
}
