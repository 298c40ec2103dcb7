package modelconfig

import "bytes"

// nonFinite are the numeric tokens some checkpoints write into config.json
// that encoding/json rejects. Longer tokens come first so -Infinity is not
// matched as Infinity.
var nonFinite = [][]byte{[]byte("-Infinity"), []byte("Infinity"), []byte("NaN")}

// sanitizeNonFiniteJSON replaces bare non-finite numeric tokens with 0.
// Tokens inside strings and tokens that are part of a longer identifier are
// left alone.
func sanitizeNonFiniteJSON(in []byte) []byte {
	if !bytes.Contains(in, []byte("Infinity")) && !bytes.Contains(in, []byte("NaN")) {
		return in
	}

	out := make([]byte, 0, len(in))
	var inString, escaped bool

outer:
	for i := 0; i < len(in); {
		c := in[i]
		switch {
		case inString:
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
		case c == '"':
			inString = true
		default:
			for _, tok := range nonFinite {
				if isToken(in, i, tok) {
					out = append(out, '0')
					i += len(tok)
					continue outer
				}
			}
		}

		out = append(out, c)
		i++
	}

	return out
}

func isToken(in []byte, at int, tok []byte) bool {
	end := at + len(tok)
	if end > len(in) || !bytes.Equal(in[at:end], tok) {
		return false
	}

	if at > 0 && !bytes.ContainsRune([]byte(" \t\r\n:,["), rune(in[at-1])) {
		return false
	}

	return end == len(in) || bytes.ContainsRune([]byte(" \t\r\n,]}"), rune(in[end]))
}
