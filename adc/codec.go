package adc

import (
	"encoding/base32"
	"errors"
	"strings"
)

// ErrMalformedLine is returned by SplitLine when a line is too short to
// contain a prefix, command and separator.
var ErrMalformedLine = errors.New("adc: malformed line")

// ErrMalformedEscape is returned by Unescape when a backslash is followed by
// a character that isn't one of the three recognised escapes.
var ErrMalformedEscape = errors.New("adc: malformed escape sequence")

// SplitLine breaks a decoded line (without its trailing LF) into its
// addressing prefix, 3-letter command and payload. It fails when the line is
// shorter than 5 bytes (prefix + command + separator).
func SplitLine(line string) (prefix Prefix, cmd string, payload string, err error) {
	if len(line) < 5 {
		return 0, "", "", ErrMalformedLine
	}
	return Prefix(line[0]), line[1:4], line[5:], nil
}

// Escape replaces backslash, embedded newline and space with their ADC
// escape sequences, in that order.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case ' ':
			b.WriteString(`\s`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Unescape reverses Escape. It scans left to right; a backslash must be
// followed by one of s, n or \\, otherwise the escape is malformed.
func Unescape(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			return "", ErrMalformedEscape
		}
		switch s[i] {
		case 's':
			b.WriteByte(' ')
		case 'n':
			b.WriteByte('\n')
		case '\\':
			b.WriteByte('\\')
		default:
			return "", ErrMalformedEscape
		}
	}
	return b.String(), nil
}

var b32Encoding = base32.StdEncoding

// B32Decode tolerates missing padding: it right-pads the input with '='
// up to the next multiple of 8 before standard Base32 decoding.
func B32Decode(s string) ([]byte, error) {
	if rem := len(s) % 8; rem != 0 {
		s += strings.Repeat("=", 8-rem)
	}
	return b32Encoding.DecodeString(s)
}

// B32Encode encodes bytes as standard Base32 and strips trailing padding.
func B32Encode(b []byte) string {
	s := b32Encoding.EncodeToString(b)
	return strings.TrimRight(s, "=")
}

// SplitSID splits a B/D/E-addressed payload into its leading sender-SID
// field and the remaining tail, per the wire convention that such payloads
// begin with the sender's own SID (D/E payloads begin with sender then
// target). If payload has no space, the whole thing is taken as the SID and
// the tail is empty.
func SplitSID(payload string) (sid SID, rest string) {
	i := strings.IndexByte(payload, ' ')
	if i < 0 {
		return SID(payload), ""
	}
	return SID(payload[:i]), payload[i+1:]
}

// FlagDict splits a space-separated payload into a flag map: each token's
// first two characters are the key, and the (unescaped) remainder is the
// value. Duplicate keys take the last occurrence.
func FlagDict(payload string) (INF, error) {
	m := make(INF)
	if payload == "" {
		return m, nil
	}
	for _, tok := range strings.Split(payload, " ") {
		if len(tok) < 2 {
			continue
		}
		key := tok[:2]
		val, err := Unescape(tok[2:])
		if err != nil {
			return nil, err
		}
		m[key] = val
	}
	return m, nil
}

// JoinFlags renders a flag map back into KEYvalue tokens, each value
// escaped, joined by single spaces. Tokens come out in orderedKeys' stable
// order, so output is deterministic (useful for tests and logs), though the
// protocol does not require it.
func JoinFlags(m INF) string {
	keys := orderedKeys(m)
	toks := make([]string, 0, len(keys))
	for _, k := range keys {
		toks = append(toks, k+Escape(m[k]))
	}
	return strings.Join(toks, " ")
}

// orderedKeys returns m's keys with a few well-known INF fields first
// (matching the order the hub conventionally emits them in), the rest
// sorted for determinism.
func orderedKeys(m INF) []string {
	var preferred = [...]string{"ID", "NI", "I4", "CT", "UP"}
	seen := make(map[string]bool, len(m))
	out := make([]string, 0, len(m))
	for _, k := range preferred {
		if _, ok := m[k]; ok {
			out = append(out, k)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(m))
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	for i := 1; i < len(rest); i++ {
		for j := i; j > 0 && rest[j] < rest[j-1]; j-- {
			rest[j], rest[j-1] = rest[j-1], rest[j]
		}
	}
	return append(out, rest...)
}

// ParseFeatureTokens parses the space-separated AD/RM feature tokens carried
// by HSUP/BSUP payloads (e.g. "ADBASE ADTIGR RMPING") and reports them as a
// list of (add, feature) pairs in order, letting the caller fold them onto
// an existing FeatureSet.
func ParseFeatureTokens(payload string) []FeatureToken {
	if payload == "" {
		return nil
	}
	fields := strings.Split(payload, " ")
	out := make([]FeatureToken, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		add := f[:2] == "AD"
		out = append(out, FeatureToken{Add: add, Feature: Feature(f[2:])})
	}
	return out
}

// FeatureToken is one AD<feature> or RM<feature> token.
type FeatureToken struct {
	Add     bool
	Feature Feature
}

// JoinFeatures renders a feature list as a space-separated "ADxxxx ADyyyy"
// payload, in the order given.
func JoinFeatures(fs []Feature) string {
	toks := make([]string, len(fs))
	for i, f := range fs {
		toks[i] = "AD" + string(f)
	}
	return strings.Join(toks, " ")
}
