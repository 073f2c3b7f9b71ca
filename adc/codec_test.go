package adc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"hello world",
		`back\slash`,
		"line\nbreak",
		"mixed \\ and\nand space",
		"no special chars here",
	}
	for _, s := range cases {
		got, err := Unescape(Escape(s))
		require.NoError(t, err)
		require.Equal(t, s, got)
	}
}

func TestUnescapeMalformed(t *testing.T) {
	_, err := Unescape(`bad\x`)
	require.ErrorIs(t, err, ErrMalformedEscape)

	_, err = Unescape(`trailing\`)
	require.ErrorIs(t, err, ErrMalformedEscape)
}

func TestBase32RoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("a"),
		[]byte("ab"),
		[]byte("abc"),
		[]byte("abcdefgh"),
		[]byte("a longer byte string that spans several base32 blocks"),
	}
	for _, x := range cases {
		enc := B32Encode(x)
		dec, err := B32Decode(enc)
		require.NoError(t, err)
		if len(x) == 0 {
			require.Empty(t, dec)
		} else {
			require.Equal(t, x, dec)
		}
	}
}

func TestB32DecodeRepairsPadding(t *testing.T) {
	// Standard Base32 of "hi" is "NBUQ===="; B32Decode must accept the
	// unpadded "NBUQ" form directly.
	dec, err := B32Decode("NBUQ")
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), dec)
}

func TestFlagDictJoinFlagsRoundTrip(t *testing.T) {
	m := INF{
		"ID": "ABCDEFGH",
		"NI": "some nick",
		"I4": "0.0.0.0",
		"CT": "32",
	}
	joined := JoinFlags(m)
	got, err := FlagDict(joined)
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestFlagDictDuplicateKeysTakeLast(t *testing.T) {
	got, err := FlagDict("NIfirst NIsecond")
	require.NoError(t, err)
	require.Equal(t, "second", got["NI"])
}

func TestSplitLine(t *testing.T) {
	prefix, cmd, payload, err := SplitLine("BINF AAAA NItest")
	require.NoError(t, err)
	require.Equal(t, PrefixBroadcast, prefix)
	require.Equal(t, "INF", cmd)
	require.Equal(t, "AAAA NItest", payload)

	_, _, _, err = SplitLine("BIN")
	require.ErrorIs(t, err, ErrMalformedLine)
}

func TestParseFeatureTokens(t *testing.T) {
	toks := ParseFeatureTokens("ADBASE ADTIGR RMPING")
	require.Equal(t, []FeatureToken{
		{Add: true, Feature: FeaBASE},
		{Add: true, Feature: FeaTIGR},
		{Add: false, Feature: FeaPING},
	}, toks)
}

func TestSplitSID(t *testing.T) {
	sid, rest := SplitSID("AAAA NItest IDfoo")
	require.Equal(t, SID("AAAA"), sid)
	require.Equal(t, "NItest IDfoo", rest)

	sid, rest = SplitSID("AAAA")
	require.Equal(t, SID("AAAA"), sid)
	require.Empty(t, rest)
}

func TestSIDValid(t *testing.T) {
	require.True(t, SID("AAAA").Valid())
	require.True(t, SID("2267").Valid())
	require.False(t, SID("aaaa").Valid())
	require.False(t, SID("AAA").Valid())
	require.False(t, SID("AAAA1").Valid())
}
