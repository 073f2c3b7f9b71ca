package hub

import (
	"github.com/blang/semver"
)

// ProtocolVersion is the ADC protocol revision this hub implements.
var ProtocolVersion = semver.MustParse("1.0.0")

// MinClientVersion is the oldest client-reported version (VE field of INF)
// that outdated treats as current. It is advisory only: the handshake does
// not consult it and no warning STA is sent.
var MinClientVersion = semver.MustParse("1.0.0")

// parseClientVersion accepts the several loose forms real clients send in
// the VE field (e.g. "1.0", "1.0.0", "v1.0.0") and falls back to the
// minimum supported version when it cannot be parsed at all, since VE is
// informational and must never block a handshake.
func parseClientVersion(ve string) semver.Version {
	if ve == "" {
		return MinClientVersion
	}
	s := ve
	if s[0] == 'v' || s[0] == 'V' {
		s = s[1:]
	}
	for countByte(s, '.') < 2 {
		s += ".0"
	}
	v, err := semver.Parse(s)
	if err != nil {
		return MinClientVersion
	}
	return v
}

func countByte(s string, b byte) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			n++
		}
	}
	return n
}

// outdated reports whether a client's advertised version is older than
// MinClientVersion. Nothing in the hub calls it, so it never gates the
// handshake.
func outdated(ve string) bool {
	return parseClientVersion(ve).LT(MinClientVersion)
}
