package hub

import "github.com/adchub/adchub/adc"

// Peer is the capability set shared by every kind of hub participant: a real
// ADC session, the built-in SERV pseudo-client, and an IRC-bridged user.
// The Hub only ever talks to peers through this interface, so its roster,
// broadcast and chat logic is oblivious to which concrete kind it holds.
type Peer interface {
	// SID is the peer's session identifier. Constant for the life of the peer.
	SID() adc.SID
	// State is the peer's position in the handshake; only StateNormal peers
	// receive broadcasts and chat.
	State() adc.State
	// BuildINF returns a fresh snapshot of the peer's INF map, with PD
	// always stripped.
	BuildINF() adc.INF
	// SendLine delivers one already-formatted protocol line to the peer.
	// Implementations must not block the caller indefinitely.
	SendLine(line string)
	// Chat delivers a chat message as if spoken by sender.
	Chat(sender adc.SID, message string)
	// RemoteAddr is a human-readable description of the peer's transport
	// address, used for logging and for the I4 INF fallback.
	RemoteAddr() string
}

// infPayload renders a BINF/IINF payload for p: the peer's own SID as the
// leading field, followed by its flag fields. The SID is wire data, not an
// INF flag, so it is never folded into the map BuildINF returns.
func infPayload(p Peer) string {
	return string(p.SID()) + " " + adc.JoinFlags(p.BuildINF())
}

// Logger is the external logging collaborator. The hub logs connection,
// handshake and routing events through it; individual sent/received
// protocol lines are not logged.
type Logger interface {
	Logf(format string, args ...interface{})
}

// PasswordStore resolves the plaintext password expected from a session,
// given that session's current INF. The trivial implementation used by
// default returns a single constant for every session.
type PasswordStore interface {
	PasswordFor(inf adc.INF) (string, bool)
}

// ConstPasswordStore is the trivial PasswordStore: every session is
// expected to answer with the same constant password.
type ConstPasswordStore string

// PasswordFor implements PasswordStore.
func (c ConstPasswordStore) PasswordFor(adc.INF) (string, bool) {
	return string(c), true
}
