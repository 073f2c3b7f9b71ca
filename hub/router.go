package hub

import (
	"strconv"
	"strings"

	"github.com/adchub/adchub/adc"
)

// Dispatch parses one raw protocol line from s and routes it to the
// matching handler, keyed purely by the 3-letter command name — mirroring
// the original hub's getattr(self, "handle_%s" % what) dispatch. SUP/INF/PAS
// are state-machine commands that answer status 44 "Invalid state" when
// received outside the state that allows them; STA/MSG/SCH/CTM/RCM (and
// anything else, via the fallback below) are silently dropped by
// requireNormal outside NORMAL instead, matching the original hub's
// behavior for ordinary routed traffic.
func Dispatch(s *Session, line string) {
	prefix, cmd, payload, err := adc.SplitLine(line)
	if err != nil {
		return
	}

	switch cmd {
	case adc.CmdSUP:
		handleSUP(s, payload)
	case adc.CmdINF:
		handleINF(s, payload)
	case adc.CmdPAS:
		handlePAS(s, payload)
	case adc.CmdSTA:
		requireNormal(s, func() { handleSTA(s, prefix, payload) })
	case adc.CmdMSG:
		requireNormal(s, func() { handleMSG(s, prefix, payload) })
	case adc.CmdSCH:
		requireNormal(s, func() { handleSCH(s, prefix, payload) })
	case adc.CmdCTM:
		requireNormal(s, func() { handleCTM(s, prefix, payload) })
	case adc.CmdRCM:
		requireNormal(s, func() { handleRCM(s, prefix, payload) })
	case adc.CmdQUI:
		handleQUI(s, payload)
	default:
		// Any other B/D/E command the hub core does not specifically
		// recognize is still forwarded verbatim per its addressing prefix —
		// the hub never needs to understand an extension command's payload
		// to relay it.
		requireNormal(s, func() { route(s, prefix, cmd, payload) })
	}
}

// requireNormal runs fn only if s has completed the handshake. A broadcast
// or direct message from a session that is not yet NORMAL is silently
// discarded, matching the original hub's behavior for every command except
// SUP/INF/PAS, which do their own state gating inside their handlers.
func requireNormal(s *Session, fn func()) {
	if s.State() != adc.StateNormal {
		return
	}
	fn()
}

// hubFeatureOrder is the hub's own advertised feature list for ISUP, in the
// fixed order the wire protocol requires: TIGR first.
var hubFeatureOrder = []adc.Feature{adc.FeaTIGR, adc.FeaBASE, adc.FeaBZIP, adc.FeaPING}

// handleSUP answers the client's feature announcement. It only acts in
// StateProtocol. In StateNormal a re-sent SUP is accepted and ignored, since
// mid-session feature renegotiation is not modeled; in IDENTIFY or VERIFY it
// answers status 44 without touching the session.
func handleSUP(s *Session, payload string) {
	if s.State() == adc.StateNormal {
		return
	}
	if s.State() != adc.StateProtocol {
		s.sendStatusFlag(adc.StatusInvalidState, "FCHSUP", "invalid state for HSUP")
		return
	}
	for _, tok := range adc.ParseFeatureTokens(payload) {
		if tok.Add {
			s.features.Add(tok.Feature)
		} else {
			s.features.Remove(tok.Feature)
		}
	}
	if !s.features.Has(adc.FeaBASE) {
		s.sendStatusFlag(adc.StatusMissingFeature, "FCBASE", "BASE feature required")
		return
	}
	if !s.features.Has(adc.FeaTIGR) {
		s.sendStatusFlag(adc.StatusMissingFeature, "FCTIGR", "TIGR feature required")
		return
	}

	s.SendLine("I" + adc.CmdSUP + " " + adc.JoinFeatures(hubFeatureOrder))
	s.SendLine("I" + adc.CmdSID + " " + string(s.sid))
	s.SendLine("I" + adc.CmdINF + " CT32 UP" + strconv.FormatInt(int64(s.hub.Uptime().Seconds()), 10))
	s.setState(adc.StateIdentify)
}

// handleINF processes the client's identity broadcast, sent once in
// StateIdentify. The payload begins with the sender's own SID followed by
// its flag fields; the hub trusts the SID it already allocated for s over
// whatever the client echoes back, so the leading field is split off and
// discarded. It verifies the PID/CID pair (if both were sent), then either
// challenges for a password or admits the session directly.
func handleINF(s *Session, payload string) {
	if s.State() != adc.StateIdentify {
		s.sendStatusFlag(adc.StatusInvalidState, "FCBINF", "invalid state for BINF")
		return
	}
	_, flags := adc.SplitSID(payload)
	inf, err := adc.FlagDict(flags)
	if err != nil {
		s.sendStatus(adc.StatusPIDMismatch, "malformed INF")
		return
	}
	if err := adc.VerifyIdentity(inf); err != nil {
		s.sendStatus(adc.StatusPIDMismatch, "PID does not match CID")
		return
	}
	if v, ok := inf["I4"]; !ok || v == "0.0.0.0" {
		inf["I4"] = s.remoteHost
	}

	s.mu.Lock()
	s.inf = inf
	s.mu.Unlock()

	if name, ok := inf["NI"]; ok && name != "" {
		if !s.hub.reserveName(name, s.sid) {
			s.sendStatus(adc.StatusInvalidState, "nickname taken")
			s.Close()
			return
		}
	}

	if s.hub.bypassVerify(s.remoteHost) {
		enter(s)
		return
	}

	nonce, err := adc.NewNonce()
	if err != nil {
		s.Close()
		return
	}
	s.nonce = nonce
	s.setState(adc.StateVerify)
	s.SendLine("I" + adc.CmdGPA + " " + nonce)
}

// handlePAS checks the client's password-hash response against the
// expected hash for the issued nonce. The wrong-state flag is "FCIPAS"
// rather than "FCHPAS" — a quirk inherited unchanged from the reference hub
// this protocol was modeled on. A bad password leaves the session in
// VERIFY so the client may retry.
func handlePAS(s *Session, payload string) {
	if s.State() != adc.StateVerify {
		s.sendStatusFlag(adc.StatusInvalidState, "FCIPAS", "invalid state for PAS")
		return
	}
	expected, err := adc.HashPassword(s.hub.passwordFor(s.BuildINF()), s.nonce)
	if err != nil || payload != expected {
		s.sendStatus(adc.StatusIncorrectPassword, "incorrect password")
		return
	}
	enter(s)
}

// enter admits s to the NORMAL roster: its own BINF is broadcast first
// (now that it will see itself as NORMAL), then every other currently
// NORMAL peer's BINF is sent directly so the new session can build its
// initial view of the room without waiting for further traffic.
func enter(s *Session) {
	s.setState(adc.StateNormal)
	s.hub.Broadcast(adc.CmdINF, infPayload(s))
	for _, p := range s.hub.Peers() {
		if p.SID() == s.sid {
			continue
		}
		s.SendLine("B" + adc.CmdINF + " " + infPayload(p))
	}
	s.hub.Logf("session %s (%s) entered NORMAL from %s", s.sid, s.inf["NI"], s.remoteHost)
}

// handleSTA re-broadcasts or forwards a status message verbatim; the hub
// does not interpret client-originated STA beyond routing it.
func handleSTA(s *Session, prefix adc.Prefix, payload string) {
	route(s, prefix, adc.CmdSTA, payload)
}

// handleMSG routes a chat message. A B-prefixed MSG goes through Hub.Chat
// so SERV and any IRC bridge observe it; a D-prefixed MSG (private message)
// is only ever directed, never broadcast.
func handleMSG(s *Session, prefix adc.Prefix, payload string) {
	if prefix == adc.PrefixBroadcast {
		s.hub.Chat(s.sid, firstMSGWord(payload))
		return
	}
	route(s, prefix, adc.CmdMSG, payload)
}

// firstMSGWord extracts the message text out of a BMSG payload, which is
// "<sender-sid> <escaped text...>", and unescapes it (returning it as-is if
// the escaping is malformed); the hub only needs the text to hand to
// Hub.Chat, which re-frames it per recipient.
func firstMSGWord(payload string) string {
	parts := strings.SplitN(payload, " ", 2)
	if len(parts) < 2 {
		return ""
	}
	text, err := adc.Unescape(parts[1])
	if err != nil {
		return parts[1]
	}
	return text
}

// handleSCH, handleCTM and handleRCM are pure routers: the hub never
// interprets search, connect-to-me or reverse-connect payloads, it only
// moves them between sessions per their addressing prefix.
func handleSCH(s *Session, prefix adc.Prefix, payload string) { route(s, prefix, adc.CmdSCH, payload) }
func handleCTM(s *Session, prefix adc.Prefix, payload string) { route(s, prefix, adc.CmdCTM, payload) }
func handleRCM(s *Session, prefix adc.Prefix, payload string) { route(s, prefix, adc.CmdRCM, payload) }

// route fans a line out according to its addressing prefix: B broadcasts
// the payload unchanged; D and E (echo) forward it unchanged to the target
// SID named by the payload's second field (the first is the sender's own
// SID), and any other prefix is ignored. A D/E message addressed to a SID
// not in the roster gets a synthetic IQUI back, a DC++-compatibility shim
// carried over from the source unchanged.
func route(s *Session, prefix adc.Prefix, cmd, payload string) {
	switch prefix {
	case adc.PrefixBroadcast:
		s.hub.Broadcast(cmd, payload)
	case adc.PrefixDirect, adc.PrefixEcho:
		target := targetSID(payload)
		if target == "" {
			return
		}
		if !s.hub.Direct(target, cmd, payload) {
			s.SendLine("I" + adc.CmdQUI + " " + string(target) + " DI1")
			return
		}
		if prefix == adc.PrefixEcho {
			s.SendLine("D" + cmd + " " + payload)
		}
	}
}

// targetSID reads the second whitespace-separated field of a D/E-addressed
// payload, which by convention is "<sender-sid> <target-sid> ...".
func targetSID(payload string) adc.SID {
	fields := strings.SplitN(payload, " ", 3)
	if len(fields) < 2 || len(fields[1]) != 4 {
		return ""
	}
	return adc.SID(fields[1])
}

// handleQUI closes the session. The original protocol's client-initiated
// QUI carries no payload the hub needs to act on beyond disconnecting; if a
// numeric disconnect code is present it is only logged.
func handleQUI(s *Session, payload string) {
	if code, err := strconv.Atoi(strings.TrimSpace(payload)); err == nil {
		s.hub.Logf("session %s quit, code %d", s.sid, code)
	}
	s.Close()
}

// sendStatus sends an ISTA status line to s, e.g. "ISTA 123 message".
func (s *Session) sendStatus(code int, reason string) {
	s.SendLine("I" + adc.CmdSTA + " " + strconv.Itoa(code) + " " + adc.Escape(reason))
}

// sendStatusFlag sends an ISTA status line carrying a named flag ahead of
// the escaped reason text, e.g. "ISTA 44 FCHSUP invalid state" — the form
// status codes 44 and 45 require.
func (s *Session) sendStatusFlag(code int, flag, reason string) {
	s.SendLine("I" + adc.CmdSTA + " " + strconv.Itoa(code) + " " + flag + " " + adc.Escape(reason))
}

// passwordFor resolves the expected plaintext password for inf through the
// hub's configured PasswordStore, falling back to the empty string (which
// can never hash-match a nonempty response) if the store declines.
func (h *Hub) passwordFor(inf adc.INF) string {
	pw, ok := h.passwords.PasswordFor(inf)
	if !ok {
		return ""
	}
	return pw
}
