package hub

import (
	"fmt"
	"strings"
	"sync"

	"github.com/adchub/adchub/adc"
)

// servPeer is the hub's built-in services pseudo-client, seated under the
// reserved SID adc.SERV. It never has a real transport; its BuildINF is
// synthesized from the hub's configuration and its Chat method is where
// "!command" chat commands are recognized and answered.
type servPeer struct {
	hub *Hub

	mu  sync.RWMutex
	inf adc.INF
}

func newServPeer(h *Hub) *servPeer {
	s := &servPeer{hub: h, inf: make(adc.INF)}
	h.RegisterCommand("hi", s.cmdHi)
	h.RegisterCommand("clients", s.cmdClients)
	h.RegisterCommand("motd", s.cmdMOTD)
	return s
}

// SID implements Peer.
func (s *servPeer) SID() adc.SID { return adc.SERV }

// State implements Peer: SERV is always NORMAL.
func (s *servPeer) State() adc.State { return adc.StateNormal }

// servBogusID is a fixed, never-verified CID for the SERV pseudo-client: it
// carries no PD, so VerifyIdentity never checks it against anything.
const servBogusID = "SERVSERVSERVSERVSERVSERVSERVSERVSERVSE"

// BuildINF implements Peer, synthesizing a constant identity for the
// services pseudo-client rather than from any handshake.
func (s *servPeer) BuildINF() adc.INF {
	return adc.INF{
		"NI": "Services",
		"CT": "17",
		"ID": servBogusID,
		"DE": s.hub.getDesc(),
	}
}

// SendLine implements Peer. SERV has no transport to write to; inbound
// lines addressed to it are not meaningful since it never issues protocol
// commands of its own, only chat.
func (s *servPeer) SendLine(string) {}

// RemoteAddr implements Peer.
func (s *servPeer) RemoteAddr() string { return "internal" }

// Chat implements Peer. It recognizes "!command args" messages and answers
// with a SERV chat message broadcast through Hub.Chat, deferred to the
// hub's worker so the reply
// broadcast never happens re-entrantly from inside the caller's own
// Hub.Chat fan-out.
func (s *servPeer) Chat(sender adc.SID, message string) {
	if sender == adc.SERV {
		return
	}
	trimmed := strings.TrimSpace(message)
	if !strings.HasPrefix(trimmed, "!") {
		return
	}
	name, args := splitCommand(trimmed[1:])
	fn, ok := s.hub.lookupCommand(name)
	if !ok {
		return
	}
	s.hub.defer_(func() {
		reply, ok := fn(sender, args)
		if !ok || reply == "" {
			return
		}
		s.hub.Chat(adc.SERV, reply)
	})
}

func splitCommand(s string) (name, args string) {
	parts := strings.SplitN(s, " ", 2)
	name = strings.ToLower(parts[0])
	if len(parts) == 2 {
		args = parts[1]
	}
	return name, args
}

func (s *servPeer) cmdHi(_ adc.SID, _ string) (string, bool) {
	return "Hey!", true
}

func (s *servPeer) cmdMOTD(_ adc.SID, _ string) (string, bool) {
	return s.hub.getMOTD(), true
}

func (s *servPeer) cmdClients(_ adc.SID, _ string) (string, bool) {
	peers := s.hub.Peers()
	names := make([]string, 0, len(peers))
	for _, p := range peers {
		inf := p.BuildINF()
		if ni := inf["NI"]; ni != "" {
			names = append(names, ni)
		}
	}
	return fmt.Sprintf("%d online: %s", len(names), strings.Join(names, ", ")), true
}
