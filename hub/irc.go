package hub

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-irc/irc"

	"github.com/adchub/adchub/adc"
)

// ircHubChan is the single channel every IRC-bridged client is joined to;
// it mirrors the ADC room as a whole, so "#hub" traffic and ADC BMSG chat
// are the same conversation from two protocols.
const ircHubChan = "#hub"

// ircPeer bridges one IRC client into the hub's roster, implementing Peer
// so it is indistinguishable from a real ADC session to Hub.Broadcast,
// Hub.Direct and Hub.Chat.
type ircPeer struct {
	hub  *Hub
	conn net.Conn
	c    *irc.Conn

	hostPref *irc.Prefix
	ownPref  *irc.Prefix

	sid adc.SID

	mu   sync.RWMutex
	nick string

	writeMu sync.Mutex
}

// ServeIRC accepts one IRC connection, performs the NICK/USER handshake,
// bridges it into the roster, and runs its read loop until disconnect.
func (h *Hub) ServeIRC(conn net.Conn) error {
	h.Logf("%s: using IRC", conn.RemoteAddr())
	peer, err := h.ircHandshake(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer peer.Close()

	for {
		m, err := peer.c.ReadMessage()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		switch m.Command {
		case "PING":
			_ = peer.c.WriteMessage(&irc.Message{Command: "PONG", Params: m.Params})
		case "PRIVMSG":
			if len(m.Params) != 2 {
				continue
			}
			dst, msg := m.Params[0], m.Params[1]
			if dst == ircHubChan {
				h.Chat(peer.sid, msg)
			} else if target := h.byNick(dst); target != "" {
				h.Direct(target, adc.CmdMSG, string(peer.sid)+" "+string(target)+" "+adc.Escape(msg))
			}
		case "QUIT":
			return nil
		default:
			h.Logf("%s: irc: %s", peer.RemoteAddr(), m.Command)
		}
	}
}

func (h *Hub) byNick(nick string) adc.SID {
	for _, p := range h.Peers() {
		if p.BuildINF()["NI"] == nick {
			return p.SID()
		}
	}
	return ""
}

func (h *Hub) ircHandshake(conn net.Conn) (*ircPeer, error) {
	c := irc.NewConn(conn)
	host, _, _ := net.SplitHostPort(conn.LocalAddr().String())
	hostPref := &irc.Prefix{Name: host}

	var nick, user string
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		m, err := c.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("hub: irc: expected NICK: %w", err)
		}
		switch m.Command {
		case "NICK":
			if len(m.Params) != 1 {
				return nil, fmt.Errorf("hub: irc: malformed NICK")
			}
			nick = m.Params[0]
		case "USER":
			if len(m.Params) != 4 {
				return nil, fmt.Errorf("hub: irc: malformed USER")
			}
			user = m.Params[0]
		}
		if nick != "" && user != "" {
			break
		}
	}

	if !h.reserveName(nick, adc.SID("")) {
		_ = c.WriteMessage(&irc.Message{
			Prefix:  hostPref,
			Command: "433",
			Params:  []string{"*", nick, "nickname in use"},
		})
		return nil, fmt.Errorf("hub: irc: nickname %q in use", nick)
	}

	sid, err := h.allocateSID()
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.names[nick] = sid // reassign reservation to the real SID now that we have one
	h.mu.Unlock()

	_ = conn.SetReadDeadline(time.Time{})
	peer := &ircPeer{
		hub:      h,
		conn:     conn,
		c:        c,
		hostPref: hostPref,
		ownPref:  &irc.Prefix{Name: nick, User: user, Host: host},
		sid:      sid,
		nick:     nick,
	}
	if err := h.register(peer); err != nil {
		return nil, err
	}
	if err := h.ircWelcome(peer); err != nil {
		return nil, err
	}
	h.Broadcast(adc.CmdINF, infPayload(peer))
	return peer, nil
}

func (h *Hub) ircWelcome(peer *ircPeer) error {
	msgs := []*irc.Message{
		{Prefix: peer.hostPref, Command: "001", Params: []string{peer.nick,
			fmt.Sprintf("Welcome to %s, %s", h.getName(), peer.nick)}},
		{Prefix: peer.hostPref, Command: "002", Params: []string{peer.nick,
			fmt.Sprintf("Your host is %s, bridging an ADC hub", h.getName())}},
		{Prefix: peer.hostPref, Command: "003", Params: []string{peer.nick,
			"This server was created " + h.started.Format("Mon Jan 2 2006")}},
		{Prefix: peer.hostPref, Command: "JOIN", Params: []string{ircHubChan}},
	}
	for _, m := range msgs {
		if err := peer.c.WriteMessage(m); err != nil {
			return err
		}
	}
	return nil
}

// SID implements Peer.
func (p *ircPeer) SID() adc.SID { return p.sid }

// State implements Peer: once bridged, an IRC peer is always NORMAL.
func (p *ircPeer) State() adc.State { return adc.StateNormal }

// BuildINF implements Peer, synthesizing a minimal ADC identity for the
// bridged IRC user so ADC-side peers see it in their roster views. The SID
// itself travels as the leading field of the BINF payload, not as a flag.
func (p *ircPeer) BuildINF() adc.INF {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return adc.INF{
		"NI": p.nick,
		"DE": "IRC bridge",
	}
}

// SendLine implements Peer by passing any MSG line (broadcast or direct)
// on as a PRIVMSG to the hub channel, with the raw ADC line as its text;
// every other protocol line has no IRC equivalent and is dropped. Hub chat
// reaches IRC peers through Chat rather than through here.
func (p *ircPeer) SendLine(line string) {
	if len(line) < 5 || line[1:4] != adc.CmdMSG {
		return
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.c.WriteMessage(&irc.Message{
		Prefix:  p.ownPref,
		Command: "PRIVMSG",
		Params:  []string{ircHubChan, line},
	})
}

// Chat implements Peer.
func (p *ircPeer) Chat(sender adc.SID, message string) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.c.WriteMessage(&irc.Message{
		Prefix:  &irc.Prefix{Name: string(sender)},
		Command: "PRIVMSG",
		Params:  []string{ircHubChan, message},
	})
}

// RemoteAddr implements Peer.
func (p *ircPeer) RemoteAddr() string { return p.conn.RemoteAddr().String() }

// Close disconnects the IRC peer and removes it from the roster.
func (p *ircPeer) Close() error {
	p.hub.unregister(p.sid)
	return p.conn.Close()
}
