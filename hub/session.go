package hub

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/adchub/adchub/adc"
)

// Session is a real ADC client connection. It owns the socket, the
// handshake state machine, and a bounded outbound write queue so a slow
// reader cannot block the hub's broadcast loop.
type Session struct {
	hub  *Hub
	conn net.Conn
	w    *bufio.Writer

	sid   adc.SID
	nonce string

	mu       sync.RWMutex
	state    adc.State
	inf      adc.INF
	features adc.FeatureSet

	remoteHost string

	writeq    chan string
	closeOnce sync.Once
	closed    chan struct{}
}

// newSession allocates a session with a fresh SID and seats it in the
// roster in StateProtocol.
func newSession(h *Hub, conn net.Conn) (*Session, error) {
	sid, err := h.allocateSID()
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	s := &Session{
		hub:        h,
		conn:       conn,
		w:          bufio.NewWriter(conn),
		sid:        sid,
		state:      adc.StateProtocol,
		inf:        make(adc.INF),
		features:   adc.NewFeatureSet(),
		remoteHost: host,
		writeq:     make(chan string, h.writeQueueCap()),
		closed:     make(chan struct{}),
	}
	if err := h.register(s); err != nil {
		return nil, err
	}
	go s.writeLoop()
	return s, nil
}

// SID implements Peer.
func (s *Session) SID() adc.SID { return s.sid }

// State implements Peer.
func (s *Session) State() adc.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st adc.State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// BuildINF implements Peer: it returns the session's last received INF,
// with PD stripped. The SID itself is carried as the leading field of the
// BINF payload, not as an INF flag — see infPayload.
func (s *Session) BuildINF() adc.INF {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inf.WithoutPID()
}

// RemoteAddr implements Peer.
func (s *Session) RemoteAddr() string { return s.conn.RemoteAddr().String() }

// SendLine implements Peer. It never blocks the caller for long: if the
// session's write queue is full, the session is considered too slow and is
// dropped, per the bounded-queue back-pressure policy.
func (s *Session) SendLine(line string) {
	select {
	case s.writeq <- line:
	case <-s.closed:
	default:
		s.hub.Logf("session %s: write queue full, disconnecting", s.sid)
		s.Close()
	}
}

// Chat implements Peer for a real ADC session: it frames the message as a
// BMSG line and enqueues it like any other outbound line.
func (s *Session) Chat(sender adc.SID, message string) {
	s.SendLine("B" + adc.CmdMSG + " " + string(sender) + " " + adc.Escape(message))
}

func (s *Session) writeLoop() {
	for {
		select {
		case line := <-s.writeq:
			if _, err := s.w.WriteString(line); err != nil {
				s.Close()
				return
			}
			if err := s.w.WriteByte('\n'); err != nil {
				s.Close()
				return
			}
			if err := s.w.Flush(); err != nil {
				s.Close()
				return
			}
		case <-s.closed:
			return
		}
	}
}

// Close disconnects the session's transport and removes it from the
// roster. Safe to call more than once and from any goroutine. A session
// closed before reaching NORMAL is counted as a failed handshake.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.State() != adc.StateNormal {
			s.hub.metrics.handshakeFailed.Inc()
		}
		close(s.closed)
		s.hub.unregister(s.sid)
		_ = s.conn.Close()
	})
	return nil
}

// serve runs the session's read loop until the connection closes or a fatal
// protocol error occurs. It is meant to be run in its own goroutine by the
// listener's accept loop.
func (s *Session) serve() {
	defer s.Close()
	s.hub.metrics.connsOpen.Inc()
	s.hub.metrics.connsTotal.Inc()
	defer s.hub.metrics.connsOpen.Dec()

	_ = s.conn.SetReadDeadline(time.Time{})
	r := bufio.NewReaderSize(s.conn, 64*1024)
	for {
		raw, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line := strings.TrimRight(raw, "\r\n")
		if line == "" {
			continue
		}
		Dispatch(s, line)
	}
}
