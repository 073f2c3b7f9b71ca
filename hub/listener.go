package hub

import (
	"bufio"
	"errors"
	"log"
	"net"
	"strings"
)

// Serve accepts connections from ln until it is closed or an unrecoverable
// Accept error occurs, handing each one to h in its own goroutine. A
// temporary Accept error (e.g. a transient "too many open files") is
// logged and retried; anything else stops the loop.
func Serve(ln net.Listener, h *Hub) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Temporary() {
				log.Println("hub: transient accept error:", err)
				continue
			}
			return err
		}
		go handleConn(h, conn)
	}
}

// handleConn sniffs the first line of a freshly accepted connection to
// decide which protocol it speaks, then hands it to the matching server
// loop. ADC clients open with "HSUP ..."; everything else is offered to
// the IRC bridge, since an ADC client is the only protocol this hub speaks
// natively.
func handleConn(h *Hub, conn net.Conn) {
	br := bufio.NewReaderSize(conn, 4096)
	peeked, err := br.Peek(4)
	if err != nil {
		_ = conn.Close()
		return
	}
	pc := &peekedConn{Conn: conn, r: br}
	if strings.HasPrefix(string(peeked), "HSUP") {
		s, err := newSession(h, pc)
		if err != nil {
			h.Logf("hub: %s: %v", conn.RemoteAddr(), err)
			_ = pc.Close()
			return
		}
		s.serve()
		return
	}
	if enabled, _ := h.GetConfigBool(ConfigIRCEnabled); !enabled {
		_ = pc.Close()
		return
	}
	if err := h.ServeIRC(pc); err != nil {
		h.Logf("hub: irc: %s: %v", conn.RemoteAddr(), err)
	}
}

// peekedConn lets a net.Conn be read through a bufio.Reader that has
// already consumed (but not discarded) its first few bytes, so protocol
// sniffing doesn't lose data.
type peekedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *peekedConn) Read(p []byte) (int, error) { return c.r.Read(p) }
