// Package client is a minimal ADC client used by the hub's own
// integration tests: enough of the PROTOCOL/IDENTIFY/VERIFY/NORMAL
// handshake to seat a session and exchange chat, without any of a real
// client's file-sharing machinery.
package client

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/direct-connect/go-dc/tiger"

	"github.com/adchub/adchub/adc"
)

// Config describes the identity a test client presents during IDENTIFY.
type Config struct {
	Name     string
	Password string
}

// Client is a connected, handshaken ADC test client.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer

	SID      adc.SID
	Features adc.FeatureSet
}

// Dial connects to addr and runs the full handshake, leaving the
// connection in StateNormal.
func Dial(addr string, conf Config) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
	}
	if err := c.handshake(conf); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) send(line string) error {
	if _, err := c.w.WriteString(line); err != nil {
		return err
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return err
	}
	return c.w.Flush()
}

// ReadLine reads one LF-terminated line, without its trailing newline.
func (c *Client) ReadLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *Client) handshake(conf Config) error {
	own := adc.NewFeatureSet(adc.FeaBASE, adc.FeaTIGR, adc.FeaPING)
	if err := c.send("H" + adc.CmdSUP + " " + adc.JoinFeatures(own.Sorted())); err != nil {
		return err
	}

	line, err := c.ReadLine()
	if err != nil {
		return err
	}
	_, _, payload, err := adc.SplitLine(line)
	if err != nil {
		return fmt.Errorf("client: expected ISUP, got %q", line)
	}
	c.Features = adc.NewFeatureSet()
	for _, tok := range adc.ParseFeatureTokens(payload) {
		if tok.Add {
			c.Features.Add(tok.Feature)
		}
	}

	line, err = c.ReadLine()
	if err != nil {
		return err
	}
	_, cmd, payload, err := adc.SplitLine(line)
	if err != nil || cmd != adc.CmdSID {
		return fmt.Errorf("client: expected ISID, got %q", line)
	}
	c.SID = adc.SID(payload)

	// IINF CT32 UP<seconds>, the third handshake line; nothing in it is
	// needed here beyond consuming it before BINF is sent.
	if _, err := c.ReadLine(); err != nil {
		return err
	}

	pid, err := randPID()
	if err != nil {
		return err
	}
	cid := tigerCID(pid)
	inf := adc.INF{
		"ID": string(cid),
		"PD": string(pid),
		"NI": conf.Name,
	}
	if err := c.send("B" + adc.CmdINF + " " + string(c.SID) + " " + adc.JoinFlags(inf)); err != nil {
		return err
	}

	line, err = c.ReadLine()
	if err != nil {
		return err
	}
	_, cmd, payload, err = adc.SplitLine(line)
	if err != nil {
		return fmt.Errorf("client: malformed line after INF: %q", line)
	}
	if cmd == adc.CmdGPA {
		hash, err := adc.HashPassword(conf.Password, payload)
		if err != nil {
			return err
		}
		if err := c.send("H" + adc.CmdPAS + " " + hash); err != nil {
			return err
		}
		line, err = c.ReadLine()
		if err != nil {
			return err
		}
	}
	// line is now our own rebroadcast BINF; the hub is fully NORMAL from here.
	_ = line
	return nil
}

// SendChat broadcasts a BMSG chat message.
func (c *Client) SendChat(text string) error {
	return c.send("B" + adc.CmdMSG + " " + string(c.SID) + " " + adc.Escape(text))
}

// WriteRaw sends line verbatim, for tests that need to drive protocol
// edge cases the higher-level helpers don't cover.
func (c *Client) WriteRaw(line string) error { return c.send(line) }

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// SetReadDeadline exposes the underlying connection's read deadline, for
// tests that want to bound how long they wait for a particular line.
func (c *Client) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }

func randPID() (adc.PID, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return adc.PID(adc.B32Encode(buf)), nil
}

// tigerCID hashes pid the same way the hub's VerifyIdentity does, so test
// clients can present a self-consistent ID/PD pair.
func tigerCID(pid adc.PID) adc.CID {
	raw, err := adc.B32Decode(string(pid))
	if err != nil {
		return ""
	}
	h := tiger.HashBytes(raw)
	return adc.CID(adc.B32Encode(h[:]))
}
