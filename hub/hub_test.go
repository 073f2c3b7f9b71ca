package hub

import (
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adchub/adchub/adc"
	"github.com/adchub/adchub/adc/client"
)

func startTestHub(t *testing.T) (addr string, h *Hub, stop func()) {
	t.Helper()
	h = NewHub()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = Serve(ln, h) }()
	return ln.Addr().String(), h, func() {
		_ = ln.Close()
		h.Close()
	}
}

func dialNormal(t *testing.T, addr, name string) *client.Client {
	t.Helper()
	c, err := client.Dial(addr, client.Config{Name: name, Password: "madcap"})
	require.NoError(t, err)
	return c
}

// readUntil reads lines from c, discarding ones that don't match pred,
// until a matching line is found or timeout elapses. The hub's join fan-out
// (SERV's own BINF, other peers' BINF) can interleave extra lines ahead of
// whatever a test is waiting for, so tests look for a predicate rather than
// asserting on a fixed line position.
func readUntil(t *testing.T, c *client.Client, timeout time.Duration, pred func(string) bool) string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	require.NoError(t, c.SetReadDeadline(deadline))
	defer c.SetReadDeadline(time.Time{})
	for time.Now().Before(deadline) {
		line, err := c.ReadLine()
		require.NoError(t, err)
		if pred(line) {
			return line
		}
	}
	t.Fatal("readUntil: timed out waiting for matching line")
	return ""
}

func TestMinimalHandshakeReachesNormal(t *testing.T) {
	addr, _, stop := startTestHub(t)
	defer stop()

	c := dialNormal(t, addr, "alice")
	defer c.Close()

	require.True(t, c.SID.Valid())
	require.True(t, c.Features.Has(adc.FeaBASE))
}

func TestChatIsSeenBySenderAndOtherPeer(t *testing.T) {
	addr, _, stop := startTestHub(t)
	defer stop()

	a := dialNormal(t, addr, "alice")
	defer a.Close()
	b := dialNormal(t, addr, "bob")
	defer b.Close()

	require.NoError(t, a.SendChat("Hello world"))

	isChat := func(line string) bool {
		return strings.HasPrefix(line, "B"+adc.CmdMSG) && strings.Contains(line, `Hello\sworld`)
	}
	readUntil(t, a, 2*time.Second, isChat)
	readUntil(t, b, 2*time.Second, isChat)
}

func TestServCommandGetsDeferredReply(t *testing.T) {
	addr, _, stop := startTestHub(t)
	defer stop()

	a := dialNormal(t, addr, "alice")
	defer a.Close()

	require.NoError(t, a.SendChat("!hi"))

	line := readUntil(t, a, 2*time.Second, func(line string) bool {
		return strings.HasPrefix(line, "B"+adc.CmdMSG+" "+string(adc.SERV))
	})
	require.Contains(t, line, "Hey!")
}

func TestDirectToMissingSIDYieldsSyntheticQUI(t *testing.T) {
	addr, _, stop := startTestHub(t)
	defer stop()

	a := dialNormal(t, addr, "alice")
	defer a.Close()

	sid := a.SID
	line := "D" + adc.CmdCTM + " " + string(sid) + " ZZZZ TCP4 1.2.3.4 1234"
	require.NoError(t, a.WriteRaw(line))

	resp := readUntil(t, a, 2*time.Second, func(line string) bool {
		return line == "I"+adc.CmdQUI+" ZZZZ DI1"
	})
	require.Equal(t, "I"+adc.CmdQUI+" ZZZZ DI1", resp)
}

func TestSIDsAreUniqueAcrossManyClients(t *testing.T) {
	addr, h, stop := startTestHub(t)
	defer stop()

	seen := map[adc.SID]bool{adc.SERV: true}
	for i := 0; i < 20; i++ {
		c := dialNormal(t, addr, "user"+strconv.Itoa(i))
		defer c.Close()
		require.False(t, seen[c.SID])
		seen[c.SID] = true
	}
	require.Len(t, h.Peers(), 21)
}
