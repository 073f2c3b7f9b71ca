// Package hub implements the ADC hub core: the roster of connected
// sessions, SID allocation, and the broadcast/direct/chat fan-out that the
// line router dispatches into.
package hub

import (
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/adchub/adchub/adc"
)

// Hub is the process-wide registry of connected peers. The roster is the
// only shared mutable structure; it is guarded by a single RWMutex, as
// permitted for multi-threaded runtimes. Broadcast fan-out takes a snapshot
// of the recipient list under the read lock and writes to each peer outside
// it.
type Hub struct {
	conf *config

	mu       sync.RWMutex
	sessions map[adc.SID]Peer
	names    map[string]adc.SID // reserved nicknames, ADC and IRC share this

	serv *servPeer

	passwords PasswordStore
	log       Logger
	metrics   *metrics

	commandsMu sync.RWMutex
	commands   map[string]CommandFunc

	deferred chan func()
	done     chan struct{}
	closeOne sync.Once

	started time.Time
}

// Option configures a Hub at construction time.
type Option func(*Hub)

// WithPasswordStore overrides the default constant password store.
func WithPasswordStore(p PasswordStore) Option {
	return func(h *Hub) { h.passwords = p }
}

// WithLogger overrides the default standard-library logger.
func WithLogger(l Logger) Option {
	return func(h *Hub) { h.log = l }
}

// WithRegisterer registers the hub's Prometheus instruments with reg
// instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(h *Hub) { h.metrics = newMetrics(reg) }
}

// NewHub builds a Hub with the SERV pseudo-session already seated in the
// roster.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		conf:     defaultConfig(),
		sessions: make(map[adc.SID]Peer),
		names:    make(map[string]adc.SID),
		commands: make(map[string]CommandFunc),
		deferred: make(chan func(), 64),
		done:     make(chan struct{}),
		started:  time.Now(),
		log:      stdLogger{},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.passwords == nil {
		h.passwords = ConstPasswordStore(h.getPassword())
	}
	if h.metrics == nil {
		h.metrics = newMetrics(nil)
	}
	h.serv = newServPeer(h)
	h.sessions[adc.SERV] = h.serv

	go h.runDeferred()
	return h
}

func (h *Hub) runDeferred() {
	for {
		select {
		case fn := <-h.deferred:
			fn()
		case <-h.done:
			return
		}
	}
}

// defer_ hands fn to the hub's single deferred-worker goroutine instead of
// running it on the caller's stack. Used by SERV so its replies never
// broadcast re-entrantly from inside the Hub.Chat fan-out that triggered
// them. fn is not ordered against the caller: the worker may start it
// before the current dispatch has returned.
func (h *Hub) defer_(fn func()) {
	select {
	case h.deferred <- fn:
	default:
		go func() { h.deferred <- fn }()
	}
}

// Close stops the hub's background worker. It does not close any sessions.
func (h *Hub) Close() {
	h.closeOne.Do(func() { close(h.done) })
}

// Logf forwards to the configured Logger.
func (h *Hub) Logf(format string, args ...interface{}) {
	h.log.Logf(format, args...)
}

// Uptime returns how long the hub has been running.
func (h *Hub) Uptime() time.Duration { return time.Since(h.started) }

// allocateSID draws random SIDs until one does not collide with any session
// currently in the roster, including SERV (giving up after 64 tries). The
// SID is not held until register inserts it.
func (h *Hub) allocateSID() (adc.SID, error) {
	for i := 0; i < 64; i++ {
		sid, err := adc.NewSID()
		if err != nil {
			return "", err
		}
		h.mu.RLock()
		_, taken := h.sessions[sid]
		h.mu.RUnlock()
		if !taken {
			return sid, nil
		}
		h.metrics.sidCollisions.Inc()
	}
	return "", fmt.Errorf("hub: could not allocate a unique SID")
}

// register inserts p into the roster. It fails if p's SID is already taken.
func (h *Hub) register(p Peer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[p.SID()]; ok {
		return fmt.Errorf("hub: SID %s already registered", p.SID())
	}
	h.sessions[p.SID()] = p
	return nil
}

// unregister removes the session with sid from the roster, if present, and
// broadcasts IQUI to the remaining NORMAL sessions. Safe to call more than
// once; subsequent calls are no-ops.
func (h *Hub) unregister(sid adc.SID) {
	h.mu.Lock()
	p, ok := h.sessions[sid]
	if ok {
		delete(h.sessions, sid)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	h.releaseName(sid)
	if p.State() == adc.StateNormal {
		h.broadcastInfo(adc.CmdQUI, string(sid))
	}
}

// releaseName frees any nickname reservation held by sid. Safe to call
// whether or not sid ever reserved a name.
func (h *Hub) releaseName(sid adc.SID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, owner := range h.names {
		if owner == sid {
			delete(h.names, name)
		}
	}
}

// reserveName claims name for sid if it is not already held by a different
// session. Used by both ADC (NI) and IRC (NICK) peers so the two namespaces
// do not collide.
func (h *Hub) reserveName(name string, sid adc.SID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if owner, ok := h.names[name]; ok && owner != sid {
		return false
	}
	h.names[name] = sid
	return true
}

// bypassVerify reports whether host matches the configured IP-based
// verification bypass, letting a session on a trusted network skip VERIFY
// and go straight from IDENTIFY to NORMAL.
func (h *Hub) bypassVerify(host string) bool {
	h.conf.RLock()
	cidr := h.conf.bypassCIDR
	h.conf.RUnlock()
	if cidr == "" {
		return false
	}
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return network.Contains(ip)
}

// bySID returns the live session for sid, or nil.
func (h *Hub) bySID(sid adc.SID) Peer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[sid]
}

// Peers returns a snapshot of every session currently in state NORMAL,
// including SERV. The snapshot is taken under the read lock; callers may
// range over it without holding any Hub lock.
func (h *Hub) Peers() []Peer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Peer, 0, len(h.sessions))
	for _, p := range h.sessions {
		if p.State() == adc.StateNormal {
			out = append(out, p)
		}
	}
	return out
}

// Broadcast sends "B<command> <payload>" to every currently NORMAL session,
// the sender included if it is itself NORMAL. The recipient list is
// snapshotted under the lock; the actual writes happen outside it.
func (h *Hub) Broadcast(command, payload string) {
	line := "B" + command + " " + payload
	for _, p := range h.Peers() {
		p.SendLine(line)
	}
	h.metrics.broadcasts.Inc()
}

// broadcastInfo sends a hub-originated "I<command> <payload>" line to every
// currently NORMAL session, for notices the hub itself originates (teardown,
// kick) rather than ones relayed on a client's behalf.
func (h *Hub) broadcastInfo(command, payload string) {
	line := "I" + command + " " + payload
	for _, p := range h.Peers() {
		p.SendLine(line)
	}
}

// Direct sends "D<command> <payload>" to the single session named by
// target, if it exists. It reports whether the target was found.
func (h *Hub) Direct(target adc.SID, command, payload string) bool {
	p := h.bySID(target)
	if p == nil {
		return false
	}
	p.SendLine("D" + command + " " + payload)
	return true
}

// Chat dispatches a chat message to every NORMAL session, SERV included,
// via each peer's Chat method (which is responsible for escaping and
// framing its own BMSG line, or for a services-style side effect).
func (h *Hub) Chat(sender adc.SID, message string) {
	for _, p := range h.Peers() {
		p.Chat(sender, message)
	}
	h.metrics.chats.Inc()
}

// Kick disconnects the session named by sid: it broadcasts IQUI with the MS
// reason flag and then closes the underlying transport. Kick is
// synchronous.
func (h *Hub) Kick(sid adc.SID, reason string) {
	p := h.bySID(sid)
	if p == nil {
		return
	}
	h.broadcastInfo(adc.CmdQUI, string(sid)+" MS"+adc.Escape(reason))
	h.metrics.kicks.Inc()
	if closer, ok := p.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

// CommandFunc answers a SERV "!name args" chat command. A false second
// return means "not handled"; the message is otherwise ignored.
type CommandFunc func(sender adc.SID, args string) (reply string, ok bool)

// RegisterCommand adds a SERV chat command, by name, for any callback —
// including ones backed by a loaded Lua script (see script.go).
func (h *Hub) RegisterCommand(name string, fn CommandFunc) {
	h.commandsMu.Lock()
	defer h.commandsMu.Unlock()
	h.commands[strings.ToLower(name)] = fn
}

func (h *Hub) lookupCommand(name string) (CommandFunc, bool) {
	h.commandsMu.RLock()
	defer h.commandsMu.RUnlock()
	fn, ok := h.commands[strings.ToLower(name)]
	return fn, ok
}

// stdLogger is the default Logger, writing through the standard log
// package.
type stdLogger struct{}

func (stdLogger) Logf(format string, args ...interface{}) {
	log.Printf(format, args...)
}
