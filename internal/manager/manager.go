// Package manager holds the proxy's authoritative, concurrently accessed
// state: the hostname-to-backend mapping table, the set of active
// listeners, and the connection/grace indices used for enumeration and
// forced disconnects. It is a process-wide singleton constructed once in
// cmd/mcprox and driven by both accepted client connections and the
// internal/control admin surface.
package manager

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"mcprox/internal/protocol"
	"mcprox/internal/proxy"
)

// ErrNotFound is returned by admin operations that reference a mapping or
// listener address that does not exist.
var ErrNotFound = errors.New("manager: not found")

const defaultSweepInterval = 60 * time.Second

// Manager is the proxy's singleton authoritative state. The mapping table,
// listener table, connection index and grace index are each guarded by
// their own sync.RWMutex; no method ever holds two of those locks at once.
type Manager struct {
	log *slog.Logger

	dialer     proxy.Dialer
	bufferPool proxy.BufferPool
	parser     protocol.HostParser

	sweepInterval time.Duration
	sweepOnce     sync.Once

	mappingsMu sync.RWMutex
	mappings   map[string]string // domain -> backend address

	listenersMu sync.RWMutex
	listeners   map[string]*listenerEntry

	connMu sync.RWMutex
	conns  map[string][]weak.Pointer[Connection]

	graceMu sync.RWMutex
	grace   map[string][]weak.Pointer[Connection]

	acceptCount atomic.Int64
}

// Options configures a new Manager. Dialer and BufferPool default to
// proxy.NewNetDialer and a 2 KiB proxy.SyncPoolBufferPool respectively, a
// single fixed-size per-direction copy buffer.
type Options struct {
	Logger        *slog.Logger
	Dialer        proxy.Dialer
	BufferPool    proxy.BufferPool
	SweepInterval time.Duration

	// Parser is consulted only when the mandatory modern/legacy handshake
	// parse fails; it lets an operator layer additional routing strategies
	// (e.g. TLS SNI, a WASM-backed parser) in front of unrecognized
	// connections. Nil disables the fallback.
	Parser protocol.HostParser
}

func New(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = proxy.NewNetDialer(nil)
	}
	bp := opts.BufferPool
	if bp == nil {
		bp = proxy.NewSyncPoolBufferPool(2048)
	}
	interval := opts.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	return &Manager{
		log:           log,
		dialer:        dialer,
		bufferPool:    bp,
		parser:        opts.Parser,
		sweepInterval: interval,
		mappings:      make(map[string]string),
		listeners:     make(map[string]*listenerEntry),
		conns:         make(map[string][]weak.Pointer[Connection]),
		grace:         make(map[string][]weak.Pointer[Connection]),
	}
}

// Echo performs no state change; it exists so the control protocol has a
// trivial liveness check.
func (m *Manager) Echo() {}

// SetMapping inserts or replaces the backend address for domain. It never
// fails: the mapping table has no validation beyond well-formed input,
// which the control protocol's decoder already enforces.
func (m *Manager) SetMapping(domain, addr string) string {
	m.mappingsMu.Lock()
	prev, had := m.mappings[domain]
	m.mappings[domain] = addr
	m.mappingsMu.Unlock()

	if had {
		return fmt.Sprintf("Set %s to %s, replaced %s", domain, addr, prev)
	}
	return fmt.Sprintf("Set %s to %s", domain, addr)
}

// GetMapping reads the current backend address for domain.
func (m *Manager) GetMapping(domain string) (string, error) {
	m.mappingsMu.RLock()
	addr, ok := m.mappings[domain]
	m.mappingsMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, domain)
	}
	return fmt.Sprintf("%s => %s", domain, addr), nil
}

// resolve is the hot-path lookup used by the per-connection pipeline. It
// takes only the mapping table's read lock.
func (m *Manager) resolve(domain string) (string, bool) {
	m.mappingsMu.RLock()
	addr, ok := m.mappings[domain]
	m.mappingsMu.RUnlock()
	return addr, ok
}

// RmMapping removes the mapping for domain. If disconnect is true, every
// splice goroutine currently registered under domain is aborted and the
// reported count is N+1 (N aborted connections plus one for the mapping
// itself) — an odd but intentional count preserved for wire compatibility.
// If disconnect is false, the domain's live connections are moved to the
// grace index instead of being torn down.
func (m *Manager) RmMapping(domain string, disconnect bool) (string, error) {
	m.mappingsMu.Lock()
	_, ok := m.mappings[domain]
	if ok {
		delete(m.mappings, domain)
	}
	m.mappingsMu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, domain)
	}

	if !disconnect {
		m.connMu.Lock()
		entries := m.conns[domain]
		delete(m.conns, domain)
		m.connMu.Unlock()

		if len(entries) > 0 {
			m.graceMu.Lock()
			m.grace[domain] = append(m.grace[domain], entries...)
			m.graceMu.Unlock()
		}
		return fmt.Sprintf("Deleted mapping for %s; Disconnected 0 players", domain), nil
	}

	m.connMu.Lock()
	entries := m.conns[domain]
	delete(m.conns, domain)
	m.connMu.Unlock()

	n := 0
	for _, wp := range entries {
		if conn := wp.Value(); conn != nil {
			abortConnection(conn)
			n++
		}
	}
	return fmt.Sprintf("Deleted mapping for %s; Disconnected %d players", domain, n+1), nil
}

// LsMappings snapshots the mapping table as "domain => addr" lines.
func (m *Manager) LsMappings() []string {
	m.mappingsMu.RLock()
	defer m.mappingsMu.RUnlock()
	out := make([]string, 0, len(m.mappings))
	for domain, addr := range m.mappings {
		out = append(out, fmt.Sprintf("%s => %s", domain, addr))
	}
	return out
}

// LsConns walks both the connection and grace indices, upgrading each weak
// reference, and yields "peer => domain" lines for the ones still alive.
func (m *Manager) LsConns() []string {
	var out []string

	m.connMu.RLock()
	for domain, entries := range m.conns {
		for _, wp := range entries {
			if conn := wp.Value(); conn != nil {
				out = append(out, fmt.Sprintf("%s => %s", conn.Peer.String(), domain))
			}
		}
	}
	m.connMu.RUnlock()

	m.graceMu.RLock()
	for domain, entries := range m.grace {
		for _, wp := range entries {
			if conn := wp.Value(); conn != nil {
				out = append(out, fmt.Sprintf("%s => %s", conn.Peer.String(), domain))
			}
		}
	}
	m.graceMu.RUnlock()

	if out == nil {
		out = []string{}
	}
	return out
}

func (m *Manager) registerConnection(domain string, wp weak.Pointer[Connection]) {
	m.connMu.Lock()
	m.conns[domain] = append(m.conns[domain], wp)
	m.connMu.Unlock()
}

func (m *Manager) logger() *slog.Logger { return m.log }
