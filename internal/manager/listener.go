package manager

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// listenerEntry pairs a bound TCP listener with the cancellation needed to
// tear down its accept loop. Re-creating a listener at the same address
// replaces this entry wholesale: the old accept loop is aborted (by closing
// its listener, which unblocks the in-flight Accept) before the new one
// starts.
type listenerEntry struct {
	addr   string
	ln     net.Listener
	cancel context.CancelFunc
}

// MkListener binds a TCP socket at addr and spawns its accept loop. If a
// listener already exists at addr, it is replaced: the previous accept loop
// is aborted with a warning log, releasing the port, before the new one is
// bound in its place. A bind failure at an address with no listener leaves
// the Manager's listener table unchanged; when replacing, the previous
// listener has already been closed and removed by the time the bind fails.
func (m *Manager) MkListener(addr string) (string, error) {
	m.listenersMu.Lock()
	old := m.listeners[addr]
	delete(m.listeners, addr)
	m.listenersMu.Unlock()

	if old != nil {
		m.log.Warn("manager: replacing listener", "addr", addr)
		old.cancel()
		_ = old.ln.Close()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry := &listenerEntry{addr: addr, ln: ln, cancel: cancel}

	m.listenersMu.Lock()
	m.listeners[addr] = entry
	m.listenersMu.Unlock()

	go m.acceptLoop(ctx, entry)

	return fmt.Sprintf("Created new listener %s", addr), nil
}

// RmListener aborts the accept loop for addr and removes its record. The
// in-flight Accept is cancelled by closing the underlying listener socket.
func (m *Manager) RmListener(addr string) (string, error) {
	m.listenersMu.Lock()
	entry, ok := m.listeners[addr]
	if ok {
		delete(m.listeners, addr)
	}
	m.listenersMu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, addr)
	}

	entry.cancel()
	_ = entry.ln.Close()
	return fmt.Sprintf("Removed listener %s", addr), nil
}

// LsListeners snapshots the bound listener addresses.
func (m *Manager) LsListeners() []string {
	m.listenersMu.RLock()
	defer m.listenersMu.RUnlock()
	out := make([]string, 0, len(m.listeners))
	for addr := range m.listeners {
		out = append(out, addr)
	}
	return out
}

// acceptLoop accepts connections on entry's listener until it is closed or
// its context is cancelled, handing each one to Manager.newClient without
// waiting for it to finish so a single slow handshake never blocks
// subsequent accepts.
func (m *Manager) acceptLoop(ctx context.Context, entry *listenerEntry) {
	for {
		conn, err := entry.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			m.log.Error("manager: accept failed", "addr", entry.addr, "err", err)
			continue
		}
		m.acceptCount.Add(1)
		go m.newClient(conn)
	}
}
