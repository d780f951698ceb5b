package manager

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"
	"weak"

	"mcprox/internal/protocol"
)

// fallbackParseTimeout bounds how long parseWithFallback waits for enough
// bytes to arrive before giving up on a connection neither the mandatory
// handshake parser nor the configured host-parser chain could classify.
const fallbackParseTimeout = 2 * time.Second

// newClient runs the per-connection pipeline: peek the handshake, resolve
// the domain, then either splice to a dialed backend or reply with an
// in-protocol status/disconnect and close. It runs in its own goroutine,
// spawned from acceptLoop without waiting for completion.
func (m *Manager) newClient(conn net.Conn) {
	br := bufio.NewReaderSize(conn, 16*1024)

	hs, err := protocol.ParseHandshake(br)
	domain := ""
	protocolVersion := int32(0)
	if err != nil {
		// The mandatory handshake parse only understands the modern and
		// legacy Minecraft framings. Give any registered host-parser chain
		// (builtins plus an optional WASM extension) a chance to extract a
		// routing domain from the same prelude before giving up.
		domain, err = m.parseWithFallback(conn, br)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				m.log.Debug("manager: client closed before handshake completed", "peer", conn.RemoteAddr())
			} else {
				m.log.Debug("manager: handshake parse failed", "peer", conn.RemoteAddr(), "err", err)
			}
			_ = conn.Close()
			return
		}
	} else {
		domain = hs.Host.Domain
		protocolVersion = hs.ProtocolVersion
	}

	backend, ok := m.resolve(domain)
	if !ok {
		m.log.Warn("manager: unknown target", "peer", conn.RemoteAddr(), "domain", domain)
		_ = conn.Close()
		return
	}

	up, err := m.dialer.DialContext(context.Background(), "tcp", backend)
	if err != nil {
		m.log.Error("manager: backend dial failed", "peer", conn.RemoteAddr(), "backend", backend, "err", err)
		m.replyDialFailure(conn, protocolVersion, err)
		return
	}

	conn2 := &Connection{Peer: conn.RemoteAddr(), Backend: backend, Domain: domain}
	conn2.abort = func() {
		_ = conn.Close()
		_ = up.Close()
	}
	m.registerConnection(domain, weak.Make(conn2))

	// The splice runs as its own task, independent of the handshake/route
	// driver goroutine that accepted this connection.
	go m.runSplice(conn2, br, conn, up)
}

// parseWithFallback asks the configured host-parser chain to extract a
// routing domain from the connection prelude. It waits up to
// fallbackParseTimeout for bytes to arrive, then parses whatever is
// buffered; a nil parser, a deadline with nothing usable, or a parser that
// doesn't match all report io.ErrUnexpectedEOF, the same sentinel
// ParseHandshake uses for "not enough to decide", so callers can treat both
// paths identically.
func (m *Manager) parseWithFallback(conn net.Conn, br *bufio.Reader) (string, error) {
	if m.parser == nil {
		return "", io.ErrUnexpectedEOF
	}
	_ = conn.SetReadDeadline(time.Now().Add(fallbackParseTimeout))
	peek, _ := br.Peek(br.Size())
	_ = conn.SetReadDeadline(time.Time{})
	if len(peek) == 0 {
		return "", io.ErrUnexpectedEOF
	}
	host, err := m.parser.Parse(peek)
	if err != nil {
		return "", io.ErrUnexpectedEOF
	}
	return host, nil
}

// replyDialFailure synthesizes the in-protocol status/disconnect reply for
// a backend that could not be reached, flushes it, and closes the client
// connection. No retry is attempted; that is the client's responsibility.
func (m *Manager) replyDialFailure(conn net.Conn, protocolVersion int32, dialErr error) {
	defer conn.Close()
	reason := dialFailureReason(dialErr)
	frame, err := buildStatusReply(protocolVersion, -1, reason)
	if err != nil {
		m.log.Error("manager: build status reply failed", "err", err)
		return
	}
	if _, err := conn.Write(frame); err != nil {
		m.log.Debug("manager: write status reply failed", "err", err)
	}
}
