package manager

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

// runSplice pumps bytes in both directions between client and backend until
// either side completes (clean EOF or error), then closes both halves. conn
// keeps a single strong *Connection reachable for exactly as long as this
// goroutine runs; the Manager only ever sees it through a weak.Pointer.
//
// client is read through clientBR, the same *bufio.Reader the handshake
// parser peeked from — its buffered bytes are the handshake the client
// actually sent, so they reach the backend first, byte for byte, before
// anything read live off the socket.
func (m *Manager) runSplice(conn *Connection, clientBR *bufio.Reader, client net.Conn, backend net.Conn) {
	// Whichever direction finishes first closes both halves, which
	// unblocks the other direction's in-flight read/write and propagates
	// the half-close instead of leaving the splice waiting forever.
	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = client.Close()
			_ = backend.Close()
		})
	}
	defer closeBoth()

	var g errgroup.Group
	g.Go(func() error {
		defer closeBoth()
		return m.copyDirection(backend, clientBR)
	})
	g.Go(func() error {
		defer closeBoth()
		return m.copyDirection(client, backend)
	})

	if err := g.Wait(); err != nil && !isBenignCloseErr(err) {
		m.log.Error("manager: splice failed", "peer", conn.Peer, "domain", conn.Domain, "err", err)
	}
}

// copyDirection pumps one direction using a pooled fixed-size buffer,
// closing both underlying sockets (via the deferred closes in runSplice)
// as soon as either direction finishes — that drop propagates the
// half-close to the other copy, which is how a single direction's EOF or
// error ends the whole splice. io.CopyBuffer leaves the pooled buffer unused
// when src implements io.WriterTo or dst implements io.ReaderFrom, as the
// client side's *bufio.Reader and *net.TCPConn do.
func (m *Manager) copyDirection(dst io.Writer, src io.Reader) error {
	buf := m.bufferPool.Get()
	defer m.bufferPool.Put(buf)

	_, err := io.CopyBuffer(dst, src, buf)
	return err
}

func isBenignCloseErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe)
}
