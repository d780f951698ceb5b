package manager

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"mcprox/pkg/mcproto"
)

type mockDialer struct {
	called chan string
	conn   net.Conn
	err    error
}

func (d *mockDialer) DialContext(_ context.Context, _ string, address string) (net.Conn, error) {
	d.called <- address
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func buildHandshakePacket(host string, port uint16, protoVer int32, nextState int32) []byte {
	var payload bytes.Buffer
	_, _ = mcproto.WriteVarInt(&payload, 0)
	_, _ = mcproto.WriteVarInt(&payload, protoVer)
	_, _ = mcproto.WriteString(&payload, host)
	_, _ = mcproto.WriteUShort(&payload, port)
	_, _ = mcproto.WriteVarInt(&payload, nextState)

	var out bytes.Buffer
	_, _ = mcproto.WriteVarInt(&out, int32(payload.Len()))
	_, _ = out.Write(payload.Bytes())
	return out.Bytes()
}

// TestNewClient_ForwardsHandshakeVerbatim verifies a modern handshake for a
// mapped domain is spliced to the resolved backend, and the backend sees
// exactly the bytes the client sent, including the handshake, followed by
// whatever comes after.
func TestNewClient_ForwardsHandshakeVerbatim(t *testing.T) {
	m := New(Options{})
	m.SetMapping("play.example", "127.0.0.1:25566")

	clientConn, serverConn := net.Pipe()
	upConn, backendConn := net.Pipe()
	defer clientConn.Close()
	defer backendConn.Close()

	dial := &mockDialer{called: make(chan string, 1), conn: upConn}
	m.dialer = dial

	go m.newClient(serverConn)

	handshake := buildHandshakePacket("play.example", 25565, 759, 2)
	payload := []byte("login-packet-bytes")
	want := append(append([]byte(nil), handshake...), payload...)

	backendGotCh := make(chan []byte, 1)
	go func() {
		got := make([]byte, len(want))
		_, _ = io.ReadFull(backendConn, got)
		backendGotCh <- got
	}()

	if _, err := clientConn.Write(handshake); err != nil {
		t.Fatalf("client write handshake: %v", err)
	}

	select {
	case addr := <-dial.called:
		if addr != "127.0.0.1:25566" {
			t.Fatalf("dial addr: want 127.0.0.1:25566 got %q", addr)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("dial not called")
	}

	if _, err := clientConn.Write(payload); err != nil {
		t.Fatalf("client write payload: %v", err)
	}

	select {
	case got := <-backendGotCh:
		if !bytes.Equal(got, want) {
			t.Fatalf("forwarded bytes mismatch:\nwant %x\ngot  %x", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("backend did not receive bytes")
	}

	conns := m.LsConns()
	if len(conns) != 1 {
		t.Fatalf("want 1 live connection, got %v", conns)
	}
}

// TestNewClient_UnknownHostClosesWithoutReply verifies that when no mapping
// exists, the client connection is closed with no outbound dial and no
// reply written.
func TestNewClient_UnknownHostClosesWithoutReply(t *testing.T) {
	m := New(Options{})

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	dial := &mockDialer{called: make(chan string, 1)}
	m.dialer = dial

	go m.newClient(serverConn)

	handshake := buildHandshakePacket("absent.example", 25565, 759, 2)
	if _, err := clientConn.Write(handshake); err != nil {
		t.Fatalf("client write handshake: %v", err)
	}

	select {
	case addr := <-dial.called:
		t.Fatalf("unexpected dial to %q", addr)
	case <-time.After(200 * time.Millisecond):
	}

	buf := make([]byte, 1)
	if _, err := clientConn.Read(buf); err == nil {
		t.Fatalf("expected client connection to be closed")
	}

	if conns := m.LsConns(); len(conns) != 0 {
		t.Fatalf("want no live connections, got %v", conns)
	}
}

// TestNewClient_DialFailureSendsStatusReply covers the dial-error path: a
// status/disconnect frame is written before the connection closes.
func TestNewClient_DialFailureSendsStatusReply(t *testing.T) {
	m := New(Options{})
	m.SetMapping("play.example", "127.0.0.1:25566")

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	dial := &mockDialer{called: make(chan string, 1), err: errConnRefusedForTest{}}
	m.dialer = dial

	go m.newClient(serverConn)

	handshake := buildHandshakePacket("play.example", 25565, 759, 1)
	if _, err := clientConn.Write(handshake); err != nil {
		t.Fatalf("client write handshake: %v", err)
	}

	ln, _, err := mcproto.ReadVarInt(clientConn)
	if err != nil {
		t.Fatalf("read reply length: %v", err)
	}
	if ln <= 0 {
		t.Fatalf("want a non-empty status reply, got length %d", ln)
	}
}

type errConnRefusedForTest struct{}

func (errConnRefusedForTest) Error() string { return "connection refused" }

type fixedHostParser struct{ host string }

func (p fixedHostParser) Name() string { return "fixed" }

func (p fixedHostParser) Parse(prelude []byte) (string, error) {
	if len(prelude) == 0 {
		return "", io.EOF
	}
	return p.host, nil
}

// TestNewClient_FallsBackToConfiguredParser verifies that when the
// mandatory handshake parse fails, a configured host-parser chain still
// gets a chance to extract a routing domain from the same bytes.
func TestNewClient_FallsBackToConfiguredParser(t *testing.T) {
	m := New(Options{Parser: fixedHostParser{host: "custom.example"}})
	m.SetMapping("custom.example", "127.0.0.1:25566")

	clientConn, serverConn := net.Pipe()
	upConn, backendConn := net.Pipe()
	defer clientConn.Close()
	defer backendConn.Close()

	dial := &mockDialer{called: make(chan string, 1), conn: upConn}
	m.dialer = dial

	go m.newClient(serverConn)

	// Five bytes that all carry the VarInt continuation bit make the packet
	// length malformed, so the mandatory parse fails without waiting for
	// more input; the fallback then waits up to fallbackParseTimeout.
	if _, err := clientConn.Write([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x00}); err != nil {
		t.Fatalf("client write: %v", err)
	}

	select {
	case addr := <-dial.called:
		if addr != "127.0.0.1:25566" {
			t.Fatalf("dial addr: want 127.0.0.1:25566 got %q", addr)
		}
	case <-time.After(fallbackParseTimeout + 2*time.Second):
		t.Fatalf("dial not called")
	}
}
