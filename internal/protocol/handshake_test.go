package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"mcprox/pkg/mcproto"
)

func buildModernHandshake(t *testing.T, protocolVersion int32, host string, port uint16, nextState int32) []byte {
	t.Helper()
	var body bytes.Buffer
	if _, err := mcproto.WriteVarInt(&body, 0); err != nil { // packet id
		t.Fatalf("write packet id: %v", err)
	}
	if _, err := mcproto.WriteVarInt(&body, protocolVersion); err != nil {
		t.Fatalf("write protocol version: %v", err)
	}
	if _, err := mcproto.WriteString(&body, host); err != nil {
		t.Fatalf("write host: %v", err)
	}
	if _, err := mcproto.WriteUShort(&body, port); err != nil {
		t.Fatalf("write port: %v", err)
	}
	if _, err := mcproto.WriteVarInt(&body, nextState); err != nil {
		t.Fatalf("write next state: %v", err)
	}

	var out bytes.Buffer
	if _, err := mcproto.WriteVarInt(&out, int32(body.Len())); err != nil {
		t.Fatalf("write packet length: %v", err)
	}
	out.Write(body.Bytes())
	return out.Bytes()
}

func TestParseHandshakeModernHappyPath(t *testing.T) {
	frame := buildModernHandshake(t, 759, "play.example.com", 25565, 1)
	br := bufio.NewReader(bytes.NewReader(frame))

	res, err := ParseHandshake(br)
	if err != nil {
		t.Fatalf("ParseHandshake: %v", err)
	}
	if res.Host.Domain != "play.example.com" || res.Host.Port != 25565 {
		t.Fatalf("unexpected host: %+v", res.Host)
	}
	if res.ProtocolVersion != 759 || res.NextState != 1 || res.Legacy {
		t.Fatalf("unexpected metadata: %+v", res)
	}
	if res.FrameLen != len(frame) {
		t.Fatalf("FrameLen = %d, want %d", res.FrameLen, len(frame))
	}

	// The parse must not have consumed any bytes: the same frame must still
	// be readable in full from br.
	replayed := make([]byte, len(frame))
	if _, err := io.ReadFull(br, replayed); err != nil {
		t.Fatalf("replay read: %v", err)
	}
	if !bytes.Equal(replayed, frame) {
		t.Fatalf("peeked bytes were consumed or altered")
	}
}

func TestParseHandshakeRejectsOversizedPacketLength(t *testing.T) {
	var out bytes.Buffer
	if _, err := mcproto.WriteVarInt(&out, 19+257); err != nil {
		t.Fatalf("write packet length: %v", err)
	}
	out.Write(make([]byte, 19+257))
	br := bufio.NewReader(&out)

	if _, err := ParseHandshake(br); !errors.Is(err, ErrInvalidHandshake) {
		t.Fatalf("want ErrInvalidHandshake, got %v", err)
	}
}

func TestParseHandshakeRejectsOversizedHostname(t *testing.T) {
	frame := buildModernHandshake(t, 1, strings.Repeat("a", 257), 25565, 1)
	br := bufio.NewReader(bytes.NewReader(frame))
	if _, err := ParseHandshake(br); !errors.Is(err, ErrInvalidHandshake) {
		t.Fatalf("want ErrInvalidHandshake, got %v", err)
	}
}

func TestParseHandshakeUnexpectedEOF(t *testing.T) {
	frame := buildModernHandshake(t, 1, "play.example.com", 25565, 1)
	truncated := frame[:len(frame)-3]
	br := bufio.NewReader(bytes.NewReader(truncated))
	if _, err := ParseHandshake(br); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("want io.ErrUnexpectedEOF, got %v", err)
	}
}

func buildLegacyPing(t *testing.T, version byte, host string, port uint32) []byte {
	t.Helper()
	var preamble bytes.Buffer
	preamble.Write(legacyPingMagic[:])
	// "MC|PingHost" encoded as UTF-16BE, matching the fixed historical preamble.
	// The magic's last two bytes (00 0B) are already its UTF-16 length.
	pingHost := []uint16{'M', 'C', '|', 'P', 'i', 'n', 'g', 'H', 'o', 's', 't'}
	for _, u := range pingHost {
		preamble.WriteByte(byte(u >> 8))
		preamble.WriteByte(byte(u))
	}
	if preamble.Len() != legacyPreambleLen {
		t.Fatalf("preamble length = %d, want %d", preamble.Len(), legacyPreambleLen)
	}

	hostUnits := make([]uint16, 0, len(host))
	for _, r := range host {
		hostUnits = append(hostUnits, uint16(r))
	}

	var payload bytes.Buffer
	payload.WriteByte(version)
	payload.WriteByte(byte(len(hostUnits) >> 8))
	payload.WriteByte(byte(len(hostUnits)))
	for _, u := range hostUnits {
		payload.WriteByte(byte(u >> 8))
		payload.WriteByte(byte(u))
	}
	payload.WriteByte(byte(port >> 24))
	payload.WriteByte(byte(port >> 16))
	payload.WriteByte(byte(port >> 8))
	payload.WriteByte(byte(port))

	var out bytes.Buffer
	out.Write(preamble.Bytes())
	out.WriteByte(byte(payload.Len() >> 8))
	out.WriteByte(byte(payload.Len()))
	out.Write(payload.Bytes())
	return out.Bytes()
}

func TestParseHandshakeLegacyPing(t *testing.T) {
	frame := buildLegacyPing(t, 74, "play.example.com", 25565)
	br := bufio.NewReader(bytes.NewReader(frame))

	res, err := ParseHandshake(br)
	if err != nil {
		t.Fatalf("ParseHandshake: %v", err)
	}
	if !res.Legacy {
		t.Fatalf("expected Legacy=true")
	}
	if res.Host.Domain != "play.example.com" || res.Host.Port != 25565 {
		t.Fatalf("unexpected host: %+v", res.Host)
	}
	if res.ProtocolVersion != 74 {
		t.Fatalf("ProtocolVersion = %d, want 74", res.ProtocolVersion)
	}
	if res.FrameLen != len(frame) {
		t.Fatalf("FrameLen = %d, want %d", res.FrameLen, len(frame))
	}
}

func TestParseHandshakeLegacyPingRejectsBadPayloadLength(t *testing.T) {
	frame := buildLegacyPing(t, 74, "play.example.com", 25565)
	// Corrupt the payload length field to a value below the minimum.
	frame[legacyPreambleLen] = 0
	frame[legacyPreambleLen+1] = 1
	br := bufio.NewReader(bytes.NewReader(frame))
	if _, err := ParseHandshake(br); !errors.Is(err, ErrInvalidHandshake) {
		t.Fatalf("want ErrInvalidHandshake, got %v", err)
	}
}

func TestMinecraftHostParserChainAdapter(t *testing.T) {
	frame := buildModernHandshake(t, 1, "chain.example.com", 25565, 1)
	p := NewMinecraftHostParser()
	host, err := p.Parse(frame)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if host != "chain.example.com" {
		t.Fatalf("host = %q", host)
	}
	if _, err := p.Parse(frame[:2]); !errors.Is(err, ErrNeedMoreData) {
		t.Fatalf("want ErrNeedMoreData, got %v", err)
	}
}

func TestLegacyPingHostParserChainAdapter(t *testing.T) {
	frame := buildLegacyPing(t, 74, "chain.example.com", 25565)
	p := NewLegacyPingHostParser()
	host, err := p.Parse(frame)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if host != "chain.example.com" {
		t.Fatalf("host = %q", host)
	}
	if _, err := p.Parse([]byte{0x01, 0x02}); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("want ErrNoMatch, got %v", err)
	}
}
