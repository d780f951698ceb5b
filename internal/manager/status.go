package manager

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"syscall"

	"mcprox/pkg/mcproto"
)

// statusDocument is the JSON payload of the in-protocol status reply sent
// when a client's backend dial fails. A client whose hostname has no
// mapping gets no reply.
// Field order is irrelevant to any client, so the struct tags alone decide it.
type statusDocument struct {
	Version struct {
		Name     string `json:"name"`
		Protocol int32  `json:"protocol"`
	} `json:"version"`
	Players struct {
		Max    int    `json:"max"`
		Online int    `json:"online"`
		Sample []any  `json:"sample"`
	} `json:"players"`
	Description struct {
		Text string `json:"text"`
	} `json:"description"`
	Favicon string `json:"favicon"`
}

// buildStatusReply encodes a VarInt-framed status response packet (packet ID
// 0x00) carrying the JSON status document above. errCode is surfaced in
// "players.online" the way the original daemon does, since there is no
// other field in this packet shape for a machine-readable reason code;
// reason is the human-readable text shown in the client's server list entry.
func buildStatusReply(protocolVersion int32, errCode int, reason string) ([]byte, error) {
	var doc statusDocument
	doc.Version.Name = "Mcprox"
	doc.Version.Protocol = protocolVersion
	doc.Players.Max = 0
	doc.Players.Online = errCode
	doc.Players.Sample = []any{}
	doc.Description.Text = reason
	doc.Favicon = ""

	body, err := marshalStatusDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("manager: marshal status reply: %w", err)
	}

	var payload bytes.Buffer
	if _, err := mcproto.WriteVarInt(&payload, 0); err != nil { // packet ID 0x00
		return nil, err
	}
	if _, err := mcproto.WriteString(&payload, string(body)); err != nil {
		return nil, err
	}

	var frame bytes.Buffer
	if _, err := mcproto.WriteVarInt(&frame, int32(payload.Len())); err != nil {
		return nil, err
	}
	frame.Write(payload.Bytes())
	return frame.Bytes(), nil
}

// dialFailureReason classifies a backend dial error into one of three
// human-readable reasons.
func dialFailureReason(err error) string {
	switch {
	case err == nil:
		return "Unknown error"
	case isTimeoutErr(err):
		return "Gateway timed out"
	case isRefusedErr(err):
		return "Gateway refused connection"
	default:
		return "Unknown error"
	}
}

func isTimeoutErr(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isRefusedErr(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

func marshalStatusDocument(doc statusDocument) ([]byte, error) {
	return json.Marshal(doc)
}
