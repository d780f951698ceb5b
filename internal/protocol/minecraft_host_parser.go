package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// MinecraftHostParser adapts the modern-handshake decoder to the HostParser
// interface so it can run inside a ChainHostParser alongside custom parsers
// (see WASMHostParser). The mandatory connection pipeline does not use this
// adapter directly; it calls ParseHandshake on the live connection so it can
// also recover the port and protocol version. This adapter puts the
// built-in parse at the head of the chain that cmd/mcprox builds, ahead of
// any additional parser an operator registers.
type MinecraftHostParser struct{}

func NewMinecraftHostParser() *MinecraftHostParser { return &MinecraftHostParser{} }

func (p *MinecraftHostParser) Name() string { return "minecraft_handshake" }

func (p *MinecraftHostParser) Parse(prelude []byte) (string, error) {
	br := bufio.NewReader(bytes.NewReader(prelude))
	res, err := parseModernHandshake(br)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return "", ErrNeedMoreData
		}
		return "", ErrNoMatch
	}
	return res.Host.Domain, nil
}

var _ HostParser = (*MinecraftHostParser)(nil)
