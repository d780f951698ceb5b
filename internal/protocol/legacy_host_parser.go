package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// LegacyPingHostParser is the chain-compatible adapter for the 1.6
// "server list ping" framing. See MinecraftHostParser for why the
// mandatory pipeline calls ParseHandshake directly instead of this type.
type LegacyPingHostParser struct{}

func NewLegacyPingHostParser() *LegacyPingHostParser { return &LegacyPingHostParser{} }

func (p *LegacyPingHostParser) Name() string { return "legacy_ping" }

func (p *LegacyPingHostParser) Parse(prelude []byte) (string, error) {
	n := len(prelude)
	if n > len(legacyPingMagic) {
		n = len(legacyPingMagic)
	}
	if !bytes.Equal(prelude[:n], legacyPingMagic[:n]) {
		return "", ErrNoMatch
	}
	if len(prelude) < len(legacyPingMagic) {
		return "", ErrNeedMoreData
	}
	br := bufio.NewReader(bytes.NewReader(prelude))
	res, err := parseLegacyPing(br)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return "", ErrNeedMoreData
		}
		return "", ErrNoMatch
	}
	return res.Host.Domain, nil
}

var _ HostParser = (*LegacyPingHostParser)(nil)
