// Package control implements a line-delimited, tagged-value request and
// response algebra for the admin control socket. The teacher's own
// protocols are all binary length-prefixed frames or HTTP/JSON; nothing in
// the example corpus supplies a library for this kind of human-readable
// algebraic wire format, so this one hand-rolled codec is the unavoidable
// exception to "use the ecosystem library" in this module.
package control

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Op names the request/response variants, wire-visible verbatim.
type Op string

const (
	OpEcho        Op = "Echo"
	OpMkListener  Op = "MkListener"
	OpRmListener  Op = "RmListener"
	OpLsListeners Op = "LsListeners"
	OpSetMapping  Op = "SetMapping"
	OpGetMapping  Op = "GetMapping"
	OpRmMapping   Op = "RmMapping"
	OpLsMappings  Op = "LsMappings"
	OpLsConns     Op = "LsConns"
)

// ErrKind is the wire-visible error classification.
type ErrKind string

const (
	ErrKindInvalidPacket ErrKind = "InvalidPacket"
	ErrKindIOError       ErrKind = "IoError"
	ErrKindNotFound      ErrKind = "NotFound"
)

// Request is a decoded line of the control protocol's request algebra.
type Request struct {
	Op   Op
	Args []string
}

// Response is a decoded (or to-be-encoded) line of the response algebra:
// Echo | Ok(String) | List([String,...]) | Error(ErrKind, String) | Nil.
type Response struct {
	Kind  string // "Echo", "Ok", "List", "Error", "Nil"
	Value string
	Items []string
	Kind2 ErrKind // set when Kind == "Error"
}

// listSep joins List(...) items on the wire. None of the strings the
// Manager formats (host:port pairs, domain names, "domain => addr" lines)
// ever contain a pipe, so it is a safe separator that needs no escaping.
const listSep = "|"

// ErrDecode is returned by DecodeRequest for a malformed line: an unknown
// op, a missing second argument, an argument on a no-argument op, a SetMapping
// target that is not an IP:port, a RmMapping flag that is not a bool, or a
// missing closing paren. Commas beyond the expected argument count stay in
// the last argument (see splitExact) rather than being rejected. The control
// server answers it with Error(InvalidPacket, "Unable to decode packet")
// and keeps the connection open.
var ErrDecode = fmt.Errorf("control: unable to decode packet")

// DecodeRequest parses a single line (no trailing newline) into a Request.
func DecodeRequest(line string) (Request, error) {
	line = strings.TrimSpace(line)
	tag, argsStr, hasArgs, err := splitTag(line)
	if err != nil {
		return Request{}, err
	}

	op := Op(tag)
	switch op {
	case OpEcho, OpLsListeners, OpLsMappings, OpLsConns:
		if hasArgs && strings.TrimSpace(argsStr) != "" {
			return Request{}, ErrDecode
		}
		return Request{Op: op}, nil
	case OpMkListener, OpRmListener, OpGetMapping:
		args, err := splitExact(argsStr, 1)
		if err != nil {
			return Request{}, err
		}
		return Request{Op: op, Args: args}, nil
	case OpSetMapping:
		args, err := splitExact(argsStr, 2)
		if err != nil {
			return Request{}, err
		}
		if _, err := netip.ParseAddrPort(args[1]); err != nil {
			return Request{}, ErrDecode
		}
		return Request{Op: op, Args: args}, nil
	case OpRmMapping:
		args, err := splitExact(argsStr, 2)
		if err != nil {
			return Request{}, err
		}
		if _, err := strconv.ParseBool(strings.TrimSpace(args[1])); err != nil {
			return Request{}, ErrDecode
		}
		return Request{Op: op, Args: args}, nil
	default:
		return Request{}, ErrDecode
	}
}

// EncodeRequest is the inverse of DecodeRequest, used by a control client.
func EncodeRequest(req Request) string {
	if len(req.Args) == 0 {
		return string(req.Op)
	}
	return fmt.Sprintf("%s(%s)", req.Op, strings.Join(req.Args, ","))
}

// DecodeResponse parses a single line into a Response, mirroring the
// encoding EncodeResponse produces. Used by control clients.
func DecodeResponse(line string) (Response, error) {
	line = strings.TrimSpace(line)
	tag, argsStr, hasArgs, err := splitTag(line)
	if err != nil {
		return Response{}, err
	}

	switch tag {
	case "Echo":
		return Response{Kind: "Echo"}, nil
	case "Nil":
		return Response{Kind: "Nil"}, nil
	case "Ok":
		if !hasArgs {
			return Response{Kind: "Ok"}, nil
		}
		return Response{Kind: "Ok", Value: argsStr}, nil
	case "List":
		if !hasArgs || strings.TrimSpace(argsStr) == "" {
			return Response{Kind: "List"}, nil
		}
		return Response{Kind: "List", Items: strings.Split(argsStr, listSep)}, nil
	case "Error":
		parts := strings.SplitN(argsStr, ",", 2)
		if len(parts) != 2 {
			return Response{}, ErrDecode
		}
		return Response{Kind: "Error", Kind2: ErrKind(strings.TrimSpace(parts[0])), Value: parts[1]}, nil
	default:
		return Response{}, ErrDecode
	}
}

// EncodeResponse renders a Response as a single wire line (no newline).
func EncodeResponse(r Response) string {
	switch r.Kind {
	case "Echo":
		return "Echo"
	case "Nil":
		return "Nil"
	case "Ok":
		return fmt.Sprintf("Ok(%s)", r.Value)
	case "List":
		return fmt.Sprintf("List(%s)", strings.Join(r.Items, listSep))
	case "Error":
		return fmt.Sprintf("Error(%s,%s)", r.Kind2, r.Value)
	default:
		return "Nil"
	}
}

// splitTag splits "Tag" or "Tag(args)" into its tag and the raw
// parenthesized content. hasArgs distinguishes "Tag" from "Tag()".
func splitTag(line string) (tag string, args string, hasArgs bool, err error) {
	open := strings.IndexByte(line, '(')
	if open < 0 {
		if strings.ContainsRune(line, ')') {
			return "", "", false, ErrDecode
		}
		return line, "", false, nil
	}
	if !strings.HasSuffix(line, ")") {
		return "", "", false, ErrDecode
	}
	return line[:open], line[open+1 : len(line)-1], true, nil
}

// splitExact splits a comma-joined argument string into exactly n fields.
// The last field may itself contain commas (e.g. a human-readable
// message); only the first n-1 commas are treated as separators.
func splitExact(s string, n int) ([]string, error) {
	parts := strings.SplitN(s, ",", n)
	if len(parts) != n {
		return nil, ErrDecode
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}
