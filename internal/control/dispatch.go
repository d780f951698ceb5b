package control

import (
	"errors"

	"mcprox/internal/manager"
)

// dispatch runs one decoded Request against mgr and produces the Response
// to write back.
func dispatch(mgr *manager.Manager, req Request) Response {
	switch req.Op {
	case OpEcho:
		mgr.Echo()
		return Response{Kind: "Echo"}

	case OpMkListener:
		msg, err := mgr.MkListener(req.Args[0])
		if err != nil {
			return ioErrorResponse(err)
		}
		return okResponse(msg)

	case OpRmListener:
		msg, err := mgr.RmListener(req.Args[0])
		if err != nil {
			return notFoundOrIOResponse(err)
		}
		return okResponse(msg)

	case OpLsListeners:
		return listResponse(mgr.LsListeners())

	case OpSetMapping:
		msg := mgr.SetMapping(req.Args[0], req.Args[1])
		return okResponse(msg)

	case OpGetMapping:
		msg, err := mgr.GetMapping(req.Args[0])
		if err != nil {
			return notFoundOrIOResponse(err)
		}
		return okResponse(msg)

	case OpRmMapping:
		disconnect := req.Args[1] == "true"
		msg, err := mgr.RmMapping(req.Args[0], disconnect)
		if err != nil {
			return notFoundOrIOResponse(err)
		}
		return okResponse(msg)

	case OpLsMappings:
		return listResponse(mgr.LsMappings())

	case OpLsConns:
		return listResponse(mgr.LsConns())

	default:
		return Response{Kind: "Error", Kind2: ErrKindInvalidPacket, Value: "Unable to decode packet"}
	}
}

func okResponse(msg string) Response {
	return Response{Kind: "Ok", Value: msg}
}

func listResponse(items []string) Response {
	return Response{Kind: "List", Items: items}
}

func notFoundOrIOResponse(err error) Response {
	if errors.Is(err, manager.ErrNotFound) {
		return Response{Kind: "Error", Kind2: ErrKindNotFound, Value: err.Error()}
	}
	return ioErrorResponse(err)
}

func ioErrorResponse(err error) Response {
	return Response{Kind: "Error", Kind2: ErrKindIOError, Value: err.Error()}
}
