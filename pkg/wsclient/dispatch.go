package wsclient

import (
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/cyberlab-sim/pkg/protocol"
)

// Handler receives every decoded server message, including the error kind.
type Handler interface {
	Handle(msg protocol.Inbound)
}

type HandlerFunc func(msg protocol.Inbound)

func (f HandlerFunc) Handle(msg protocol.Inbound) { f(msg) }

// Dispatch decodes data and hands it to h. Unknown kinds and malformed
// payloads are logged and dropped.
func Dispatch(data []byte, h Handler, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	msg, err := protocol.DecodeInbound(data)
	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrUnknownType):
		kind, _ := protocol.PeekType(data)
		log.Debug("ignoring unknown message kind", zap.String("type", string(kind)))
		return
	default:
		log.Warn("dropping malformed message", zap.Error(err), zap.Int("bytes", len(data)))
		return
	}
	if h != nil {
		h.Handle(msg)
	}
}
