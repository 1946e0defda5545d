package wsclient

import (
	"reflect"

	"github.com/DoyleJ11/cyberlab-sim/pkg/protocol"
)

type ReadyState int

const (
	Connecting ReadyState = iota
	Open
	Closing
	Closed
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Socket is anything a client message can be written to.
type Socket interface {
	ReadyState() ReadyState
	Send(data []byte) error
}

// SafeSend encodes msg and writes it to s when s is open. It reports whether
// the message was handed to the socket and never panics.
func SafeSend(s Socket, msg protocol.Outbound) (sent bool) {
	if isNil(s) || isNil(msg) {
		return false
	}
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	if s.ReadyState() != Open {
		return false
	}
	if err := msg.Validate(); err != nil {
		return false
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return false
	}
	return s.Send(data) == nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
