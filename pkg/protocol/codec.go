package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

func invalid(t MessageType, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformed, t, fmt.Sprintf(format, args...))
}

type decodeFunc[T any] func([]byte) (T, error)

func as[M any, T any](data []byte) (T, error) {
	var m M
	err := json.Unmarshal(data, &m)
	var out T
	if err != nil {
		return out, err
	}
	// M always satisfies T; enforced by the registry literals below.
	return any(m).(T), nil
}

var inboundKinds = map[MessageType]decodeFunc[Inbound]{
	TypeJoinAck:                as[JoinAck, Inbound],
	TypeSessionConfig:          as[SessionConfig, Inbound],
	TypeSessionState:           as[SessionState, Inbound],
	TypeSessionSnapshot:        as[SessionSnapshot, Inbound],
	TypeSimulationPaused:       as[SimulationPaused, Inbound],
	TypeSimulationResumed:      as[SimulationResumed, Inbound],
	TypeSimulationEnded:        as[SimulationEnded, Inbound],
	TypeSimulationEvent:        as[SimulationEvent, Inbound],
	TypeMetricsUpdate:          as[MetricsUpdate, Inbound],
	TypeParticipantUpdate:      as[ParticipantUpdate, Inbound],
	TypeParticipantJoined:      as[ParticipantJoined, Inbound],
	TypeParticipantDisconnect:  as[ParticipantDisconnected, Inbound],
	TypeParticipantReconnected: as[ParticipantReconnected, Inbound],
	TypeScoreUpdate:            as[ScoreUpdate, Inbound],
	TypeScoreboard:             as[Scoreboard, Inbound],
	TypeCommandResult:          as[CommandResult, Inbound],
	TypeObjectives:             as[Objectives, Inbound],
	TypeObjectivesUpdate:       as[ObjectivesUpdate, Inbound],
	TypeHints:                  as[Hints, Inbound],
	TypeDetectionAlert:         as[DetectionAlert, Inbound],
	TypeAttackEvent:            as[AttackEvent, Inbound],
	TypeDetectionEvent:         as[DetectionEvent, Inbound],
	TypeObjectiveCompleted:     as[ObjectiveCompleted, Inbound],
	TypeObjectiveDefended:      as[ObjectiveDefended, Inbound],
	TypeOffObjectiveThreat:     as[OffObjectiveThreat, Inbound],
	TypeClassificationResult:   as[ClassificationResult, Inbound],
	TypeDefenderAction:         as[DefenderAction, Inbound],
	TypeBroadcast:              as[Broadcast, Inbound],
	TypeChatMessage:            as[ChatMessage, Inbound],
	TypeInstructorBroadcast:    as[InstructorBroadcast, Inbound],
	TypeError:                  as[ErrorMessage, Inbound],
	TypeServerMessage:          as[ServerMessage, Inbound],
}

var outboundKinds = map[MessageType]decodeFunc[Outbound]{
	TypeJoin:                  as[Join, Outbound],
	TypeRequestScoreboard:     as[RequestScoreboard, Outbound],
	TypeExecuteCommand:        as[ExecuteCommand, Outbound],
	TypeRequestObjectives:     as[RequestObjectives, Outbound],
	TypeRequestHints:          as[RequestHints, Outbound],
	TypeDefenderClassify:      as[DefenderClassify, Outbound],
	TypeUpdateDetectionConfig: as[UpdateDetectionConfig, Outbound],
	TypeDefenderAction:        as[DefenderAction, Outbound],
	TypeBroadcast:             as[Broadcast, Outbound],
	TypeChatMessage:           as[ChatMessage, Outbound],
	TypeInstructorControl:     as[InstructorControl, Outbound],
	TypeInstructorAction:      as[InstructorAction, Outbound],
}

// IsInbound reports whether t is a kind the server may send.
func IsInbound(t MessageType) bool { _, ok := inboundKinds[t]; return ok }

// IsOutbound reports whether t is a kind a client may send.
func IsOutbound(t MessageType) bool { _, ok := outboundKinds[t]; return ok }

// Encode writes m as a JSON object whose first member is "type".
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	head, _ := json.Marshal(string(m.Kind()))

	var buf bytes.Buffer
	buf.Grow(len(body) + len(head) + 10)
	buf.WriteString(`{"type":`)
	buf.Write(head)
	if rest := bytes.TrimSpace(body[1:]); len(rest) > 1 {
		buf.WriteByte(',')
		buf.Write(rest)
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// PeekType returns the discriminant without validating the rest of the
// payload. The key must be exactly "type"; encoding/json would otherwise
// accept "Type" or "TYPE".
func PeekType(data []byte) (MessageType, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	raw, ok := fields["type"]
	if !ok {
		return "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	var t string
	if err := json.Unmarshal(raw, &t); err != nil {
		return "", fmt.Errorf("%w: type: %v", ErrMalformed, err)
	}
	if t == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return MessageType(t), nil
}

// DecodeInbound parses a server-to-client payload.
func DecodeInbound(data []byte) (Inbound, error) {
	return decode(data, inboundKinds, "inbound")
}

// DecodeOutbound parses a client-to-server payload.
func DecodeOutbound(data []byte) (Outbound, error) {
	return decode(data, outboundKinds, "outbound")
}

func decode[T Message](data []byte, kinds map[MessageType]decodeFunc[T], dir string) (T, error) {
	var zero T
	t, err := PeekType(data)
	if err != nil {
		return zero, err
	}
	fn, ok := kinds[t]
	if !ok {
		return zero, fmt.Errorf("%w: %q is not %s", ErrUnknownType, t, dir)
	}
	m, err := fn(data)
	if err != nil {
		return zero, fmt.Errorf("%w: %s: %v", ErrMalformed, t, err)
	}
	if err := m.Validate(); err != nil {
		return zero, err
	}
	return m, nil
}
