package engine

import (
	"fmt"

	"github.com/DoyleJ11/cyberlab-sim/pkg/protocol"
)

func (s *Session) Chat(name, message string) []Delivery {
	return []Delivery{send(Everyone(), protocol.ChatMessage{Envelope: s.env(), Sender: name, Message: message})}
}

func (s *Session) Broadcast(name, message string) []Delivery {
	out := []Delivery{send(Everyone(), protocol.InstructorBroadcast{Envelope: s.env(), Sender: name, Message: message})}
	return append(out, s.record("info", "Broadcast: "+message, name)...)
}

// Control moves the session between running, paused and ended. Ended is final.
func (s *Session) Control(name string, action protocol.ControlAction) ([]Delivery, error) {
	var out []Delivery
	switch action {
	case protocol.ControlPause:
		if s.Status != protocol.StatusRunning {
			return nil, fmt.Errorf("%w: pause while %s", ErrBadTransition, s.Status)
		}
		s.Status = protocol.StatusPaused
		out = append(out, send(Everyone(), protocol.SimulationPaused{Envelope: s.env(), Message: "Simulation paused by instructor"}))
		out = append(out, s.record("warning", "Simulation paused", name)...)
	case protocol.ControlResume:
		if s.Status != protocol.StatusPaused {
			return nil, fmt.Errorf("%w: resume while %s", ErrBadTransition, s.Status)
		}
		s.Status = protocol.StatusRunning
		out = append(out, send(Everyone(), protocol.SimulationResumed{Envelope: s.env(), Message: "Simulation resumed by instructor"}))
		out = append(out, s.record("info", "Simulation resumed", name)...)
	case protocol.ControlEnd:
		return s.End(name), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrBadAction, action)
	}
	return append(out, send(Everyone(), protocol.SessionState{Envelope: s.env(), Status: s.Status})), nil
}

// End finishes the session and publishes the leaderboard. Calling it again is a no-op.
func (s *Session) End(name string) []Delivery {
	if s.Status == protocol.StatusEnded {
		return nil
	}
	s.Status = protocol.StatusEnded
	s.EndedAt = s.now()
	out := s.record("end", "Simulation ended", name)
	return append(out,
		send(Everyone(), protocol.SimulationEnded{
			Envelope:    s.env(),
			Leaderboard: s.Leaderboard(),
			Summary:     protocol.Summary{Metrics: s.metrics, Duration: s.elapsed()},
		}),
		send(Everyone(), protocol.SessionState{Envelope: s.env(), Status: s.Status}),
	)
}

func (s *Session) InstructorAction(name string, m protocol.InstructorAction) ([]Delivery, error) {
	target, ok := s.participantByID(m.ParticipantID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParticipant, m.ParticipantID)
	}
	switch m.Action {
	case "assign_role":
		return nil, ErrRoleImmutable
	case "kick":
		out := []Delivery{{
			To:    To(target.Name),
			Msg:   protocol.ErrorMessage{Envelope: s.env(), Code: 4003, Text: "Removed from the simulation by " + name},
			Close: true,
		}}
		return append(out, s.Disconnect(target.Name)...), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrBadAction, m.Action)
	}
}
