package engine

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/cyberlab-sim/pkg/protocol"
)

var ErrNotJoined = errors.New("join first")
var ErrForbidden = errors.New("not permitted for your role")
var ErrUnknownRole = errors.New("unknown role")
var ErrRoleConflict = errors.New("name already taken with another role")
var ErrRoleImmutable = errors.New("roles cannot be changed during a session")
var ErrUnknownParticipant = errors.New("unknown participant")
var ErrPaused = errors.New("simulation is paused")
var ErrEnded = errors.New("simulation has ended")
var ErrBadTransition = errors.New("invalid status change")
var ErrUnsupportedMessage = errors.New("unsupported message")
var ErrBadAction = errors.New("unsupported action")

// ErrorCode maps an Apply error to the code carried in the error message kind.
func ErrorCode(err error) int {
	switch {
	case errors.Is(err, ErrNotJoined):
		return 401
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrRoleImmutable):
		return 403
	case errors.Is(err, ErrUnknownParticipant):
		return 404
	case errors.Is(err, ErrRoleConflict), errors.Is(err, ErrPaused),
		errors.Is(err, ErrEnded), errors.Is(err, ErrBadTransition):
		return 409
	default:
		return 400
	}
}

// kinds that keep working while the session is paused
var allowedWhilePaused = map[protocol.MessageType]bool{
	protocol.TypeChatMessage:       true,
	protocol.TypeBroadcast:         true,
	protocol.TypeRequestScoreboard: true,
	protocol.TypeRequestObjectives: true,
	protocol.TypeInstructorControl: true,
	protocol.TypeInstructorAction:  true,
}

/*
	execute_command         -> attack_event, objectives_update, score_update, objective_completed,
	                           command_result, detection_event, detection_alert, off_objective_threat
	defender_classify       -> classification_result, objective_defended, defender_action, score_update
	instructor_control      -> simulation_paused | simulation_resumed | simulation_ended, session_state
	everything that happens -> simulation_event to instructors
*/

// Apply runs one client message from the participant called name. Join is
// handled by Session.Join since it is the only kind accepted from strangers.
func Apply(s *Session, name string, msg protocol.Outbound) ([]Delivery, error) {
	if j, ok := msg.(protocol.Join); ok {
		return s.Join(j.Name, j.Role)
	}
	p, ok := s.participants[name]
	if !ok {
		return nil, ErrNotJoined
	}
	kind := msg.Kind()
	if !protocol.Permitted(p.Role, kind) {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, kind)
	}

	switch s.Status {
	case protocol.StatusEnded:
		if kind != protocol.TypeRequestScoreboard {
			return nil, ErrEnded
		}
	case protocol.StatusPaused:
		if !allowedWhilePaused[kind] {
			return nil, ErrPaused
		}
	}

	switch m := msg.(type) {
	case protocol.ExecuteCommand:
		return s.ExecuteCommand(name, m.Command), nil
	case protocol.RequestObjectives:
		return s.RequestObjectives(name), nil
	case protocol.RequestHints:
		return s.RequestHints(name), nil
	case protocol.DefenderClassify:
		return s.Classify(name, m), nil
	case protocol.UpdateDetectionConfig:
		return s.UpdateDetectionConfig(name, m.Config), nil
	case protocol.DefenderAction:
		return s.DefenderAction(name, m)
	case protocol.ChatMessage:
		return s.Chat(name, m.Message), nil
	case protocol.Broadcast:
		return s.Broadcast(name, m.Message), nil
	case protocol.InstructorControl:
		return s.Control(name, m.Action)
	case protocol.InstructorAction:
		return s.InstructorAction(name, m)
	case protocol.RequestScoreboard:
		return []Delivery{send(To(name), protocol.Scoreboard{Envelope: s.env(), Scores: s.Scores()})}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMessage, kind)
	}
}
