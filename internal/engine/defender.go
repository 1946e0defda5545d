package engine

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/time/rate"

	"github.com/DoyleJ11/cyberlab-sim/pkg/protocol"
)

func (s *Session) limiter(name string) *rate.Limiter {
	lim, ok := s.cooldowns[name]
	if !ok {
		lim = rate.NewLimiter(rate.Every(ClassifyCooldown), 1)
		s.cooldowns[name] = lim
	}
	return lim
}

// Classify judges a defender's guess against the oldest undefended
// objective completion. A correct category earns that objective's points.
func (s *Session) Classify(name string, m protocol.DefenderClassify) []Delivery {
	now := s.now()
	confidence := DefaultConfidence
	if m.Confidence != nil {
		confidence = math.Max(0, math.Min(1, *m.Confidence))
	}
	classification := strings.ToLower(m.Classification)
	guess := strings.ToLower(m.Objective)

	r := s.limiter(name).ReserveN(now, 1)
	if wait := r.DelayFrom(now); wait > 0 {
		r.CancelAt(now)
		secs := max(1, int(math.Round(wait.Seconds())))
		return []Delivery{send(To(name), protocol.ClassificationResult{
			Envelope: s.env(),
			Total:    s.scores[name],
			Cooldown: secs,
			Message:  fmt.Sprintf("Please wait %ds before classifying again", secs),
		})}
	}

	if len(s.pending) == 0 {
		r.CancelAt(now)
		return []Delivery{send(To(name), protocol.ClassificationResult{
			Envelope: s.env(),
			Total:    s.scores[name],
			Message:  "No pending attacks to defend",
		})}
	}

	head := s.pending[0]
	expected := string(head.Category)
	correct := expected != "" && (strings.Contains(classification, expected) || strings.Contains(guess, expected))

	var out []Delivery
	awarded := 0
	msg := ""
	if correct {
		awarded = head.Points
		s.pending = s.pending[1:]
		s.scores[name] += awarded
		s.metrics.SuccessfulBlocks++
		out = append(out, send(ToRoles(watchers...), protocol.ObjectiveDefended{
			Envelope:    s.env(),
			Defender:    name,
			Attacker:    head.Attacker,
			ObjectiveID: head.ObjectiveID,
			Category:    expected,
		}))
	} else {
		msg = "Incorrect category, expected: " + expected
	}

	success := correct
	target := m.Classification
	if target == "" {
		target = m.Objective
	}
	out = append(out,
		send(To(name), protocol.ClassificationResult{
			Envelope:       s.env(),
			Awarded:        awarded,
			Total:          s.scores[name],
			Correct:        correct,
			ConfidenceUsed: confidence,
			ObjectiveID:    head.ObjectiveID,
			Message:        msg,
		}),
		send(ToRoles(protocol.RoleObserver), protocol.DefenderAction{
			Envelope: s.env(),
			Action:   protocol.ActionClassify,
			Target:   target,
			Success:  &success,
		}),
		s.scoreUpdate(name),
	)
	out = append(out, s.record("detection", fmt.Sprintf("%s classified attack (%s)", name, classification), name)...)
	return append(out, s.metricsUpdate())
}

func (s *Session) UpdateDetectionConfig(name string, cfg protocol.DetectionConfig) []Delivery {
	s.detection[name] = cfg
	out := []Delivery{send(To(name), protocol.ServerMessage{Envelope: s.env(), Level: "info", Text: "Detection config updated"})}
	return append(out, s.record("config", name+" updated detection config", name)...)
}

// DefenderAction applies a firewall change and relays the outcome to the
// defender and observers.
func (s *Session) DefenderAction(name string, m protocol.DefenderAction) ([]Delivery, error) {
	var success bool
	switch m.Action {
	case protocol.ActionBlockIP:
		success = !s.blocked[m.Target]
		s.blocked[m.Target] = true
		if success {
			s.metrics.SuccessfulBlocks++
		}
	case protocol.ActionUnblockIP:
		success = s.blocked[m.Target]
		delete(s.blocked, m.Target)
	default:
		return nil, fmt.Errorf("%w: %s", ErrBadAction, m.Action)
	}

	relay := protocol.DefenderAction{
		Envelope: s.env(),
		Action:   m.Action,
		Target:   m.Target,
		Duration: m.Duration,
		Success:  &success,
	}
	out := []Delivery{send(Audience{Names: []string{name}, Roles: []protocol.Role{protocol.RoleObserver}}, relay)}
	out = append(out, s.record("block", fmt.Sprintf("%s %s %s", name, m.Action, m.Target), name)...)
	return append(out, s.metricsUpdate()), nil
}

// Blocked reports whether ip is currently blocked by any defender.
func (s *Session) Blocked(ip string) bool { return s.blocked[ip] }
