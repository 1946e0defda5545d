package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/DoyleJ11/cyberlab-sim/internal/detect"
	"github.com/DoyleJ11/cyberlab-sim/pkg/protocol"
)

const helpText = "Commands: objectives/status, hint(s), score.\n" +
	"- objectives/status: show your tasks and progress\n" +
	"- hint(s): get a nudge for remaining tasks\n" +
	"- score: show your current score"

func (s *Session) ExecuteCommand(name, command string) []Delivery {
	if out, ok := s.builtin(name, command); ok {
		return []Delivery{send(To(name), protocol.CommandResult{Envelope: s.env(), Command: command, Output: out})}
	}

	eventID := s.newEventID()
	out := []Delivery{send(ToRoles(watchers...), protocol.AttackEvent{
		Envelope: s.env(),
		Event:    protocol.AttackInfo{ID: eventID, Command: command, SourceIP: AttackSourceIP},
	})}
	s.metrics.AttacksLaunched++
	out = append(out, s.record("attack", fmt.Sprintf("%s executed: %s", name, command), name)...)

	completed := s.completeObjectives(name, command)
	if len(completed) > 0 {
		out = append(out,
			send(To(name), protocol.ObjectivesUpdate{
				Envelope:  s.env(),
				Items:     s.Objectives(name),
				Completed: completed,
				Score:     s.scores[name],
				Remaining: s.remaining(name),
			}),
			s.scoreUpdate(name),
		)
		for _, id := range completed {
			def, _ := objectiveDef(id)
			out = append(out, send(ToRoles(watchers...), protocol.ObjectiveCompleted{
				Envelope:    s.env(),
				Attacker:    name,
				ObjectiveID: id,
				Category:    string(def.Category),
			}))
		}
	}

	matches := s.matcher.Match(command)
	threats := detect.Labels(matches)
	result := "Command executed."
	if len(matches) > 0 {
		lines := make([]string, len(threats))
		for i, t := range threats {
			lines[i] = "Matched: " + t
		}
		result = strings.Join(lines, "\n")
	}
	out = append(out, send(To(name), protocol.CommandResult{Envelope: s.env(), Command: command, Output: result}))
	out = append(out, s.detectionEvents(eventID, threats)...)

	if len(matches) > 0 {
		s.metrics.DetectionsTriggered++
		out = append(out, send(To(name), protocol.DetectionAlert{Envelope: s.env(), Message: "Threat signature detected!", Severity: "medium"}))
		out = append(out, s.record("detection", "Signature match: "+strings.Join(threats, ", "), name)...)
	}

	if len(completed) == 0 && s.Difficulty == protocol.DifficultyHard && len(matches) > 0 {
		out = append(out, send(ToRoles(watchers...), protocol.OffObjectiveThreat{
			Envelope: s.env(),
			Attacker: name,
			Command:  command,
			Threats:  threats,
		}))
	}
	if len(completed) == 0 && len(matches) == 0 && s.Rules.PenalizeIrrelevant {
		s.scores[name] = max(0, s.scores[name]-IrrelevantPenalty)
		out = append(out,
			send(To(name), protocol.CommandResult{
				Envelope: s.env(),
				Command:  command,
				Output:   fmt.Sprintf("Irrelevant/typo detected: -%d points. Current score: %d", IrrelevantPenalty, s.scores[name]),
			}),
			s.scoreUpdate(name),
		)
	}

	if sc := s.scores[name]; sc >= s.Rules.PassScore && !s.passNotified[name] {
		s.passNotified[name] = true
		out = append(out, send(To(name), protocol.CommandResult{
			Envelope: s.env(),
			Command:  command,
			Output:   fmt.Sprintf("Goal reached! You have %d points (pass threshold: %d).", sc, s.Rules.PassScore),
		}))
		out = append(out, s.record("info", fmt.Sprintf("%s reached the pass threshold", name), name)...)
	}

	return append(out, s.metricsUpdate())
}

// builtin answers the helper commands locally without touching the lab.
func (s *Session) builtin(name, command string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case "help":
		return helpText, true
	case "objectives", "status":
		objs := s.objectives[name]
		if len(objs) == 0 {
			return "No objectives assigned yet. Use: Request Objectives button.", true
		}
		lines := make([]string, 0, len(objs)+1)
		lines = append(lines, fmt.Sprintf("Objectives (%d/%d):", len(objs)-s.remaining(name), len(objs)))
		for _, o := range objs {
			mark := " "
			if o.Completed {
				mark = "✓"
			}
			lines = append(lines, fmt.Sprintf("[%s] %s (+%d)", mark, o.Description, o.Points))
		}
		return strings.Join(lines, "\n"), true
	case "hint", "hints":
		hs := s.takeHints(name)
		if len(hs) == 0 {
			if !s.Rules.HintsEnabled {
				return "Hints are disabled for this difficulty.", true
			}
			return "No hints available (quota reached or no pending objectives).", true
		}
		lines := make([]string, len(hs))
		for i, h := range hs {
			lines[i] = fmt.Sprintf("- %s: %s", h.ID, h.Hint)
		}
		return strings.Join(lines, "\n"), true
	case "score":
		return fmt.Sprintf("Your score: %d", s.scores[name]), true
	}
	return "", false
}

// completeObjectives marks every open objective whose trigger appears in
// command, credits the attacker and queues a defense opportunity for each.
func (s *Session) completeObjectives(name, command string) []string {
	var done []string
	objs := s.objectives[name]
	for i := range objs {
		if objs[i].Completed {
			continue
		}
		def, ok := objectiveDef(objs[i].ID)
		if !ok || !containsAny(command, def.Triggers) {
			continue
		}
		objs[i].Completed = true
		s.scores[name] += objs[i].Points
		s.pending = append(s.pending, pendingDefense{
			Attacker:    name,
			ObjectiveID: objs[i].ID,
			Category:    def.Category,
			Points:      objs[i].Points,
		})
		done = append(done, objs[i].ID)
	}
	return done
}

func (s *Session) remaining(name string) int {
	n := 0
	for _, o := range s.objectives[name] {
		if !o.Completed {
			n++
		}
	}
	return n
}

// detectionEvents fans the signature verdict out to observers as-is and to
// each defender filtered through that defender's detection config.
func (s *Session) detectionEvents(eventID string, threats []string) []Delivery {
	detected := len(threats) > 0
	confidence := 0.2
	if detected {
		confidence = DefaultConfidence
	}
	raw := protocol.DetectionEvent{
		Envelope:   s.env(),
		ID:         eventID,
		Method:     "signature",
		Detected:   detected,
		Confidence: confidence,
		Threats:    threats,
	}
	out := []Delivery{send(ToRoles(protocol.RoleObserver), raw)}

	for _, p := range s.Participants() {
		if p.Role != protocol.RoleDefender {
			continue
		}
		ev := raw
		if cfg, ok := s.detection[p.Name]; ok {
			if len(cfg.EnabledDetectors) > 0 && !slices.Contains(cfg.EnabledDetectors, "aho_corasick") {
				continue
			}
			ev.Detected = detected && confidence >= cfg.AlertThreshold
		}
		out = append(out, send(To(p.Name), ev))
	}
	return out
}

func (s *Session) RequestObjectives(name string) []Delivery {
	if _, ok := s.objectives[name]; !ok {
		s.assignObjectives(name)
	}
	return []Delivery{send(To(name), protocol.Objectives{Envelope: s.env(), Items: s.Objectives(name)})}
}

func (s *Session) RequestHints(name string) []Delivery {
	hs := s.takeHints(name)
	return []Delivery{send(To(name), protocol.Hints{
		Envelope:  s.env(),
		Items:     hs,
		Remaining: max(0, s.Rules.HintsQuota-s.hintUsage[name]),
	})}
}

// takeHints reveals the next trigger keyword of each open objective, one
// per objective per call, until the quota runs out.
func (s *Session) takeHints(name string) []protocol.Hint {
	if !s.Rules.HintsEnabled {
		return nil
	}
	left := s.Rules.HintsQuota - s.hintUsage[name]
	if left <= 0 {
		return nil
	}
	prog := s.hintProgress[name]
	if prog == nil {
		prog = map[string]int{}
		s.hintProgress[name] = prog
	}

	var hs []protocol.Hint
	for _, o := range s.objectives[name] {
		if left == 0 {
			break
		}
		if o.Completed {
			continue
		}
		def, ok := objectiveDef(o.ID)
		if !ok || prog[o.ID] >= len(def.Triggers) {
			continue
		}
		hs = append(hs, protocol.Hint{ID: o.ID, Hint: "Try using: " + def.Triggers[prog[o.ID]]})
		prog[o.ID]++
		left--
	}
	s.hintUsage[name] += len(hs)
	return hs
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
