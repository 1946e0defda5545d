package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/DoyleJ11/cyberlab-sim/pkg/protocol"
)

const usage = `/chat <text>              chat to everyone
/broadcast <text>         instructor announcement
/objectives, /hints       attacker helpers
/classify <category> [confidence]
/block <ip>, /unblock <ip>
/detect <low|medium|high> <threshold>
/pause, /resume, /end     instructor controls
/kick <participant id>
/scores                   scoreboard
anything else             executed as an attacker command`

var errUsage = errors.New(usage)

// parseRole accepts a role name in any letter case.
func parseRole(s string) (protocol.Role, error) {
	for _, r := range protocol.AllRoles {
		if strings.EqualFold(s, string(r)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// parseLine turns one line of input into a client message. A nil message
// with a nil error means there is nothing to send.
func parseLine(line string) (protocol.Outbound, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	if !strings.HasPrefix(line, "/") {
		return protocol.ExecuteCommand{Command: line}, nil
	}

	cmd, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	args := strings.Fields(rest)
	switch cmd {
	case "help":
		return nil, errUsage
	case "chat":
		return protocol.ChatMessage{Message: rest}, nil
	case "broadcast":
		return protocol.Broadcast{Message: rest}, nil
	case "objectives":
		return protocol.RequestObjectives{}, nil
	case "hints":
		return protocol.RequestHints{}, nil
	case "scores":
		return protocol.RequestScoreboard{}, nil
	case "pause":
		return protocol.InstructorControl{Action: protocol.ControlPause}, nil
	case "resume":
		return protocol.InstructorControl{Action: protocol.ControlResume}, nil
	case "end":
		return protocol.InstructorControl{Action: protocol.ControlEnd}, nil
	case "kick":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: /kick <participant id>")
		}
		return protocol.InstructorAction{Action: "kick", ParticipantID: args[0]}, nil
	case "block", "unblock":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: /%s <ip>", cmd)
		}
		action := protocol.ActionBlockIP
		if cmd == "unblock" {
			action = protocol.ActionUnblockIP
		}
		return protocol.DefenderAction{Action: action, Target: args[0]}, nil
	case "classify":
		if len(args) == 0 || len(args) > 2 {
			return nil, fmt.Errorf("usage: /classify <category> [confidence]")
		}
		m := protocol.DefenderClassify{Classification: args[0]}
		if len(args) == 2 {
			c, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return nil, fmt.Errorf("confidence: %w", err)
			}
			m.Confidence = &c
		}
		return m, nil
	case "detect":
		if len(args) != 2 {
			return nil, fmt.Errorf("usage: /detect <low|medium|high> <threshold>")
		}
		th, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return nil, fmt.Errorf("threshold: %w", err)
		}
		return protocol.UpdateDetectionConfig{Config: protocol.DetectionConfig{
			SensitivityLevel: args[0],
			EnabledDetectors: []string{"aho_corasick"},
			AlertThreshold:   th,
		}}, nil
	}
	return nil, fmt.Errorf("unknown command /%s (try /help)", cmd)
}

func render(m protocol.Inbound) string {
	switch v := m.(type) {
	case protocol.JoinAck:
		return fmt.Sprintf("joined as %s (%s, id %s), pass score %d", v.Name, v.Role, v.ParticipantID, v.PassScore)
	case protocol.CommandResult:
		return v.Output
	case protocol.ChatMessage:
		return fmt.Sprintf("<%s> %s", v.Sender, v.Message)
	case protocol.InstructorBroadcast:
		return fmt.Sprintf("[broadcast] %s: %s", v.Sender, v.Message)
	case protocol.Objectives:
		var b strings.Builder
		for _, o := range v.Items {
			mark := " "
			if o.Completed {
				mark = "x"
			}
			fmt.Fprintf(&b, "[%s] %-18s %s (+%d)\n", mark, o.ID, o.Description, o.Points)
		}
		return strings.TrimRight(b.String(), "\n")
	case protocol.Hints:
		var b strings.Builder
		for _, h := range v.Items {
			fmt.Fprintf(&b, "hint %s: %s\n", h.ID, h.Hint)
		}
		fmt.Fprintf(&b, "%d hints left", v.Remaining)
		return b.String()
	case protocol.ScoreUpdate:
		return fmt.Sprintf("score %s = %d", v.Name, v.Score)
	case protocol.ClassificationResult:
		if v.Message != "" {
			return fmt.Sprintf("classification: %s (total %d)", v.Message, v.Total)
		}
		return fmt.Sprintf("classification correct: +%d (total %d)", v.Awarded, v.Total)
	case protocol.ErrorMessage:
		return fmt.Sprintf("error %d: %s", v.Code, v.Text)
	case protocol.SimulationEnded:
		var b strings.Builder
		b.WriteString("simulation ended\n")
		for i, e := range v.Leaderboard {
			fmt.Fprintf(&b, "%2d. %-12s %-9s %d\n", i+1, e.Name, e.Role, e.Score)
		}
		return strings.TrimRight(b.String(), "\n")
	}
	data, err := protocol.Encode(m)
	if err != nil {
		return fmt.Sprintf("%s (unprintable: %v)", m.Kind(), err)
	}
	return string(data)
}
