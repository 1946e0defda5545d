package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/cyberlab-sim/pkg/protocol"
)

func TestParseLine(t *testing.T) {
	conf := 0.9
	tests := []struct {
		line string
		want protocol.Outbound
	}{
		{"nmap -sV 10.0.0.5", protocol.ExecuteCommand{Command: "nmap -sV 10.0.0.5"}},
		{"/chat hello there", protocol.ChatMessage{Message: "hello there"}},
		{"/hints", protocol.RequestHints{}},
		{"/pause", protocol.InstructorControl{Action: protocol.ControlPause}},
		{"/block 10.0.0.9", protocol.DefenderAction{Action: protocol.ActionBlockIP, Target: "10.0.0.9"}},
		{"/classify recon 0.9", protocol.DefenderClassify{Classification: "recon", Confidence: &conf}},
		{"/kick abc", protocol.InstructorAction{Action: "kick", ParticipantID: "abc"}},
	}
	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			got, err := parseLine(tc.line)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.NoError(t, got.Validate())
		})
	}
}

func TestParseLine_Errors(t *testing.T) {
	got, err := parseLine("   ")
	assert.NoError(t, err)
	assert.Nil(t, got)

	for _, line := range []string{"/teleport", "/block", "/classify recon lots", "/detect high"} {
		_, err := parseLine(line)
		assert.Error(t, err, line)
	}
	_, err = parseLine("/help")
	assert.ErrorIs(t, err, errUsage)
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]protocol.Role{
		"defender":   protocol.RoleDefender,
		"Defender":   protocol.RoleDefender,
		"INSTRUCTOR": protocol.RoleInstructor,
		"observer":   protocol.RoleObserver,
		"attacker":   protocol.RoleAttacker,
	} {
		got, err := parseRole(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := parseRole("admin")
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	assert.Equal(t, "<bob> hi", render(protocol.ChatMessage{Sender: "bob", Message: "hi"}))
	assert.Equal(t, "error 409: simulation is paused", render(protocol.ErrorMessage{Code: 409, Text: "simulation is paused"}))
	assert.Contains(t, render(protocol.SessionState{Status: protocol.StatusPaused}), `"type":"session_state"`)
}
