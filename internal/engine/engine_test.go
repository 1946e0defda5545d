package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/cyberlab-sim/internal/detect"
	"github.com/DoyleJ11/cyberlab-sim/pkg/protocol"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSession(t *testing.T, d protocol.Difficulty) (*Session, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	m, err := detect.NewMatcher([]detect.Signature{
		{ID: "nmap_scan", Pattern: "nmap", Description: "Nmap scan detected"},
		{ID: "sqlmap", Pattern: "sqlmap", Description: "SQL injection tool"},
	})
	require.NoError(t, err)
	s := NewSession("ABC123", d, WithClock(clock.now), WithRand(rand.New(rand.NewSource(7))), WithMatcher(m))
	return s, clock
}

func mustJoin(t *testing.T, s *Session, name string, role protocol.Role) []Delivery {
	t.Helper()
	out, err := Apply(s, "", protocol.Join{Name: name, Role: role})
	require.NoError(t, err)
	return out
}

// received returns what name (holding role) would be sent, in order.
func received(out []Delivery, name string, role protocol.Role) []protocol.Inbound {
	var msgs []protocol.Inbound
	for _, d := range out {
		if d.To.Includes(name, role) {
			msgs = append(msgs, d.Msg)
		}
	}
	return msgs
}

func kinds(msgs []protocol.Inbound) []protocol.MessageType {
	out := make([]protocol.MessageType, len(msgs))
	for i, m := range msgs {
		out[i] = m.Kind()
	}
	return out
}

func first[T protocol.Inbound](t *testing.T, msgs []protocol.Inbound) T {
	t.Helper()
	for _, m := range msgs {
		if v, ok := m.(T); ok {
			return v
		}
	}
	var zero T
	t.Fatalf("no %T among %v", zero, kinds(msgs))
	return zero
}

func all[T protocol.Inbound](msgs []protocol.Inbound) []T {
	var out []T
	for _, m := range msgs {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func objectivePoints(s *Session, name, id string) int {
	for _, o := range s.Objectives(name) {
		if o.ID == id {
			return o.Points
		}
	}
	return 0
}

func TestJoin_AttackerGetsAckSnapshotAndObjectives(t *testing.T) {
	s, _ := newTestSession(t, protocol.DifficultyBeginner)
	mustJoin(t, s, "ivy", protocol.RoleInstructor)
	out := mustJoin(t, s, "alice", protocol.RoleAttacker)

	mine := received(out, "alice", protocol.RoleAttacker)
	assert.Equal(t, []protocol.MessageType{protocol.TypeJoinAck, protocol.TypeSessionSnapshot, protocol.TypeObjectives}, kinds(mine))

	ack := first[protocol.JoinAck](t, mine)
	assert.NotEmpty(t, ack.ParticipantID)
	assert.Equal(t, 40, ack.PassScore)
	assert.True(t, ack.HintsEnabled)

	objs := first[protocol.Objectives](t, mine).Items
	require.Len(t, objs, 6)
	hard := 0
	for _, o := range objs {
		require.NoError(t, protocol.Objectives{Items: []protocol.Objective{o}}.Validate())
		if o.Points == HardPoints {
			hard++
		}
	}
	assert.Equal(t, 1, hard)

	instructor := received(out, "ivy", protocol.RoleInstructor)
	joined := first[protocol.ParticipantJoined](t, instructor)
	assert.Equal(t, "alice", joined.Participant.Name)
	ev := first[protocol.SimulationEvent](t, instructor)
	assert.Equal(t, "info", ev.EventType)
}

func TestJoin_RejoinRestoresRecord(t *testing.T) {
	s, _ := newTestSession(t, protocol.DifficultyBeginner)
	mustJoin(t, s, "obs", protocol.RoleObserver)
	mustJoin(t, s, "bob", protocol.RoleDefender)
	before, _ := s.Participant("bob")

	out := s.Disconnect("bob")
	gone := first[protocol.ParticipantDisconnected](t, received(out, "obs", protocol.RoleObserver))
	assert.False(t, gone.Participant.Connected)

	p, ok := s.Participant("bob")
	require.True(t, ok, "records are never removed")
	assert.False(t, p.Connected)

	out = mustJoin(t, s, "bob", protocol.RoleDefender)
	after, _ := s.Participant("bob")
	assert.Equal(t, before.ID, after.ID)
	assert.True(t, after.Connected)
	first[protocol.ParticipantReconnected](t, received(out, "obs", protocol.RoleObserver))

	_, err := Apply(s, "", protocol.Join{Name: "bob", Role: protocol.RoleAttacker})
	assert.ErrorIs(t, err, ErrRoleConflict)
	assert.Len(t, s.Participants(), 2)
}

func TestApply_RequiresJoinAndRole(t *testing.T) {
	s, _ := newTestSession(t, protocol.DifficultyBeginner)
	_, err := Apply(s, "ghost", protocol.ChatMessage{Message: "hi"})
	assert.ErrorIs(t, err, ErrNotJoined)
	assert.Equal(t, 401, ErrorCode(err))

	mustJoin(t, s, "obs", protocol.RoleObserver)
	_, err = Apply(s, "obs", protocol.ExecuteCommand{Command: "nmap"})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, 403, ErrorCode(err))

	_, err = Apply(s, "obs", protocol.InstructorControl{Action: protocol.ControlEnd})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestExecuteCommand_CompletesObjective(t *testing.T) {
	s, _ := newTestSession(t, protocol.DifficultyHard)
	mustJoin(t, s, "bob", protocol.RoleDefender)
	mustJoin(t, s, "alice", protocol.RoleAttacker)
	pts := objectivePoints(s, "alice", "recon_scan")
	require.NotZero(t, pts)

	out, err := Apply(s, "alice", protocol.ExecuteCommand{Command: "nmap -sV 10.0.0.5"})
	require.NoError(t, err)

	mine := received(out, "alice", protocol.RoleAttacker)
	upd := first[protocol.ObjectivesUpdate](t, mine)
	assert.Equal(t, []string{"recon_scan"}, upd.Completed)
	assert.Equal(t, pts, upd.Score)
	assert.Equal(t, 9, upd.Remaining)
	results := all[protocol.CommandResult](mine)
	require.NotEmpty(t, results)
	assert.Equal(t, "Matched: Nmap scan detected", results[0].Output)
	first[protocol.DetectionAlert](t, mine)

	def := received(out, "bob", protocol.RoleDefender)
	atk := first[protocol.AttackEvent](t, def)
	assert.Equal(t, AttackSourceIP, atk.Event.SourceIP)
	assert.NotEmpty(t, atk.Event.ID)
	done := first[protocol.ObjectiveCompleted](t, def)
	assert.Equal(t, "recon", done.Category)
	det := first[protocol.DetectionEvent](t, def)
	assert.True(t, det.Detected)
	assert.Equal(t, 0.7, det.Confidence)
	assert.Equal(t, atk.Event.ID, det.ID)
	assert.Empty(t, all[protocol.OffObjectiveThreat](def), "an objective was completed")

	assert.Equal(t, pts, s.Score("alice"))
	m := s.Metrics()
	assert.Equal(t, 1, m.AttacksLaunched)
	assert.Equal(t, 1, m.DetectionsTriggered)
}

func TestExecuteCommand_NoMatch(t *testing.T) {
	s, _ := newTestSession(t, protocol.DifficultyIntermediate)
	mustJoin(t, s, "alice", protocol.RoleAttacker)

	out := s.ExecuteCommand("alice", "ls -la")
	mine := received(out, "alice", protocol.RoleAttacker)
	assert.Equal(t, "Command executed.", first[protocol.CommandResult](t, mine).Output)
	assert.Empty(t, all[protocol.DetectionAlert](mine))
	assert.Equal(t, 0, s.Score("alice"))
}

func TestExecuteCommand_HardModeOffObjectiveAndPenalty(t *testing.T) {
	s, _ := newTestSession(t, protocol.DifficultyHard)
	mustJoin(t, s, "bob", protocol.RoleDefender)
	mustJoin(t, s, "alice", protocol.RoleAttacker)

	s.ExecuteCommand("alice", "nmap 10.0.0.1")
	start := s.Score("alice")

	// recon_scan is done, so a second scan only trips the signature
	out := s.ExecuteCommand("alice", "nmap 10.0.0.2")
	threat := first[protocol.OffObjectiveThreat](t, received(out, "bob", protocol.RoleDefender))
	assert.Equal(t, []string{"Nmap scan detected"}, threat.Threats)
	assert.Equal(t, start, s.Score("alice"))

	out = s.ExecuteCommand("alice", "lsx")
	assert.Equal(t, start-IrrelevantPenalty, s.Score("alice"))
	outputs := all[protocol.CommandResult](received(out, "alice", protocol.RoleAttacker))
	require.Len(t, outputs, 2)
	assert.Contains(t, outputs[1].Output, "Irrelevant/typo detected: -3 points")
}

func TestExecuteCommand_PenaltyFloorsAtZero(t *testing.T) {
	s, _ := newTestSession(t, protocol.DifficultyHard)
	mustJoin(t, s, "alice", protocol.RoleAttacker)
	s.ExecuteCommand("alice", "lsx")
	s.ExecuteCommand("alice", "lsx")
	assert.Equal(t, 0, s.Score("alice"))
}

func TestExecuteCommand_GoalReachedOnce(t *testing.T) {
	s, _ := newTestSession(t, protocol.DifficultyIntermediate)
	mustJoin(t, s, "alice", protocol.RoleAttacker)
	s.Rules.PassScore = 10

	var goal int
	for _, cmd := range []string{"nmap x", "hydra y", "crontab -e"} {
		for _, r := range all[protocol.CommandResult](received(s.ExecuteCommand("alice", cmd), "alice", protocol.RoleAttacker)) {
			if len(r.Output) >= 13 && r.Output[:13] == "Goal reached!" {
				goal++
			}
		}
	}
	assert.Equal(t, 1, goal)
}

func TestExecuteCommand_Builtins(t *testing.T) {
	s, _ := newTestSession(t, protocol.DifficultyIntermediate)
	mustJoin(t, s, "alice", protocol.RoleAttacker)

	cases := map[string]string{
		"help":     "Commands: objectives/status",
		" STATUS ": "Objectives (0/8):",
		"score":    "Your score: 0",
		"hints":    "Hints are disabled for this difficulty.",
	}
	for cmd, want := range cases {
		out := s.ExecuteCommand("alice", cmd)
		require.Len(t, out, 1, cmd)
		assert.Contains(t, out[0].Msg.(protocol.CommandResult).Output, want)
	}
	assert.Zero(t, s.Metrics().AttacksLaunched, "built-ins are not attacks")
}

func TestHints_ProgressiveWithQuota(t *testing.T) {
	s, _ := newTestSession(t, protocol.DifficultyBeginner)
	mustJoin(t, s, "alice", protocol.RoleAttacker)

	h1 := first[protocol.Hints](t, received(s.RequestHints("alice"), "alice", protocol.RoleAttacker))
	require.Len(t, h1.Items, 6)
	assert.Equal(t, 6, h1.Remaining)
	def, _ := objectiveDef(h1.Items[0].ID)
	assert.Equal(t, "Try using: "+def.Triggers[0], h1.Items[0].Hint)

	h2 := first[protocol.Hints](t, received(s.RequestHints("alice"), "alice", protocol.RoleAttacker))
	require.Len(t, h2.Items, 6)
	assert.Equal(t, "Try using: "+def.Triggers[1], h2.Items[0].Hint)
	assert.Equal(t, 0, h2.Remaining)

	h3 := first[protocol.Hints](t, received(s.RequestHints("alice"), "alice", protocol.RoleAttacker))
	assert.Empty(t, h3.Items)
}

func TestClassify_QueueCooldownAndScoring(t *testing.T) {
	s, clock := newTestSession(t, protocol.DifficultyHard)
	mustJoin(t, s, "obs", protocol.RoleObserver)
	mustJoin(t, s, "bob", protocol.RoleDefender)
	mustJoin(t, s, "alice", protocol.RoleAttacker)

	res := func(out []Delivery) protocol.ClassificationResult {
		return first[protocol.ClassificationResult](t, received(out, "bob", protocol.RoleDefender))
	}

	r := res(s.Classify("bob", protocol.DefenderClassify{Classification: "recon"}))
	assert.Equal(t, "No pending attacks to defend", r.Message)

	// an empty queue does not start the cooldown
	s.ExecuteCommand("alice", "nmap 10.0.0.5")
	pts := objectivePoints(s, "alice", "recon_scan")

	r = res(s.Classify("bob", protocol.DefenderClassify{Classification: "brute"}))
	assert.False(t, r.Correct)
	assert.Equal(t, 0, r.Awarded)
	assert.Equal(t, "Incorrect category, expected: recon", r.Message)

	clock.advance(500 * time.Millisecond)
	r = res(s.Classify("bob", protocol.DefenderClassify{Classification: "recon"}))
	assert.Equal(t, 2, r.Cooldown)
	assert.Contains(t, r.Message, "Please wait")

	clock.advance(2 * time.Second)
	conf := 1.5
	out := s.Classify("bob", protocol.DefenderClassify{Objective: "Recon scan", Confidence: &conf})
	r = res(out)
	assert.True(t, r.Correct)
	assert.Equal(t, pts, r.Awarded)
	assert.Equal(t, pts, r.Total)
	assert.Equal(t, 1.0, r.ConfidenceUsed)
	assert.Equal(t, "recon_scan", r.ObjectiveID)

	obs := received(out, "obs", protocol.RoleObserver)
	defended := first[protocol.ObjectiveDefended](t, obs)
	assert.Equal(t, "alice", defended.Attacker)
	relay := first[protocol.DefenderAction](t, obs)
	assert.Equal(t, protocol.ActionClassify, relay.Action)
	require.NotNil(t, relay.Success)
	assert.True(t, *relay.Success)

	clock.advance(3 * time.Second)
	r = res(s.Classify("bob", protocol.DefenderClassify{Classification: "recon"}))
	assert.Equal(t, "No pending attacks to defend", r.Message)
	assert.Equal(t, 1, s.Metrics().SuccessfulBlocks)
}

func TestDefenderAction_BlockUnblock(t *testing.T) {
	s, _ := newTestSession(t, protocol.DifficultyBeginner)
	mustJoin(t, s, "obs", protocol.RoleObserver)
	mustJoin(t, s, "bob", protocol.RoleDefender)

	block := protocol.DefenderAction{Action: protocol.ActionBlockIP, Target: "10.0.0.9"}
	out, err := Apply(s, "bob", block)
	require.NoError(t, err)
	relay := first[protocol.DefenderAction](t, received(out, "obs", protocol.RoleObserver))
	assert.True(t, *relay.Success)
	assert.True(t, s.Blocked("10.0.0.9"))

	out, err = Apply(s, "bob", block)
	require.NoError(t, err)
	assert.False(t, *first[protocol.DefenderAction](t, received(out, "bob", protocol.RoleDefender)).Success)

	_, err = Apply(s, "bob", protocol.DefenderAction{Action: protocol.ActionUnblockIP, Target: "10.0.0.9"})
	require.NoError(t, err)
	assert.False(t, s.Blocked("10.0.0.9"))

	_, err = Apply(s, "bob", protocol.DefenderAction{Action: protocol.ActionClassify, Target: "x"})
	assert.ErrorIs(t, err, ErrBadAction)
}

func TestDetectionConfig_FiltersDefenderEvents(t *testing.T) {
	s, _ := newTestSession(t, protocol.DifficultyBeginner)
	mustJoin(t, s, "bob", protocol.RoleDefender)
	mustJoin(t, s, "dee", protocol.RoleDefender)
	mustJoin(t, s, "alice", protocol.RoleAttacker)

	_, err := Apply(s, "bob", protocol.UpdateDetectionConfig{Config: protocol.DetectionConfig{
		SensitivityLevel: "low", EnabledDetectors: []string{"isolation_forest"}, AlertThreshold: 0.5,
	}})
	require.NoError(t, err)
	_, err = Apply(s, "dee", protocol.UpdateDetectionConfig{Config: protocol.DetectionConfig{
		SensitivityLevel: "high", EnabledDetectors: []string{"aho_corasick"}, AlertThreshold: 0.9,
	}})
	require.NoError(t, err)

	out := s.ExecuteCommand("alice", "nmap 10.0.0.5")
	assert.Empty(t, all[protocol.DetectionEvent](received(out, "bob", protocol.RoleDefender)))
	dee := all[protocol.DetectionEvent](received(out, "dee", protocol.RoleDefender))
	require.Len(t, dee, 1)
	assert.False(t, dee[0].Detected, "0.7 confidence is under dee's threshold")
}

func TestControl_StatusGating(t *testing.T) {
	s, clock := newTestSession(t, protocol.DifficultyBeginner)
	mustJoin(t, s, "ivy", protocol.RoleInstructor)
	mustJoin(t, s, "alice", protocol.RoleAttacker)
	mustJoin(t, s, "bob", protocol.RoleDefender)

	out, err := Apply(s, "ivy", protocol.InstructorControl{Action: protocol.ControlPause})
	require.NoError(t, err)
	assert.Equal(t, []protocol.MessageType{protocol.TypeSimulationPaused, protocol.TypeSessionState},
		kinds(received(out, "alice", protocol.RoleAttacker)))

	_, err = Apply(s, "alice", protocol.ExecuteCommand{Command: "nmap"})
	assert.ErrorIs(t, err, ErrPaused)
	_, err = Apply(s, "alice", protocol.ChatMessage{Message: "still here"})
	assert.NoError(t, err)
	_, err = Apply(s, "ivy", protocol.InstructorControl{Action: protocol.ControlPause})
	assert.ErrorIs(t, err, ErrBadTransition)

	_, err = Apply(s, "ivy", protocol.InstructorControl{Action: protocol.ControlResume})
	require.NoError(t, err)
	_, err = Apply(s, "alice", protocol.ExecuteCommand{Command: "nmap 10.0.0.1"})
	require.NoError(t, err)

	clock.advance(90 * time.Second)
	out, err = Apply(s, "ivy", protocol.InstructorControl{Action: protocol.ControlEnd})
	require.NoError(t, err)
	ended := first[protocol.SimulationEnded](t, received(out, "bob", protocol.RoleDefender))
	assert.Equal(t, int64(90), ended.Summary.Duration)
	require.Len(t, ended.Leaderboard, 2)
	assert.Equal(t, "alice", ended.Leaderboard[0].Name)

	_, err = Apply(s, "alice", protocol.ChatMessage{Message: "gg"})
	assert.ErrorIs(t, err, ErrEnded)
	_, err = Apply(s, "alice", protocol.RequestScoreboard{})
	assert.NoError(t, err)
	assert.Empty(t, s.End("ivy"))
}

func TestInstructorAction(t *testing.T) {
	s, _ := newTestSession(t, protocol.DifficultyBeginner)
	mustJoin(t, s, "ivy", protocol.RoleInstructor)
	mustJoin(t, s, "alice", protocol.RoleAttacker)
	alice, _ := s.Participant("alice")

	_, err := Apply(s, "ivy", protocol.InstructorAction{Action: "assign_role", ParticipantID: alice.ID, Role: protocol.RoleDefender})
	assert.ErrorIs(t, err, ErrRoleImmutable)

	_, err = Apply(s, "ivy", protocol.InstructorAction{Action: "kick", ParticipantID: "nope"})
	assert.ErrorIs(t, err, ErrUnknownParticipant)

	out, err := Apply(s, "ivy", protocol.InstructorAction{Action: "kick", ParticipantID: alice.ID})
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.True(t, out[0].Close)
	assert.True(t, out[0].To.Includes("alice", protocol.RoleAttacker))
	p, _ := s.Participant("alice")
	assert.False(t, p.Connected)
}

func TestMetricsNeverDecrease(t *testing.T) {
	s, clock := newTestSession(t, protocol.DifficultyHard)
	mustJoin(t, s, "alice", protocol.RoleAttacker)
	mustJoin(t, s, "bob", protocol.RoleDefender)

	prev := s.Metrics()
	for _, step := range []func(){
		func() { s.ExecuteCommand("alice", "nmap a") },
		func() { s.ExecuteCommand("alice", "lsx") },
		func() { s.Classify("bob", protocol.DefenderClassify{Classification: "recon"}) },
		func() { clock.advance(time.Minute); s.Disconnect("bob") },
		func() { s.End("alice") },
	} {
		step()
		m := s.Metrics()
		assert.GreaterOrEqual(t, m.TotalEvents, prev.TotalEvents)
		assert.GreaterOrEqual(t, m.AttacksLaunched, prev.AttacksLaunched)
		assert.GreaterOrEqual(t, m.DetectionsTriggered, prev.DetectionsTriggered)
		assert.GreaterOrEqual(t, m.SuccessfulBlocks, prev.SuccessfulBlocks)
		prev = m
	}
}

func TestTakeLog(t *testing.T) {
	s, _ := newTestSession(t, protocol.DifficultyBeginner)
	mustJoin(t, s, "alice", protocol.RoleAttacker)
	joined := s.TakeLog()
	require.Len(t, joined, 1)
	assert.Equal(t, "alice", joined[0].Participant)

	s.ExecuteCommand("alice", "ls")
	next := s.TakeLog()
	require.Len(t, next, 1)
	assert.Equal(t, "attack", next[0].Type)
	assert.Empty(t, s.TakeLog())
	assert.Len(t, s.Log(), 2)
}

func TestAudience(t *testing.T) {
	a := Audience{Names: []string{"alice"}, Roles: []protocol.Role{protocol.RoleObserver}}
	assert.True(t, a.Includes("alice", protocol.RoleAttacker))
	assert.True(t, a.Includes("zed", protocol.RoleObserver))
	assert.False(t, a.Includes("bob", protocol.RoleDefender))

	b := EveryoneBut("alice")
	assert.False(t, b.Includes("alice", protocol.RoleAttacker))
	assert.True(t, b.Includes("bob", protocol.RoleDefender))
}
