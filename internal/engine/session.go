package engine

import (
	"fmt"
	"math/rand"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/cyberlab-sim/internal/detect"
	"github.com/DoyleJ11/cyberlab-sim/pkg/protocol"
)

type participant struct {
	protocol.Participant
	joinedAt time.Time
}

type pendingDefense struct {
	Attacker    string
	ObjectiveID string
	Category    Category
	Points      int
}

// LogEntry is one line of the session's event log.
type LogEntry struct {
	At          time.Time
	Type        string // attack | detection | block | warning | info | config | end
	Description string
	Participant string
}

// Session is the whole state of one simulation lobby. It is not safe for
// concurrent use; the lobby actor owns it.
type Session struct {
	Code       string
	Difficulty protocol.Difficulty
	Rules      Rules
	Status     protocol.SessionStatus
	StartedAt  time.Time
	EndedAt    time.Time

	participants map[string]*participant // by name
	scores       map[string]int
	objectives   map[string][]protocol.Objective
	pending      []pendingDefense
	cooldowns    map[string]*rate.Limiter
	hintUsage    map[string]int
	hintProgress map[string]map[string]int
	detection    map[string]protocol.DetectionConfig
	blocked      map[string]bool
	passNotified map[string]bool
	metrics      protocol.Metrics
	log          []LogEntry
	flushed      int

	matcher *detect.Matcher
	rng     *rand.Rand
	now     func() time.Time
}

type Option func(*Session)

func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

func WithRand(r *rand.Rand) Option { return func(s *Session) { s.rng = r } }

func WithMatcher(m *detect.Matcher) Option { return func(s *Session) { s.matcher = m } }

func NewSession(code string, d protocol.Difficulty, opts ...Option) *Session {
	if !d.Valid() {
		d = protocol.DifficultyBeginner
	}
	s := &Session{
		Code:         code,
		Difficulty:   d,
		Rules:        RulesFor(d),
		Status:       protocol.StatusRunning,
		participants: map[string]*participant{},
		scores:       map[string]int{},
		objectives:   map[string][]protocol.Objective{},
		cooldowns:    map[string]*rate.Limiter{},
		hintUsage:    map[string]int{},
		hintProgress: map[string]map[string]int{},
		detection:    map[string]protocol.DetectionConfig{},
		blocked:      map[string]bool{},
		passNotified: map[string]bool{},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.matcher == nil {
		s.matcher = detect.Default()
	}
	s.StartedAt = s.now()
	return s
}

func (s *Session) env() protocol.Envelope {
	return protocol.Envelope{Timestamp: s.now().UnixMilli(), LobbyCode: s.Code}
}

// Join registers name or restores its earlier record. The deliveries include
// the joiner's ack and snapshot.
func (s *Session) Join(name string, role protocol.Role) ([]Delivery, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	if p, ok := s.participants[name]; ok {
		if p.Role != role {
			return nil, fmt.Errorf("%w: %s is already %s", ErrRoleConflict, name, p.Role)
		}
		wasConnected := p.Connected
		p.Connected = true
		out := s.welcome(p)
		if !wasConnected {
			out = append(out, send(EveryoneBut(name), protocol.ParticipantReconnected{Envelope: s.env(), Participant: p.Participant}))
			out = append(out, s.record("info", name+" reconnected", name)...)
		}
		return out, nil
	}

	p := &participant{
		Participant: protocol.Participant{ID: uuid.NewString(), Name: name, Role: role, Connected: true},
		joinedAt:    s.now(),
	}
	s.participants[name] = p
	s.scores[name] = 0
	if role == protocol.RoleAttacker {
		s.assignObjectives(name)
	}

	out := s.welcome(p)
	out = append(out, send(EveryoneBut(name), protocol.ParticipantJoined{Envelope: s.env(), Participant: p.Participant}))
	out = append(out, s.record("info", fmt.Sprintf("%s joined as %s", name, role), name)...)
	return out, nil
}

func (s *Session) welcome(p *participant) []Delivery {
	out := []Delivery{
		send(To(p.Name), protocol.JoinAck{
			Envelope:      s.env(),
			ParticipantID: p.ID,
			Name:          p.Name,
			Role:          p.Role,
			Difficulty:    s.Difficulty,
			PassScore:     s.Rules.PassScore,
			HintsEnabled:  s.Rules.HintsEnabled,
		}),
		send(To(p.Name), s.Snapshot(p.Name)),
	}
	if p.Role == protocol.RoleAttacker {
		out = append(out, send(To(p.Name), protocol.Objectives{Envelope: s.env(), Items: s.Objectives(p.Name)}))
	}
	return out
}

// Disconnect marks name offline. The record and score stay.
func (s *Session) Disconnect(name string) []Delivery {
	p, ok := s.participants[name]
	if !ok || !p.Connected {
		return nil
	}
	p.Connected = false
	out := []Delivery{send(EveryoneBut(name), protocol.ParticipantDisconnected{Envelope: s.env(), Participant: p.Participant})}
	return append(out, s.record("info", name+" disconnected", name)...)
}

func (s *Session) Participant(name string) (protocol.Participant, bool) {
	p, ok := s.participants[name]
	if !ok {
		return protocol.Participant{}, false
	}
	return p.Participant, true
}

func (s *Session) participantByID(id string) (*participant, bool) {
	for _, p := range s.participants {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Participants lists every record in join order.
func (s *Session) Participants() []protocol.Participant {
	ps := make([]*participant, 0, len(s.participants))
	for _, p := range s.participants {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].joinedAt.Equal(ps[j].joinedAt) {
			return ps[i].joinedAt.Before(ps[j].joinedAt)
		}
		return ps[i].Name < ps[j].Name
	})
	out := make([]protocol.Participant, len(ps))
	for i, p := range ps {
		out[i] = p.Participant
	}
	return out
}

func (s *Session) Score(name string) int { return s.scores[name] }

func (s *Session) Scores() map[string]int {
	out := make(map[string]int, len(s.scores))
	for k, v := range s.scores {
		out[k] = v
	}
	return out
}

func (s *Session) Metrics() protocol.Metrics { return s.metrics }

// Objectives returns a copy of name's assigned objectives.
func (s *Session) Objectives(name string) []protocol.Objective {
	return slices.Clone(s.objectives[name])
}

func (s *Session) elapsed() int64 {
	end := s.now()
	if s.Status == protocol.StatusEnded {
		end = s.EndedAt
	}
	return int64(end.Sub(s.StartedAt) / time.Second)
}

// Snapshot is what a (re)joining participant needs to rebuild its view.
func (s *Session) Snapshot(name string) protocol.SessionSnapshot {
	snap := protocol.SessionSnapshot{
		Envelope:     s.env(),
		Status:       s.Status,
		Time:         s.elapsed(),
		Metrics:      s.metrics,
		Participants: s.Participants(),
		Scores:       s.Scores(),
		Difficulty:   s.Difficulty,
		PassScore:    s.Rules.PassScore,
		HintsEnabled: s.Rules.HintsEnabled,
	}
	if p, ok := s.participants[name]; ok && p.Role == protocol.RoleAttacker {
		snap.Objectives = s.Objectives(name)
	}
	return snap
}

func (s *Session) assignObjectives(name string) []protocol.Objective {
	pool := slices.Clone(ObjectivePool)
	s.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	n := min(s.Rules.ObjectiveCount, len(pool))
	objs := make([]protocol.Objective, n)
	for i, d := range pool[:n] {
		objs[i] = protocol.Objective{ID: d.ID, Description: d.Description, Points: BasePoints}
	}
	for _, i := range s.rng.Perm(n)[:min(s.Rules.HardObjectives, n)] {
		objs[i].Points = HardPoints
	}
	s.objectives[name] = objs
	return slices.Clone(objs)
}

func (s *Session) newEventID() string {
	return ulid.MustNew(ulid.Timestamp(s.now()), s.rng).String()
}

// record appends to the event log and tells instructors about it.
func (s *Session) record(kind, description, who string) []Delivery {
	s.log = append(s.log, LogEntry{At: s.now(), Type: kind, Description: description, Participant: who})
	s.metrics.TotalEvents++
	return []Delivery{send(ToRoles(protocol.RoleInstructor), protocol.SimulationEvent{
		Envelope:        s.env(),
		EventType:       kind,
		Description:     description,
		ParticipantName: who,
	})}
}

// TakeLog returns entries added since the previous call.
func (s *Session) TakeLog() []LogEntry {
	out := slices.Clone(s.log[s.flushed:])
	s.flushed = len(s.log)
	return out
}

// Log returns the whole event log.
func (s *Session) Log() []LogEntry { return slices.Clone(s.log) }

func (s *Session) metricsUpdate() Delivery {
	return send(ToRoles(protocol.RoleInstructor, protocol.RoleObserver), protocol.MetricsUpdate{Envelope: s.env(), Metrics: s.metrics})
}

func (s *Session) scoreUpdate(name string) Delivery {
	return send(Everyone(), protocol.ScoreUpdate{Envelope: s.env(), Name: name, Score: s.scores[name]})
}

// Leaderboard ranks attackers and defenders by score, ties by name.
func (s *Session) Leaderboard() []protocol.LeaderboardEntry {
	var out []protocol.LeaderboardEntry
	for _, p := range s.Participants() {
		if p.Role != protocol.RoleAttacker && p.Role != protocol.RoleDefender {
			continue
		}
		out = append(out, protocol.LeaderboardEntry{ID: p.ID, Name: p.Name, Role: p.Role, Score: s.scores[p.Name]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}
