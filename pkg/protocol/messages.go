package protocol

import "strings"

// Message is implemented by every payload shape in the registry.
type Message interface {
	Kind() MessageType
	Validate() error
}

// Inbound is the closed set of kinds a client may receive.
type Inbound interface {
	Message
	inbound()
}

// Outbound is the closed set of kinds a client may send.
type Outbound interface {
	Message
	outbound()
}

// ---- session ----

type Join struct {
	Envelope
	Name  string `json:"name"`
	Role  Role   `json:"role"`
	Token string `json:"token,omitempty"`
}

func (Join) Kind() MessageType { return TypeJoin }
func (m Join) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return invalid(TypeJoin, "missing name")
	}
	if !m.Role.Valid() {
		return invalid(TypeJoin, "unknown role %q", m.Role)
	}
	return nil
}

type JoinAck struct {
	Envelope
	ParticipantID string     `json:"participantId"`
	Name          string     `json:"name"`
	Role          Role       `json:"role"`
	Difficulty    Difficulty `json:"difficulty"`
	PassScore     int        `json:"passScore"`
	HintsEnabled  bool       `json:"hintsEnabled"`
}

func (JoinAck) Kind() MessageType { return TypeJoinAck }
func (m JoinAck) Validate() error {
	if !m.Role.Valid() {
		return invalid(TypeJoinAck, "unknown role %q", m.Role)
	}
	return nil
}

type SessionConfig struct {
	Envelope
	Difficulty   Difficulty `json:"difficulty"`
	PassScore    int        `json:"passScore"`
	HintsEnabled bool       `json:"hintsEnabled"`
}

func (SessionConfig) Kind() MessageType { return TypeSessionConfig }
func (m SessionConfig) Validate() error {
	if !m.Difficulty.Valid() {
		return invalid(TypeSessionConfig, "unknown difficulty %q", m.Difficulty)
	}
	return nil
}

type SessionState struct {
	Envelope
	Status SessionStatus `json:"status"`
}

func (SessionState) Kind() MessageType { return TypeSessionState }
func (m SessionState) Validate() error {
	if !m.Status.Valid() {
		return invalid(TypeSessionState, "unknown status %q", m.Status)
	}
	return nil
}

// SessionSnapshot summarizes the whole session for a (re)joining client.
type SessionSnapshot struct {
	Envelope
	Status       SessionStatus  `json:"status"`
	Time         int64          `json:"time"` // seconds since start
	Metrics      Metrics        `json:"metrics"`
	Participants []Participant  `json:"participants"`
	Scores       map[string]int `json:"scores"`
	Difficulty   Difficulty     `json:"difficulty"`
	PassScore    int            `json:"passScore"`
	HintsEnabled bool           `json:"hintsEnabled"`
	Objectives   []Objective    `json:"objectives"`
}

func (SessionSnapshot) Kind() MessageType { return TypeSessionSnapshot }
func (m SessionSnapshot) Validate() error {
	if !m.Status.Valid() {
		return invalid(TypeSessionSnapshot, "unknown status %q", m.Status)
	}
	return nil
}

type SimulationPaused struct {
	Envelope
	Message string `json:"message,omitempty"`
}

func (SimulationPaused) Kind() MessageType { return TypeSimulationPaused }
func (SimulationPaused) Validate() error   { return nil }

type SimulationResumed struct {
	Envelope
	Message string `json:"message,omitempty"`
}

func (SimulationResumed) Kind() MessageType { return TypeSimulationResumed }
func (SimulationResumed) Validate() error   { return nil }

type SimulationEnded struct {
	Envelope
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	Summary     Summary            `json:"summary"`
}

func (SimulationEnded) Kind() MessageType { return TypeSimulationEnded }
func (SimulationEnded) Validate() error   { return nil }

// ---- events/metrics ----

type SimulationEvent struct {
	Envelope
	EventType       string `json:"eventType"` // attack | detection | block | warning | info
	Description     string `json:"description"`
	ParticipantName string `json:"participantName,omitempty"`
}

func (SimulationEvent) Kind() MessageType { return TypeSimulationEvent }
func (m SimulationEvent) Validate() error {
	if m.EventType == "" {
		return invalid(TypeSimulationEvent, "missing eventType")
	}
	return nil
}

type MetricsUpdate struct {
	Envelope
	Metrics Metrics `json:"metrics"`
}

func (MetricsUpdate) Kind() MessageType { return TypeMetricsUpdate }
func (MetricsUpdate) Validate() error   { return nil }

type ParticipantUpdate struct {
	Envelope
	Participants []Participant `json:"participants"`
}

func (ParticipantUpdate) Kind() MessageType { return TypeParticipantUpdate }
func (ParticipantUpdate) Validate() error   { return nil }

type ParticipantJoined struct {
	Envelope
	Participant Participant `json:"participant"`
}

func (ParticipantJoined) Kind() MessageType { return TypeParticipantJoined }
func (m ParticipantJoined) Validate() error {
	return validParticipant(TypeParticipantJoined, m.Participant)
}

type ParticipantDisconnected struct {
	Envelope
	Participant Participant `json:"participant"`
}

func (ParticipantDisconnected) Kind() MessageType { return TypeParticipantDisconnect }
func (m ParticipantDisconnected) Validate() error {
	return validParticipant(TypeParticipantDisconnect, m.Participant)
}

type ParticipantReconnected struct {
	Envelope
	Participant Participant `json:"participant"`
}

func (ParticipantReconnected) Kind() MessageType { return TypeParticipantReconnected }
func (m ParticipantReconnected) Validate() error {
	return validParticipant(TypeParticipantReconnected, m.Participant)
}

type ScoreUpdate struct {
	Envelope
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func (ScoreUpdate) Kind() MessageType { return TypeScoreUpdate }
func (m ScoreUpdate) Validate() error {
	if m.Name == "" {
		return invalid(TypeScoreUpdate, "missing name")
	}
	return nil
}

type RequestScoreboard struct {
	Envelope
}

func (RequestScoreboard) Kind() MessageType { return TypeRequestScoreboard }
func (RequestScoreboard) Validate() error   { return nil }

type Scoreboard struct {
	Envelope
	Scores map[string]int `json:"scores"`
}

func (Scoreboard) Kind() MessageType { return TypeScoreboard }
func (Scoreboard) Validate() error   { return nil }

// ---- attacker ----

type ExecuteCommand struct {
	Envelope
	Command string `json:"command"`
}

func (ExecuteCommand) Kind() MessageType { return TypeExecuteCommand }
func (m ExecuteCommand) Validate() error {
	if strings.TrimSpace(m.Command) == "" {
		return invalid(TypeExecuteCommand, "missing command")
	}
	return nil
}

type CommandResult struct {
	Envelope
	Command string `json:"command"`
	Output  string `json:"output"`
}

func (CommandResult) Kind() MessageType { return TypeCommandResult }
func (CommandResult) Validate() error   { return nil }

type RequestObjectives struct {
	Envelope
}

func (RequestObjectives) Kind() MessageType { return TypeRequestObjectives }
func (RequestObjectives) Validate() error   { return nil }

type Objectives struct {
	Envelope
	Items []Objective `json:"items"`
}

func (Objectives) Kind() MessageType { return TypeObjectives }
func (m Objectives) Validate() error { return validObjectives(TypeObjectives, m.Items) }

type ObjectivesUpdate struct {
	Envelope
	Items         []Objective `json:"items"`
	Completed     []string    `json:"completed"`
	Score         int         `json:"score"`
	Remaining     int         `json:"remaining"`
	ServerMessage string      `json:"serverMessage,omitempty"`
}

func (ObjectivesUpdate) Kind() MessageType { return TypeObjectivesUpdate }
func (m ObjectivesUpdate) Validate() error { return validObjectives(TypeObjectivesUpdate, m.Items) }

type RequestHints struct {
	Envelope
}

func (RequestHints) Kind() MessageType { return TypeRequestHints }
func (RequestHints) Validate() error   { return nil }

type Hints struct {
	Envelope
	Items     []Hint `json:"items"`
	Remaining int    `json:"remaining"`
}

func (Hints) Kind() MessageType { return TypeHints }
func (Hints) Validate() error   { return nil }

type DetectionAlert struct {
	Envelope
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

func (DetectionAlert) Kind() MessageType { return TypeDetectionAlert }
func (DetectionAlert) Validate() error   { return nil }

// ---- defender ----

type AttackEvent struct {
	Envelope
	Event AttackInfo `json:"event"`
}

func (AttackEvent) Kind() MessageType { return TypeAttackEvent }
func (m AttackEvent) Validate() error {
	if m.Event.ID == "" {
		return invalid(TypeAttackEvent, "missing event id")
	}
	return nil
}

type DetectionEvent struct {
	Envelope
	ID         string   `json:"id,omitempty"`
	Method     string   `json:"method"`
	Detected   bool     `json:"detected"`
	Confidence float64  `json:"confidence"`
	Threats    []string `json:"threats"`
}

func (DetectionEvent) Kind() MessageType { return TypeDetectionEvent }
func (m DetectionEvent) Validate() error {
	if m.Confidence < 0 || m.Confidence > 1 {
		return invalid(TypeDetectionEvent, "confidence %v outside 0..1", m.Confidence)
	}
	return nil
}

type ObjectiveCompleted struct {
	Envelope
	Attacker    string `json:"attacker"`
	ObjectiveID string `json:"objectiveId"`
	Category    string `json:"category"`
}

func (ObjectiveCompleted) Kind() MessageType { return TypeObjectiveCompleted }
func (m ObjectiveCompleted) Validate() error {
	if m.ObjectiveID == "" {
		return invalid(TypeObjectiveCompleted, "missing objectiveId")
	}
	return nil
}

type ObjectiveDefended struct {
	Envelope
	Defender    string `json:"defender"`
	Attacker    string `json:"attacker"`
	ObjectiveID string `json:"objectiveId"`
	Category    string `json:"category"`
}

func (ObjectiveDefended) Kind() MessageType { return TypeObjectiveDefended }
func (m ObjectiveDefended) Validate() error {
	if m.ObjectiveID == "" {
		return invalid(TypeObjectiveDefended, "missing objectiveId")
	}
	return nil
}

type OffObjectiveThreat struct {
	Envelope
	Attacker string   `json:"attacker"`
	Command  string   `json:"command"`
	Threats  []string `json:"threats"`
}

func (OffObjectiveThreat) Kind() MessageType { return TypeOffObjectiveThreat }
func (OffObjectiveThreat) Validate() error   { return nil }

type DefenderClassify struct {
	Envelope
	AttackID       string   `json:"attackId,omitempty"`
	Classification string   `json:"classification,omitempty"`
	Objective      string   `json:"objective,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty"`
}

func (DefenderClassify) Kind() MessageType { return TypeDefenderClassify }
func (m DefenderClassify) Validate() error {
	if m.Classification == "" && m.Objective == "" {
		return invalid(TypeDefenderClassify, "missing classification")
	}
	if m.Confidence != nil && (*m.Confidence < 0 || *m.Confidence > 1) {
		return invalid(TypeDefenderClassify, "confidence %v outside 0..1", *m.Confidence)
	}
	return nil
}

type ClassificationResult struct {
	Envelope
	Awarded        int     `json:"awarded"`
	Total          int     `json:"total"`
	Correct        bool    `json:"correct"`
	ConfidenceUsed float64 `json:"confidenceUsed,omitempty"`
	ObjectiveID    string  `json:"objectiveId,omitempty"`
	Cooldown       int     `json:"cooldown,omitempty"` // seconds left
	Message        string  `json:"message,omitempty"`
}

func (ClassificationResult) Kind() MessageType { return TypeClassificationResult }
func (ClassificationResult) Validate() error   { return nil }

type UpdateDetectionConfig struct {
	Envelope
	Config DetectionConfig `json:"config"`
}

func (UpdateDetectionConfig) Kind() MessageType { return TypeUpdateDetectionConfig }
func (m UpdateDetectionConfig) Validate() error {
	switch m.Config.SensitivityLevel {
	case "low", "medium", "high":
	default:
		return invalid(TypeUpdateDetectionConfig, "unknown sensitivity %q", m.Config.SensitivityLevel)
	}
	for _, d := range m.Config.EnabledDetectors {
		if d != "aho_corasick" && d != "isolation_forest" {
			return invalid(TypeUpdateDetectionConfig, "unknown detector %q", d)
		}
	}
	if m.Config.AlertThreshold < 0.1 || m.Config.AlertThreshold > 1 {
		return invalid(TypeUpdateDetectionConfig, "alertThreshold %v outside 0.1..1", m.Config.AlertThreshold)
	}
	return nil
}

const (
	ActionBlockIP   = "block_ip"
	ActionUnblockIP = "unblock_ip"
	ActionClassify  = "classify"
)

// DefenderAction is sent by defenders and relayed to observers with Success set.
type DefenderAction struct {
	Envelope
	Action   string `json:"action"` // block_ip | unblock_ip | classify (server relay only)
	Target   string `json:"target"`
	Duration int    `json:"duration,omitempty"`
	Success  *bool  `json:"success,omitempty"`
}

func (DefenderAction) Kind() MessageType { return TypeDefenderAction }
func (m DefenderAction) Validate() error {
	switch m.Action {
	case ActionBlockIP, ActionUnblockIP, ActionClassify:
	default:
		return invalid(TypeDefenderAction, "unknown action %q", m.Action)
	}
	if m.Target == "" {
		return invalid(TypeDefenderAction, "missing target")
	}
	return nil
}

// ---- communication ----

type Broadcast struct {
	Envelope
	Message string `json:"message"`
}

func (Broadcast) Kind() MessageType { return TypeBroadcast }
func (m Broadcast) Validate() error {
	if strings.TrimSpace(m.Message) == "" {
		return invalid(TypeBroadcast, "missing message")
	}
	return nil
}

type ChatMessage struct {
	Envelope
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

func (ChatMessage) Kind() MessageType { return TypeChatMessage }
func (m ChatMessage) Validate() error {
	if strings.TrimSpace(m.Message) == "" {
		return invalid(TypeChatMessage, "missing message")
	}
	return nil
}

type InstructorBroadcast struct {
	Envelope
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

func (InstructorBroadcast) Kind() MessageType { return TypeInstructorBroadcast }
func (m InstructorBroadcast) Validate() error {
	if m.Message == "" {
		return invalid(TypeInstructorBroadcast, "missing message")
	}
	return nil
}

// ---- instructor ----

type ControlAction string

const (
	ControlPause  ControlAction = "pause"
	ControlResume ControlAction = "resume"
	ControlEnd    ControlAction = "end"
)

type InstructorControl struct {
	Envelope
	Action ControlAction `json:"action"`
}

func (InstructorControl) Kind() MessageType { return TypeInstructorControl }
func (m InstructorControl) Validate() error {
	switch m.Action {
	case ControlPause, ControlResume, ControlEnd:
		return nil
	}
	return invalid(TypeInstructorControl, "unknown action %q", m.Action)
}

type InstructorAction struct {
	Envelope
	Action        string `json:"action"` // kick | assign_role
	ParticipantID string `json:"participantId"`
	Role          Role   `json:"role,omitempty"`
}

func (InstructorAction) Kind() MessageType { return TypeInstructorAction }
func (m InstructorAction) Validate() error {
	switch m.Action {
	case "kick":
	case "assign_role":
		if !m.Role.Valid() {
			return invalid(TypeInstructorAction, "unknown role %q", m.Role)
		}
	default:
		return invalid(TypeInstructorAction, "unknown action %q", m.Action)
	}
	if m.ParticipantID == "" {
		return invalid(TypeInstructorAction, "missing participantId")
	}
	return nil
}

// ---- diagnostics ----

// ErrorMessage is a server-signaled error meant for display, not a Go error.
type ErrorMessage struct {
	Envelope
	Code int    `json:"code"`
	Text string `json:"text"`
}

func (ErrorMessage) Kind() MessageType { return TypeError }
func (m ErrorMessage) Validate() error {
	if m.Text == "" {
		return invalid(TypeError, "missing text")
	}
	return nil
}

type ServerMessage struct {
	Envelope
	Level string `json:"level,omitempty"` // info | warning | error
	Text  string `json:"text"`
}

func (ServerMessage) Kind() MessageType { return TypeServerMessage }
func (m ServerMessage) Validate() error {
	if m.Text == "" {
		return invalid(TypeServerMessage, "missing text")
	}
	return nil
}

// ---- union membership ----

func (JoinAck) inbound()                 {}
func (SessionConfig) inbound()           {}
func (SessionState) inbound()            {}
func (SessionSnapshot) inbound()         {}
func (SimulationPaused) inbound()        {}
func (SimulationResumed) inbound()       {}
func (SimulationEnded) inbound()         {}
func (SimulationEvent) inbound()         {}
func (MetricsUpdate) inbound()           {}
func (ParticipantUpdate) inbound()       {}
func (ParticipantJoined) inbound()       {}
func (ParticipantDisconnected) inbound() {}
func (ParticipantReconnected) inbound()  {}
func (ScoreUpdate) inbound()             {}
func (Scoreboard) inbound()              {}
func (CommandResult) inbound()           {}
func (Objectives) inbound()              {}
func (ObjectivesUpdate) inbound()        {}
func (Hints) inbound()                   {}
func (DetectionAlert) inbound()          {}
func (AttackEvent) inbound()             {}
func (DetectionEvent) inbound()          {}
func (ObjectiveCompleted) inbound()      {}
func (ObjectiveDefended) inbound()       {}
func (OffObjectiveThreat) inbound()      {}
func (ClassificationResult) inbound()    {}
func (DefenderAction) inbound()          {}
func (Broadcast) inbound()               {}
func (ChatMessage) inbound()             {}
func (InstructorBroadcast) inbound()     {}
func (ErrorMessage) inbound()            {}
func (ServerMessage) inbound()           {}

func (Join) outbound()                  {}
func (RequestScoreboard) outbound()     {}
func (ExecuteCommand) outbound()        {}
func (RequestObjectives) outbound()     {}
func (RequestHints) outbound()          {}
func (DefenderClassify) outbound()      {}
func (UpdateDetectionConfig) outbound() {}
func (DefenderAction) outbound()        {}
func (Broadcast) outbound()             {}
func (ChatMessage) outbound()           {}
func (InstructorControl) outbound()     {}
func (InstructorAction) outbound()      {}

func validParticipant(t MessageType, p Participant) error {
	if p.ID == "" || p.Name == "" {
		return invalid(t, "participant missing id or name")
	}
	if !p.Role.Valid() {
		return invalid(t, "participant has unknown role %q", p.Role)
	}
	return nil
}

func validObjectives(t MessageType, items []Objective) error {
	for _, o := range items {
		if o.ID == "" {
			return invalid(t, "objective missing id")
		}
		if o.Points != 10 && o.Points != 20 {
			return invalid(t, "objective %s has %d points", o.ID, o.Points)
		}
	}
	return nil
}
