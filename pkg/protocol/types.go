package protocol

// MessageType is the wire discriminant carried in every message's "type" field.
type MessageType string

const (
	// session
	TypeJoin              MessageType = "join"
	TypeJoinAck           MessageType = "join_ack"
	TypeSessionConfig     MessageType = "session_config"
	TypeSessionState      MessageType = "session_state"
	TypeSessionSnapshot   MessageType = "session_snapshot"
	TypeSimulationPaused  MessageType = "simulation_paused"
	TypeSimulationResumed MessageType = "simulation_resumed"
	TypeSimulationEnded   MessageType = "simulation_ended"

	// events/metrics
	TypeSimulationEvent        MessageType = "simulation_event"
	TypeMetricsUpdate          MessageType = "metrics_update"
	TypeParticipantUpdate      MessageType = "participant_update"
	TypeParticipantJoined      MessageType = "participant_joined"
	TypeParticipantDisconnect  MessageType = "participant_disconnected"
	TypeParticipantReconnected MessageType = "participant_reconnected"
	TypeScoreUpdate            MessageType = "score_update"
	TypeRequestScoreboard      MessageType = "request_scoreboard"
	TypeScoreboard             MessageType = "scoreboard"

	// attacker
	TypeExecuteCommand    MessageType = "execute_command"
	TypeCommandResult     MessageType = "command_result"
	TypeRequestObjectives MessageType = "request_objectives"
	TypeObjectives        MessageType = "objectives"
	TypeObjectivesUpdate  MessageType = "objectives_update"
	TypeRequestHints      MessageType = "request_hints"
	TypeHints             MessageType = "hints"
	TypeDetectionAlert    MessageType = "detection_alert"

	// defender
	TypeAttackEvent           MessageType = "attack_event"
	TypeDetectionEvent        MessageType = "detection_event"
	TypeObjectiveCompleted    MessageType = "objective_completed"
	TypeObjectiveDefended     MessageType = "objective_defended"
	TypeOffObjectiveThreat    MessageType = "off_objective_threat"
	TypeDefenderClassify      MessageType = "defender_classify"
	TypeClassificationResult  MessageType = "classification_result"
	TypeUpdateDetectionConfig MessageType = "update_detection_config"
	TypeDefenderAction        MessageType = "defender_action"

	// communication
	TypeBroadcast           MessageType = "broadcast"
	TypeChatMessage         MessageType = "chat_message"
	TypeInstructorBroadcast MessageType = "instructor_broadcast"

	// instructor controls
	TypeInstructorControl MessageType = "instructor_control"
	TypeInstructorAction  MessageType = "instructor_action"

	// diagnostics
	TypeError         MessageType = "error"
	TypeServerMessage MessageType = "server_message"
)

type Role string

const (
	RoleAttacker   Role = "Attacker"
	RoleDefender   Role = "Defender"
	RoleObserver   Role = "Observer"
	RoleInstructor Role = "Instructor"
)

var AllRoles = []Role{RoleAttacker, RoleDefender, RoleObserver, RoleInstructor}

func (r Role) Valid() bool {
	switch r {
	case RoleAttacker, RoleDefender, RoleObserver, RoleInstructor:
		return true
	}
	return false
}

type SessionStatus string

const (
	StatusRunning SessionStatus = "running"
	StatusPaused  SessionStatus = "paused"
	StatusEnded   SessionStatus = "ended"
)

func (s SessionStatus) Valid() bool {
	return s == StatusRunning || s == StatusPaused || s == StatusEnded
}

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "Beginner"
	DifficultyIntermediate Difficulty = "Intermediate"
	DifficultyHard         Difficulty = "Hard"
)

func (d Difficulty) Valid() bool {
	return d == DifficultyBeginner || d == DifficultyIntermediate || d == DifficultyHard
}

// Envelope is embedded by every message. The type field itself is written
// by Encode from the message's Kind.
type Envelope struct {
	Timestamp int64  `json:"timestamp,omitempty"` // epoch ms
	LobbyCode string `json:"lobbyCode,omitempty"`
	SenderID  string `json:"senderId,omitempty"`
}

// Participant keeps its record across disconnects; only Connected toggles.
type Participant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	Connected bool   `json:"connected"`
}

type Objective struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Points      int    `json:"points"` // 10 or 20
	Completed   bool   `json:"completed"`
}

// Metrics counters never decrease within a session.
type Metrics struct {
	TotalEvents         int `json:"totalEvents"`
	AttacksLaunched     int `json:"attacksLaunched"`
	DetectionsTriggered int `json:"detectionsTriggered"`
	SuccessfulBlocks    int `json:"successfulBlocks"`
}

type LeaderboardEntry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
	Score int    `json:"score"`
}

type Summary struct {
	Metrics
	Duration int64 `json:"duration"` // seconds
}

type Hint struct {
	ID   string `json:"id"`
	Hint string `json:"hint"`
}

type AttackInfo struct {
	ID       string `json:"id"`
	Command  string `json:"command"`
	SourceIP string `json:"sourceIP"`
}

type DetectionConfig struct {
	SensitivityLevel string   `json:"sensitivityLevel"` // low | medium | high
	EnabledDetectors []string `json:"enabledDetectors"` // aho_corasick | isolation_forest
	AlertThreshold   float64  `json:"alertThreshold"`   // 0.1..1
}
