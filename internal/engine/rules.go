package engine

import (
	"time"

	"github.com/DoyleJ11/cyberlab-sim/pkg/protocol"
)

type Rules struct {
	ObjectiveCount     int
	HintsEnabled       bool
	HintsQuota         int // per attacker, whole session
	HardObjectives     int // objectives worth 20 instead of 10
	PassScore          int
	PenalizeIrrelevant bool
}

var DifficultyRules = map[protocol.Difficulty]Rules{
	protocol.DifficultyBeginner: {
		ObjectiveCount: 6,
		HintsEnabled:   true,
		HintsQuota:     12,
		HardObjectives: 1,
		PassScore:      40,
	},
	protocol.DifficultyIntermediate: {
		ObjectiveCount: 8,
		HardObjectives: 1,
		PassScore:      60,
	},
	protocol.DifficultyHard: {
		ObjectiveCount:     10,
		HardObjectives:     2,
		PassScore:          80,
		PenalizeIrrelevant: true,
	},
}

// RulesFor falls back to Beginner for unknown difficulties.
func RulesFor(d protocol.Difficulty) Rules {
	if r, ok := DifficultyRules[d]; ok {
		return r
	}
	return DifficultyRules[protocol.DifficultyBeginner]
}

const (
	BasePoints        = 10
	HardPoints        = 20
	IrrelevantPenalty = 3
	ClassifyCooldown  = 2 * time.Second
	DefaultConfidence = 0.7
	// every simulated attack originates from the lab's attacker box
	AttackSourceIP = "192.168.1.100"
)

type Category string

const (
	CategoryRecon       Category = "recon"
	CategoryBrute       Category = "brute"
	CategoryPriv        Category = "priv"
	CategoryPersistence Category = "persistence"
)

type ObjectiveDef struct {
	ID          string
	Description string
	Triggers    []string // any substring of a command completes the objective
	Category    Category
}

var ObjectivePool = []ObjectiveDef{
	{ID: "recon_scan", Description: "Perform reconnaissance scan", Triggers: []string{"nmap", "ping", "nc"}, Category: CategoryRecon},
	{ID: "bruteforce_login", Description: "Attempt brute force login", Triggers: []string{"hydra", "ssh", "ftp"}, Category: CategoryBrute},
	{ID: "priv_esc", Description: "Execute privilege escalation", Triggers: []string{"sudo", "su", "chmod"}, Category: CategoryPriv},
	{ID: "persistence", Description: "Install persistence mechanism", Triggers: []string{"crontab", "systemctl", ".bashrc"}, Category: CategoryPersistence},
	{ID: "web_enum", Description: "Enumerate web services", Triggers: []string{"nikto", "gobuster", "dirb"}, Category: CategoryRecon},
	{ID: "password_harvest", Description: "Harvest credentials or hashes", Triggers: []string{"shadow", "password", "hashcat"}, Category: CategoryPriv},
	{ID: "backdoor_setup", Description: "Deploy a backdoor listener", Triggers: []string{"nc", "socat", "bash"}, Category: CategoryPersistence},
	{ID: "data_exfil", Description: "Exfiltrate data from target", Triggers: []string{"scp", "curl", "wget"}, Category: CategoryPersistence},
	{ID: "lateral_move", Description: "Attempt lateral movement", Triggers: []string{"ssh", "proxychains", "pssh"}, Category: CategoryPriv},
	{ID: "log_clean", Description: "Attempt to clean logs or cover tracks", Triggers: []string{"history", "rm", "shred"}, Category: CategoryPersistence},
}

func objectiveDef(id string) (ObjectiveDef, bool) {
	for _, d := range ObjectivePool {
		if d.ID == id {
			return d, true
		}
	}
	return ObjectiveDef{}, false
}
