package protocol

var senderRoles = map[MessageType][]Role{
	TypeJoin:              AllRoles,
	TypeChatMessage:       AllRoles,
	TypeRequestScoreboard: AllRoles,

	TypeExecuteCommand:    {RoleAttacker},
	TypeRequestObjectives: {RoleAttacker},
	TypeRequestHints:      {RoleAttacker},

	TypeDefenderClassify:      {RoleDefender},
	TypeUpdateDetectionConfig: {RoleDefender},
	TypeDefenderAction:        {RoleDefender},

	TypeInstructorControl: {RoleInstructor},
	TypeInstructorAction:  {RoleInstructor},
	TypeBroadcast:         {RoleInstructor},
}

// SenderRoles lists the roles allowed to send t. Server-only kinds return nil.
func SenderRoles(t MessageType) []Role {
	rs := senderRoles[t]
	if rs == nil {
		return nil
	}
	out := make([]Role, len(rs))
	copy(out, rs)
	return out
}

// Permitted reports whether a participant with role r may send t.
func Permitted(r Role, t MessageType) bool {
	for _, allowed := range senderRoles[t] {
		if allowed == r {
			return true
		}
	}
	return false
}
