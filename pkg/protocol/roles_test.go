package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermitted(t *testing.T) {
	cases := []struct {
		role Role
		kind MessageType
		want bool
	}{
		{RoleInstructor, TypeInstructorControl, true},
		{RoleAttacker, TypeInstructorControl, false},
		{RoleDefender, TypeBroadcast, false},
		{RoleInstructor, TypeBroadcast, true},
		{RoleAttacker, TypeExecuteCommand, true},
		{RoleObserver, TypeExecuteCommand, false},
		{RoleDefender, TypeDefenderClassify, true},
		{RoleAttacker, TypeDefenderAction, false},
		{RoleObserver, TypeChatMessage, true},
		{RoleObserver, TypeJoin, true},
		{RoleInstructor, TypeScoreUpdate, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Permitted(tc.role, tc.kind), "%s sending %s", tc.role, tc.kind)
	}
}

func TestSenderRoles_EveryOutboundKindHasSenders(t *testing.T) {
	for k := range outboundKinds {
		assert.NotEmpty(t, SenderRoles(k), "kind %s", k)
	}
	assert.Nil(t, SenderRoles(TypeObjectivesUpdate))
}

func TestSenderRoles_ReturnsCopy(t *testing.T) {
	rs := SenderRoles(TypeJoin)
	rs[0] = "Nobody"
	assert.True(t, Permitted(RoleAttacker, TypeJoin))
}
