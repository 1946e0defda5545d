package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/cyberlab-sim/internal/lobby"
	"github.com/DoyleJ11/cyberlab-sim/pkg/protocol"
)

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h := NewHub(context.Background())
	t.Cleanup(h.Shutdown)
	reply := make(chan *lobby.Lobby, 1)

	h.Inbox() <- CreateLobby{Code: "ZED123", Difficulty: protocol.DifficultyHard, Reply: reply}
	lb1 := <-reply

	h.Inbox() <- GetLobby{Code: "ZED123", Reply: reply}
	lb2 := <-reply

	require.NotNil(t, lb1)
	assert.Same(t, lb1, lb2)
	assert.Equal(t, "ZED123", lb1.Code())
}

func TestHub_EnsureKeepsFirstDifficulty(t *testing.T) {
	h := NewHub(context.Background())
	t.Cleanup(h.Shutdown)

	lb := h.Ensure("ABC123", protocol.DifficultyHard)
	again := h.Ensure("ABC123", protocol.DifficultyBeginner)
	assert.Same(t, lb, again)

	reply := make(chan lobby.View, 1)
	lb.Inbox() <- lobby.GetState{Reply: reply}
	assert.Equal(t, protocol.DifficultyHard, (<-reply).Difficulty)
}

func TestHub_GetMissing(t *testing.T) {
	h := NewHub(context.Background())
	t.Cleanup(h.Shutdown)
	assert.Nil(t, h.Get("NOPE00"))
}

func TestHub_RemoveStopsLobby(t *testing.T) {
	h := NewHub(context.Background())
	t.Cleanup(h.Shutdown)

	lb := h.Ensure("ABC123", protocol.DifficultyBeginner)
	h.Inbox() <- RemoveLobby{Code: "ABC123"}

	select {
	case <-lb.Done():
	case <-time.After(time.Second):
		t.Fatal("removed lobby still running")
	}
	assert.Nil(t, h.Get("ABC123"))
}

func TestHub_EndedLobbyIsRemovedAfterLastLeave(t *testing.T) {
	h := NewHub(context.Background())
	t.Cleanup(h.Shutdown)

	lb := h.Ensure("END001", protocol.DifficultyBeginner)
	out := make(chan lobby.Outgoing, 32)
	lb.Inbox() <- lobby.Join{ClientID: "c1", Outbox: out}
	lb.Inbox() <- lobby.FromClient{ClientID: "c1", Msg: protocol.Join{Name: "ivy", Role: protocol.RoleInstructor}}
	lb.Inbox() <- lobby.FromClient{ClientID: "c1", Msg: protocol.InstructorControl{Action: protocol.ControlEnd}}
	lb.Inbox() <- lobby.Leave{ClientID: "c1"}

	select {
	case <-lb.Done():
	case <-time.After(time.Second):
		t.Fatal("ended lobby still running")
	}
	assert.Eventually(t, func() bool { return h.Get("END001") == nil }, time.Second, 10*time.Millisecond)

	fresh := h.Ensure("END001", protocol.DifficultyHard)
	assert.NotSame(t, lb, fresh)
}

func TestHub_StaleRemoveKeepsNewLobby(t *testing.T) {
	h := NewHub(context.Background())
	t.Cleanup(h.Shutdown)

	old := h.Ensure("ABC123", protocol.DifficultyBeginner)
	h.Inbox() <- RemoveLobby{Code: "ABC123"}
	<-old.Done()
	current := h.Ensure("ABC123", protocol.DifficultyBeginner)

	h.Inbox() <- RemoveLobby{Code: "ABC123", Lobby: old}
	assert.Same(t, current, h.Get("ABC123"))
}

func TestHub_ShutdownStopsEverything(t *testing.T) {
	h := NewHub(context.Background())
	a := h.Ensure("AAAAAA", protocol.DifficultyBeginner)
	b := h.Ensure("BBBBBB", protocol.DifficultyIntermediate)

	h.Shutdown()

	for _, lb := range []*lobby.Lobby{a, b} {
		select {
		case <-lb.Done():
		default:
			t.Fatalf("lobby %s still running after hub shutdown", lb.Code())
		}
	}
	assert.Nil(t, h.Get("AAAAAA"))
	h.Shutdown() // idempotent
}
