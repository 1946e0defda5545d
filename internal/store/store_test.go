package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/cyberlab-sim/internal/engine"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, "ABC123", []engine.LogEntry{
		{At: at, Type: "info", Description: "alice joined as attacker", Participant: "alice"},
		{At: at.Add(time.Second), Type: "attack", Description: "alice executed: nmap", Participant: "alice"},
	}))
	require.NoError(t, s.Record(ctx, "OTHER1", []engine.LogEntry{
		{At: at, Type: "info", Description: "bob joined as defender", Participant: "bob"},
	}))

	events, err := s.List(ctx, "ABC123", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "info", events[0].Type)
	assert.Equal(t, "attack", events[1].Type)
	assert.True(t, events[1].At.Equal(at.Add(time.Second)))
	assert.NotZero(t, events[0].ID)

	limited, err := s.List(ctx, "ABC123", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecordEmptyIsNoop(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Record(context.Background(), "ABC123", nil))
	events, err := s.List(context.Background(), "ABC123", 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "x")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}
