package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRoomID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "my-cool-room", normalizeRoomID("My  Cool Room"))
	assert.Equal(t, "abc123", normalizeRoomID("ABC123"))
	assert.Equal(t, "a-b", normalizeRoomID("  a \t b  "))
	assert.Equal(t, "already-fine", normalizeRoomID("already-fine"))
	assert.Equal(t, "", normalizeRoomID("   "))
}

func TestGameManager_NewRoomID(t *testing.T) {
	t.Parallel()

	gm := newGameManager(0)

	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		id := gm.newRoomID()

		assert.Len(t, id, 9)
		assert.Equal(t, id, normalizeRoomID(id), "generated IDs survive normalization")
		assert.False(t, seen[id], "generated IDs should not repeat")
		seen[id] = true
	}
}

func TestGameManager_GetHubReusesRooms(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	gm := newGameManager(0)

	first := gm.getHub(cfg, "room-one")
	second := gm.getHub(cfg, "room-one")
	other := gm.getHub(cfg, "room-two")

	assert.Same(t, first, second)
	assert.NotSame(t, first, other)

	first.stop()
	other.stop()
}

func TestGameManager_EmptyRoomIsRemoved(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	gm := newGameManager(0)

	hub := gm.getHub(cfg, "short-lived")
	require.NotNil(t, hub.onEmpty)

	hub.onEmpty()

	replacement := gm.getHub(cfg, "short-lived")
	assert.NotSame(t, hub, replacement)

	replacement.stop()
}
