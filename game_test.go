package main

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRNG() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

// readyLobby builds a lobby of n players who have all picked a name and an
// avatar.
func readyLobby(n int) *Lobby {
	l := newLobby("testroom")
	for i := 0; i < n; i++ {
		l.addPlayer(fmt.Sprintf("id%d", i), Name(fmt.Sprintf("Player%d", i)))
		l.setAvatar(fmt.Sprintf("id%d", i), "couch")
	}
	return l
}

// forceSeating rearranges a game deterministically: players[i] sits at seat
// i, the last seat is empty, and every player holds their own name as their
// secret (the identity permutation).
func forceSeating(g *ActiveGame) {
	n := len(g.players)
	for i, p := range g.players {
		p.Seat = i
		p.SecretName = p.Name
		g.seats[i] = p.ID
	}
	g.seats[n] = ""
	g.emptySeat = n
	g.turnSeat = (g.emptySeat + 1) % len(g.seats)
}

func assertSingleEmptySeat(t *testing.T, g *ActiveGame) {
	t.Helper()

	empties := 0
	for _, id := range g.seats {
		if id == "" {
			empties++
		}
	}
	assert.Equal(t, 1, empties, "expected exactly one empty seat")
	assert.Equal(t, "", g.seats[g.emptySeat], "tracked empty seat should be vacant")
	assert.Equal(t, (g.emptySeat+1)%len(g.seats), g.turnSeat)
}

func assertSecretNamePermutation(t *testing.T, g *ActiveGame) {
	t.Helper()

	display := make([]string, 0, len(g.players))
	secret := make([]string, 0, len(g.players))
	for _, p := range g.players {
		display = append(display, string(p.Name))
		secret = append(secret, string(p.SecretName))
	}
	sort.Strings(display)
	sort.Strings(secret)

	assert.Equal(t, display, secret, "secret names should be a permutation of display names")
}

func TestNewActiveGame_SixPlayers(t *testing.T) {
	t.Parallel()

	g, err := newActiveGame(readyLobby(6), testRNG())
	require.NoError(t, err)

	assert.Len(t, g.seats, 7)
	assert.Equal(t, 6, g.emptySeat)
	assert.Equal(t, 0, g.turnSeat)
	assert.Equal(t, []int{0, 1}, g.couchSeats)
	assert.Len(t, g.teamA, 3)
	assert.Len(t, g.teamB, 3)
	assert.False(t, g.finished)

	assertSingleEmptySeat(t, g)
	assertSecretNamePermutation(t, g)

	// every player is seated where the seat map says they are
	for _, p := range g.players {
		require.NotEqual(t, noSeat, p.Seat)
		assert.Equal(t, p.ID, g.seats[p.Seat])
	}
}

func TestNewActiveGame_TwelvePlayers(t *testing.T) {
	t.Parallel()

	g, err := newActiveGame(readyLobby(12), testRNG())
	require.NoError(t, err)

	assert.Len(t, g.seats, 13)
	assert.Equal(t, []int{0, 1, 2, 3}, g.couchSeats)
	assert.Len(t, g.teamA, 6)
	assert.Len(t, g.teamB, 6)

	assertSecretNamePermutation(t, g)
}

func TestNewActiveGame_RejectsSmallLobby(t *testing.T) {
	t.Parallel()

	l := readyLobby(5)
	g, err := newActiveGame(l, testRNG())
	require.ErrorIs(t, err, errTooFewPlayers)
	assert.Nil(t, g)

	// rejection must leave the lobby untouched
	for _, p := range l.players {
		assert.Equal(t, TeamUnassigned, p.Team)
		assert.Equal(t, noSeat, p.Seat)
		assert.Equal(t, Name(""), p.SecretName)
	}
}

func TestNewActiveGame_RejectsUnreadyRoster(t *testing.T) {
	t.Parallel()

	l := readyLobby(6)
	l.players[3].Avatar = ""

	g, err := newActiveGame(l, testRNG())
	require.ErrorIs(t, err, errPlayersNotReady)
	assert.Nil(t, g)

	for _, p := range l.players {
		assert.Equal(t, TeamUnassigned, p.Team)
		assert.Equal(t, noSeat, p.Seat)
	}
}

func TestResolveMove_MovesCalledPlayerIntoEmptySeat(t *testing.T) {
	t.Parallel()

	// 12 players seated at 0-11, seat 12 empty, couch 0-3
	g, err := newActiveGame(readyLobby(12), testRNG())
	require.NoError(t, err)
	forceSeating(g)

	mover := g.players[5]
	winner, moved := g.resolveMove(mover.SecretName)

	assert.True(t, moved)
	assert.Equal(t, Team(""), winner)

	assert.Equal(t, "", g.seats[5], "vacated seat should be empty")
	assert.Equal(t, mover.ID, g.seats[12])
	assert.Equal(t, 12, mover.Seat)
	assert.Equal(t, 5, g.emptySeat)
	assert.Equal(t, 6, g.turnSeat)

	assertSingleEmptySeat(t, g)
	assertSecretNamePermutation(t, g)
}

func TestResolveMove_StaleCallIsNoOp(t *testing.T) {
	t.Parallel()

	g, err := newActiveGame(readyLobby(12), testRNG())
	require.NoError(t, err)
	forceSeating(g)

	before := gameSnapshot(g)

	winner, moved := g.resolveMove("Nobody Holds This Name")

	assert.False(t, moved)
	assert.Equal(t, Team(""), winner)
	assert.Equal(t, before, gameSnapshot(g), "stale call must leave the game unchanged")
}

func TestResolveMove_WinDetection(t *testing.T) {
	t.Parallel()

	// 12 players, couch 0-3 all occupied by team A, empty seat at 8
	// (outside the couch)
	g, err := newActiveGame(readyLobby(12), testRNG())
	require.NoError(t, err)

	seat := 0
	for _, p := range g.players {
		if seat == 8 {
			seat++
		}
		p.Seat = seat
		p.SecretName = p.Name
		g.seats[seat] = p.ID
		seat++
	}
	g.seats[8] = ""
	g.emptySeat = 8
	g.turnSeat = 9

	for _, idx := range g.couchSeats {
		g.playerByID(g.seats[idx]).Team = TeamA
	}

	mover := g.playerByID(g.seats[6])
	mover.Team = TeamB // a non-couch move must not disturb the couch

	winner, moved := g.resolveMove(mover.SecretName)

	assert.True(t, moved)
	assert.Equal(t, TeamA, winner)
	assert.True(t, g.finished)
	assert.Equal(t, 6, g.emptySeat)

	for _, idx := range g.couchSeats {
		assert.Equal(t, TeamA, g.playerByID(g.seats[idx]).Team)
	}
}

func TestResolveMove_FinishedGameIgnoresCalls(t *testing.T) {
	t.Parallel()

	g, err := newActiveGame(readyLobby(6), testRNG())
	require.NoError(t, err)
	forceSeating(g)
	g.finished = true

	before := gameSnapshot(g)

	winner, moved := g.resolveMove(g.players[0].SecretName)

	assert.False(t, moved)
	assert.Equal(t, Team(""), winner)
	assert.Equal(t, before, gameSnapshot(g))
}

func TestResolveMove_InvariantsHoldAcrossRandomCalls(t *testing.T) {
	t.Parallel()

	rng := testRNG()
	g, err := newActiveGame(readyLobby(12), rng)
	require.NoError(t, err)

	for i := 0; i < 200 && !g.finished; i++ {
		called := g.players[rng.IntN(len(g.players))].SecretName
		g.resolveMove(called)

		assertSingleEmptySeat(t, g)
		assertSecretNamePermutation(t, g)
	}
}

func TestCouchWinner_EmptyCouchSeatContributesNoTeam(t *testing.T) {
	t.Parallel()

	g, err := newActiveGame(readyLobby(6), testRNG())
	require.NoError(t, err)
	forceSeating(g)

	// vacate couch seat 0; the remaining couch seat decides
	p := g.playerByID(g.seats[0])
	g.seats[g.emptySeat] = p.ID
	p.Seat = g.emptySeat
	g.seats[0] = ""
	g.emptySeat = 0

	g.playerByID(g.seats[1]).Team = TeamB

	assert.Equal(t, TeamB, g.couchWinner())
}

func TestCouchWinner_ContestedCouch(t *testing.T) {
	t.Parallel()

	g, err := newActiveGame(readyLobby(12), testRNG())
	require.NoError(t, err)
	forceSeating(g)

	g.playerByID(g.seats[0]).Team = TeamA
	g.playerByID(g.seats[1]).Team = TeamB

	assert.Equal(t, Team(""), g.couchWinner())
}

func TestCouchSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2, couchSize(6))
	assert.Equal(t, 2, couchSize(7))
	assert.Equal(t, 2, couchSize(8))
	assert.Equal(t, 3, couchSize(9))
	assert.Equal(t, 4, couchSize(12))
}
