package main

import (
	"errors"
	"log"
	"math/rand/v2"
)

// Name is a player-facing name value. Equality is exact string match; the
// same type is used for a player's public display name and for the secret
// name they currently hold.
type Name string

type Team string

const (
	TeamUnassigned Team = "unassigned"
	TeamA          Team = "A"
	TeamB          Team = "B"
)

// noSeat marks a player who is not currently seated.
const noSeat = -1

// Player is one human in a room, keyed by their client-persisted identity
// token. The same record survives the lobby-to-game promotion and any number
// of reconnects.
type Player struct {
	ID         string
	Name       Name
	Avatar     string
	Team       Team
	Seat       int
	SecretName Name
}

var (
	errTooFewPlayers   = errors.New("at least 6 players are required to start")
	errPlayersNotReady = errors.New("every player needs a name and an avatar before the game can start")
)

// ActiveGame is a room after promotion: a circle of playerCount+1 seats with
// exactly one left empty, fixed couch seats, and a turn pointer that always
// sits one seat clockwise of the empty one.
type ActiveGame struct {
	roomID     string
	players    []*Player
	teamA      []string
	teamB      []string
	seats      []string // player IDs; "" is the empty seat
	couchSeats []int
	emptySeat  int
	turnSeat   int
	finished   bool
}

func couchSize(playerCount int) int {
	size := playerCount / 3
	if size < 2 {
		size = 2
	}
	return size
}

// newActiveGame promotes a lobby roster into a running game. The lobby is
// left untouched unless every precondition holds.
//
// Seating and teams come from one uniform permutation of the roster; secret
// names come from a second, independent permutation of the display names, so
// a player may end up holding their own name.
func newActiveGame(lobby *Lobby, rng *rand.Rand) (*ActiveGame, error) {
	count := len(lobby.players)
	if count < minPlayers {
		return nil, errTooFewPlayers
	}
	if !lobby.canStart() {
		return nil, errPlayersNotReady
	}

	seated := make([]*Player, count)
	for i, from := range rng.Perm(count) {
		seated[i] = lobby.players[from]
	}

	g := &ActiveGame{
		roomID:  lobby.roomID,
		players: seated,
		seats:   make([]string, count+1),
	}

	for i, p := range seated {
		if i%2 == 0 {
			p.Team = TeamA
			g.teamA = append(g.teamA, p.ID)
		} else {
			p.Team = TeamB
			g.teamB = append(g.teamB, p.ID)
		}

		p.Seat = i
		g.seats[i] = p.ID
	}

	g.emptySeat = count
	g.turnSeat = (g.emptySeat + 1) % len(g.seats)

	for i := 0; i < couchSize(count); i++ {
		g.couchSeats = append(g.couchSeats, i)
	}

	secrets := make([]Name, count)
	for i, p := range seated {
		secrets[i] = p.Name
	}
	rng.Shuffle(count, func(i, j int) {
		secrets[i], secrets[j] = secrets[j], secrets[i]
	})
	for i, p := range seated {
		p.SecretName = secrets[i]
	}

	return g, nil
}

func (g *ActiveGame) playerByID(id string) *Player {
	for _, p := range g.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (g *ActiveGame) playerBySecret(name Name) *Player {
	for _, p := range g.players {
		if p.SecretName == name {
			return p
		}
	}
	return nil
}

// resolveMove moves the holder of calledName into the empty seat, shifts the
// empty seat to where they came from, and advances the turn pointer.
//
// Called names arrive as freely-typed client input, and races between
// concurrent callers regularly produce stale calls, so anything that cannot
// be resolved degrades to a no-op rather than an error: the returned winner
// is empty and moved is false, with the game state unchanged.
func (g *ActiveGame) resolveMove(calledName Name) (winner Team, moved bool) {
	if g.finished {
		return "", false
	}

	mover := g.playerBySecret(calledName)
	if mover == nil {
		return "", false
	}

	from := mover.Seat
	if from == noSeat {
		return "", false
	}

	// A mover already in the empty seat cannot happen while the
	// single-empty-seat invariant holds, but never blank a second seat.
	if from != g.emptySeat {
		g.seats[from] = ""
	}
	g.seats[g.emptySeat] = mover.ID
	mover.Seat = g.emptySeat

	g.emptySeat = from
	g.turnSeat = (from + 1) % len(g.seats)

	g.validate()

	winner = g.couchWinner()
	if winner != "" {
		g.finished = true
	}

	return winner, true
}

// validate re-checks the single-empty-seat invariant after a move. A
// violation means a prior bug corrupted the room, not bad input, so it is
// logged server-side rather than surfaced to players.
func (g *ActiveGame) validate() {
	empties := 0
	for _, id := range g.seats {
		if id == "" {
			empties++
		}
	}
	if empties != 1 {
		log.Printf("ERROR: Room %s has %d empty seats, expected 1", g.roomID, empties)
	}
}

// couchWinner returns the team occupying every couch seat, or "" if the
// couch is still contested. When the empty seat is itself a couch seat it
// contributes no team and the remaining couch seats decide.
func (g *ActiveGame) couchWinner() Team {
	teams := make([]Team, 0, len(g.couchSeats))
	for _, idx := range g.couchSeats {
		id := g.seats[idx]
		if id == "" {
			continue
		}
		p := g.playerByID(id)
		if p == nil {
			continue
		}
		teams = append(teams, p.Team)
	}

	if len(teams) == 0 {
		return ""
	}
	for _, t := range teams[1:] {
		if t != teams[0] {
			return ""
		}
	}
	if teams[0] != TeamA && teams[0] != TeamB {
		return ""
	}
	return teams[0]
}
