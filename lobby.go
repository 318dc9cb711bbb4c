package main

// minPlayers is the smallest roster that can start a game. An alternating
// split of 6 guarantees at least 3 players per team.
const minPlayers = 6

// Lobby is a room before the game starts: an ordered roster where the order
// is each player's seat preference, reshuffled anyway at game start.
type Lobby struct {
	roomID  string
	players []*Player
}

func newLobby(roomID string) *Lobby {
	return &Lobby{roomID: roomID}
}

func (l *Lobby) player(id string) *Player {
	for _, p := range l.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// addPlayer appends a new player to the roster. An identity already present
// is a reconnection, not a join, and is left alone.
func (l *Lobby) addPlayer(id string, displayName Name) *Player {
	if existing := l.player(id); existing != nil {
		return existing
	}

	p := &Player{
		ID:   id,
		Name: displayName,
		Team: TeamUnassigned,
		Seat: noSeat,
	}
	l.players = append(l.players, p)

	return p
}

// removePlayer drops the identity from the roster, reporting whether anyone
// was removed. The caller is responsible for reaping an emptied lobby.
func (l *Lobby) removePlayer(id string) bool {
	dst := l.players[:0]
	removed := false

	for _, p := range l.players {
		if p.ID == id {
			removed = true
			continue
		}
		dst = append(dst, p)
	}
	l.players = dst

	return removed
}

func (l *Lobby) empty() bool {
	return len(l.players) == 0
}

// swapSeats exchanges the caller's roster position with target. Out-of-range
// targets, the caller's own position, and unknown identities are all
// ignored; an index equal to the roster length is the "swap with nothing"
// case and is rejected too.
func (l *Lobby) swapSeats(id string, target int) bool {
	if target < 0 || target >= len(l.players) {
		return false
	}

	current := -1
	for i, p := range l.players {
		if p.ID == id {
			current = i
			break
		}
	}
	if current == -1 || current == target {
		return false
	}

	l.players[current], l.players[target] = l.players[target], l.players[current]

	return true
}

func (l *Lobby) setDisplayName(id string, name Name) bool {
	if name == "" {
		return false
	}

	p := l.player(id)
	if p == nil {
		return false
	}
	p.Name = name

	return true
}

func (l *Lobby) setAvatar(id string, avatar string) bool {
	p := l.player(id)
	if p == nil {
		return false
	}
	p.Avatar = avatar

	return true
}

// canStart reports whether the roster is large enough and every player has
// picked a name and an avatar. Team balance needs no separate check: the
// game recomputes teams by alternating over a shuffled roster, so any roster
// of 6 or more lands at least 3 per side.
func (l *Lobby) canStart() bool {
	if len(l.players) < minPlayers {
		return false
	}

	for _, p := range l.players {
		if p.Name == "" || p.Avatar == "" {
			return false
		}
	}

	return true
}
