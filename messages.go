package main

// ClientMessage is the single inbound envelope. The type field discriminates
// the event and only the fields listed for that event are consulted; shape
// is validated before dispatch and unknown types are dropped at the socket.
type ClientMessage struct {
	Type               string `json:"type"`                         // "joinRoom", "setPlayerName", "setAvatar", "takeSeat", "startGame", "callName", "leaveRoom"
	RoomID             string `json:"roomId,omitempty"`             // joinRoom / startGame (informational; the socket is already room-scoped)
	DisplayName        string `json:"displayName,omitempty"`        // joinRoom
	PersistentIdentity string `json:"persistentIdentity,omitempty"` // joinRoom
	Name               string `json:"name,omitempty"`               // setPlayerName / callName
	Avatar             string `json:"avatar,omitempty"`             // setAvatar
	SeatIndex          *int   `json:"seatIndex,omitempty"`          // takeSeat
}

// SeatSnapshot describes one occupied seat; empty seats are null in the
// seats array.
type SeatSnapshot struct {
	ID     string `json:"id"`
	Name   Name   `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type TeamsSnapshot struct {
	A []string `json:"A"`
	B []string `json:"B"`
}

type SecretNameEntry struct {
	PlayerID   string `json:"playerId"`
	SecretName Name   `json:"secretName"`
}

// RoomSnapshot is the full externally-visible room state, broadcast after
// every mutation. Secret names are visible to every room member; the couch
// game relies on players not looking, not on the server hiding them.
type RoomSnapshot struct {
	ID          string            `json:"id"`
	GamePhase   string            `json:"gamePhase"` // "lobby", "playing", "finished"
	Seats       []*SeatSnapshot   `json:"seats"`
	Teams       TeamsSnapshot     `json:"teams"`
	CouchSeats  []int             `json:"couchSeats"`
	CurrentTurn int               `json:"currentTurn"`
	EmptySeat   int               `json:"emptySeat"`
	SecretNames []SecretNameEntry `json:"secretNames,omitempty"`
}

type PlayerSnapshot struct {
	ID     string `json:"id"`
	Name   Name   `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Ready  bool   `json:"isReady"`
}

// PlayerJoinedMessage acknowledges a join or reconnection. The player's
// persistent identity rides along in Player.ID so first-time clients can
// store it for later reconnects.
type PlayerJoinedMessage struct {
	Type   string         `json:"type"` // "playerJoined"
	Room   *RoomSnapshot  `json:"room"`
	Player PlayerSnapshot `json:"player"`
}

type RoomUpdateMessage struct {
	Type string        `json:"type"` // "roomUpdate"
	Room *RoomSnapshot `json:"room"`
}

type SeatTakenMessage struct {
	Type string        `json:"type"` // "seatTaken"
	Room *RoomSnapshot `json:"room"`
}

type PlayerNameChangedMessage struct {
	Type     string        `json:"type"` // "playerNameChanged"
	Room     *RoomSnapshot `json:"room"`
	PlayerID string        `json:"playerId"`
	Name     Name          `json:"name"`
}

type EmojiChangedMessage struct {
	Type string        `json:"type"` // "emojiChanged"
	Room *RoomSnapshot `json:"room"`
}

type GameStartedMessage struct {
	Type string        `json:"type"` // "gameStarted"
	Room *RoomSnapshot `json:"room"`
}

type NameCalledMessage struct {
	Type       string `json:"type"` // "nameCalled"
	CallerName Name   `json:"callerName"`
	CalledName Name   `json:"calledName"`
}

type MoveMadeMessage struct {
	Type string        `json:"type"` // "moveMade"
	Room *RoomSnapshot `json:"room"`
}

type GameFinishedMessage struct {
	Type   string        `json:"type"` // "gameFinished"
	Winner Team          `json:"winner"`
	Room   *RoomSnapshot `json:"room"`
}

type PlayerLeftMessage struct {
	Type string        `json:"type"` // "playerLeft"
	Room *RoomSnapshot `json:"room"`
}

type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

func playerSnapshot(p *Player, ready bool) PlayerSnapshot {
	return PlayerSnapshot{
		ID:     p.ID,
		Name:   p.Name,
		Avatar: p.Avatar,
		Ready:  ready,
	}
}

// lobbySnapshot renders a pre-game roster. Seats mirror the roster order,
// and the alternating team split shown here is advisory only; the real
// teams are recomputed from a shuffled roster when the game starts.
func lobbySnapshot(l *Lobby) *RoomSnapshot {
	snap := &RoomSnapshot{
		ID:          l.roomID,
		GamePhase:   "lobby",
		Seats:       make([]*SeatSnapshot, len(l.players)),
		CurrentTurn: -1,
		EmptySeat:   -1,
	}

	for i, p := range l.players {
		snap.Seats[i] = &SeatSnapshot{
			ID:     p.ID,
			Name:   p.Name,
			Avatar: p.Avatar,
		}
		if i%2 == 0 {
			snap.Teams.A = append(snap.Teams.A, p.ID)
		} else {
			snap.Teams.B = append(snap.Teams.B, p.ID)
		}
	}

	for i := 0; i < couchSize(len(l.players)); i++ {
		snap.CouchSeats = append(snap.CouchSeats, i)
	}

	return snap
}

func gameSnapshot(g *ActiveGame) *RoomSnapshot {
	phase := "playing"
	if g.finished {
		phase = "finished"
	}

	snap := &RoomSnapshot{
		ID:          g.roomID,
		GamePhase:   phase,
		Seats:       make([]*SeatSnapshot, len(g.seats)),
		CouchSeats:  g.couchSeats,
		CurrentTurn: g.turnSeat,
		EmptySeat:   g.emptySeat,
	}

	for i, id := range g.seats {
		if id == "" {
			continue
		}
		p := g.playerByID(id)
		if p == nil {
			continue
		}
		snap.Seats[i] = &SeatSnapshot{
			ID:     p.ID,
			Name:   p.Name,
			Avatar: p.Avatar,
		}
	}

	snap.Teams.A = g.teamA
	snap.Teams.B = g.teamB

	for _, p := range g.players {
		snap.SecretNames = append(snap.SecretNames, SecretNameEntry{
			PlayerID:   p.ID,
			SecretName: p.SecretName,
		})
	}

	return snap
}
