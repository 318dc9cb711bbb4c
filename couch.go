// Couchparty Couch Game
//
// Players join a shared room and are seated in a circle with exactly one
// empty seat. At game start everyone is dealt another player's name in
// secret (possibly their own). The player seated clockwise of the empty seat
// calls out a name; whoever secretly holds that name moves into the empty
// seat, and the seat they vacated becomes the new empty seat. A team wins by
// fully occupying the couch, a fixed run of seats at the front of the circle.
//
// Features:
// - WebSockets per room ID: /couch/:roomid and /couch/:roomid/ws
// - Players identified by a client-persisted token, so reconnects resume
//   the same player instead of duplicating them
// - Lobby phase: pick a display name and avatar, swap seats, then start
//   once six or more players are ready
// - Teams assigned by alternating over a uniformly shuffled roster
// - Disconnecting from a lobby starts a reconnect grace period before
//   removal; disconnecting from a running game never removes the player
// - Stale or mistyped name calls resolve to no-ops, so racing callers
//   cannot corrupt the room
// - Rooms auto-reaped after configurable idle timeout
// - Random 9-char room IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current room, backed by go-qrcode

package main

import (
	crand "crypto/rand"
	"log"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

type Client struct {
	conn     *websocket.Conn
	send     chan any
	identity string // persistent player identity; "" until joinRoom binds it
}

type inboundMessage struct {
	client *Client
	msg    ClientMessage
}

// Hub owns all state for one room: the connected clients, the lobby or the
// running game (never both), and the pending grace-period removals. Every
// mutation happens on the run loop goroutine, so handlers never race and no
// lock guards the room state itself.
type Hub struct {
	id      string
	clients map[*Client]bool
	lobby   *Lobby
	game    *ActiveGame

	register chan *Client
	unreg    chan *Client
	inbound  chan inboundMessage
	expired  chan string
	done     chan struct{}
	stopOnce sync.Once

	// grace-period removal timers, keyed by player identity
	removals map[string]*time.Timer

	rng *rand.Rand

	onEmpty func()

	mu         sync.RWMutex // guards lastActive for the reaper
	lastActive time.Time
}

func newHub(roomID string) *Hub {
	return &Hub{
		id:         roomID,
		clients:    make(map[*Client]bool),
		lobby:      newLobby(roomID),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		inbound:    make(chan inboundMessage),
		expired:    make(chan string),
		done:       make(chan struct{}),
		removals:   make(map[string]*time.Timer),
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		lastActive: time.Now(),
	}
}

func (h *Hub) run(cfg *Config) {
	for {
		select {
		case c := <-h.register:
			h.touch()
			h.clients[c] = true

		case c := <-h.unreg:
			h.handleUnregister(cfg, c)

		case in := <-h.inbound:
			h.handleMessage(cfg, in.client, in.msg)

		case identity := <-h.expired:
			h.handleGraceExpiry(cfg, identity)

		case <-h.done:
			h.closeAll()
			return
		}
	}
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

// sendTo queues a message for one client, dropping the client if its send
// buffer is full (a stalled writer).
func (h *Hub) sendTo(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(msg any) {
	for c := range h.clients {
		h.sendTo(c, msg)
	}
}

func (h *Hub) handleMessage(cfg *Config, c *Client, msg ClientMessage) {
	h.touch()

	switch msg.Type {
	case "joinRoom":
		h.handleJoin(cfg, c, msg)

	case "setPlayerName":
		if h.lobby == nil || c.identity == "" {
			return
		}
		name := Name(strings.TrimSpace(msg.Name))
		if !h.lobby.setDisplayName(c.identity, name) {
			return
		}
		h.broadcast(PlayerNameChangedMessage{
			Type:     "playerNameChanged",
			Room:     lobbySnapshot(h.lobby),
			PlayerID: c.identity,
			Name:     name,
		})

	case "setAvatar":
		if h.lobby == nil || c.identity == "" {
			return
		}
		if !h.lobby.setAvatar(c.identity, msg.Avatar) {
			return
		}
		h.broadcast(EmojiChangedMessage{
			Type: "emojiChanged",
			Room: lobbySnapshot(h.lobby),
		})

	case "takeSeat":
		if h.lobby == nil || c.identity == "" || msg.SeatIndex == nil {
			return
		}
		if !h.lobby.swapSeats(c.identity, *msg.SeatIndex) {
			return
		}
		h.broadcast(SeatTakenMessage{
			Type: "seatTaken",
			Room: lobbySnapshot(h.lobby),
		})

	case "startGame":
		h.handleStart(cfg, c)

	case "callName":
		h.handleCall(cfg, c, Name(msg.Name))

	case "leaveRoom":
		h.handleLeave(cfg, c)
	}
}

func (h *Hub) handleJoin(cfg *Config, c *Client, msg ClientMessage) {
	identity := strings.TrimSpace(msg.PersistentIdentity)
	if identity == "" {
		identity = uuid.NewString()
	}

	if h.game != nil {
		p := h.game.playerByID(identity)
		if p == nil {
			// membership is frozen once a game starts
			h.sendTo(c, ErrorMessage{Type: "error", Message: "This game has already started."})
			return
		}

		c.identity = identity
		h.sendTo(c, PlayerJoinedMessage{
			Type:   "playerJoined",
			Room:   gameSnapshot(h.game),
			Player: playerSnapshot(p, true),
		})
		logf(cfg, "GAMES: %q reconnected to game %s", p.Name, h.id)
		return
	}

	if h.lobby == nil {
		h.lobby = newLobby(h.id)
	}

	if p := h.lobby.player(identity); p != nil {
		// reconnection; stop any pending grace-period removal and resend
		// the current state to this connection only
		h.cancelRemoval(identity)
		c.identity = identity
		h.sendTo(c, PlayerJoinedMessage{
			Type:   "playerJoined",
			Room:   lobbySnapshot(h.lobby),
			Player: playerSnapshot(p, false),
		})
		logf(cfg, "GAMES: %q reconnected to room %s", p.Name, h.id)
		return
	}

	p := h.lobby.addPlayer(identity, Name(strings.TrimSpace(msg.DisplayName)))
	c.identity = identity

	room := lobbySnapshot(h.lobby)
	h.broadcast(PlayerJoinedMessage{
		Type:   "playerJoined",
		Room:   room,
		Player: playerSnapshot(p, false),
	})
	h.broadcast(RoomUpdateMessage{Type: "roomUpdate", Room: room})

	logf(cfg, "GAMES: %q joined room %s", p.Name, h.id)
}

func (h *Hub) handleStart(cfg *Config, c *Client) {
	if c.identity == "" {
		return
	}
	if h.game != nil {
		h.sendTo(c, ErrorMessage{Type: "error", Message: "The game is already running."})
		return
	}
	if h.lobby == nil {
		return
	}

	game, err := newActiveGame(h.lobby, h.rng)
	if err != nil {
		h.sendTo(c, ErrorMessage{Type: "error", Message: err.Error()})
		return
	}

	// atomic promotion: the lobby is gone and the game installed before
	// anything is broadcast
	h.game = game
	h.lobby = nil
	h.cancelAllRemovals()

	room := gameSnapshot(game)
	h.broadcast(GameStartedMessage{Type: "gameStarted", Room: room})
	h.broadcast(RoomUpdateMessage{Type: "roomUpdate", Room: room})

	logf(cfg, "GAMES: Game started in room %s with %d players", h.id, len(game.players))
}

func (h *Hub) handleCall(cfg *Config, c *Client, called Name) {
	if h.game == nil || c.identity == "" {
		return
	}

	caller := h.game.playerByID(c.identity)
	if caller == nil {
		return
	}

	winner, moved := h.game.resolveMove(called)
	if !moved {
		return
	}

	h.broadcast(NameCalledMessage{
		Type:       "nameCalled",
		CallerName: caller.Name,
		CalledName: called,
	})

	room := gameSnapshot(h.game)
	if winner != "" {
		h.broadcast(GameFinishedMessage{Type: "gameFinished", Winner: winner, Room: room})
		logf(cfg, "GAMES: Team %s won in room %s", winner, h.id)
	} else {
		h.broadcast(MoveMadeMessage{Type: "moveMade", Room: room})
	}
}

func (h *Hub) handleLeave(cfg *Config, c *Client) {
	identity := c.identity
	if identity == "" {
		return
	}
	c.identity = ""

	if h.game != nil {
		// a started game's roster is immutable; the seat stays occupied
		// and the player may still reconnect
		logf(cfg, "GAMES: %s left game %s but remains seated", identity, h.id)
		return
	}

	if h.lobby == nil {
		return
	}

	h.cancelRemoval(identity)
	if !h.lobby.removePlayer(identity) {
		return
	}

	logf(cfg, "GAMES: %s left room %s", identity, h.id)
	h.afterLobbyRemoval(cfg)
}

func (h *Hub) handleUnregister(cfg *Config, c *Client) {
	h.touch()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}

	identity := c.identity
	if identity == "" {
		return
	}

	// another live connection for the same identity keeps the player present
	for other := range h.clients {
		if other.identity == identity {
			return
		}
	}

	if h.game != nil {
		// retained for reconnection, no time limit
		logf(cfg, "GAMES: %s disconnected from game %s, seat retained", identity, h.id)
		return
	}

	if h.lobby == nil || h.lobby.player(identity) == nil {
		return
	}

	h.scheduleRemoval(identity, cfg.gracePeriod)
}

// scheduleRemoval arms the grace-period timer for a disconnected lobby
// player. A fresh disconnect restarts the timer rather than stacking a
// second one; the timer only enqueues an event, so expiry is handled on the
// run loop like everything else.
func (h *Hub) scheduleRemoval(identity string, d time.Duration) {
	if t, ok := h.removals[identity]; ok {
		t.Stop()
	}
	h.removals[identity] = time.AfterFunc(d, func() {
		select {
		case h.expired <- identity:
		case <-h.done:
		}
	})
}

func (h *Hub) cancelRemoval(identity string) {
	if t, ok := h.removals[identity]; ok {
		t.Stop()
		delete(h.removals, identity)
	}
}

func (h *Hub) cancelAllRemovals() {
	for identity, t := range h.removals {
		t.Stop()
		delete(h.removals, identity)
	}
}

func (h *Hub) handleGraceExpiry(cfg *Config, identity string) {
	delete(h.removals, identity)

	if h.lobby == nil {
		return
	}

	// reconnected in the meantime
	for c := range h.clients {
		if c.identity == identity {
			return
		}
	}

	if !h.lobby.removePlayer(identity) {
		return
	}

	logf(cfg, "GAMES: %s removed from room %s after grace period", identity, h.id)
	h.afterLobbyRemoval(cfg)
}

func (h *Hub) afterLobbyRemoval(cfg *Config) {
	if h.lobby.empty() {
		h.lobby = nil
		logf(cfg, "GAMES: Room %s is empty and has been closed", h.id)
		if h.onEmpty != nil {
			h.onEmpty()
		}
		return
	}

	room := lobbySnapshot(h.lobby)
	h.broadcast(PlayerLeftMessage{Type: "playerLeft", Room: room})
	h.broadcast(RoomUpdateMessage{Type: "roomUpdate", Room: room})
}

// closeAll disconnects all clients of this hub (used on shutdown/reap).
func (h *Hub) closeAll() {
	h.cancelAllRemovals()

	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// GameManager holds a set of hubs keyed by room ID, so each $path/$roomid
// is its own isolated room.
type GameManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
}

func newGameManager(idleTimeout time.Duration) *GameManager {
	gm := &GameManager{
		hubs:        make(map[string]*Hub),
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

// normalizeRoomID canonicalizes a client-supplied room ID: lowercased, with
// runs of whitespace collapsed to single hyphens.
func normalizeRoomID(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), "-")
}

func (gm *GameManager) getHub(cfg *Config, roomID string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[roomID]; ok {
		return hub
	}

	hub := newHub(roomID)
	hub.onEmpty = func() {
		gm.remove(roomID)
		hub.stop()
	}
	gm.hubs[roomID] = hub
	go hub.run(cfg)
	return hub
}

func (gm *GameManager) remove(roomID string) {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	delete(gm.hubs, roomID)
}

// newRoomID generates a crypto-random room ID and ensures it doesn't
// collide with existing rooms. The alphabet is lowercase so generated IDs
// survive normalization unchanged.
func (gm *GameManager) newRoomID() string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 9)
		if _, err := crand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 9)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		gm.mu.Lock()
		_, exists := gm.hubs[id]
		gm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reaperLoop periodically removes hubs that have been idle longer than
// idleTimeout.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-gm.idleTimeout)

		gm.mu.Lock()
		for id, hub := range gm.hubs {
			hub.mu.RLock()
			last := hub.lastActive
			hub.mu.RUnlock()

			if last.Before(cutoff) {
				delete(gm.hubs, id)
				hub.stop()
			}
		}
		gm.mu.Unlock()
	}
}

// WebSocket handler that picks the hub based on :roomid. Connecting to the
// "new" sentinel allocates a fresh random room; the assigned ID reaches the
// client in the first room snapshot.
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := normalizeRoomID(ps.ByName("roomid"))
		if roomID == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}
		if roomID == "new" {
			roomID = gm.newRoomID()
		}

		hub := gm.getHub(cfg, roomID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, 8),
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "joinRoom", "setPlayerName", "setAvatar", "takeSeat", "startGame", "callName", "leaveRoom":
			select {
			case h.inbound <- inboundMessage{client: c, msg: msg}:
			case <-h.done:
				return
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current room URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomID := ps.ByName("roomid")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:roomid/qr; strip trailing "/qr" to get the room URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func serveRoomPage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(newPage("couchparty", "Room "+normalizeRoomID(ps.ByName("roomid")))))
	}
}

// redirectNewGame handles GET /path by generating a new random room ID
// (with server-side collision detection) and redirecting to /path/:roomid.
func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		roomID := gm.newRoomID()
		logf(cfg, "GAMES: Created room %s/%s", path, roomID)
		http.Redirect(w, r, path+"/"+roomID, http.StatusTemporaryRedirect)
	}
}

// registerCouchGame sets up routes so that:
//   - $path                  → redirects to new random room (9-char ID)
//   - $path/:roomid          → HTML client
//   - $path/:roomid/ws       → WebSocket for that room
//   - $path/:roomid/qr       → PNG QR code for that room URL
func registerCouchGame(cfg *Config, path string, mux *httprouter.Router) {
	gm := newGameManager(cfg.sessionTimeout)

	// Root path → redirect to new random room
	mux.GET(cfg.prefix+path, redirectNewGame(cfg, cfg.prefix+path, gm))

	// Per-room client view (HTML)
	mux.GET(cfg.prefix+path+"/:roomid", serveRoomPage(cfg))

	// Per-room websocket
	mux.GET(cfg.prefix+path+"/:roomid/ws", serveWSForManager(cfg, gm))

	// Per-room QR code
	mux.GET(cfg.prefix+path+"/:roomid/qr", qrHandler)
}
