package games

// The couch game, sometimes played at parties as "musical chairs with secret names"
// Players sit in a circle of chairs with exactly one chair left empty
// Each player is secretly dealt the name of another player (or, with some luck, their own)
// The player sitting to the clockwise side of the empty chair calls out any player's name
// Whoever secretly holds that name stands up and moves into the empty chair
// Their old chair becomes the new empty chair, and the player beside it calls next
// A subset of chairs at the front is "the couch"; a team wins by seating only its members there

// Display formats:
// Circle of seats with avatars, empty seat highlighted, couch seats marked
// Lobby list with name/avatar pickers and drag-to-reorder seating preference

// Implementation details:
// - Use websockets to fan room updates out to every connected player
// - Identify players by a client-persisted token so reconnects resume the same player
// - Keep all room state in one event loop per room; no cross-room coordination

// How to play
// - Each player joins a room, picks a display name and an avatar, and optionally a seat
// - With six or more ready players, anyone may start the game
// - Teams alternate around a shuffled seating order, so both sides are interleaved
// - Calls that miss (a name nobody holds anymore) are simply ignored; play continues
