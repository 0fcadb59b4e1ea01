// Package clientcore is the non-rendering half of the browser client:
// the mirror of the authoritative match state, the optimistic-turn
// buffer, drag state, smooth clock interpolation, and the notable-event
// queue the UI shell drains for sounds and dialogs.
//
// The wire mirror structs duplicate internal/server's snapshot JSON
// contract on purpose: the client decodes the wire format, it does not
// share the server's internals.
package clientcore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/amatveiakin/bughouse-chess/internal/algebraic"
	"github.com/amatveiakin/bughouse-chess/internal/board"
	"github.com/amatveiakin/bughouse-chess/internal/bughouse"
	"github.com/amatveiakin/bughouse-chess/internal/clock"
	"github.com/amatveiakin/bughouse-chess/internal/coord"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/piece"
	"github.com/amatveiakin/bughouse-chess/internal/protocol"
	"github.com/amatveiakin/bughouse-chess/internal/rules"
	"github.com/amatveiakin/bughouse-chess/internal/session"
	"github.com/amatveiakin/bughouse-chess/internal/turn"
)

// ClientVersion must match the server's advertised version; a mismatch is
// fatal.
const ClientVersion = "1"

// DragState tracks an in-flight piece drag. Defunct marks a drag whose
// underlying game state changed under it (flag fall, game over): the UI
// renders it semi-transparent and the release is a no-op.
type DragState int

const (
	DragNo DragState = iota
	DragYes
	DragDefunct
)

// NotableEventKind names something the UI shell should react to.
type NotableEventKind int

const (
	NotableGameStarted NotableEventKind = iota
	NotableTurnMade
	NotableGameOver
	NotablePreturnDropped
	NotableChatMessage
	NotableKickedFromMatch
	NotableError
	NotableExportReady
	NotableArchiveGameLoaded
	NotableProtocolMismatch
)

// NotableEvent is one queued UI reaction: a sound to play, a dialog to
// open, an archive game that finished loading.
type NotableEvent struct {
	Kind NotableEventKind
	Text string
}

// Wire mirror of the server's snapshot JSON (see internal/server). The
// client owns its own copy of this contract.
type wireRules struct {
	Rated           bool  `json:"rated"`
	FischerRandom   bool  `json:"fischer_random"`
	Accolade        bool  `json:"accolade"`
	DuckChess       bool  `json:"duck_chess"`
	FogOfWar        bool  `json:"fog_of_war"`
	Koedem          bool  `json:"koedem"`
	StartingMillis  int64 `json:"starting_millis"`
	IncrementMillis int64 `json:"increment_millis"`
	BonusMillis     int64 `json:"bonus_on_opponent_move_millis"`
	MinPawnDropRank int   `json:"min_pawn_drop_rank"`
	MaxPawnDropRank int   `json:"max_pawn_drop_rank"`
	DropAggression  int   `json:"drop_aggression"`
	Promotion       int   `json:"promotion"`
}

type wireLogEntry struct {
	Board force.BoardID `json:"board"`
	Force force.Force   `json:"force"`
	Text  string        `json:"text"`
}

type wireGame struct {
	Seed   int64          `json:"seed"`
	Status string         `json:"status"`
	Log    []wireLogEntry `json:"log"`
}

type wireSeat struct {
	Board force.BoardID `json:"Board"`
	Force force.Force   `json:"Force"`
}

type wireParticipant struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Ready       bool      `json:"ready"`
	Rating      *float64  `json:"rating,omitempty"`
	Seat        *wireSeat `json:"seat,omitempty"`
}

type wireSnapshot struct {
	ID               string            `json:"id"`
	Code             string            `json:"code"`
	Phase            string            `json:"phase"`
	Rules            wireRules         `json:"rules"`
	Participants     []wireParticipant `json:"participants"`
	GameIndex        int               `json:"game_index"`
	CountdownSeconds *int              `json:"countdown_seconds,omitempty"`
	SharedWayback    *int              `json:"shared_wayback,omitempty"`
	Game             *wireGame         `json:"game,omitempty"`
}

// Seat is the client's own (board, force) slot this game.
type Seat struct {
	Board force.BoardID
	Force force.Force
}

type clockSlot struct {
	Board force.BoardID
	Force force.Force
}

// clockMirror is the latest server-reported reading for one slot plus
// the local wall time it arrived, the anchor for interpolation.
type clockMirror struct {
	remaining  time.Duration
	ticking    bool
	receivedAt time.Time
	// lastShown enforces monotonic non-increase between server snapshots:
	// extrapolation only ever moves the display down; only a fresh server
	// reading may move it back up.
	lastShown time.Duration
}

// Core is the client's mirror state. Game holds only authoritative,
// server-confirmed turns; optimistic local turns are kept separately and
// overlaid on demand by ViewBoard, so a divergence reverts cleanly by
// dropping the overlay.
type Core struct {
	ParticipantID string
	// ReconnectToken is the latest server-issued credential to present as
	// ?reconnect= when opening a fresh socket.
	ReconnectToken string
	MatchCode      string
	Phase          string
	Rules          rules.Rules
	Game           *bughouse.Game
	MySeat         *Seat

	CountdownSeconds *int

	lastServerSeq *uint32
	optimistic    map[force.BoardID][]turn.Turn
	drag          DragState
	events        []NotableEvent
	clocks        map[clockSlot]*clockMirror
	click         protocol.ClickState

	pingsInFlight map[uint32]time.Time
	// lastRTT is the most recent ping/pong round trip, the client's
	// latency estimate for clock display purposes.
	lastRTT time.Duration
}

func New(participantID string) *Core {
	return &Core{
		ParticipantID: participantID,
		optimistic:    make(map[force.BoardID][]turn.Turn),
		clocks:        make(map[clockSlot]*clockMirror),
		pingsInFlight: make(map[uint32]time.Time),
	}
}

// DrainEvents returns and clears the notable-event queue; the UI shell
// calls this once per frame.
func (c *Core) DrainEvents() []NotableEvent {
	out := c.events
	c.events = nil
	return out
}

func (c *Core) push(kind NotableEventKind, text string) {
	c.events = append(c.events, NotableEvent{Kind: kind, Text: text})
}

func (c *Core) Drag() DragState { return c.drag }

// StartDrag begins a drag if a game is active.
func (c *Core) StartDrag() {
	if c.Game != nil && c.Game.Status.Kind == bughouse.Active {
		c.drag = DragYes
	}
}

// CancelDrag clears any drag.
func (c *Core) CancelDrag() { c.drag = DragNo }

// RecordPingSent remembers when a Ping left, to pair with its Pong.
func (c *Core) RecordPingSent(seq uint32, at time.Time) {
	c.pingsInFlight[seq] = at
}

// LastRTT reports the most recent measured round trip.
func (c *Core) LastRTT() time.Duration { return c.lastRTT }

// ApplyServerEvent folds one ServerEvent into the mirror state. It is
// idempotent: an event whose server_seq has already been observed is a
// no-op, which makes hot-reconnect replay
// overlap harmless.
func (c *Core) ApplyServerEvent(evt session.ServerEvent, nowLocal time.Time) error {
	if c.lastServerSeq != nil && evt.ServerSeq <= *c.lastServerSeq {
		return nil
	}
	seq := evt.ServerSeq
	c.lastServerSeq = &seq

	switch evt.Kind {
	case session.EvWelcome:
		return c.onWelcome(evt)
	case session.EvMatchJoined:
		if evt.MatchJoined == nil {
			return nil
		}
		return c.onSnapshot(evt.MatchJoined.Snapshot, nowLocal)
	case session.EvGameStarted:
		if evt.GameStarted == nil {
			return nil
		}
		err := c.onSnapshot(evt.GameStarted.Snapshot, nowLocal)
		c.push(NotableGameStarted, "")
		return err
	case session.EvMatchUpdated:
		if evt.MatchUpdated == nil {
			return nil
		}
		return c.onSnapshot(evt.MatchUpdated.Delta, nowLocal)
	case session.EvTurnMade:
		return c.onTurnMade(evt, nowLocal)
	case session.EvGameOver:
		return c.onGameOver(evt)
	case session.EvChatMessage:
		if evt.ChatMessage != nil {
			c.push(NotableChatMessage, evt.ChatMessage.From+": "+evt.ChatMessage.Text)
		}
	case session.EvPong:
		c.onPong(evt, nowLocal)
	case session.EvKickedFromMatch:
		reason := ""
		if evt.KickedFromMatch != nil {
			reason = evt.KickedFromMatch.Reason
		}
		c.resetMatchState()
		c.push(NotableKickedFromMatch, reason)
	case session.EvError:
		if evt.Error != nil {
			c.push(NotableError, evt.Error.Kind+": "+evt.Error.Text)
		}
	case session.EvExportReady:
		if evt.ExportReady != nil {
			c.push(NotableExportReady, evt.ExportReady.Content)
		}
	case session.EvArchiveGameLoaded:
		c.push(NotableArchiveGameLoaded, "")
	case session.EvLobbyCountdown:
		if evt.LobbyCountdown != nil {
			c.CountdownSeconds = evt.LobbyCountdown.SecondsLeft
		}
	}
	return nil
}

// LastServerSeq reports the highest server_seq observed, for the
// HotReconnect handshake.
func (c *Core) LastServerSeq() (uint32, bool) {
	if c.lastServerSeq == nil {
		return 0, false
	}
	return *c.lastServerSeq, true
}

func (c *Core) onWelcome(evt session.ServerEvent) error {
	if evt.Welcome == nil {
		return fmt.Errorf("welcome payload missing")
	}
	if evt.Welcome.ServerVersion != ClientVersion {
		c.push(NotableProtocolMismatch, evt.Welcome.ServerVersion)
		return fmt.Errorf("protocol mismatch: server %s, client %s", evt.Welcome.ServerVersion, ClientVersion)
	}
	c.ParticipantID = evt.Welcome.ParticipantID
	if evt.Welcome.ReconnectToken != "" {
		c.ReconnectToken = evt.Welcome.ReconnectToken
	}
	return nil
}

func (c *Core) resetMatchState() {
	c.MatchCode = ""
	c.Phase = ""
	c.Game = nil
	c.MySeat = nil
	c.optimistic = make(map[force.BoardID][]turn.Turn)
	c.drag = DragNo
	c.clocks = make(map[clockSlot]*clockMirror)
	c.click.Clear()
}

func rulesFromWire(v wireRules) (rules.Rules, error) {
	r := rules.Rules{
		Match: rules.MatchRules{Rated: v.Rated},
		Chess: rules.ChessRules{
			DuckChess: v.DuckChess,
			FogOfWar:  v.FogOfWar,
			Koedem:    v.Koedem,
			TimeControl: rules.TimeControl{
				Starting:            time.Duration(v.StartingMillis) * time.Millisecond,
				Increment:           time.Duration(v.IncrementMillis) * time.Millisecond,
				BonusOnOpponentMove: time.Duration(v.BonusMillis) * time.Millisecond,
			},
		},
	}
	if v.FischerRandom {
		r.Chess.StartingPosition = rules.FischerRandom
	}
	if v.Accolade {
		r.Chess.FairyPieces = rules.Accolade
	}
	minRow, ok := coord.SubjectiveRowFromOneBased(v.MinPawnDropRank)
	if !ok {
		return r, fmt.Errorf("bad min pawn drop rank %d", v.MinPawnDropRank)
	}
	maxRow, ok := coord.SubjectiveRowFromOneBased(v.MaxPawnDropRank)
	if !ok {
		return r, fmt.Errorf("bad max pawn drop rank %d", v.MaxPawnDropRank)
	}
	r.Bughouse = rules.BughouseRules{
		Promotion:      rules.Promotion(v.Promotion),
		MinPawnDropRow: minRow,
		MaxPawnDropRow: maxRow,
		DropAggression: rules.DropAggression(v.DropAggression),
	}
	return r, nil
}

// onSnapshot rebuilds the whole mirror from an authoritative snapshot:
// the game is reconstructed by replaying the turn log from the seed. Any
// outstanding optimistic turns are discarded — the snapshot supersedes
// them.
func (c *Core) onSnapshot(raw []byte, nowLocal time.Time) error {
	var snap wireSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	r, err := rulesFromWire(snap.Rules)
	if err != nil {
		return err
	}
	c.MatchCode = snap.Code
	c.Phase = snap.Phase
	c.Rules = r
	c.CountdownSeconds = snap.CountdownSeconds
	c.optimistic = make(map[force.BoardID][]turn.Turn)

	c.MySeat = nil
	for _, wp := range snap.Participants {
		if wp.ID == c.ParticipantID && wp.Seat != nil {
			c.MySeat = &Seat{Board: wp.Seat.Board, Force: wp.Seat.Force}
		}
	}

	if snap.Game == nil {
		c.Game = nil
		return nil
	}
	g := bughouse.New(snap.Game.Seed, r)
	for i, e := range snap.Game.Log {
		t, err := algebraic.Parse(e.Text, g.Boards[e.Board], e.Force)
		if err != nil {
			return fmt.Errorf("replay log entry %d (%s): %w", i, e.Text, err)
		}
		if err := g.ApplyTurn(e.Board, e.Force, t, clock.GameInstant{Approximate: true}); err != nil {
			return fmt.Errorf("replay log entry %d (%s): %w", i, e.Text, err)
		}
	}
	c.Game = g
	c.seedClockMirrors(nowLocal)
	return nil
}

// seedClockMirrors installs starting-time readings after a snapshot
// rebuild; real readings refresh with the next TurnMade.
func (c *Core) seedClockMirrors(nowLocal time.Time) {
	starting := c.Rules.Chess.TimeControl.Starting
	for _, b := range []force.BoardID{force.BoardA, force.BoardB} {
		for _, f := range []force.Force{force.White, force.Black} {
			c.clocks[clockSlot{Board: b, Force: f}] = &clockMirror{
				remaining:  starting,
				receivedAt: nowLocal,
				lastShown:  starting,
			}
		}
	}
}

// onTurnMade applies one authoritative turn to the authoritative game.
// If it equals the head of this client's optimistic buffer for that
// board, the head is popped silently (the overlaid view was already
// right); on divergence the whole overlay for the board is reverted.
func (c *Core) onTurnMade(evt session.ServerEvent, nowLocal time.Time) error {
	p := evt.TurnMade
	if p == nil || c.Game == nil {
		return nil
	}
	var text string
	if err := json.Unmarshal(p.Turn, &text); err != nil {
		return fmt.Errorf("decode turn: %w", err)
	}

	b := c.Game.Boards[p.Board]
	mover := b.ActiveSide
	t, err := algebraic.Parse(text, b, mover)
	if err != nil {
		return fmt.Errorf("parse authoritative turn %q: %w", text, err)
	}

	if pending := c.optimistic[p.Board]; len(pending) > 0 {
		if turnsMatch(pending[0], t) {
			c.optimistic[p.Board] = pending[1:]
		} else {
			c.optimistic[p.Board] = nil
			c.push(NotablePreturnDropped, text)
		}
	}

	if err := c.Game.ApplyTurn(p.Board, mover, t, clock.GameInstant{Approximate: true}); err != nil {
		return fmt.Errorf("apply authoritative turn %q: %w", text, err)
	}
	c.updateClocks(p.Board, p.Clocks, nowLocal)
	c.push(NotableTurnMade, text)
	return nil
}

func turnsMatch(a, b turn.Turn) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case turn.KindMove:
		return a.From == b.From && a.To == b.To
	case turn.KindDrop:
		return a.DropKind == b.DropKind && a.DropTo == b.DropTo
	case turn.KindCastle:
		return a.CastleSide == b.CastleSide
	case turn.KindPlaceDuck:
		return a.DuckTo == b.DuckTo
	}
	return false
}

func (c *Core) onGameOver(evt session.ServerEvent) error {
	if c.drag == DragYes {
		c.drag = DragDefunct
	}
	c.Phase = "PostGame"
	for _, m := range c.clocks {
		m.ticking = false
	}
	text := ""
	if evt.GameOver != nil {
		text = evt.GameOver.Result + " (" + evt.GameOver.Reason + ")"
	}
	c.push(NotableGameOver, text)
	return nil
}

func (c *Core) onPong(evt session.ServerEvent, nowLocal time.Time) {
	if evt.Pong == nil {
		return
	}
	sentAt, ok := c.pingsInFlight[evt.Pong.Seq]
	if !ok {
		return
	}
	delete(c.pingsInFlight, evt.Pong.Seq)
	c.lastRTT = nowLocal.Sub(sentAt)
}

// updateClocks installs fresh server readings; a server snapshot may move
// a display in either direction (increments push it up), unlike local
// extrapolation which only ever moves it down.
func (c *Core) updateClocks(boardID force.BoardID, readings map[force.Force]session.ClockReading, nowLocal time.Time) {
	for f, r := range readings {
		slot := clockSlot{Board: boardID, Force: f}
		remaining := time.Duration(r.RemainingMillis) * time.Millisecond
		c.clocks[slot] = &clockMirror{
			remaining:  remaining,
			ticking:    r.TickingSinceOffsetMillis != nil,
			receivedAt: nowLocal,
			lastShown:  remaining,
		}
	}
}

// ClockDisplay interpolates one slot's countdown for rendering: the last
// server reading minus locally-elapsed time while ticking, clamped at
// zero, never increasing between server snapshots. Hitting zero here is
// advisory; only a server event ends the game.
func (c *Core) ClockDisplay(boardID force.BoardID, f force.Force, nowLocal time.Time) time.Duration {
	m, ok := c.clocks[clockSlot{Board: boardID, Force: f}]
	if !ok {
		return 0
	}
	shown := m.remaining
	if m.ticking {
		shown -= nowLocal.Sub(m.receivedAt)
	}
	if shown < 0 {
		shown = 0
	}
	if shown > m.lastShown {
		shown = m.lastShown
	}
	m.lastShown = shown
	return shown
}

// ViewBoard returns the board as the UI should render it: the
// authoritative position with this client's unconfirmed optimistic turns
// overlaid. The overlay is recomputed on each call, so reverting a wrong
// speculation is just dropping the buffer.
func (c *Core) ViewBoard(boardID force.BoardID) *board.Board {
	if c.Game == nil {
		return nil
	}
	view := c.Game.Boards[boardID].Clone()
	for _, t := range c.optimistic[boardID] {
		if _, err := view.TryApply(t); err != nil {
			break
		}
	}
	return view
}

// MakeLocalTurn canonicalizes a local input against the overlaid view,
// registers it optimistically when it is this player's move, and returns
// the algebraic text to put on the wire. When it is not the player's move
// the text is returned for preturn submission without touching the
// mirror (the preturn is confirmed or dropped by the server).
func (c *Core) MakeLocalTurn(in protocol.Input) (wireText string, appliedLocally bool, err error) {
	if c.Game == nil || c.MySeat == nil {
		return "", false, fmt.Errorf("not seated in an active game")
	}
	view := c.ViewBoard(c.MySeat.Board)
	t, err := protocol.Canonicalize(in, view, c.MySeat.Force)
	if err != nil {
		return "", false, err
	}
	text := algebraic.Format(t, view, c.MySeat.Force)
	if view.ActiveSide != c.MySeat.Force {
		c.drag = DragNo
		return text, false, nil
	}
	if _, err := view.TryApply(t); err != nil {
		return "", false, err
	}
	c.optimistic[c.MySeat.Board] = append(c.optimistic[c.MySeat.Board], t)
	c.drag = DragNo
	return text, true, nil
}

// PendingOptimistic reports the number of unconfirmed local turns for a
// board.
func (c *Core) PendingOptimistic(boardID force.BoardID) int {
	return len(c.optimistic[boardID])
}

// Click forwards a square click to the click-input state machine and, if
// it completed an input, plays it as a local turn.
func (c *Core) Click(sq coord.Coord) (wireText string, completed bool, err error) {
	in, done := c.click.ClickSquare(sq)
	if !done {
		return "", false, nil
	}
	text, _, err := c.MakeLocalTurn(in)
	return text, err == nil, err
}

// ClickReserve selects a reserve piece as the pending click source; the
// next square click completes it as a drop.
func (c *Core) ClickReserve(k piece.Kind) {
	c.click.ClickReserve(k)
}
