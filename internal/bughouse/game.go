// Package bughouse ties two internal/board.Board instances, one clock per
// force per board, and a shared internal/turn.Log into a single bughouse
// game: the unit that actually transfers captured material across boards
// and decides when the whole four-player game is over.
//
// A turn application sequences capture transfer, clock hand-off, log
// append, and status re-evaluation atomically; termination reasons cover
// the variant-specific win conditions (KingCaptured for Koedem, Duck and
// Fog-of-war) alongside the classical ones.
package bughouse

import (
	"fmt"
	"time"

	"github.com/amatveiakin/bughouse-chess/internal/board"
	"github.com/amatveiakin/bughouse-chess/internal/clock"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/piece"
	"github.com/amatveiakin/bughouse-chess/internal/rules"
	"github.com/amatveiakin/bughouse-chess/internal/turn"
)

// Team mirrors force.Team but lives in this package's public API since
// it's the unit players and match results are reported in.
type Team = force.Team

const (
	TeamOne = force.TeamOne
	TeamTwo = force.TeamTwo
)

// Reason names why a game ended.
type Reason int

const (
	ReasonNone Reason = iota
	Checkmate
	Flag
	Resignation
	Stalemate
	ThreefoldRepetition
	KingCaptured
	InsufficientMaterial
)

func (r Reason) String() string {
	switch r {
	case Checkmate:
		return "Checkmate"
	case Flag:
		return "Flag"
	case Resignation:
		return "Resignation"
	case Stalemate:
		return "Stalemate"
	case ThreefoldRepetition:
		return "ThreefoldRepetition"
	case KingCaptured:
		return "KingCaptured"
	case InsufficientMaterial:
		return "InsufficientMaterial"
	default:
		return "None"
	}
}

// StatusKind discriminates Status.
type StatusKind int

const (
	Active StatusKind = iota
	Victory
	Draw
)

// Status is the outcome of a bughouse game, or Active while still in play.
type Status struct {
	Kind   StatusKind
	Winner Team // meaningful only when Kind == Victory
	Reason Reason
}

func (s Status) String() string {
	switch s.Kind {
	case Active:
		return "Active"
	case Draw:
		return "Draw(" + s.Reason.String() + ")"
	case Victory:
		return fmt.Sprintf("Victory(%v, %s)", s.Winner, s.Reason)
	default:
		return "Unknown"
	}
}

// boardStatus is an internal per-board reading, before folding into the
// whole-game Status via teaming.
type boardStatus struct {
	kind   StatusKind
	winner force.Force
	reason Reason
}

// Game is one bughouse game in progress or finished.
type Game struct {
	Rules  rules.Rules
	Boards [2]*board.Board
	Clocks [2]*clock.Clock
	Log    *turn.Log
	Status Status
	// Seed reproduces the starting position (including any Fischer-random
	// shuffle); a replay of Log from New(Seed, Rules) reconstructs any
	// point of the game.
	Seed int64
}

// New builds a fresh bughouse game: two independently-generated boards
// (each gets its own Fischer-random shuffle when configured, keyed off the
// same seed with a different per-board salt) and one running clock per
// board, started for White.
func New(seed int64, r rules.Rules) *Game {
	g := &Game{
		Rules: r,
		Log:   &turn.Log{},
		Seed:  seed,
	}
	g.Boards[force.BoardA] = board.NewBoard(r.Chess, r.Bughouse, seed, 1)
	g.Boards[force.BoardB] = board.NewBoard(r.Chess, r.Bughouse, seed, 2)
	tc := clock.TimeControl{
		Starting:            r.Chess.TimeControl.Starting,
		Increment:           r.Chess.TimeControl.Increment,
		BonusOnOpponentMove: r.Chess.TimeControl.BonusOnOpponentMove,
	}
	g.Clocks[force.BoardA] = clock.New(tc)
	g.Clocks[force.BoardB] = clock.New(tc)
	g.Clocks[force.BoardA].NewTurn(force.White, clock.GameStart())
	g.Clocks[force.BoardB].NewTurn(force.White, clock.GameStart())
	return g
}

// ApplyTurn validates and applies t on the named board as `mover`. On
// success it transfers any captured material to the partner board's
// reserve, stops this board's clock for `mover` and starts the opponent's
// (unless a duck placement is still pending), appends to the shared Log, and re-evaluates Status. Calling
// ApplyTurn once the game is no longer Active is a caller error (the
// match layer must gate on Status itself).
func (g *Game) ApplyTurn(boardID force.BoardID, mover force.Force, t turn.Turn, now clock.GameInstant) error {
	if g.Status.Kind != Active {
		return fmt.Errorf("game is over: %v", g.Status)
	}
	b := g.Boards[boardID]
	if b.ActiveSide != mover {
		return &board.RejectError{Kind: board.RejectWrongTurnOrder}
	}
	if g.Clocks[boardID].OutOfTime(mover, now) {
		return fmt.Errorf("clock for %v on board %v has flagged", mover, boardID)
	}

	if err := g.validateSteal(boardID, t); err != nil {
		return err
	}
	res, err := b.TryApply(t)
	if err != nil {
		return err
	}
	g.applySteal(t)
	g.Log.Append(boardID, mover, t, time.Now())

	if !b.PendingDuckMove {
		g.Clocks[boardID].NewTurn(mover.Opponent(), now)
	}

	partner := boardID.Partner()
	for _, eff := range res.Effects {
		g.transferCapture(partner, eff)
	}

	g.reevaluateStatus(now)
	return nil
}

// validateSteal checks a promotion-by-steal turn before anything
// mutates: steal promotions are only available under rules.Steal, and
// the named square on the other board must actually hold a piece of the
// promised kind (the diagonal opponent's position changes concurrently,
// so the target can vanish between the client choosing it and the turn
// arriving).
func (g *Game) validateSteal(boardID force.BoardID, t turn.Turn) error {
	if t.Kind != turn.KindMove || t.Promotion == nil || t.Promotion.Steal == nil {
		return nil
	}
	if g.Rules.Bughouse.Promotion != rules.Steal {
		return &board.RejectError{Kind: board.RejectIllegal}
	}
	st := t.Promotion.Steal
	if st.Board == boardID {
		return &board.RejectError{Kind: board.RejectNeedsStealTarget}
	}
	p, ok := g.Boards[st.Board].PieceAt(st.At)
	if !ok || p.Kind != t.Promotion.PromoteTo || p.Kind == piece.King {
		return &board.RejectError{Kind: board.RejectNeedsStealTarget}
	}
	return nil
}

// applySteal removes the stolen piece from the other board after the
// promotion landed; the promoted piece on this board is its new life.
func (g *Game) applySteal(t turn.Turn) {
	if t.Kind != turn.KindMove || t.Promotion == nil || t.Promotion.Steal == nil {
		return
	}
	st := t.Promotion.Steal
	delete(g.Boards[st.Board].Grid, st.At)
}

// transferCapture gives a captured piece (split back into its innate
// components, for Accolade compounds) to the mover's partner's reserve on
// the other board.
func (g *Game) transferCapture(partnerBoard force.BoardID, eff board.SideEffect) {
	captured := eff.Captured
	if captured.Kind == piece.King && !g.Rules.Chess.Koedem {
		return
	}
	// A captured piece keeps its color: the capturer's partner plays that
	// color on the other board, so it lands in the same-color reserve.
	receivingForce := captured.Force
	partner := g.Boards[partnerBoard]
	if len(eff.SplitInto) > 0 {
		for _, k := range eff.SplitInto {
			partner.Reserves[receivingForce].Add(k, 1)
		}
		return
	}
	kind := captured.Kind
	if captured.Origin == piece.Promoted && !g.Rules.Chess.Koedem {
		kind = piece.Pawn
	}
	partner.Reserves[receivingForce].Add(kind, 1)
}

// reevaluateStatus checks both boards for a terminal condition and, if
// one or both ended, resolves the whole-game Status, applying the
// simultaneous-termination tie-break: the earlier TurnLog entry wins;
// ties (both boards found ended in the same evaluation, e.g. both flags
// falling by one Tick, or a mate on one board while the other board's
// clock has already run out) favor board A.
func (g *Game) reevaluateStatus(now clock.GameInstant) {
	if g.Rules.Chess.Koedem {
		if st, over := g.koedemStatus(); over {
			g.Status = st
			g.Clocks[force.BoardA].Stop(now)
			g.Clocks[force.BoardB].Stop(now)
			return
		}
	}
	sa := g.boardStatus(force.BoardA, now)
	sb := g.boardStatus(force.BoardB, now)
	status, ok := combineBoardStatuses(sa, sb)
	if !ok {
		return
	}
	g.Status = status
	if status.Kind != Active {
		g.Clocks[force.BoardA].Stop(now)
		g.Clocks[force.BoardB].Stop(now)
	}
}

func combineBoardStatuses(a, b boardStatus) (Status, bool) {
	if a.kind == Active && b.kind == Active {
		return Status{}, false
	}
	if a.kind != Active && b.kind != Active {
		// Board A's termination is recorded first in program order, so it
		// wins ties per the tie-break rule.
		return statusFromBoard(force.BoardA, a), true
	}
	if a.kind != Active {
		return statusFromBoard(force.BoardA, a), true
	}
	return statusFromBoard(force.BoardB, b), true
}

func statusFromBoard(boardID force.BoardID, s boardStatus) Status {
	if s.kind == Draw {
		return Status{Kind: Draw, Reason: s.reason}
	}
	return Status{Kind: Victory, Winner: force.TeamOf(boardID, s.winner), Reason: s.reason}
}

// koedemStatus checks Koedem's only terminal condition: a team loses the
// moment it has zero kings left across both boards and both reserves —
// a captured king banked in a reserve still counts, it can be redropped.
func (g *Game) koedemStatus() (Status, bool) {
	kings := map[Team]int{}
	for _, boardID := range []force.BoardID{force.BoardA, force.BoardB} {
		b := g.Boards[boardID]
		for _, f := range []force.Force{force.White, force.Black} {
			team := force.TeamOf(boardID, f)
			for _, p := range b.Grid {
				if p.Kind == piece.King && p.Force == f {
					kings[team]++
				}
			}
			kings[team] += b.Reserves[f].Count(piece.King)
		}
	}
	if kings[TeamOne] == 0 {
		return Status{Kind: Victory, Winner: TeamTwo, Reason: KingCaptured}, true
	}
	if kings[TeamTwo] == 0 {
		return Status{Kind: Victory, Winner: TeamOne, Reason: KingCaptured}, true
	}
	return Status{}, false
}

// boardStatus evaluates one board's own termination conditions: check and
// mate (when enabled), stalemate, insufficient material, flag, and
// king-captured (Duck chess and Fog-of-war; Koedem's king accounting is
// game-wide, see koedemStatus).
func (g *Game) boardStatus(boardID force.BoardID, now clock.GameInstant) boardStatus {
	b := g.Boards[boardID]

	if b.Rules.DuckChess || b.Rules.FogOfWar {
		if b.KingCaptured(force.White) {
			return boardStatus{kind: Victory, winner: force.Black, reason: KingCaptured}
		}
		if b.KingCaptured(force.Black) {
			return boardStatus{kind: Victory, winner: force.White, reason: KingCaptured}
		}
	}

	if b.Rules.EnableCheckAndMate() {
		if b.Checkmated(b.ActiveSide) {
			return boardStatus{kind: Victory, winner: b.ActiveSide.Opponent(), reason: Checkmate}
		}
		if b.Stalemated(b.ActiveSide) {
			return boardStatus{kind: Draw, reason: Stalemate}
		}
		if b.MaterialInsufficient() {
			return boardStatus{kind: Draw, reason: InsufficientMaterial}
		}
	}

	for _, f := range []force.Force{force.White, force.Black} {
		if g.Clocks[boardID].OutOfTime(f, now) {
			return boardStatus{kind: Victory, winner: f.Opponent(), reason: Flag}
		}
	}
	return boardStatus{kind: Active}
}

// Tick re-evaluates flag-fall on both boards; call periodically from the
// server's clock-tick loop.
func (g *Game) Tick(now clock.GameInstant) {
	if g.Status.Kind != Active {
		return
	}
	g.reevaluateStatus(now)
}

// WaybackView reconstructs a read-only copy of the game as of the turn at
// globalIndex in the shared log, by replaying from the starting position —
// never by reverse-applying. A negative index yields
// the starting position.
func (g *Game) WaybackView(globalIndex int) (*Game, error) {
	replay := New(g.Seed, g.Rules)
	for _, e := range g.Log.Prefix(globalIndex) {
		if err := replay.ApplyTurn(e.Index.Board, e.Force, e.Turn, clock.FromDuration(0)); err != nil {
			return nil, fmt.Errorf("replay turn %d: %w", e.Index.GlobalIndex, err)
		}
	}
	return replay, nil
}

// Resign ends the game immediately in favor of the resigning side's
// opponents.
func (g *Game) Resign(resigner Team, now clock.GameInstant) {
	if g.Status.Kind != Active {
		return
	}
	winner := TeamTwo
	if resigner == TeamTwo {
		winner = TeamOne
	}
	g.Status = Status{Kind: Victory, Winner: winner, Reason: Resignation}
	g.Clocks[force.BoardA].Stop(now)
	g.Clocks[force.BoardB].Stop(now)
}
