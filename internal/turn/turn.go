// Package turn defines the canonical wire-level move representation and
// the shared, globally-ordered log of turns applied across both boards of
// a bughouse game.
package turn

import (
	"time"

	"github.com/amatveiakin/bughouse-chess/internal/coord"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/piece"
)

// Kind discriminates the Turn union. Only canonical kinds ever cross the
// wire; partial turns (awaiting promotion/duck/steal resolution) live
// exclusively in the client mirror state (internal/clientcore).
type Kind int

const (
	KindMove Kind = iota
	KindDrop
	KindCastle
	KindPlaceDuck
	KindChoosePromotionTarget
)

type CastleSide int

const (
	Kingside CastleSide = iota
	Queenside
)

// PromotionChoice is what a pawn reaching the back rank becomes. A nil
// Steal means a plain upgrade to PromoteTo; a non-nil Steal names the
// square on the *other* board whose piece is being stolen (promotion.Steal
// rules).
type PromotionChoice struct {
	PromoteTo piece.Kind
	Steal     *StealTarget
}

type StealTarget struct {
	Board force.BoardID
	At    coord.Coord
}

// Turn is one canonical, fully-resolved move. Exactly one of the
// kind-specific fields is meaningful, selected by Kind.
type Turn struct {
	Kind Kind

	// KindMove
	From      coord.Coord
	To        coord.Coord
	Promotion *PromotionChoice

	// KindDrop
	DropKind piece.Kind
	DropTo   coord.Coord

	// KindCastle
	CastleSide CastleSide

	// KindPlaceDuck
	DuckTo coord.Coord
}

func Move(from, to coord.Coord) Turn { return Turn{Kind: KindMove, From: from, To: to} }

func MoveWithPromotion(from, to coord.Coord, p PromotionChoice) Turn {
	return Turn{Kind: KindMove, From: from, To: to, Promotion: &p}
}

func Drop(kind piece.Kind, to coord.Coord) Turn {
	return Turn{Kind: KindDrop, DropKind: kind, DropTo: to}
}

func Castle(side CastleSide) Turn { return Turn{Kind: KindCastle, CastleSide: side} }

func PlaceDuck(to coord.Coord) Turn { return Turn{Kind: KindPlaceDuck, DuckTo: to} }

// Index is the globally orderable identifier used for wayback navigation:
// which board the turn was made on, plus a strictly increasing half-move
// counter across the whole game (not just that board).
type Index struct {
	Board       force.BoardID
	GlobalIndex int // position in the shared TurnLog, 0-based
}

// Entry is one applied turn as recorded in the shared log.
type Entry struct {
	Index     Index
	Force     force.Force
	Turn      Turn
	AppliedAt time.Time
}

// Log is the single, globally-ordered turn history shared by both boards
// of a bughouse game. It is append-only; wayback views are produced by
// replaying a prefix of it from the starting position (internal/bughouse),
// never by reverse-applying turns.
type Log struct {
	entries []Entry
}

func (l *Log) Append(board force.BoardID, f force.Force, t Turn, at time.Time) Index {
	idx := Index{Board: board, GlobalIndex: len(l.entries)}
	l.entries = append(l.entries, Entry{Index: idx, Force: f, Turn: t, AppliedAt: at})
	return idx
}

func (l *Log) Entries() []Entry { return l.entries }

func (l *Log) Len() int { return len(l.entries) }

// Prefix returns the entries up to and including globalIndex (inclusive).
func (l *Log) Prefix(globalIndex int) []Entry {
	if globalIndex < 0 {
		return nil
	}
	if globalIndex >= len(l.entries) {
		return l.entries
	}
	return l.entries[:globalIndex+1]
}

// ForBoard filters the log to entries belonging to one board, preserving
// global order.
func (l *Log) ForBoard(board force.BoardID) []Entry {
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if e.Index.Board == board {
			out = append(out, e)
		}
	}
	return out
}
