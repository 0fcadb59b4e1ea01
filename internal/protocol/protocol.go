// Package protocol canonicalizes the three heterogeneous move-input
// shapes — algebraic text, drag-drop, and click sequences — into
// internal/turn.Turn, and implements the preturn queue: the one
// conditional move a player may bank per board while it is not their
// move.
//
// Text parsing delegates to internal/algebraic; drag and click inputs
// resolve gestures (castling, promotion, reserve drops) directly.
package protocol

import (
	"errors"
	"fmt"

	"github.com/amatveiakin/bughouse-chess/internal/algebraic"
	"github.com/amatveiakin/bughouse-chess/internal/board"
	"github.com/amatveiakin/bughouse-chess/internal/coord"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/piece"
	"github.com/amatveiakin/bughouse-chess/internal/turn"
)

// ErrNeedsPromotionChoice is returned when a drag or click input reaches
// the back rank with a pawn but no promotion target has been chosen yet;
// the caller keeps the turn partial and asks the user.
var ErrNeedsPromotionChoice = errors.New("promotion choice required")

// ErrNotYourPiece is returned when a drag names a source the mover does
// not own.
var ErrNotYourPiece = errors.New("source piece is not yours")

// SourceKind discriminates where a drag started.
type SourceKind int

const (
	SourceSquare SourceKind = iota
	SourceReserve
)

// DragSource is either a board square or a reserve slot.
type DragSource struct {
	Kind    SourceKind
	From    coord.Coord // SourceSquare
	Reserve piece.Kind  // SourceReserve
}

func FromSquare(c coord.Coord) DragSource { return DragSource{Kind: SourceSquare, From: c} }
func FromReserve(k piece.Kind) DragSource { return DragSource{Kind: SourceReserve, Reserve: k} }

// InputKind discriminates Input.
type InputKind int

const (
	InputAlgebraic InputKind = iota
	InputDragDrop
)

// Input is one raw move input before canonicalization.
type Input struct {
	Kind InputKind

	// InputAlgebraic
	Text string

	// InputDragDrop
	Source DragSource
	Dest   coord.Coord
	// Promotion, if already chosen (a second input round-trip after
	// ErrNeedsPromotionChoice).
	Promotion *turn.PromotionChoice
}

func Algebraic(text string) Input { return Input{Kind: InputAlgebraic, Text: text} }

func DragDrop(src DragSource, dest coord.Coord) Input {
	return Input{Kind: InputDragDrop, Source: src, Dest: dest}
}

// Canonicalize resolves an Input into a canonical Turn against b's current
// position. Castling by drag is recognized two ways: dragging the king two
// or more files sideways along its home rank, or dropping the king onto
// its own castling rook (the only unambiguous gesture under Chess960,
// where king and rook may start adjacent).
func Canonicalize(in Input, b *board.Board, mover force.Force) (turn.Turn, error) {
	switch in.Kind {
	case InputAlgebraic:
		return algebraic.Parse(in.Text, b, mover)
	case InputDragDrop:
		return canonicalizeDrag(in, b, mover)
	default:
		return turn.Turn{}, fmt.Errorf("unknown input kind %d", in.Kind)
	}
}

func canonicalizeDrag(in Input, b *board.Board, mover force.Force) (turn.Turn, error) {
	if in.Source.Kind == SourceReserve {
		if in.Source.Reserve == piece.Duck {
			return turn.PlaceDuck(in.Dest), nil
		}
		return turn.Drop(in.Source.Reserve, in.Dest), nil
	}

	p, ok := b.PieceAt(in.Source.From)
	if !ok || p.Force != mover {
		return turn.Turn{}, ErrNotYourPiece
	}

	if p.Kind == piece.King {
		if side, isCastle := castleGesture(in, b, mover); isCastle {
			return turn.Castle(side), nil
		}
	}

	if p.Kind == piece.Pawn && isBackRank(in.Dest, mover) {
		if in.Promotion == nil {
			return turn.Turn{}, ErrNeedsPromotionChoice
		}
		return turn.MoveWithPromotion(in.Source.From, in.Dest, *in.Promotion), nil
	}
	return turn.Move(in.Source.From, in.Dest), nil
}

// castleGesture recognizes a king drag as castling: onto the own rook's
// square, or two-plus files sideways along the home rank.
func castleGesture(in Input, b *board.Board, mover force.Force) (turn.CastleSide, bool) {
	dest := in.Dest
	if rp, ok := b.PieceAt(dest); ok && rp.Kind == piece.Rook && rp.Force == mover {
		if rp.RookCastleSide == piece.ASide {
			return turn.Queenside, true
		}
		return turn.Kingside, true
	}
	if dest.Row == in.Source.From.Row {
		d := dest.Col.Sub(in.Source.From.Col)
		if d >= 2 {
			return turn.Kingside, true
		}
		if d <= -2 {
			return turn.Queenside, true
		}
	}
	return 0, false
}

func isBackRank(c coord.Coord, mover force.Force) bool {
	if mover == force.White {
		return c.Row.ZeroBased() == coord.NumRows-1
	}
	return c.Row.ZeroBased() == 0
}

// ClickState accumulates a click sequence into a partial turn: first click
// selects a source (square or reserve slot), second click a destination.
// It never leaves the client; Click returns a completed Input once the destination lands.
type ClickState struct {
	source *DragSource
}

// ClickSquare registers a click on a board square. If a source is already
// selected, the click completes the input; clicking the source square
// again clears the selection.
func (cs *ClickState) ClickSquare(c coord.Coord) (Input, bool) {
	if cs.source == nil {
		src := FromSquare(c)
		cs.source = &src
		return Input{}, false
	}
	if cs.source.Kind == SourceSquare && cs.source.From == c {
		cs.source = nil
		return Input{}, false
	}
	in := DragDrop(*cs.source, c)
	cs.source = nil
	return in, true
}

// ClickReserve selects a reserve slot as the pending source.
func (cs *ClickState) ClickReserve(k piece.Kind) {
	src := FromReserve(k)
	cs.source = &src
}

// Clear drops any pending selection (e.g. on Escape or board flip).
func (cs *ClickState) Clear() { cs.source = nil }

// Selected reports the pending source, if any.
func (cs *ClickState) Selected() (DragSource, bool) {
	if cs.source == nil {
		return DragSource{}, false
	}
	return *cs.source, true
}
