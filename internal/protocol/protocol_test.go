package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amatveiakin/bughouse-chess/internal/board"
	"github.com/amatveiakin/bughouse-chess/internal/coord"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/piece"
	"github.com/amatveiakin/bughouse-chess/internal/rules"
	"github.com/amatveiakin/bughouse-chess/internal/turn"
)

func classicBoard() *board.Board {
	return board.NewBoard(rules.ClassicBlitz(), rules.ChessComBughouse(), 1, 1)
}

func sq(s string) coord.Coord {
	c, _ := coord.FromAlgebraic(s)
	return c
}

func TestDragDropMove(t *testing.T) {
	b := classicBoard()
	tn, err := Canonicalize(DragDrop(FromSquare(sq("e2")), sq("e4")), b, force.White)
	require.NoError(t, err)
	assert.Equal(t, turn.Move(sq("e2"), sq("e4")), tn)
}

func TestDragDropFromReserve(t *testing.T) {
	b := classicBoard()
	tn, err := Canonicalize(DragDrop(FromReserve(piece.Knight), sq("f3")), b, force.White)
	require.NoError(t, err)
	assert.Equal(t, turn.KindDrop, tn.Kind)
	assert.Equal(t, piece.Knight, tn.DropKind)
}

func TestDragDropRejectsOpponentPiece(t *testing.T) {
	b := classicBoard()
	_, err := Canonicalize(DragDrop(FromSquare(sq("e7")), sq("e5")), b, force.White)
	assert.ErrorIs(t, err, ErrNotYourPiece)
}

func TestKingDragGesturesCastle(t *testing.T) {
	b := classicBoard()
	// Two files sideways reads as castling.
	tn, err := Canonicalize(DragDrop(FromSquare(sq("e1")), sq("g1")), b, force.White)
	require.NoError(t, err)
	assert.Equal(t, turn.KindCastle, tn.Kind)
	assert.Equal(t, turn.Kingside, tn.CastleSide)

	// Dropping the king onto its own rook too (the Chess960 gesture).
	tn, err = Canonicalize(DragDrop(FromSquare(sq("e1")), sq("a1")), b, force.White)
	require.NoError(t, err)
	assert.Equal(t, turn.Queenside, tn.CastleSide)
}

func TestPawnToBackRankNeedsPromotionChoice(t *testing.T) {
	b := classicBoard()
	delete(b.Grid, sq("a7"))
	delete(b.Grid, sq("a8"))
	b.Grid[sq("a7")] = piece.Piece{Kind: piece.Pawn, Force: force.White, Origin: piece.Innate}

	_, err := Canonicalize(DragDrop(FromSquare(sq("a7")), sq("a8")), b, force.White)
	assert.ErrorIs(t, err, ErrNeedsPromotionChoice)

	in := DragDrop(FromSquare(sq("a7")), sq("a8"))
	in.Promotion = &turn.PromotionChoice{PromoteTo: piece.Queen}
	tn, err := Canonicalize(in, b, force.White)
	require.NoError(t, err)
	require.NotNil(t, tn.Promotion)
	assert.Equal(t, piece.Queen, tn.Promotion.PromoteTo)
}

func TestClickSequence(t *testing.T) {
	var cs ClickState
	_, done := cs.ClickSquare(sq("e2"))
	assert.False(t, done, "first click only selects")

	in, done := cs.ClickSquare(sq("e4"))
	require.True(t, done)
	assert.Equal(t, sq("e2"), in.Source.From)
	assert.Equal(t, sq("e4"), in.Dest)

	// Clicking the selected square again clears the selection.
	cs.ClickSquare(sq("d2"))
	_, done = cs.ClickSquare(sq("d2"))
	assert.False(t, done)
	_, selected := cs.Selected()
	assert.False(t, selected)
}

func TestClickReserveThenSquare(t *testing.T) {
	var cs ClickState
	cs.ClickReserve(piece.Rook)
	in, done := cs.ClickSquare(sq("e4"))
	require.True(t, done)
	assert.Equal(t, SourceReserve, in.Source.Kind)
	assert.Equal(t, piece.Rook, in.Source.Reserve)
}

func TestPreturnStoreOnePerBoard(t *testing.T) {
	b := classicBoard()
	ps := NewPreturnStore()

	err := ps.Queue("alice", force.BoardA, b, force.White, turn.Move(sq("g1"), sq("f3")), 5)
	require.NoError(t, err)
	// A second queued preturn replaces the first.
	err = ps.Queue("alice", force.BoardA, b, force.White, turn.Move(sq("e2"), sq("e4")), 6)
	require.NoError(t, err)

	pt, ok := ps.Take("alice", force.BoardA)
	require.True(t, ok)
	assert.Equal(t, sq("e2"), pt.Turn.From)
	assert.Equal(t, uint32(6), pt.ClientSeq)

	_, ok = ps.Take("alice", force.BoardA)
	assert.False(t, ok, "take removes the preturn")
}

func TestPreturnValidatesOwnershipOnly(t *testing.T) {
	b := classicBoard()
	ps := NewPreturnStore()

	// Not alice's piece.
	err := ps.Queue("alice", force.BoardA, b, force.White, turn.Move(sq("e7"), sq("e5")), 1)
	assert.ErrorIs(t, err, ErrNotYourPiece)

	// Shape is enough: the destination's legality is not checked here.
	err = ps.Queue("alice", force.BoardA, b, force.White, turn.Move(sq("g1"), sq("g8")), 2)
	assert.NoError(t, err)
}

func TestPreturnCancelAll(t *testing.T) {
	b := classicBoard()
	ps := NewPreturnStore()
	require.NoError(t, ps.Queue("alice", force.BoardA, b, force.White, turn.Move(sq("e2"), sq("e4")), 1))
	require.NoError(t, ps.Queue("alice", force.BoardB, b, force.White, turn.Move(sq("d2"), sq("d4")), 2))
	ps.CancelAll("alice")
	_, okA := ps.Peek("alice", force.BoardA)
	_, okB := ps.Peek("alice", force.BoardB)
	assert.False(t, okA)
	assert.False(t, okB)
}
