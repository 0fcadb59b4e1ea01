package board

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amatveiakin/bughouse-chess/internal/coord"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/piece"
	"github.com/amatveiakin/bughouse-chess/internal/rules"
	"github.com/amatveiakin/bughouse-chess/internal/turn"
)

func classicBoard() *Board {
	return NewBoard(rules.ClassicBlitz(), rules.ChessComBughouse(), 1, 1)
}

func sq(s string) coord.Coord {
	c, _ := coord.FromAlgebraic(s)
	return c
}

func TestNewBoardStartingPosition(t *testing.T) {
	b := classicBoard()
	p, ok := b.PieceAt(sq("e1"))
	require.True(t, ok)
	require.Equal(t, piece.King, p.Kind)
	require.Equal(t, force.White, p.Force)

	r, ok := b.PieceAt(sq("a1"))
	require.True(t, ok)
	require.Equal(t, piece.Rook, r.Kind)
	require.Equal(t, piece.ASide, r.RookCastleSide)

	require.True(t, b.Castling.WhiteKingside)
	require.True(t, b.Castling.WhiteQueenside)
	require.Equal(t, force.White, b.ActiveSide)
}

func TestPawnDoublePushSetsEnPassant(t *testing.T) {
	b := classicBoard()
	_, err := b.TryApply(turn.Move(sq("e2"), sq("e4")))
	require.NoError(t, err)
	require.NotNil(t, b.EnPassant)
	require.Equal(t, sq("e3"), *b.EnPassant)
}

func TestScholarsMateIsCheckmate(t *testing.T) {
	b := classicBoard()
	apply := func(from, to string) {
		_, err := b.TryApply(turn.Move(sq(from), sq(to)))
		require.NoError(t, err)
	}
	apply("e2", "e4")
	apply("e7", "e5")
	apply("f1", "c4")
	apply("b8", "c6")
	apply("d1", "h5")
	apply("g8", "f6")
	apply("h5", "f7")
	require.True(t, b.Checkmated(force.Black))
}

func TestDropRejectedOnOccupiedSquare(t *testing.T) {
	b := classicBoard()
	b.Reserves[force.White].Add(piece.Knight, 1)
	_, err := b.TryApply(turn.Drop(piece.Knight, sq("e1")))
	require.Error(t, err)
}

func TestKingsideCastle(t *testing.T) {
	b := classicBoard()
	delete(b.Grid, sq("f1"))
	delete(b.Grid, sq("g1"))
	_, err := b.TryApply(turn.Castle(turn.Kingside))
	require.NoError(t, err)
	k, ok := b.PieceAt(sq("g1"))
	require.True(t, ok)
	require.Equal(t, piece.King, k.Kind)
	require.False(t, b.Castling.WhiteKingside)
}

func TestEnPassantCapture(t *testing.T) {
	b := classicBoard()
	apply := func(from, to string) {
		_, err := b.TryApply(turn.Move(sq(from), sq(to)))
		require.NoError(t, err)
	}
	apply("e2", "e4")
	apply("a7", "a6")
	apply("e4", "e5")
	apply("d7", "d5")
	res, err := b.TryApply(turn.Move(sq("e5"), sq("d6")))
	require.NoError(t, err)
	require.Len(t, res.Effects, 1)
	require.Equal(t, piece.Pawn, res.Effects[0].Captured.Kind)
	_, stillThere := b.PieceAt(sq("d5"))
	require.False(t, stillThere)
}

func TestDuckChessPendingMove(t *testing.T) {
	cr := rules.ClassicBlitz()
	cr.DuckChess = true
	br := rules.ChessComBughouse()
	br.DropAggression = rules.MateAllowed
	b := NewBoard(cr, br, 1, 1)
	_, err := b.TryApply(turn.Move(sq("e2"), sq("e4")))
	require.NoError(t, err)
	require.True(t, b.PendingDuckMove)
	require.Equal(t, force.White, b.ActiveSide)

	_, err = b.TryApply(turn.PlaceDuck(sq("e5")))
	require.NoError(t, err)
	require.False(t, b.PendingDuckMove)
	require.Equal(t, force.Black, b.ActiveSide)
}
