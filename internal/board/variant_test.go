package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amatveiakin/bughouse-chess/internal/coord"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/piece"
	"github.com/amatveiakin/bughouse-chess/internal/rules"
	"github.com/amatveiakin/bughouse-chess/internal/turn"
)

func fischerRules() rules.ChessRules {
	cr := rules.ClassicBlitz()
	cr.StartingPosition = rules.FischerRandom
	return cr
}

func TestFischerRandomReproducible(t *testing.T) {
	b1 := NewBoard(fischerRules(), rules.ChessComBughouse(), 42, 1)
	b2 := NewBoard(fischerRules(), rules.ChessComBughouse(), 42, 1)
	for _, c := range coord.All() {
		p1, ok1 := b1.PieceAt(c)
		p2, ok2 := b2.PieceAt(c)
		require.Equal(t, ok1, ok2, "square %s", c)
		require.Equal(t, p1.Kind, p2.Kind, "square %s", c)
	}
}

func TestFischerRandomSaltsDiffer(t *testing.T) {
	b1 := NewBoard(fischerRules(), rules.ChessComBughouse(), 42, 1)
	b2 := NewBoard(fischerRules(), rules.ChessComBughouse(), 42, 2)
	same := true
	for _, c := range coord.All() {
		p1, _ := b1.PieceAt(c)
		p2, _ := b2.PieceAt(c)
		if p1.Kind != p2.Kind {
			same = false
			break
		}
	}
	assert.False(t, same, "different board salts should give different shuffles")
}

func TestFischerRandomConstraints(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		order := fischerRandomBackRank(seed, 1)
		var bishops, rooks []int
		king := -1
		for i, k := range order {
			switch k {
			case piece.Bishop:
				bishops = append(bishops, i)
			case piece.Rook:
				rooks = append(rooks, i)
			case piece.King:
				king = i
			}
		}
		require.Len(t, bishops, 2, "seed %d", seed)
		require.Len(t, rooks, 2, "seed %d", seed)
		assert.NotEqual(t, bishops[0]%2, bishops[1]%2, "seed %d: bishops must sit on opposite colors", seed)
		assert.Less(t, rooks[0], king, "seed %d: king must be between the rooks", seed)
		assert.Greater(t, rooks[1], king, "seed %d: king must be between the rooks", seed)
	}
}

func accoladeBoard() *Board {
	cr := rules.ClassicBlitz()
	cr.FairyPieces = rules.Accolade
	return NewBoard(cr, rules.ChessComBughouse(), 1, 1)
}

func TestAccoladeGlueAndSplit(t *testing.T) {
	b := accoladeBoard()
	b.Grid[sq("e4")] = piece.Piece{Kind: piece.Knight, Force: force.White, Origin: piece.Innate}
	b.Grid[sq("d6")] = piece.Piece{Kind: piece.Bishop, Force: force.White, Origin: piece.Innate}
	delete(b.Grid, sq("d7"))

	res, err := b.TryApply(turn.Move(sq("e4"), sq("d6")))
	require.NoError(t, err)
	require.Empty(t, res.Effects, "gluing is not a capture")
	cardinal, ok := b.PieceAt(sq("d6"))
	require.True(t, ok)
	require.Equal(t, piece.Cardinal, cardinal.Kind)
	require.ElementsMatch(t, []piece.Kind{piece.Knight, piece.Bishop}, cardinal.Components)

	// Black's queen takes the cardinal; it separates back into components.
	res, err = b.TryApply(turn.Move(sq("d8"), sq("d6")))
	require.NoError(t, err)
	require.Len(t, res.Effects, 1)
	require.Equal(t, piece.Cardinal, res.Effects[0].Captured.Kind)
	require.ElementsMatch(t, []piece.Kind{piece.Knight, piece.Bishop}, res.Effects[0].SplitInto)
}

func TestAccoladeCompoundMoves(t *testing.T) {
	b := accoladeBoard()
	for _, c := range coord.All() {
		delete(b.Grid, c)
	}
	b.Grid[sq("e1")] = piece.Piece{Kind: piece.King, Force: force.White, Origin: piece.Innate}
	b.Grid[sq("e8")] = piece.Piece{Kind: piece.King, Force: force.Black, Origin: piece.Innate}
	b.Grid[sq("d4")] = piece.Piece{Kind: piece.Empress, Force: force.White, Origin: piece.Innate, Components: []piece.Kind{piece.Knight, piece.Rook}}

	legal := b.LegalTurns()
	hasRookMove, hasKnightMove := false, false
	for _, lt := range legal {
		if lt.Kind != turn.KindMove || lt.From != sq("d4") {
			continue
		}
		if lt.To == sq("d7") {
			hasRookMove = true
		}
		if lt.To == sq("e6") {
			hasKnightMove = true
		}
	}
	assert.True(t, hasRookMove, "empress should slide like a rook")
	assert.True(t, hasKnightMove, "empress should jump like a knight")
}

func TestFogOfWarLimitsTargets(t *testing.T) {
	cr := rules.ClassicBlitz()
	cr.FogOfWar = true
	br := rules.ChessComBughouse()
	b := NewBoard(cr, br, 1, 1)

	legal := b.LegalTurns()
	require.NotEmpty(t, legal)
	vis := b.visibleTo(force.White)
	for _, lt := range legal {
		if lt.Kind == turn.KindMove {
			assert.True(t, vis(lt.To), "move target %s must be visible under fog", lt.To)
		}
	}
}

func TestFogOfWarDoesNotEnforceCheck(t *testing.T) {
	cr := rules.ClassicBlitz()
	cr.FogOfWar = true
	b := NewBoard(cr, rules.ChessComBughouse(), 1, 1)
	// Expose the white king to a black rook; under fog the king may still
	// make any visible move, including staying in the line of fire.
	for _, c := range coord.All() {
		delete(b.Grid, c)
	}
	b.Grid[sq("e1")] = piece.Piece{Kind: piece.King, Force: force.White, Origin: piece.Innate}
	b.Grid[sq("e8")] = piece.Piece{Kind: piece.Rook, Force: force.Black, Origin: piece.Innate}
	b.Grid[sq("a8")] = piece.Piece{Kind: piece.King, Force: force.Black, Origin: piece.Innate}

	legal := b.LegalTurns()
	stayedInLine := false
	for _, lt := range legal {
		if lt.Kind == turn.KindMove && lt.From == sq("e1") && lt.To == sq("e2") {
			stayedInLine = true
		}
	}
	assert.True(t, stayedInLine, "fog of war relaxes the king-safety filter")
}

func TestKoedemKingCaptureAndRedrop(t *testing.T) {
	cr := rules.ClassicBlitz()
	cr.Koedem = true
	br := rules.ChessComBughouse()
	b := NewBoard(cr, br, 1, 1)

	// White queen planted next to the black king can simply take it.
	b.Grid[sq("e7")] = piece.Piece{Kind: piece.Queen, Force: force.White, Origin: piece.Innate}
	res, err := b.TryApply(turn.Move(sq("e7"), sq("e8")))
	require.NoError(t, err)
	require.Len(t, res.Effects, 1)
	require.Equal(t, piece.King, res.Effects[0].Captured.Kind)
	require.True(t, b.KingCaptured(force.Black))

	// A banked king is droppable on any empty square.
	b.Reserves[force.Black].Add(piece.King, 1)
	legal := b.LegalTurns()
	foundKingDrop := false
	for _, lt := range legal {
		if lt.Kind == turn.KindDrop && lt.DropKind == piece.King {
			foundKingDrop = true
			break
		}
	}
	require.True(t, foundKingDrop)
	_, err = b.TryApply(turn.Drop(piece.King, sq("e5")))
	require.NoError(t, err)
	require.False(t, b.KingCaptured(force.Black))
}

func TestDropAggressionNoBughouseMate(t *testing.T) {
	br := rules.ChessComBughouse()
	br.DropAggression = rules.NoBughouseMate
	b := NewBoard(rules.ClassicBlitz(), br, 1, 1)
	for _, c := range coord.All() {
		delete(b.Grid, c)
	}
	b.Grid[sq("e1")] = piece.Piece{Kind: piece.King, Force: force.White, Origin: piece.Innate}
	b.Grid[sq("h8")] = piece.Piece{Kind: piece.King, Force: force.Black, Origin: piece.Innate}
	b.Grid[sq("g7")] = piece.Piece{Kind: piece.Pawn, Force: force.Black, Origin: piece.Innate}
	b.Grid[sq("h7")] = piece.Piece{Kind: piece.Pawn, Force: force.Black, Origin: piece.Innate}
	b.Reserves[force.White].Add(piece.Rook, 1)

	// R@b8 is a back-rank chess mate, but black's partner could feed a
	// blocker for any of c8..g8, so it stands.
	hasRookB8 := false
	for _, lt := range b.LegalTurns() {
		if lt.Kind == turn.KindDrop && lt.DropKind == piece.Rook && lt.DropTo == sq("b8") {
			hasRookB8 = true
		}
	}
	assert.True(t, hasRookB8, "a blockable mating drop is not a bughouse mate")

	// The same drop under NoChessMate is already too aggressive.
	b.DropAggro = rules.NoChessMate
	for _, lt := range b.LegalTurns() {
		if lt.Kind == turn.KindDrop && lt.DropKind == piece.Rook {
			assert.NotEqual(t, sq("b8"), lt.DropTo, "chess mate by drop forbidden under NoChessMate")
		}
	}
}

func TestDropAggressionNoBughouseMateRejectsContactMate(t *testing.T) {
	br := rules.ChessComBughouse()
	br.DropAggression = rules.NoBughouseMate
	b := NewBoard(rules.ClassicBlitz(), br, 1, 1)
	for _, c := range coord.All() {
		delete(b.Grid, c)
	}
	b.Grid[sq("e1")] = piece.Piece{Kind: piece.King, Force: force.White, Origin: piece.Innate}
	b.Grid[sq("h8")] = piece.Piece{Kind: piece.King, Force: force.Black, Origin: piece.Innate}
	b.Grid[sq("h7")] = piece.Piece{Kind: piece.Pawn, Force: force.Black, Origin: piece.Innate}
	b.Grid[sq("e7")] = piece.Piece{Kind: piece.Knight, Force: force.White, Origin: piece.Innate}
	b.Reserves[force.White].Add(piece.Queen, 1)

	// Q@g8 is a protected contact mate: no square to interpose on, the
	// king cannot take the guarded queen. No drop can ever save it.
	for _, lt := range b.LegalTurns() {
		if lt.Kind == turn.KindDrop && lt.DropKind == piece.Queen {
			assert.NotEqual(t, sq("g8"), lt.DropTo, "an unblockable mate is a bughouse mate")
		}
	}
}

func TestCastlingThroughCheckForbidden(t *testing.T) {
	b := classicBoard()
	delete(b.Grid, sq("f1"))
	delete(b.Grid, sq("g1"))
	delete(b.Grid, sq("f2"))
	delete(b.Grid, sq("f7"))
	b.Grid[sq("f8")] = piece.Piece{Kind: piece.Rook, Force: force.Black, Origin: piece.Innate}

	_, err := b.TryApply(turn.Castle(turn.Kingside))
	require.Error(t, err, "the king may not cross an attacked square")
}

func TestCastlingOutOfCheckForbidden(t *testing.T) {
	b := classicBoard()
	delete(b.Grid, sq("f1"))
	delete(b.Grid, sq("g1"))
	delete(b.Grid, sq("e2"))
	b.Grid[sq("e7")] = piece.Piece{Kind: piece.Rook, Force: force.Black, Origin: piece.Innate}

	require.True(t, b.InCheck(force.White))
	_, err := b.TryApply(turn.Castle(turn.Kingside))
	require.Error(t, err, "castling is no way out of check")
}

func TestDiscardPromotionRemovesPawn(t *testing.T) {
	br := rules.ChessComBughouse()
	br.Promotion = rules.Discard
	b := NewBoard(rules.ClassicBlitz(), br, 1, 1)
	delete(b.Grid, sq("a8"))
	delete(b.Grid, sq("a7"))
	b.Grid[sq("a7")] = piece.Piece{Kind: piece.Pawn, Force: force.White, Origin: piece.Innate}

	res, err := b.TryApply(turn.Move(sq("a7"), sq("a8")))
	require.NoError(t, err)
	require.Len(t, res.Effects, 1)
	assert.Equal(t, piece.Pawn, res.Effects[0].Captured.Kind)
	assert.Equal(t, force.White, res.Effects[0].Captured.Force)
	_, occupied := b.PieceAt(sq("a8"))
	assert.False(t, occupied, "discarded pawn leaves the board entirely")
}

func TestPawnDropRankRestrictions(t *testing.T) {
	br := rules.ChessComBughouse()
	minRow, _ := coord.SubjectiveRowFromOneBased(2)
	maxRow, _ := coord.SubjectiveRowFromOneBased(6)
	br.MinPawnDropRow = minRow
	br.MaxPawnDropRow = maxRow
	b := NewBoard(rules.ClassicBlitz(), br, 1, 1)
	b.Reserves[force.White].Add(piece.Pawn, 1)

	for _, lt := range b.LegalTurns() {
		if lt.Kind != turn.KindDrop || lt.DropKind != piece.Pawn {
			continue
		}
		row := lt.DropTo.Row.ZeroBased() + 1
		assert.GreaterOrEqual(t, row, 2)
		assert.LessOrEqual(t, row, 6)
	}
}

func TestDropAggressionNoCheck(t *testing.T) {
	br := rules.ChessComBughouse()
	br.DropAggression = rules.NoCheck
	b := NewBoard(rules.ClassicBlitz(), br, 1, 1)
	for _, c := range coord.All() {
		delete(b.Grid, c)
	}
	b.Grid[sq("e1")] = piece.Piece{Kind: piece.King, Force: force.White, Origin: piece.Innate}
	b.Grid[sq("e8")] = piece.Piece{Kind: piece.King, Force: force.Black, Origin: piece.Innate}
	b.Reserves[force.White].Add(piece.Rook, 1)

	for _, lt := range b.LegalTurns() {
		if lt.Kind != turn.KindDrop {
			continue
		}
		assert.NotEqual(t, sq("e4"), lt.DropTo, "a rook dropped on the king's file delivers check")
	}
}
