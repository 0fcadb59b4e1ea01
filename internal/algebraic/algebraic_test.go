package algebraic

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

func TestParsePawnAndKnightMoves(t *testing.T) {
	b := classicBoard()
	tn, err := Parse("e4", b, force.White)
	require.NoError(t, err)
	assert.Equal(t, turn.Move(sq("e2"), sq("e4")), tn)

	tn, err = Parse("Nf3", b, force.White)
	require.NoError(t, err)
	assert.Equal(t, turn.Move(sq("g1"), sq("f3")), tn)
}

func TestParseDrop(t *testing.T) {
	b := classicBoard()
	b.Reserves[force.White].Add(piece.Knight, 1)
	tn, err := Parse("N@f3", b, force.White)
	require.NoError(t, err)
	assert.Equal(t, turn.KindDrop, tn.Kind)
	assert.Equal(t, piece.Knight, tn.DropKind)
	assert.Equal(t, sq("f3"), tn.DropTo)
}

func TestParseCastle(t *testing.T) {
	b := classicBoard()
	delete(b.Grid, sq("f1"))
	delete(b.Grid, sq("g1"))
	tn, err := Parse("O-O", b, force.White)
	require.NoError(t, err)
	assert.Equal(t, turn.KindCastle, tn.Kind)
	assert.Equal(t, turn.Kingside, tn.CastleSide)

	_, err = Parse("O-O-O", b, force.White)
	assert.ErrorIs(t, err, ErrNoMatch, "queenside path is still blocked")
}

func TestParseAmbiguousSource(t *testing.T) {
	b := classicBoard()
	b.Grid[sq("d2")] = piece.Piece{Kind: piece.Knight, Force: force.White, Origin: piece.Innate}
	b.Grid[sq("f2")] = piece.Piece{Kind: piece.Knight, Force: force.White, Origin: piece.Innate}

	_, err := Parse("Ne4", b, force.White)
	assert.ErrorIs(t, err, ErrAmbiguous)

	tn, err := Parse("Nde4", b, force.White)
	require.NoError(t, err)
	assert.Equal(t, sq("d2"), tn.From)
}

func TestParseStripsCheckSuffixes(t *testing.T) {
	b := classicBoard()
	tn, err := Parse("e4+", b, force.White)
	require.NoError(t, err, "trailing check markers are stripped, not errors")
	assert.Equal(t, sq("e4"), tn.To)
}

// Every legal turn in the starting position round-trips through
// Format/Parse unchanged.
func TestRoundTripStartingPosition(t *testing.T) {
	b := classicBoard()
	for _, lt := range b.LegalTurns() {
		text := Format(lt, b, force.White)
		parsed, err := Parse(text, b, force.White)
		require.NoError(t, err, "text %q", text)
		assert.Equal(t, lt.Kind, parsed.Kind, "text %q", text)
		if lt.Kind == turn.KindMove {
			assert.Equal(t, lt.From, parsed.From, "text %q", text)
			assert.Equal(t, lt.To, parsed.To, "text %q", text)
		}
	}
}

func TestRoundTripDropsAndPromotions(t *testing.T) {
	b := classicBoard()
	b.Reserves[force.White].Add(piece.Rook, 1)
	b.Reserves[force.White].Add(piece.Pawn, 2)
	// Put a white pawn on the 7th with a clear promotion square.
	delete(b.Grid, sq("a7"))
	delete(b.Grid, sq("a8"))
	b.Grid[sq("a7")] = piece.Piece{Kind: piece.Pawn, Force: force.White, Origin: piece.Innate}

	for _, lt := range b.LegalTurns() {
		text := Format(lt, b, force.White)
		parsed, err := Parse(text, b, force.White)
		require.NoError(t, err, "text %q", text)
		if lt.Kind == turn.KindMove && lt.Promotion != nil {
			require.NotNil(t, parsed.Promotion, "text %q", text)
			assert.Equal(t, lt.Promotion.PromoteTo, parsed.Promotion.PromoteTo, "text %q", text)
		}
		if lt.Kind == turn.KindDrop {
			assert.Equal(t, lt.DropKind, parsed.DropKind, "text %q", text)
			assert.Equal(t, lt.DropTo, parsed.DropTo, "text %q", text)
		}
	}
}

func TestDuckPlacementText(t *testing.T) {
	cr := rules.ClassicBlitz()
	cr.DuckChess = true
	b := board.NewBoard(cr, rules.ChessComBughouse(), 1, 1)
	_, err := b.TryApply(turn.Move(sq("e2"), sq("e4")))
	require.NoError(t, err)

	text := Format(turn.PlaceDuck(sq("e5")), b, force.White)
	assert.Equal(t, "@e5", text)
	tn, err := Parse(text, b, force.White)
	require.NoError(t, err)
	assert.Equal(t, turn.KindPlaceDuck, tn.Kind)
	assert.Equal(t, sq("e5"), tn.DuckTo)
}
