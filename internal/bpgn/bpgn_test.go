package bpgn

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amatveiakin/bughouse-chess/internal/bughouse"
	"github.com/amatveiakin/bughouse-chess/internal/clock"
	"github.com/amatveiakin/bughouse-chess/internal/coord"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/piece"
	"github.com/amatveiakin/bughouse-chess/internal/rules"
	"github.com/amatveiakin/bughouse-chess/internal/turn"
)

func sq(s string) coord.Coord {
	c, _ := coord.FromAlgebraic(s)
	return c
}

func testGame(t *testing.T) (*bughouse.Game, rules.Rules) {
	t.Helper()
	r := rules.Rules{
		Chess:    rules.ClassicBlitz(),
		Bughouse: rules.ChessComBughouse(),
	}
	g := bughouse.New(3, r)
	now := clock.GameStart()
	require.NoError(t, g.ApplyTurn(force.BoardA, force.White, turn.Move(sq("e2"), sq("e4")), now))
	require.NoError(t, g.ApplyTurn(force.BoardA, force.Black, turn.Move(sq("d7"), sq("d5")), now))
	require.NoError(t, g.ApplyTurn(force.BoardA, force.White, turn.Move(sq("e4"), sq("d5")), now))
	// The captured pawn is droppable on board B.
	require.NoError(t, g.ApplyTurn(force.BoardB, force.White, turn.Move(sq("g1"), sq("f3")), now))
	require.NoError(t, g.ApplyTurn(force.BoardB, force.Black, turn.Drop(piece.Pawn, sq("e5")), now))
	return g, r
}

func TestExportHasTwoLinkedSections(t *testing.T) {
	g, r := testGame(t)
	start := bughouse.New(g.Seed, r)
	out := Export(g, start.Boards[force.BoardA], start.Boards[force.BoardB], r, Headers{
		WhiteA: "Alice", BlackA: "Bob", WhiteB: "Carol", BlackB: "Dave",
	})

	assert.Equal(t, 2, strings.Count(out, "[Variant \"Bughouse\"]"))
	assert.Contains(t, out, "board A: Alice vs Bob")
	assert.Contains(t, out, "board B: Carol vs Dave")
	assert.Contains(t, out, "exd5")
}

func TestExportAnnotatesDrops(t *testing.T) {
	g, r := testGame(t)
	start := bughouse.New(g.Seed, r)
	out := Export(g, start.Boards[force.BoardA], start.Boards[force.BoardB], r, Headers{})
	assert.Contains(t, out, "P@e5")
	assert.Contains(t, out, "{[%bug drop P]}")
}

func TestExportDefaultsUnfinishedResult(t *testing.T) {
	g, r := testGame(t)
	start := bughouse.New(g.Seed, r)
	out := Export(g, start.Boards[force.BoardA], start.Boards[force.BoardB], r, Headers{})
	assert.Contains(t, out, "[Result \"*\"]")
}
