package board

import (
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/piece"
)

// KingCaptured reports whether f has no king left on this board — the
// king-capture win condition of Duck chess and Fog-of-war, where "game
// over" is detected by this query rather than by checkmate. Koedem's
// condition is game-wide (kings on both boards and in reserves) and is
// not decided by this single-board query.
func (b *Board) KingCaptured(f force.Force) bool {
	_, ok := b.KingSquare(f)
	return !ok
}

// MaterialInsufficient reports whether neither side retains enough force
// to deliver checkmate: with reserves in play, any droppable piece
// (including a lone pawn, which promotes) restores mating material, so
// this only fires when both of this board's reserves are empty and each
// side has nothing beside its king but at most one knight or bishop. The
// partner board's reserves are not looked at. (For Duck chess, where
// check is not the win condition, this query is not consulted at all.)
func (b *Board) MaterialInsufficient() bool {
	if b.Reserves[force.White].Total() > 0 || b.Reserves[force.Black].Total() > 0 {
		return false
	}
	minor := map[force.Force]int{}
	for _, p := range b.Grid {
		switch p.Kind {
		case piece.King, piece.Duck:
			continue
		case piece.Knight, piece.Bishop:
			minor[p.Force]++
		default:
			return false
		}
		if minor[p.Force] > 1 {
			return false
		}
	}
	return true
}

// Checkmated reports whether f is in check with no legal response, under
// rule sets where check/mate are enforced at all (EnableCheckAndMate).
func (b *Board) Checkmated(f force.Force) bool {
	if !b.Rules.EnableCheckAndMate() {
		return false
	}
	if !b.InCheck(f) {
		return false
	}
	return len(b.LegalTurns()) == 0
}

// Stalemated reports whether f has no legal turn while not in check.
func (b *Board) Stalemated(f force.Force) bool {
	if b.InCheck(f) {
		return false
	}
	return len(b.LegalTurns()) == 0
}
