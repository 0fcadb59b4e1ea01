package board

import (
	"github.com/amatveiakin/bughouse-chess/internal/coord"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/piece"
	"github.com/amatveiakin/bughouse-chess/internal/rules"
	"github.com/amatveiakin/bughouse-chess/internal/turn"
)

// IsAttacked reports whether `by` attacks square `at`.
func (b *Board) IsAttacked(at coord.Coord, by force.Force) bool {
	for sq, p := range b.Grid {
		if p.Force != by {
			continue
		}
		if p.Kind == piece.Pawn {
			dir := 1
			if by == force.Black {
				dir = -1
			}
			for _, dc := range []int{-1, 1} {
				to, ok := sq.Shift(dir, dc)
				if ok && to == at {
					return true
				}
			}
			continue
		}
		for _, to := range b.attacksFrom(sq, p.Kind, by) {
			if to == at {
				return true
			}
		}
	}
	return false
}

// InCheck reports whether f's king is attacked. Always false if f has no
// king on this board (Koedem, between capture and redrop). It does not
// consult the rule set, so under Fog-of-war/Duck-chess it still reports
// the attack; callers use EnableCheckAndMate() to decide whether to
// consult this at all.
func (b *Board) InCheck(f force.Force) bool {
	kingAt, ok := b.KingSquare(f)
	if !ok {
		return false
	}
	return b.IsAttacked(kingAt, f.Opponent())
}

// leavesOwnKingSafe simulates applying `t` and reports whether the mover's
// king (if any) is safe afterward. Fog-of-war and Duck-chess skip this
// filter entirely (Board.Rules.EnableCheckAndMate()).
func (b *Board) leavesOwnKingSafe(t turn.Turn, mover force.Force) bool {
	sim := b.Clone()
	if _, err := sim.applyMoveOnly(t, mover); err != nil {
		return false
	}
	return !sim.InCheck(mover)
}

// LegalTurns enumerates every canonical turn the active side may make on
// this board right now, fully filtered for king safety (except under
// Fog-of-war, where legality is relaxed to the mover's visible information
// and check is never enforced, and Duck chess, where check is replaced by
// king-capture-ends-the-game).
func (b *Board) LegalTurns() []turn.Turn {
	f := b.ActiveSide
	if b.PendingDuckMove {
		return b.legalDuckPlacements()
	}
	checkFiltered := b.Rules.EnableCheckAndMate()
	var out []turn.Turn
	visible := func(c coord.Coord) bool { return true }
	if b.Rules.FogOfWar {
		visible = b.visibleTo(f)
	}

	for sq, p := range b.Grid {
		if p.Force != f {
			continue
		}
		if b.Rules.FogOfWar && !visible(sq) {
			continue
		}
		for _, t := range b.pseudoLegalMoves(sq) {
			if t.Kind == turn.KindMove && b.Rules.FogOfWar && !visible(t.To) {
				continue
			}
			if checkFiltered && !b.leavesOwnKingSafe(t, f) {
				continue
			}
			out = append(out, t)
		}
	}
	for k, n := range b.Reserves[f] {
		if n <= 0 || k == piece.King || k == piece.Duck {
			continue
		}
		for _, t := range b.pseudoLegalDrops(k, f) {
			if b.Rules.FogOfWar && !visible(t.DropTo) {
				continue
			}
			if !b.dropSatisfiesAggression(t, f) {
				continue
			}
			if checkFiltered && !b.leavesOwnKingSafe(t, f) {
				continue
			}
			out = append(out, t)
		}
	}
	if b.Rules.Koedem {
		for _, t := range b.koedemKingDrops(f) {
			out = append(out, t)
		}
	}
	return out
}

// legalDuckPlacements lists every empty square the duck may move to; the
// duck cannot land on a square occupied by any piece.
func (b *Board) legalDuckPlacements() []turn.Turn {
	var out []turn.Turn
	for _, c := range coord.All() {
		if _, occupied := b.PieceAt(c); occupied {
			continue
		}
		out = append(out, turn.PlaceDuck(c))
	}
	return out
}

// dropSatisfiesAggression rejects drops forbidden by the configured
// DropAggression. NoCheck forbids any drop delivering check. NoChessMate
// forbids a drop whose resulting position is checkmate by plain chess
// rules. NoBughouseMate still allows a mating drop as long as the mate
// could be broken by a blocking drop — the defender's partner can feed
// them the blocker — and forbids only mates no conceivable drop escapes.
func (b *Board) dropSatisfiesAggression(t turn.Turn, mover force.Force) bool {
	if b.DropAggro == rules.MateAllowed {
		return true
	}
	sim := b.Clone()
	if _, err := sim.applyMoveOnly(t, mover); err != nil {
		return false
	}
	defender := mover.Opponent()
	if !sim.InCheck(defender) {
		return true
	}
	if b.DropAggro == rules.NoCheck {
		return false
	}
	// The defender's escape search runs with aggression filtering off, so
	// the simulation cannot recurse through further drop simulations.
	sim.ActiveSide = defender
	sim.DropAggro = rules.MateAllowed
	if len(sim.LegalTurns()) > 0 {
		return true
	}
	if b.DropAggro == rules.NoChessMate {
		return false
	}
	// NoBughouseMate: the position is checkmate on this board alone, but
	// the drop stands if a hypothetical blocking drop would break it.
	return sim.checkBlockableByDrop(defender)
}

// checkBlockableByDrop reports whether f's check could be broken by
// dropping a piece between the checker and the king: a single sliding
// checker with at least one empty square in between. Double checks and
// contact/knight checks have no blocking square.
func (b *Board) checkBlockableByDrop(f force.Force) bool {
	kingAt, ok := b.KingSquare(f)
	if !ok {
		return false
	}
	attackers := b.attackersOf(kingAt, f.Opponent())
	if len(attackers) != 1 {
		return false
	}
	from := attackers[0]
	dRow, dCol := kingAt.Row.Sub(from.Row), kingAt.Col.Sub(from.Col)
	if dRow != 0 && dCol != 0 && abs(dRow) != abs(dCol) {
		return false // knight check
	}
	stepRow, stepCol := sign(dRow), sign(dCol)
	cur := from
	for {
		next, ok := cur.Shift(stepRow, stepCol)
		if !ok || next == kingAt {
			return false
		}
		if b.IsEmpty(next) {
			return true
		}
		cur = next
	}
}

// attackersOf lists the squares of every `by` piece attacking `at`.
func (b *Board) attackersOf(at coord.Coord, by force.Force) []coord.Coord {
	var out []coord.Coord
	for sq, p := range b.Grid {
		if p.Force != by {
			continue
		}
		if p.Kind == piece.Pawn {
			dir := 1
			if by == force.Black {
				dir = -1
			}
			for _, dc := range []int{-1, 1} {
				if to, ok := sq.Shift(dir, dc); ok && to == at {
					out = append(out, sq)
				}
			}
			continue
		}
		for _, to := range b.attacksFrom(sq, p.Kind, by) {
			if to == at {
				out = append(out, sq)
				break
			}
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// koedemKingDrops lists king drops available once a captured king has
// been banked in f's reserve (Koedem only). A second king on the board is
// fine — the reserve king was stolen, which is the one way to get one.
func (b *Board) koedemKingDrops(f force.Force) []turn.Turn {
	if b.Reserves[f].Count(piece.King) <= 0 {
		return nil
	}
	var out []turn.Turn
	for _, c := range coord.All() {
		if _, occupied := b.PieceAt(c); occupied {
			continue
		}
		out = append(out, turn.Drop(piece.King, c))
	}
	return out
}

// visibleTo returns a predicate reporting whether a square is visible to
// f under Fog-of-war: f's own pieces, squares adjacent to them, and
// squares an f piece could move to.
func (b *Board) visibleTo(f force.Force) func(coord.Coord) bool {
	visible := map[coord.Coord]bool{}
	for sq, p := range b.Grid {
		if p.Force != f {
			continue
		}
		visible[sq] = true
		for _, d := range kingSteps {
			if to, ok := sq.Shift(d[0], d[1]); ok {
				visible[to] = true
			}
		}
		for _, t := range b.pseudoLegalMoves(sq) {
			if t.Kind == turn.KindMove {
				visible[t.To] = true
			}
		}
	}
	return func(c coord.Coord) bool { return visible[c] }
}
