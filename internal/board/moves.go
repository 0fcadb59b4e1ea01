package board

import (
	"github.com/amatveiakin/bughouse-chess/internal/coord"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/piece"
	"github.com/amatveiakin/bughouse-chess/internal/rules"
	"github.com/amatveiakin/bughouse-chess/internal/turn"
)

type stepSet [][2]int

var (
	knightSteps = stepSet{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps   = stepSet{{0, 1}, {1, 1}, {1, 0}, {1, -1}, {0, -1}, {-1, -1}, {-1, 0}, {-1, 1}}
	bishopRays  = stepSet{{1, 1}, {1, -1}, {-1, -1}, {-1, 1}}
	rookRays    = stepSet{{0, 1}, {1, 0}, {0, -1}, {-1, 0}}
)

// combinedKind reports the Accolade compound formed by gluing two piece
// kinds: a knight merged with a bishop, rook or queen yields a Cardinal,
// Empress or Amazon. Any other pairing does not glue.
func combinedKind(a, b piece.Kind) (piece.Kind, bool) {
	if a != piece.Knight {
		a, b = b, a
	}
	if a != piece.Knight {
		return 0, false
	}
	switch b {
	case piece.Bishop:
		return piece.Cardinal, true
	case piece.Rook:
		return piece.Empress, true
	case piece.Queen:
		return piece.Amazon, true
	default:
		return 0, false
	}
}

// componentKinds returns the primitive move sets a (possibly compound) piece
// kind draws moves from: a Cardinal moves like a knight or a bishop, an
// Empress like a knight or a rook, an Amazon like a knight or a queen.
func componentKinds(k piece.Kind) []piece.Kind {
	switch k {
	case piece.Cardinal:
		return []piece.Kind{piece.Knight, piece.Bishop}
	case piece.Empress:
		return []piece.Kind{piece.Knight, piece.Rook}
	case piece.Amazon:
		return []piece.Kind{piece.Knight, piece.Queen}
	default:
		return []piece.Kind{k}
	}
}

// attacksFrom returns every square a piece of the given kind/force attacks
// or could move to from `at`, ignoring the moving side's own king safety
// (used both for move generation and for attacked-square computation in
// check detection). Pawns are handled by the caller since attack squares
// differ from push squares.
func (b *Board) attacksFrom(at coord.Coord, k piece.Kind, f force.Force) []coord.Coord {
	var out []coord.Coord
	for _, comp := range componentKinds(k) {
		switch comp {
		case piece.Knight:
			for _, d := range knightSteps {
				if to, ok := at.Shift(d[0], d[1]); ok {
					out = append(out, to)
				}
			}
		case piece.King:
			for _, d := range kingSteps {
				if to, ok := at.Shift(d[0], d[1]); ok {
					out = append(out, to)
				}
			}
		case piece.Bishop:
			out = append(out, b.rayAttacks(at, bishopRays)...)
		case piece.Rook:
			out = append(out, b.rayAttacks(at, rookRays)...)
		case piece.Queen:
			out = append(out, b.rayAttacks(at, append(append(stepSet{}, bishopRays...), rookRays...))...)
		}
	}
	return out
}

func (b *Board) rayAttacks(at coord.Coord, dirs stepSet) []coord.Coord {
	var out []coord.Coord
	for _, d := range dirs {
		cur := at
		for {
			to, ok := cur.Shift(d[0], d[1])
			if !ok {
				break
			}
			out = append(out, to)
			if !b.IsEmpty(to) {
				break
			}
			cur = to
		}
	}
	return out
}

// pawnPushes returns forward (non-capturing) destinations for a pawn at
// `at`, respecting the double-push-from-home-rank rule.
func (b *Board) pawnPushes(at coord.Coord, f force.Force) []coord.Coord {
	dir := 1
	homeRow := 1
	if f == force.Black {
		dir = -1
		homeRow = 6
	}
	var out []coord.Coord
	one, ok := at.Shift(dir, 0)
	if !ok || !b.IsEmpty(one) {
		return out
	}
	out = append(out, one)
	if at.Row.ZeroBased() == homeRow {
		two, ok := at.Shift(2*dir, 0)
		if ok && b.IsEmpty(two) {
			out = append(out, two)
		}
	}
	return out
}

// pawnCaptures returns the diagonal squares a pawn at `at` could capture
// on (occupied by an enemy piece, or the en passant target).
func (b *Board) pawnCaptures(at coord.Coord, f force.Force) []coord.Coord {
	dir := 1
	if f == force.Black {
		dir = -1
	}
	var out []coord.Coord
	for _, dc := range []int{-1, 1} {
		to, ok := at.Shift(dir, dc)
		if !ok {
			continue
		}
		if p, occupied := b.PieceAt(to); occupied && p.Force != f {
			out = append(out, to)
		} else if b.EnPassant != nil && *b.EnPassant == to {
			out = append(out, to)
		}
	}
	return out
}

// pseudoLegalMoves yields every geometrically-possible turn.Turn for the
// piece at `at`, not yet filtered for leaving the mover's own king in
// check (that filter is applied once, in LegalTurns).
func (b *Board) pseudoLegalMoves(at coord.Coord) []turn.Turn {
	p, ok := b.PieceAt(at)
	if !ok || p.Force != b.ActiveSide {
		return nil
	}
	var out []turn.Turn
	backRank := 7
	if p.Force == force.Black {
		backRank = 0
	}
	addMove := func(to coord.Coord) {
		if p.Kind == piece.Pawn && to.Row.ZeroBased() == backRank {
			if b.PromoMode == rules.Discard {
				// Discard promotion: the pawn just leaves the board, no
				// choice to make.
				out = append(out, turn.Move(at, to))
				return
			}
			for _, promo := range []piece.Kind{piece.Queen, piece.Rook, piece.Bishop, piece.Knight} {
				out = append(out, turn.MoveWithPromotion(at, to, turn.PromotionChoice{PromoteTo: promo}))
			}
			return
		}
		out = append(out, turn.Move(at, to))
	}

	switch p.Kind {
	case piece.Pawn:
		for _, to := range b.pawnPushes(at, p.Force) {
			addMove(to)
		}
		for _, to := range b.pawnCaptures(at, p.Force) {
			addMove(to)
		}
	default:
		for _, to := range b.attacksFrom(at, p.Kind, p.Force) {
			if dst, occupied := b.PieceAt(to); occupied && dst.Force == p.Force {
				// Under Accolade an own knight and bishop/rook/queen may
				// glue by moving one onto the other.
				if b.Rules.FairyPieces != rules.Accolade {
					continue
				}
				if _, glues := combinedKind(p.Kind, dst.Kind); !glues {
					continue
				}
			}
			if b.DuckAt != nil && *b.DuckAt == to {
				continue // pieces cannot move onto the duck
			}
			addMove(to)
		}
	}
	if p.Kind == piece.King {
		out = append(out, b.castlingMoves(p.Force)...)
	}
	return out
}

// pseudoLegalDrops returns every drop side f could attempt for
// a given reserve kind, ignoring check/mate drop-aggression filtering
// (applied by the caller).
func (b *Board) pseudoLegalDrops(k piece.Kind, f force.Force) []turn.Turn {
	var out []turn.Turn
	for _, c := range coord.All() {
		if !b.IsEmpty(c) {
			continue
		}
		if k == piece.Pawn {
			sub := coord.SubjectiveRowFromRow(c.Row, f)
			if sub.OneBased() < b.pawnDropMinOneBased() || sub.OneBased() > b.pawnDropMaxOneBased() {
				continue
			}
		}
		out = append(out, turn.Drop(k, c))
	}
	return out
}

func (b *Board) pawnDropMinOneBased() int { return b.PawnDropRows[0] }
func (b *Board) pawnDropMaxOneBased() int { return b.PawnDropRows[1] }
