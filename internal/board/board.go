// Package board implements a single bughouse board: position, reserve,
// legal-move generation and application, parameterized by internal/rules'
// variant flags.
//
// Move generation uses per-piece-kind step/ray tables with check
// detection by attacked-square recomputation; TryApply validates against
// the exact legal-turn set before mutating, generalized to reserves and
// drops.
package board

import (
	"github.com/amatveiakin/bughouse-chess/internal/coord"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/piece"
	"github.com/amatveiakin/bughouse-chess/internal/rules"
	"github.com/amatveiakin/bughouse-chess/internal/turn"
)

// CastlingRights tracks, per side, whether that side may still castle
// toward each direction. Under Fischer-random this refers to the
// originally-home rook regardless of its starting file.
type CastlingRights struct {
	WhiteKingside, WhiteQueenside bool
	BlackKingside, BlackQueenside bool
}

// Board is one bughouse board: a position plus a per-side reserve.
type Board struct {
	Grid     map[coord.Coord]piece.Piece
	Reserves map[force.Force]piece.Reserve

	ActiveSide     force.Force
	Castling       CastlingRights
	EnPassant      *coord.Coord
	HalfMoveClock  int
	FullMoveNumber int
	LastTurn       *turn.Turn

	// DuckAt is the duck's square once placed; nil before the first duck
	// placement under Duck chess.
	DuckAt *coord.Coord

	// PendingDuckMove is true between a duck-chess piece move and its
	// duck placement: the clock does not advance and it remains the same
	// side's half-move until the duck is placed.
	PendingDuckMove bool

	// KingHomeFile records each side's starting king file, needed to
	// reconstruct Chess960 castling destinations.
	KingHomeFile map[force.Force]coord.Col
	// RookHomeFile[force][direction] records the starting rook files.
	RookHomeFile map[force.Force]map[piece.CastleDirection]coord.Col

	Rules rules.ChessRules

	// PawnDropRows is [min,max] one-based subjective rows pawns may be
	// dropped on, copied from rules.BughouseRules at construction time so
	// move generation doesn't need a second rules struct threaded through.
	PawnDropRows [2]int
	DropAggro    rules.DropAggression
	// PromoMode selects what a pawn reaching the back rank does: Upgrade
	// and Steal turns carry an explicit PromotionChoice, Discard removes
	// the pawn and ships it to the diagonal opponent's reserve.
	PromoMode rules.Promotion
}

// RejectKind enumerates why try_apply refused a turn.
type RejectKind int

const (
	RejectNone RejectKind = iota
	RejectIllegal
	RejectWrongTurnOrder
	RejectNeedsPromotionChoice
	RejectNeedsDuckPlacement
	RejectNeedsStealTarget
	RejectDropForbiddenRank
	RejectDropAggressionViolation
	RejectCastlingRightsLost
	RejectPathBlocked
)

func (k RejectKind) String() string {
	switch k {
	case RejectIllegal:
		return "Illegal"
	case RejectWrongTurnOrder:
		return "WrongTurnOrder"
	case RejectNeedsPromotionChoice:
		return "NeedsPromotionChoice"
	case RejectNeedsDuckPlacement:
		return "NeedsDuckPlacement"
	case RejectNeedsStealTarget:
		return "NeedsStealTarget"
	case RejectDropForbiddenRank:
		return "DropForbiddenRank"
	case RejectDropAggressionViolation:
		return "DropAggressionViolation"
	case RejectCastlingRightsLost:
		return "CastlingRightsLost"
	case RejectPathBlocked:
		return "PathBlocked"
	default:
		return "None"
	}
}

// RejectError is returned by TryApply on refusal.
type RejectError struct{ Kind RejectKind }

func (e *RejectError) Error() string { return "turn rejected: " + e.Kind.String() }

// SideEffect is a piece leaving the board on capture, destined for the
// partner board's reserve under standard bughouse (or discarded under
// Koedem's king-handling rules — see internal/bughouse).
type SideEffect struct {
	Captured piece.Piece
	// SplitInto lists the components a captured Accolade compound piece
	// separates back into (e.g. Cardinal -> Knight, Bishop), empty for
	// plain pieces.
	SplitInto []piece.Kind
}

// ApplyResult is what TryApply returns on success.
type ApplyResult struct {
	Effects []SideEffect
}

// Clone deep-copies the board, used for speculative "would this leave my
// king in check" simulation and for wayback replay snapshots.
func (b *Board) Clone() *Board {
	nb := &Board{
		Grid:            make(map[coord.Coord]piece.Piece, len(b.Grid)),
		Reserves:        map[force.Force]piece.Reserve{force.White: b.Reserves[force.White].Clone(), force.Black: b.Reserves[force.Black].Clone()},
		ActiveSide:      b.ActiveSide,
		Castling:        b.Castling,
		HalfMoveClock:   b.HalfMoveClock,
		FullMoveNumber:  b.FullMoveNumber,
		PendingDuckMove: b.PendingDuckMove,
		KingHomeFile:    b.KingHomeFile,
		RookHomeFile:    b.RookHomeFile,
		Rules:           b.Rules,
		PawnDropRows:    b.PawnDropRows,
		DropAggro:       b.DropAggro,
		PromoMode:       b.PromoMode,
	}
	for c, p := range b.Grid {
		nb.Grid[c] = p
	}
	if b.EnPassant != nil {
		cp := *b.EnPassant
		nb.EnPassant = &cp
	}
	if b.DuckAt != nil {
		cp := *b.DuckAt
		nb.DuckAt = &cp
	}
	if b.LastTurn != nil {
		t := *b.LastTurn
		nb.LastTurn = &t
	}
	return nb
}

func (b *Board) PieceAt(c coord.Coord) (piece.Piece, bool) {
	p, ok := b.Grid[c]
	return p, ok
}

func (b *Board) IsEmpty(c coord.Coord) bool {
	if b.DuckAt != nil && *b.DuckAt == c {
		return false
	}
	_, occupied := b.Grid[c]
	return !occupied
}

// KingSquare finds f's king, or ok=false if it has none (legal only under
// Koedem, between capture and re-drop).
func (b *Board) KingSquare(f force.Force) (coord.Coord, bool) {
	for c, p := range b.Grid {
		if p.Kind == piece.King && p.Force == f {
			return c, true
		}
	}
	return coord.Coord{}, false
}
