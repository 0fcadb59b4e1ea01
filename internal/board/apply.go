package board

import (
	"github.com/amatveiakin/bughouse-chess/internal/coord"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/piece"
	"github.com/amatveiakin/bughouse-chess/internal/rules"
	"github.com/amatveiakin/bughouse-chess/internal/turn"
)

// TryApply validates t against the board's own legal-turn set and, if
// legal, mutates the board and reports what left the board (for the
// caller, internal/bughouse, to route into the partner board's reserve).
// Cross-board effects (promotion-by-steal's removal from the partner
// board) are resolved by the caller from the turn's Promotion.Steal
// target; this board only places the already-chosen PromoteTo kind.
func (b *Board) TryApply(t turn.Turn) (*ApplyResult, error) {
	if !turnIn(t, b.LegalTurns()) {
		return nil, &RejectError{Kind: RejectIllegal}
	}
	mover := b.ActiveSide
	effects, err := b.applyMoveOnly(t, mover)
	if err != nil {
		return nil, err
	}
	return &ApplyResult{Effects: effects}, nil
}

func turnIn(t turn.Turn, legal []turn.Turn) bool {
	for _, c := range legal {
		if turnsEqual(t, c) {
			return true
		}
	}
	return false
}

func turnsEqual(a, b turn.Turn) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case turn.KindMove:
		if a.From != b.From || a.To != b.To {
			return false
		}
		if (a.Promotion == nil) != (b.Promotion == nil) {
			return false
		}
		if a.Promotion != nil && (a.Promotion.PromoteTo != b.Promotion.PromoteTo) {
			return false
		}
		return true
	case turn.KindDrop:
		return a.DropKind == b.DropKind && a.DropTo == b.DropTo
	case turn.KindCastle:
		return a.CastleSide == b.CastleSide
	case turn.KindPlaceDuck:
		return a.DuckTo == b.DuckTo
	}
	return false
}

// applyMoveOnly performs the raw board mutation for t without any
// legality check — used both by TryApply (after validation) and by
// LegalTurns' own speculative king-safety simulation.
func (b *Board) applyMoveOnly(t turn.Turn, mover force.Force) ([]SideEffect, error) {
	switch t.Kind {
	case turn.KindMove:
		return b.applyMove(t, mover)
	case turn.KindDrop:
		return nil, b.applyDrop(t, mover)
	case turn.KindCastle:
		return nil, b.applyCastle(t, mover)
	case turn.KindPlaceDuck:
		return nil, b.applyPlaceDuck(t)
	default:
		return nil, &RejectError{Kind: RejectIllegal}
	}
}

func (b *Board) applyMove(t turn.Turn, mover force.Force) ([]SideEffect, error) {
	p, ok := b.PieceAt(t.From)
	if !ok || p.Force != mover {
		return nil, &RejectError{Kind: RejectIllegal}
	}

	var captured *piece.Piece
	var splitInto []piece.Kind
	var glued *piece.Piece
	if cp, occupied := b.PieceAt(t.To); occupied {
		if cp.Force == mover {
			// Accolade glue: the destination piece merges into a compound
			// instead of being captured. Legality (same-side destination is
			// otherwise impossible) was established by the legal-turn set.
			c := cp
			glued = &c
		} else {
			c := cp
			captured = &c
			splitInto = c.Components
		}
	} else if p.Kind == piece.Pawn && b.EnPassant != nil && *b.EnPassant == t.To {
		capSq, _ := t.To.Shift(-pawnDir(mover), 0)
		if cp, occupied := b.PieceAt(capSq); occupied {
			c := cp
			captured = &c
			delete(b.Grid, capSq)
		}
	}

	delete(b.Grid, t.From)
	moved := p
	if t.Promotion != nil {
		moved = piece.Piece{Kind: t.Promotion.PromoteTo, Force: mover, Origin: piece.Promoted}
	}
	if glued != nil {
		kind, ok := combinedKind(p.Kind, glued.Kind)
		if !ok {
			return nil, &RejectError{Kind: RejectIllegal}
		}
		moved = piece.Piece{
			Kind:       kind,
			Force:      mover,
			Origin:     p.Origin,
			Components: append(componentsOrSelf(p), componentsOrSelf(*glued)...),
		}
	}

	backRank := 7
	if mover == force.Black {
		backRank = 0
	}
	discarded := p.Kind == piece.Pawn && t.To.Row.ZeroBased() == backRank &&
		t.Promotion == nil && b.PromoMode == rules.Discard
	if discarded {
		delete(b.Grid, t.To)
	} else {
		b.Grid[t.To] = moved
	}
	b.updateCastlingRights(p, t.From, captured, t.To)

	b.EnPassant = nil
	if p.Kind == piece.Pawn {
		from, to := t.From.Row.ZeroBased(), t.To.Row.ZeroBased()
		if to-from == 2 || from-to == 2 {
			mid, _ := t.From.Shift(pawnDir(mover), 0)
			b.EnPassant = &mid
		}
	}

	var effects []SideEffect
	if captured != nil {
		effects = append(effects, SideEffect{Captured: *captured, SplitInto: splitInto})
	}
	if discarded {
		// The discarded pawn keeps its color, which routes it to the
		// diagonal opponent (same color, other board) via the standard
		// capture-transfer path.
		effects = append(effects, SideEffect{Captured: p})
	}

	if b.Rules.DuckChess {
		b.PendingDuckMove = true
		b.LastTurn = &t
		return effects, nil
	}
	b.advanceTurn(mover, p.Kind == piece.Pawn || captured != nil, t)
	return effects, nil
}

func (b *Board) applyDrop(t turn.Turn, mover force.Force) error {
	if !b.IsEmpty(t.DropTo) {
		return &RejectError{Kind: RejectIllegal}
	}
	b.Reserves[mover].Add(t.DropKind, -1)
	b.Grid[t.DropTo] = piece.Piece{Kind: t.DropKind, Force: mover, Origin: piece.Dropped}
	b.EnPassant = nil
	if b.Rules.DuckChess {
		b.PendingDuckMove = true
		b.LastTurn = &t
		return nil
	}
	b.advanceTurn(mover, false, t)
	return nil
}

func (b *Board) applyCastle(t turn.Turn, mover force.Force) error {
	homeRow := 0
	if mover == force.Black {
		homeRow = 7
	}
	row, _ := coord.RowFromZeroBased(homeRow)
	kingFile := b.KingHomeFile[mover]
	kingAt := coord.New(row, kingFile)
	dir := piece.HSide
	kingDestFile, rookDestFile := 6, 5
	if t.CastleSide == turn.Queenside {
		dir = piece.ASide
		kingDestFile, rookDestFile = 2, 3
	}
	rookFile, ok := b.RookHomeFile[mover][dir]
	if !ok {
		return &RejectError{Kind: RejectIllegal}
	}
	rookAt := coord.New(row, rookFile)
	king, kok := b.PieceAt(kingAt)
	rook, rok := b.PieceAt(rookAt)
	if !kok || !rok {
		return &RejectError{Kind: RejectIllegal}
	}
	delete(b.Grid, kingAt)
	delete(b.Grid, rookAt)
	kingDest, _ := coord.ColFromZeroBased(kingDestFile)
	rookDest, _ := coord.ColFromZeroBased(rookDestFile)
	b.Grid[coord.New(row, kingDest)] = king
	b.Grid[coord.New(row, rookDest)] = rook
	b.updateCastlingRights(king, kingAt, nil, coord.New(row, kingDest))
	b.EnPassant = nil
	b.advanceTurn(mover, false, t)
	return nil
}

func (b *Board) applyPlaceDuck(t turn.Turn) error {
	if !b.IsEmpty(t.DuckTo) {
		return &RejectError{Kind: RejectIllegal}
	}
	to := t.DuckTo
	b.DuckAt = &to
	b.PendingDuckMove = false
	b.LastTurn = &t
	b.advanceTurn(b.ActiveSide, false, t)
	return nil
}

// componentsOrSelf lists the primitive kinds a piece separates into when
// a compound containing it is later captured.
func componentsOrSelf(p piece.Piece) []piece.Kind {
	if len(p.Components) > 0 {
		return append([]piece.Kind(nil), p.Components...)
	}
	return []piece.Kind{p.Kind}
}

func pawnDir(f force.Force) int {
	if f == force.Black {
		return -1
	}
	return 1
}

func (b *Board) updateCastlingRights(moved piece.Piece, from coord.Coord, captured *piece.Piece, to coord.Coord) {
	if moved.Kind == piece.King {
		if moved.Force == force.White {
			b.Castling.WhiteKingside, b.Castling.WhiteQueenside = false, false
		} else {
			b.Castling.BlackKingside, b.Castling.BlackQueenside = false, false
		}
	}
	if moved.Kind == piece.Rook {
		b.clearCastlingRightForRookSquare(moved.Force, from)
	}
	if captured != nil && captured.Kind == piece.Rook {
		b.clearCastlingRightForRookSquare(captured.Force, to)
	}
}

func (b *Board) clearCastlingRightForRookSquare(f force.Force, sq coord.Coord) {
	for dir, file := range b.RookHomeFile[f] {
		if file != sq.Col {
			continue
		}
		switch {
		case f == force.White && dir == piece.HSide:
			b.Castling.WhiteKingside = false
		case f == force.White && dir == piece.ASide:
			b.Castling.WhiteQueenside = false
		case f == force.Black && dir == piece.HSide:
			b.Castling.BlackKingside = false
		case f == force.Black && dir == piece.ASide:
			b.Castling.BlackQueenside = false
		}
	}
}

// advanceTurn flips the active side and updates move counters; skipped by
// callers mid-duck-placement.
func (b *Board) advanceTurn(mover force.Force, resetHalfMove bool, t turn.Turn) {
	b.LastTurn = &t
	if resetHalfMove {
		b.HalfMoveClock = 0
	} else {
		b.HalfMoveClock++
	}
	if mover == force.Black {
		b.FullMoveNumber++
	}
	b.ActiveSide = mover.Opponent()
}
