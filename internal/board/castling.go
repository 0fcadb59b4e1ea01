package board

import (
	"github.com/amatveiakin/bughouse-chess/internal/coord"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/piece"
	"github.com/amatveiakin/bughouse-chess/internal/turn"
)

// castlingMoves returns the castling turns still available to f: rook and
// king present on their home squares, the path vacant, and — where check
// is enforced at all — no square the king starts on or passes through
// attacked by the opponent. The shared filter in legal.go re-checks only
// the king's final square, so origin and traversal are validated here.
//
// Chess960 semantics: the king always ends on file g (kingside) or c
// (queenside) and the castling rook on f or d respectively — regardless of
// their starting files.
func (b *Board) castlingMoves(f force.Force) []turn.Turn {
	var out []turn.Turn
	homeRow := 0
	kingsideOK, queensideOK := b.Castling.WhiteKingside, b.Castling.WhiteQueenside
	if f == force.Black {
		homeRow = 7
		kingsideOK, queensideOK = b.Castling.BlackKingside, b.Castling.BlackQueenside
	}
	row, _ := coord.RowFromZeroBased(homeRow)
	kingFile := b.KingHomeFile[f]
	kingAt := coord.New(row, kingFile)
	if kp, ok := b.PieceAt(kingAt); !ok || kp.Kind != piece.King {
		return nil
	}

	tryDir := func(dir piece.CastleDirection, ok bool, kingDestFile, rookDestFile int) {
		if !ok {
			return
		}
		rookFile, known := b.RookHomeFile[f][dir]
		if !known {
			return
		}
		rookAt := coord.New(row, rookFile)
		if rp, present := b.PieceAt(rookAt); !present || rp.Kind != piece.Rook || rp.RookCastleSide != dir {
			return
		}
		kingDest, _ := coord.ColFromZeroBased(kingDestFile)
		rookDest, _ := coord.ColFromZeroBased(rookDestFile)
		if !b.castlePathClear(row, kingFile, rookFile, kingDest, rookDest, kingAt, rookAt) {
			return
		}
		if b.Rules.EnableCheckAndMate() && !b.castleKingPathSafe(f, row, kingFile, kingDest) {
			return
		}
		side := turn.Kingside
		if dir == piece.ASide {
			side = turn.Queenside
		}
		out = append(out, turn.Castle(side))
	}
	tryDir(piece.HSide, kingsideOK, 6, 5)
	tryDir(piece.ASide, queensideOK, 2, 3)
	return out
}

// castlePathClear checks that every square the king and rook pass through
// (excluding their own origin squares, including their destinations) is
// empty or occupied only by the king/rook themselves, which is the
// Chess960-correct generalization of "squares between king and rook must
// be empty".
func (b *Board) castlePathClear(row coord.Row, kingFile, rookFile, kingDest, rookDest coord.Col, kingAt, rookAt coord.Coord) bool {
	lo, hi := kingFile.ZeroBased(), kingDest.ZeroBased()
	if lo > hi {
		lo, hi = hi, lo
	}
	rlo, rhi := rookFile.ZeroBased(), rookDest.ZeroBased()
	if rlo > rhi {
		rlo, rhi = rhi, rlo
	}
	if rlo < lo {
		lo = rlo
	}
	if rhi > hi {
		hi = rhi
	}
	for f := lo; f <= hi; f++ {
		col, _ := coord.ColFromZeroBased(f)
		sq := coord.New(row, col)
		if sq == kingAt || sq == rookAt {
			continue
		}
		if !b.IsEmpty(sq) {
			return false
		}
	}
	return true
}

// castleKingPathSafe reports whether every square from the king's origin
// to its destination, inclusive, is free of enemy attacks: a king may not
// castle out of, through, or into check.
func (b *Board) castleKingPathSafe(f force.Force, row coord.Row, kingFile, kingDest coord.Col) bool {
	lo, hi := kingFile.ZeroBased(), kingDest.ZeroBased()
	if lo > hi {
		lo, hi = hi, lo
	}
	for file := lo; file <= hi; file++ {
		col, _ := coord.ColFromZeroBased(file)
		if b.IsAttacked(coord.New(row, col), f.Opponent()) {
			return false
		}
	}
	return true
}
