package board

import (
	"github.com/amatveiakin/bughouse-chess/internal/coord"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/piece"
	"github.com/amatveiakin/bughouse-chess/internal/rules"
)

// backRankOrder returns the 8 piece kinds for the back rank, left to
// right, for the classic starting position or, under Fischer-random, a
// shuffle produced by fischerRandomBackRank.
func backRankOrder(cr rules.ChessRules, seed, boardSalt int64) []piece.Kind {
	if cr.StartingPosition == rules.FischerRandom {
		return fischerRandomBackRank(seed, boardSalt)
	}
	return []piece.Kind{piece.Rook, piece.Knight, piece.Bishop, piece.Queen, piece.King, piece.Bishop, piece.Knight, piece.Rook}
}

// fischerRandomBackRank generates a Chess960 back rank deterministically
// from a (seed, boardSalt) pair so both boards of a bughouse game — which
// must each get their own independent Chess960 setup — derive a stable
// shuffle without needing external randomness threaded through.
// Constraints: bishops on opposite colors, king strictly
// between the two rooks.
func fischerRandomBackRank(seed, boardSalt int64) []piece.Kind {
	splitMix64Gamma := uint64(0x9E3779B97F4A7C15)
	rnd := newSplitMix64(seed ^ (boardSalt * int64(splitMix64Gamma)))
	squares := make([]piece.Kind, 8)
	free := []int{0, 1, 2, 3, 4, 5, 6, 7}
	take := func() int {
		i := int(rnd() % uint64(len(free)))
		v := free[i]
		free = append(free[:i], free[i+1:]...)
		return v
	}
	// Bishops on opposite-colored squares.
	lightSquares, darkSquares := []int{}, []int{}
	for _, f := range free {
		if f%2 == 0 {
			darkSquares = append(darkSquares, f)
		} else {
			lightSquares = append(lightSquares, f)
		}
	}
	b1 := lightSquares[int(rnd()%uint64(len(lightSquares)))]
	b2 := darkSquares[int(rnd()%uint64(len(darkSquares)))]
	squares[b1], squares[b2] = piece.Bishop, piece.Bishop
	removeFree := func(v int) {
		for i, f := range free {
			if f == v {
				free = append(free[:i], free[i+1:]...)
				break
			}
		}
	}
	removeFree(b1)
	removeFree(b2)

	qSq := take()
	squares[qSq] = piece.Queen

	n1 := take()
	squares[n1] = piece.Knight
	n2 := take()
	squares[n2] = piece.Knight

	// Remaining three free squares, left to right, are Rook-King-Rook.
	rem := append([]int{}, free...)
	for i := 0; i < len(rem); i++ {
		for j := i + 1; j < len(rem); j++ {
			if rem[j] < rem[i] {
				rem[i], rem[j] = rem[j], rem[i]
			}
		}
	}
	squares[rem[0]] = piece.Rook
	squares[rem[1]] = piece.King
	squares[rem[2]] = piece.Rook
	return squares
}

// newSplitMix64 returns a small deterministic PRNG (SplitMix64), good enough for shuffling 8
// squares and stable across platforms (unlike math/rand's default source
// selection), avoiding a dependency for one generator.
func newSplitMix64(seed int64) func() uint64 {
	state := uint64(seed)
	return func() uint64 {
		state += 0x9E3779B97F4A7C15
		z := state
		z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
		z = (z ^ (z >> 27)) * 0x94D049BB133111EB
		return z ^ (z >> 31)
	}
}

// NewBoard builds the starting position for one board of a bughouse game.
// seed/boardSalt determine the Fischer-random shuffle, if any; two boards
// in the same match pass the same seed with different boardSalt so each
// gets its own independent (but reproducible) Chess960 setup.
func NewBoard(cr rules.ChessRules, br rules.BughouseRules, seed, boardSalt int64) *Board {
	order := backRankOrder(cr, seed, boardSalt)
	b := &Board{
		Grid:           make(map[coord.Coord]piece.Piece),
		Reserves:       map[force.Force]piece.Reserve{force.White: piece.NewReserve(), force.Black: piece.NewReserve()},
		ActiveSide:     force.White,
		FullMoveNumber: 1,
		KingHomeFile:   map[force.Force]coord.Col{},
		RookHomeFile: map[force.Force]map[piece.CastleDirection]coord.Col{
			force.White: {}, force.Black: {},
		},
		Rules:        cr,
		PawnDropRows: [2]int{br.MinPawnDropRow.OneBased(), br.MaxPawnDropRow.OneBased()},
		DropAggro:    br.DropAggression,
		PromoMode:    br.Promotion,
	}

	placeBackRank := func(f force.Force, row int) {
		r, _ := coord.RowFromZeroBased(row)
		seenRook := 0
		for file, k := range order {
			c, _ := coord.ColFromZeroBased(file)
			p := piece.Piece{Kind: k, Force: f, Origin: piece.Innate}
			if k == piece.King {
				b.KingHomeFile[f] = c
			}
			if k == piece.Rook {
				side := piece.ASide
				if seenRook == 1 {
					side = piece.HSide
				}
				seenRook++
				p.RookCastleSide = side
				b.RookHomeFile[f][side] = c
			}
			b.Grid[coord.New(r, c)] = p
		}
	}
	placeBackRank(force.White, 0)
	placeBackRank(force.Black, 7)

	pawnRowWhite, _ := coord.RowFromZeroBased(1)
	pawnRowBlack, _ := coord.RowFromZeroBased(6)
	for file := 0; file < 8; file++ {
		c, _ := coord.ColFromZeroBased(file)
		b.Grid[coord.New(pawnRowWhite, c)] = piece.Piece{Kind: piece.Pawn, Force: force.White, Origin: piece.Innate}
		b.Grid[coord.New(pawnRowBlack, c)] = piece.Piece{Kind: piece.Pawn, Force: force.Black, Origin: piece.Innate}
	}

	b.Castling = CastlingRights{WhiteKingside: true, WhiteQueenside: true, BlackKingside: true, BlackQueenside: true}
	return b
}
