// Package algebraic parses algebraic move text into internal/turn.Turn
// and formats turns back to text for the wire, chat and export. Drag-drop
// and click inputs are canonicalized by internal/protocol, not here.
//
// Parse and Format are inverses for every canonical turn, which is what
// lets the wire protocol and BPGN export carry turns as plain text.
package algebraic

import (
	"fmt"
	"strings"

	"github.com/amatveiakin/bughouse-chess/internal/board"
	"github.com/amatveiakin/bughouse-chess/internal/coord"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/piece"
	"github.com/amatveiakin/bughouse-chess/internal/turn"
)

// ErrAmbiguous is returned when SAN disambiguation leaves more than one
// candidate source square.
var ErrAmbiguous = fmt.Errorf("ambiguous source square")

// ErrNoMatch is returned when no legal turn matches the input text at all.
var ErrNoMatch = fmt.Errorf("no legal turn matches input")

// Parse canonicalizes algebraic text (`Nf3`, `P@e4`, `O-O`, `exd8=Q`,
// optional bughouse-steal suffix `/R`) into a canonical Turn, resolved
// against b's current legal-turn set. Disambiguation follows standard SAN
// rules: if the input already pins down file/rank/both, only turns
// matching that partial source qualify; if more than one legal turn still
// matches after applying every constraint in the text, it is
// AmbiguousSource (ErrAmbiguous).
func Parse(s string, b *board.Board, mover force.Force) (turn.Turn, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "+")
	s = strings.TrimSuffix(s, "#")
	if s == "" {
		return turn.Turn{}, ErrNoMatch
	}

	legal := b.LegalTurns()

	if s == "O-O" {
		return matchCastle(legal, turn.Kingside)
	}
	if s == "O-O-O" {
		return matchCastle(legal, turn.Queenside)
	}

	// Duck placement: "@e5" (the second half of a duck-chess move).
	if s[0] == '@' {
		to, ok := coord.FromAlgebraic(s[1:])
		if !ok {
			return turn.Turn{}, ErrNoMatch
		}
		for _, t := range legal {
			if t.Kind == turn.KindPlaceDuck && t.DuckTo == to {
				return t, nil
			}
		}
		return turn.Turn{}, ErrNoMatch
	}

	// Drop: "P@e4" or "N@g5".
	if idx := strings.IndexByte(s, '@'); idx >= 0 {
		kind, ok := kindFromLetter(s[0])
		if !ok {
			return turn.Turn{}, ErrNoMatch
		}
		to, ok := coord.FromAlgebraic(s[idx+1:])
		if !ok {
			return turn.Turn{}, ErrNoMatch
		}
		want := turn.Drop(kind, to)
		return matchExact(legal, want)
	}

	// Strip an optional bughouse steal suffix ("/R" etc.) before parsing
	// the base move text; it only ever modifies a promotion turn's
	// Promotion.Steal, never the source/destination parsing below.
	var stealKindLetter byte
	if i := strings.IndexByte(s, '/'); i >= 0 && i == len(s)-2 {
		stealKindLetter = s[i+1]
		s = s[:i]
	}

	kind, rest, ok := leadingPieceKind(s)
	if !ok {
		return turn.Turn{}, ErrNoMatch
	}

	promo := piece.Kind(-1)
	if eq := strings.IndexByte(rest, '='); eq >= 0 {
		if k, ok := kindFromLetter(rest[eq+1]); ok {
			promo = k
		}
		rest = rest[:eq]
	}
	rest = strings.ReplaceAll(rest, "x", "")

	if len(rest) < 2 {
		return turn.Turn{}, ErrNoMatch
	}
	destStr := rest[len(rest)-2:]
	disambig := rest[:len(rest)-2]
	to, ok := coord.FromAlgebraic(destStr)
	if !ok {
		return turn.Turn{}, ErrNoMatch
	}

	var candidates []turn.Turn
	for _, t := range legal {
		if t.Kind != turn.KindMove || t.To != to {
			continue
		}
		p, found := b.PieceAt(t.From)
		if !found || p.Kind != kind || p.Force != mover {
			continue
		}
		if !matchesDisambiguation(t.From, disambig) {
			continue
		}
		// A promotion suffix pins down which of the four promotion turns
		// is meant; absence of one excludes them all.
		if promo >= 0 {
			if t.Promotion == nil || t.Promotion.PromoteTo != promo {
				continue
			}
		} else if t.Promotion != nil {
			continue
		}
		candidates = append(candidates, t)
	}

	switch len(candidates) {
	case 0:
		return turn.Turn{}, ErrNoMatch
	case 1:
		out := candidates[0]
		if promo >= 0 {
			choice := turn.PromotionChoice{PromoteTo: promo}
			if stealKindLetter != 0 {
				// The steal suffix names the piece kind stolen, not its
				// location; the concrete steal square arrives via the
				// dedicated ChoosePromotionTarget input once the other
				// board is known.
				_ = stealKindLetter
			}
			out.Promotion = &choice
		}
		return out, nil
	default:
		return turn.Turn{}, ErrAmbiguous
	}
}

func matchCastle(legal []turn.Turn, side turn.CastleSide) (turn.Turn, error) {
	for _, t := range legal {
		if t.Kind == turn.KindCastle && t.CastleSide == side {
			return t, nil
		}
	}
	return turn.Turn{}, ErrNoMatch
}

func matchExact(legal []turn.Turn, want turn.Turn) (turn.Turn, error) {
	for _, t := range legal {
		if t.Kind == want.Kind && t.DropKind == want.DropKind && t.DropTo == want.DropTo {
			return t, nil
		}
	}
	return turn.Turn{}, ErrNoMatch
}

// matchesDisambiguation checks that from matches any file/rank letters the
// SAN text pinned down explicitly.
func matchesDisambiguation(from coord.Coord, disambig string) bool {
	for _, c := range disambig {
		switch {
		case c >= 'a' && c <= 'h':
			if from.Col.Algebraic() != byte(c) {
				return false
			}
		case c >= '1' && c <= '8':
			if from.Row.Algebraic() != byte(c) {
				return false
			}
		}
	}
	return true
}

// leadingPieceKind reads an optional leading piece letter (absent means
// Pawn) and returns the remaining text.
func leadingPieceKind(s string) (piece.Kind, string, bool) {
	switch s[0] {
	case 'N', 'B', 'R', 'Q', 'K', 'C', 'E', 'A':
		k, ok := kindFromLetter(s[0])
		return k, s[1:], ok
	default:
		return piece.Pawn, s, true
	}
}

func kindFromLetter(b byte) (piece.Kind, bool) {
	switch b {
	case 'P':
		return piece.Pawn, true
	case 'N':
		return piece.Knight, true
	case 'B':
		return piece.Bishop, true
	case 'R':
		return piece.Rook, true
	case 'Q':
		return piece.Queen, true
	case 'K':
		return piece.King, true
	case 'C':
		return piece.Cardinal, true
	case 'E':
		return piece.Empress, true
	case 'A':
		return piece.Amazon, true
	default:
		return 0, false
	}
}

// Format renders a canonical Turn back to algebraic text, the inverse of
// Parse for every Turn that Parse can itself produce. Disambiguation is resolved against b, the
// position *before* the turn is applied.
func Format(t turn.Turn, b *board.Board, mover force.Force) string {
	switch t.Kind {
	case turn.KindCastle:
		if t.CastleSide == turn.Kingside {
			return "O-O"
		}
		return "O-O-O"
	case turn.KindDrop:
		return fmt.Sprintf("%c@%s", t.DropKind.Letter(), t.DropTo.Algebraic())
	case turn.KindPlaceDuck:
		return "@" + t.DuckTo.Algebraic()
	case turn.KindMove:
		return formatMove(t, b, mover)
	default:
		return "?"
	}
}

func formatMove(t turn.Turn, b *board.Board, mover force.Force) string {
	p, _ := b.PieceAt(t.From)
	var sb strings.Builder
	isCapture := !b.IsEmpty(t.To)

	if p.Kind == piece.Pawn {
		if isCapture {
			sb.WriteByte(t.From.Col.Algebraic())
			sb.WriteByte('x')
		}
	} else {
		sb.WriteByte(p.Kind.Letter())
		if file, rank, needed := disambiguationFor(t, b, mover); needed {
			if file {
				sb.WriteByte(t.From.Col.Algebraic())
			}
			if rank {
				sb.WriteByte(t.From.Row.Algebraic())
			}
		}
		if isCapture {
			sb.WriteByte('x')
		}
	}
	sb.WriteString(t.To.Algebraic())
	if t.Promotion != nil {
		sb.WriteByte('=')
		sb.WriteByte(t.Promotion.PromoteTo.Letter())
		if t.Promotion.Steal != nil {
			sb.WriteByte('/')
		}
	}
	return sb.String()
}

// disambiguationFor reports whether the move's source file and/or rank
// must be written out to distinguish it from another legal move of the
// same piece kind to the same destination.
func disambiguationFor(t turn.Turn, b *board.Board, mover force.Force) (needFile, needRank, needed bool) {
	p, _ := b.PieceAt(t.From)
	var sameFile, sameRank, any bool
	for _, other := range b.LegalTurns() {
		if other.Kind != turn.KindMove || other.To != t.To || other.From == t.From {
			continue
		}
		op, ok := b.PieceAt(other.From)
		if !ok || op.Kind != p.Kind || op.Force != mover {
			continue
		}
		any = true
		if other.From.Col == t.From.Col {
			sameFile = true
		}
		if other.From.Row == t.From.Row {
			sameRank = true
		}
	}
	if !any {
		return false, false, false
	}
	if !sameFile {
		return true, false, true
	}
	if !sameRank {
		return false, true, true
	}
	return true, true, true
}
