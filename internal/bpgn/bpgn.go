// Package bpgn renders a finished bughouse game as BPGN: two linked PGN
// sections (board A, board B) with `{[%bug ...]}` cross-reference
// annotations in move comments marking drops. Captures that transfer a
// piece to the other board are not annotated.
//
// Plain single-board position constants come from github.com/notnil/chess;
// the cross-board annotation layer is bughouse-specific.
package bpgn

import (
	"fmt"
	"strings"

	"github.com/notnil/chess"

	"github.com/amatveiakin/bughouse-chess/internal/algebraic"
	"github.com/amatveiakin/bughouse-chess/internal/board"
	"github.com/amatveiakin/bughouse-chess/internal/bughouse"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/rules"
	"github.com/amatveiakin/bughouse-chess/internal/turn"
)

// classicalStartFEN is the standard chess starting position, reused
// verbatim from notnil/chess (chess.NewGame's initial position) for the
// BPGN [FEN] header on boards that start from the classical position.
// Fischer-random sections get no [SetUp]/[FEN] header at all.
var classicalStartFEN = chess.NewGame().Position().String()

// Headers carries the PGN seven-tag-roster metadata common to both linked
// sections.
type Headers struct {
	Event, Site, Date, Round string
	WhiteA, BlackA           string
	WhiteB, BlackB           string
	Result                   string
}

// Export renders g as a complete two-section BPGN document. g's Log is
// replayed from a fresh starting position so SAN/disambiguation can be
// computed the same way internal/algebraic does it live.
func Export(g *bughouse.Game, startA, startB *board.Board, r rules.Rules, h Headers) string {
	var sb strings.Builder
	writeHeaders(&sb, r, h)
	sb.WriteString("\n")
	sb.WriteString(renderSection(g, force.BoardA, startA, h))
	sb.WriteString("\n\n")
	writeHeaders(&sb, r, h)
	sb.WriteString("\n")
	sb.WriteString(renderSection(g, force.BoardB, startB, h))
	sb.WriteString("\n")
	return sb.String()
}

func writeHeaders(sb *strings.Builder, r rules.Rules, h Headers) {
	fmt.Fprintf(sb, "[Event %q]\n", orDefault(h.Event, "Bughouse match"))
	fmt.Fprintf(sb, "[Site %q]\n", orDefault(h.Site, "?"))
	fmt.Fprintf(sb, "[Date %q]\n", orDefault(h.Date, "????.??.??"))
	fmt.Fprintf(sb, "[Round %q]\n", orDefault(h.Round, "?"))
	fmt.Fprintf(sb, "[Result %q]\n", orDefault(h.Result, "*"))
	fmt.Fprintf(sb, "[Variant %q]\n", "Bughouse")
	if r.Chess.StartingPosition == rules.Classic {
		fmt.Fprintf(sb, "[SetUp %q]\n", "1")
		fmt.Fprintf(sb, "[FEN %q]\n", classicalStartFEN)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// renderSection formats one board's moves as SAN text, inserting a
// `{[%bug ...]}` comment on every drop (material that arrived from the
// partner board). Captures that feed the partner board's reserve carry no
// annotation.
func renderSection(g *bughouse.Game, boardID force.BoardID, start *board.Board, h Headers) string {
	white, black := h.WhiteA, h.BlackA
	if boardID == force.BoardB {
		white, black = h.WhiteB, h.BlackB
	}

	b := start.Clone()
	var sb strings.Builder
	fmt.Fprintf(&sb, "; board %s: %s vs %s\n", boardID, white, black)
	moveNum := 1
	firstOfPair := true

	for _, entry := range g.Log.ForBoard(boardID) {
		if firstOfPair {
			fmt.Fprintf(&sb, "%d. ", moveNum)
		}
		san := algebraic.Format(entry.Turn, b, entry.Force)
		sb.WriteString(san)

		if ann := bugAnnotation(entry.Turn); ann != "" {
			sb.WriteString(" {[%bug ")
			sb.WriteString(ann)
			sb.WriteString("]}")
		}
		sb.WriteString(" ")

		// Single-board replay can't see cross-board transfers, so credit
		// the reserve just-in-time before a drop re-applies.
		if entry.Turn.Kind == turn.KindDrop && b.Reserves[entry.Force].Count(entry.Turn.DropKind) == 0 {
			b.Reserves[entry.Force].Add(entry.Turn.DropKind, 1)
		}
		if _, err := b.TryApply(entry.Turn); err != nil {
			// Keep rendering; later SAN may lose disambiguation context
			// but the export stays readable.
			_ = err
		}

		if !firstOfPair {
			moveNum++
		}
		firstOfPair = !firstOfPair
	}

	sb.WriteString(h.Result)
	if h.Result == "" {
		sb.WriteString("*")
	}
	return sb.String()
}

// bugAnnotation describes a turn's cross-board relevance: drops name the
// piece dropped from the reserve (which arrived from the partner board's
// capture), using the conventional `%bug` comment tag.
func bugAnnotation(t turn.Turn) string {
	if t.Kind == turn.KindDrop {
		return fmt.Sprintf("drop %c", t.DropKind.Letter())
	}
	return ""
}
