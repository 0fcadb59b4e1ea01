package protocol

import (
	"github.com/amatveiakin/bughouse-chess/internal/board"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/piece"
	"github.com/amatveiakin/bughouse-chess/internal/turn"
)

// Preturn is one queued conditional move, banked while it is not yet the
// owner's move. It stores the turn in abstract form (piece identity,
// destination, promotion kind) and is re-validated against the actual
// board only at application time, so a preturn whose piece has since been
// captured is simply dropped.
type Preturn struct {
	Turn      turn.Turn
	ClientSeq uint32
}

type preturnKey struct {
	owner string
	board force.BoardID
}

// PreturnStore holds at most one queued preturn per (owner, board).
type PreturnStore struct {
	queued map[preturnKey]Preturn
}

func NewPreturnStore() *PreturnStore {
	return &PreturnStore{queued: make(map[preturnKey]Preturn)}
}

// Queue banks t for owner on boardID, replacing any previous preturn on
// that board. Validation here is only ownership and shape — not legality,
// since the board will have changed by the time it applies.
func (ps *PreturnStore) Queue(owner string, boardID force.BoardID, b *board.Board, mover force.Force, t turn.Turn, clientSeq uint32) error {
	if err := validateShape(t, b, mover); err != nil {
		return err
	}
	ps.queued[preturnKey{owner, boardID}] = Preturn{Turn: t, ClientSeq: clientSeq}
	return nil
}

// validateShape checks piece ownership and structural plausibility without
// consulting the legal-move set.
func validateShape(t turn.Turn, b *board.Board, mover force.Force) error {
	switch t.Kind {
	case turn.KindMove:
		p, ok := b.PieceAt(t.From)
		if !ok || p.Force != mover {
			return ErrNotYourPiece
		}
	case turn.KindDrop:
		if t.DropKind == piece.Duck {
			return &board.RejectError{Kind: board.RejectIllegal}
		}
	case turn.KindCastle, turn.KindPlaceDuck:
		// Shape carries no source to verify.
	default:
		return &board.RejectError{Kind: board.RejectIllegal}
	}
	return nil
}

// Cancel drops owner's queued preturn on boardID, if any.
func (ps *PreturnStore) Cancel(owner string, boardID force.BoardID) {
	delete(ps.queued, preturnKey{owner, boardID})
}

// CancelAll drops every preturn owner has queued, on either board; used
// when a participant leaves the match.
func (ps *PreturnStore) CancelAll(owner string) {
	for k := range ps.queued {
		if k.owner == owner {
			delete(ps.queued, k)
		}
	}
}

// Take removes and returns owner's queued preturn for boardID. The caller
// attempts it as-if-fresh against the real board; any rejection silently
// discards it and notifies the owner.
func (ps *PreturnStore) Take(owner string, boardID force.BoardID) (Preturn, bool) {
	k := preturnKey{owner, boardID}
	p, ok := ps.queued[k]
	if ok {
		delete(ps.queued, k)
	}
	return p, ok
}

// Peek reports owner's queued preturn without removing it.
func (ps *PreturnStore) Peek(owner string, boardID force.BoardID) (Preturn, bool) {
	p, ok := ps.queued[preturnKey{owner, boardID}]
	return p, ok
}
