package server

import (
	"encoding/json"
	"time"

	"github.com/amatveiakin/bughouse-chess/internal/algebraic"
	"github.com/amatveiakin/bughouse-chess/internal/bughouse"
	"github.com/amatveiakin/bughouse-chess/internal/clock"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/match"
	"github.com/amatveiakin/bughouse-chess/internal/rules"
	"github.com/amatveiakin/bughouse-chess/internal/session"
)

// participantView is the wire-facing projection of match.Participant;
// kept separate from the internal type so renaming internal fields never
// silently changes the wire format.
type participantView struct {
	ID           match.ParticipantID `json:"id"`
	DisplayName  string              `json:"display_name"`
	FactionKind  match.FactionKind   `json:"faction_kind"`
	Ready        bool                `json:"ready"`
	Seat         *match.Seat         `json:"seat,omitempty"`
	Rating       *float64            `json:"rating,omitempty"`
	GamesBenched int                 `json:"games_benched"`
}

// rulesView flattens rules.Rules for the wire; SubjectiveRow and the enum
// fields are written as plain ints/strings so clients in any language can
// decode them.
type rulesView struct {
	Rated           bool  `json:"rated"`
	FischerRandom   bool  `json:"fischer_random"`
	Accolade        bool  `json:"accolade"`
	DuckChess       bool  `json:"duck_chess"`
	FogOfWar        bool  `json:"fog_of_war"`
	Koedem          bool  `json:"koedem"`
	StartingMillis  int64 `json:"starting_millis"`
	IncrementMillis int64 `json:"increment_millis"`
	BonusMillis     int64 `json:"bonus_on_opponent_move_millis"`
	MinPawnDropRank int   `json:"min_pawn_drop_rank"`
	MaxPawnDropRank int   `json:"max_pawn_drop_rank"`
	DropAggression  int   `json:"drop_aggression"`
	Promotion       int   `json:"promotion"`
}

func buildRulesView(r rules.Rules) rulesView {
	return rulesView{
		Rated:           r.Match.Rated,
		FischerRandom:   r.Chess.StartingPosition == rules.FischerRandom,
		Accolade:        r.Chess.FairyPieces == rules.Accolade,
		DuckChess:       r.Chess.DuckChess,
		FogOfWar:        r.Chess.FogOfWar,
		Koedem:          r.Chess.Koedem,
		StartingMillis:  r.Chess.TimeControl.Starting.Milliseconds(),
		IncrementMillis: r.Chess.TimeControl.Increment.Milliseconds(),
		BonusMillis:     r.Chess.TimeControl.BonusOnOpponentMove.Milliseconds(),
		MinPawnDropRank: r.Bughouse.MinPawnDropRow.OneBased(),
		MaxPawnDropRank: r.Bughouse.MaxPawnDropRow.OneBased(),
		DropAggression:  int(r.Bughouse.DropAggression),
		Promotion:       int(r.Bughouse.Promotion),
	}
}

type logEntryView struct {
	Board force.BoardID `json:"board"`
	Force force.Force   `json:"force"`
	Text  string        `json:"text"`
}

type clockPairView struct {
	White session.ClockReading `json:"white"`
	Black session.ClockReading `json:"black"`
}

type gameSnapshot struct {
	Seed   int64                           `json:"seed"`
	Status string                          `json:"status"`
	Log    []logEntryView                  `json:"log"`
	Clocks map[force.BoardID]clockPairView `json:"clocks"`
}

type matchSnapshot struct {
	ID               match.MatchID     `json:"id"`
	Code             match.Code        `json:"code"`
	Phase            string            `json:"phase"`
	Rules            rulesView         `json:"rules"`
	Participants     []participantView `json:"participants"`
	GameIndex        int               `json:"game_index"`
	CountdownSeconds *int              `json:"countdown_seconds,omitempty"`
	SharedWayback    *int              `json:"shared_wayback,omitempty"`
	Game             *gameSnapshot     `json:"game,omitempty"`
}

// clockReading serializes one slot of a board clock: signed remaining
// millis (signed leaves a grace window during flag detection), plus
// ticking-since as a delta to the snapshot instant, nil when not
// ticking.
func clockReading(c *clock.Clock, f force.Force, now clock.GameInstant) session.ClockReading {
	snap := c.Snapshot()
	out := session.ClockReading{RemainingMillis: int32(c.TimeLeft(f, now).Milliseconds())}
	if snap.ActiveForce != nil && *snap.ActiveForce == f {
		offset := int32((snap.TurnStartedAt.ElapsedSinceStart - now.ElapsedSinceStart).Milliseconds())
		out.TickingSinceOffsetMillis = &offset
	}
	return out
}

func clockViews(g *bughouse.Game, now clock.GameInstant) map[force.BoardID]clockPairView {
	out := make(map[force.BoardID]clockPairView, 2)
	for _, b := range []force.BoardID{force.BoardA, force.BoardB} {
		out[b] = clockPairView{
			White: clockReading(g.Clocks[b], force.White, now),
			Black: clockReading(g.Clocks[b], force.Black, now),
		}
	}
	return out
}

// logTexts renders the shared turn log as algebraic text by replaying it
// from the starting position, so disambiguation is computed against the
// position each turn was actually made in.
func logTexts(g *bughouse.Game) []logEntryView {
	replay := bughouse.New(g.Seed, g.Rules)
	out := make([]logEntryView, 0, g.Log.Len())
	for _, e := range g.Log.Entries() {
		text := algebraic.Format(e.Turn, replay.Boards[e.Index.Board], e.Force)
		out = append(out, logEntryView{Board: e.Index.Board, Force: e.Force, Text: text})
		_ = replay.ApplyTurn(e.Index.Board, e.Force, e.Turn, clock.FromDuration(0))
	}
	return out
}

func buildGameSnapshot(g *bughouse.Game, now clock.GameInstant) *gameSnapshot {
	return &gameSnapshot{
		Seed:   g.Seed,
		Status: g.Status.String(),
		Log:    logTexts(g),
		Clocks: clockViews(g, now),
	}
}

func buildSnapshot(m *match.Match, now time.Time) []byte {
	snap := matchSnapshot{
		ID:            m.ID,
		Code:          m.Code,
		Phase:         m.Phase.String(),
		Rules:         buildRulesView(m.Rules),
		GameIndex:     len(m.GameHistory),
		SharedWayback: m.SharedWaybackIndex,
	}
	for _, p := range m.Participants {
		snap.Participants = append(snap.Participants, participantView{
			ID:           p.ID,
			DisplayName:  p.DisplayName,
			FactionKind:  p.Faction.Kind,
			Ready:        p.Ready,
			Seat:         p.Seat,
			Rating:       p.Rating,
			GamesBenched: p.GamesBenched,
		})
	}
	if m.Phase == match.PhaseCountdown {
		left := int(m.CountdownDeadline.Sub(now).Seconds())
		if left < 0 {
			left = 0
		}
		snap.CountdownSeconds = &left
	}
	if m.CurrentGame != nil {
		snap.Game = buildGameSnapshot(m.CurrentGame, m.GameInstant(now))
	}
	raw, _ := json.Marshal(snap)
	return raw
}
