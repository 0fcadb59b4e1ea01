package match

import (
	"time"

	"github.com/google/uuid"

	"github.com/amatveiakin/bughouse-chess/internal/bughouse"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/rules"
)

// ParticipantID identifies one participant within a single match; it
// outlives any one socket.
type ParticipantID string

func NewParticipantID() ParticipantID { return ParticipantID(uuid.NewString()) }

// MatchID is the internal key for a Match, distinct from its human-shared
// six-letter Code.
type MatchID string

func NewMatchID() MatchID { return MatchID(uuid.NewString()) }

// FactionKind discriminates a participant's role preference for the next
// game.
type FactionKind int

const (
	FactionObserver FactionKind = iota
	FactionFixedTeam
	FactionRandom
)

// Faction is a participant's seating preference.
type Faction struct {
	Kind FactionKind
	Team force.Team // meaningful only for FactionFixedTeam
}

func Observer() Faction              { return Faction{Kind: FactionObserver} }
func FixedTeam(t force.Team) Faction { return Faction{Kind: FactionFixedTeam, Team: t} }
func Random() Faction                { return Faction{Kind: FactionRandom} }

// Seat names a participant's (board, force) slot for one game.
type Seat struct {
	Board force.BoardID
	Force force.Force
}

// Participant is one member of a match: a seated player, a benched player
// waiting for the next game, or an observer.
type Participant struct {
	ID          ParticipantID
	DisplayName string
	Faction     Faction
	Ready       bool
	Seat        *Seat // set only while actively seated for the current/next game
	Rating      *float64
	// GamesBenched counts consecutive games this participant has sat out
	// despite wanting to play, so the seating algorithm can prioritize
	// whoever has waited longest.
	GamesBenched int
	// IsGuest participants have no backing UserID and are scoped to one
	// session; a registered participant may reconnect under the same ID.
	IsGuest bool
}

// Phase is the match-level state.
type Phase int

const (
	PhaseLobby Phase = iota
	PhaseCountdown
	PhaseInGame
	PhasePostGame
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "Lobby"
	case PhaseCountdown:
		return "Countdown"
	case PhaseInGame:
		return "InGame"
	case PhasePostGame:
		return "PostGame"
	default:
		return "Unknown"
	}
}

// GameOutcome records one finished game's result for match history.
type GameOutcome struct {
	GameIndex int
	Status    bughouse.Status
	EndedAt   time.Time
}

// IncompatibleTeamsError is returned by the seating algorithm when fixed
// team preferences among the four to-be-seated participants cannot be
// satisfied.
type IncompatibleTeamsError struct{}

func (IncompatibleTeamsError) Error() string { return "IncompatibleTeams" }

// Match is one lobby-to-archive bughouse match: a sequence of games played
// under one fixed Rules by up to a full roster of participants.
type Match struct {
	ID    MatchID
	Code  Code
	Rules rules.Rules

	Participants map[ParticipantID]*Participant
	// order preserves join order for deterministic seating ties.
	order []ParticipantID

	GameHistory []GameOutcome
	CurrentGame *bughouse.Game
	// gameStartedAt anchors CurrentGame's clocks: wall time is converted to
	// a clock.GameInstant relative to this moment.
	gameStartedAt time.Time

	Phase Phase
	// CountdownDeadline is when the running countdown (if Phase ==
	// PhaseCountdown) expires.
	CountdownDeadline time.Time

	// SharedWaybackIndex is the match-wide read cursor used when shared
	// wayback mode is toggled on; nil means each participant navigates
	// independently (tracked client-side, not modeled here).
	SharedWaybackIndex *int

	nextGameIndex int
	rngSeed       int64
}
