package match

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/amatveiakin/bughouse-chess/internal/bughouse"
	"github.com/amatveiakin/bughouse-chess/internal/clock"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/rating"
	"github.com/amatveiakin/bughouse-chess/internal/rules"
	"github.com/amatveiakin/bughouse-chess/internal/turn"
)

// New creates a fresh match in Lobby phase, owned by its creator (who is
// not automatically seated — they join like anyone else via Join).
func New(r rules.Rules, code Code, seed int64) (*Match, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	return &Match{
		ID:           NewMatchID(),
		Code:         code,
		Rules:        r,
		Participants: make(map[ParticipantID]*Participant),
		Phase:        PhaseLobby,
		rngSeed:      seed,
	}, nil
}

// Join adds a new participant (guest or returning) as an observer by
// default; SetFaction adjusts their preference afterward.
func (m *Match) Join(displayName string, isGuest bool) *Participant {
	return m.JoinAs(NewParticipantID(), displayName, isGuest)
}

// JoinAs is Join with a caller-supplied id, used when the session layer
// has already minted an identity for the socket. Rejoining under an
// id already present is a no-op returning the existing participant.
func (m *Match) JoinAs(id ParticipantID, displayName string, isGuest bool) *Participant {
	if p, ok := m.Participants[id]; ok {
		if displayName != "" {
			p.DisplayName = displayName
		}
		return p
	}
	p := &Participant{
		ID:          id,
		DisplayName: displayName,
		Faction:     Observer(),
		IsGuest:     isGuest,
	}
	m.Participants[id] = p
	m.order = append(m.order, id)
	return p
}

// Leave removes a participant. If they were seated and a game is active,
// their seat is simply vacated.
func (m *Match) Leave(id ParticipantID) {
	delete(m.Participants, id)
	for i, pid := range m.order {
		if pid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.Phase == PhasePostGame && m.CurrentGame == nil {
		m.Phase = PhaseLobby
	}
}

// SetFaction updates a participant's seating preference for the next
// game; un-readies them since the seat assignment it implied may change.
func (m *Match) SetFaction(id ParticipantID, f Faction) error {
	p, ok := m.Participants[id]
	if !ok {
		return fmt.Errorf("unknown participant")
	}
	p.Faction = f
	p.Ready = false
	if m.Phase == PhaseCountdown {
		m.Phase = PhaseLobby
	}
	return nil
}

// ToggleReady flips a participant's ready flag. Toggling un-ready while
// a countdown is running drops the match back to Lobby.
func (m *Match) ToggleReady(id ParticipantID) error {
	p, ok := m.Participants[id]
	if !ok {
		return fmt.Errorf("unknown participant")
	}
	p.Ready = !p.Ready
	if !p.Ready && m.Phase == PhaseCountdown {
		m.Phase = PhaseLobby
	}
	return nil
}

// nonObservers returns participants who want to play, in join order.
func (m *Match) nonObservers() []*Participant {
	var out []*Participant
	for _, id := range m.order {
		p := m.Participants[id]
		if p.Faction.Kind != FactionObserver {
			out = append(out, p)
		}
	}
	return out
}

// AllSeatedReady reports whether every seated (non-observer, chosen-to-
// play-this-game) participant has flagged ready. Observers are ignored.
func (m *Match) AllSeatedReady() bool {
	seated := m.seatedThisRound()
	if len(seated) < 4 {
		return false
	}
	for _, p := range seated {
		if !p.Ready {
			return false
		}
	}
	return true
}

// seatedThisRound computes which 4 of the non-observer participants would
// play the next game, honoring the games-benched aging counter so no one
// is permanently benched, without mutating state. Returns nil if fewer
// than 4 non-observers exist.
func (m *Match) seatedThisRound() []*Participant {
	candidates := m.nonObservers()
	if len(candidates) < 4 {
		return nil
	}
	if len(candidates) == 4 {
		return candidates
	}
	// More than 4 want to play: prioritize whoever has been benched
	// longest, breaking ties by join order (stable insertion sort, descending).
	sorted := append([]*Participant(nil), candidates...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].GamesBenched > sorted[j-1].GamesBenched; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return sorted[:4]
}

// boardSlots lists the four (board, force) seats in team order: index 0
// and 3 are TeamOne (White@A, Black@B), index 1 and 2 are TeamTwo.
var boardSlots = [4]Seat{
	{force.BoardA, force.White},
	{force.BoardA, force.Black},
	{force.BoardB, force.White},
	{force.BoardB, force.Black},
}

var teamSlotIndices = map[force.Team][]int{
	force.TeamOne: {0, 3},
	force.TeamTwo: {1, 2},
}

// assignSeats maps 4 chosen participants onto boardSlots, honoring fixed-
// team preferences first and filling the rest randomly. The returned
// array is indexed by participant: seats[i] is four[i]'s seat. Returns
// IncompatibleTeamsError if fixed preferences overcommit either team.
func assignSeats(four []*Participant, rng *rand.Rand) ([4]Seat, error) {
	var seats [4]Seat
	var usedSlot [4]bool
	assigned := make([]bool, len(four))

	for _, team := range []force.Team{force.TeamOne, force.TeamTwo} {
		slotSet := teamSlotIndices[team]
		next := 0
		for i, p := range four {
			if p.Faction.Kind != FactionFixedTeam || p.Faction.Team != team {
				continue
			}
			if next >= len(slotSet) {
				return seats, IncompatibleTeamsError{}
			}
			slot := slotSet[next]
			seats[i] = boardSlots[slot]
			usedSlot[slot] = true
			assigned[i] = true
			next++
		}
	}

	var remaining []int
	for i, ok := range assigned {
		if !ok {
			remaining = append(remaining, i)
		}
	}
	rng.Shuffle(len(remaining), func(i, j int) { remaining[i], remaining[j] = remaining[j], remaining[i] })
	si := 0
	for _, i := range remaining {
		for usedSlot[si] {
			si++
		}
		seats[i] = boardSlots[si]
		usedSlot[si] = true
		si++
	}
	return seats, nil
}

// StartReadyCountdown begins (or restarts) the ready-gate countdown once
// AllSeatedReady holds: FirstGameCountdown for the match's first game,
// SubsequentGameCountdown afterward.
func (m *Match) StartReadyCountdown(now time.Time) {
	if m.Phase != PhaseLobby && m.Phase != PhasePostGame {
		return
	}
	if !m.AllSeatedReady() {
		return
	}
	d := rules.SubsequentGameCountdown
	if m.nextGameIndex == 0 {
		d = rules.FirstGameCountdown
	}
	m.Phase = PhaseCountdown
	m.CountdownDeadline = now.Add(d)
}

// TickCountdown transitions Countdown -> InGame once the deadline passes,
// starting a fresh BughouseGame. Returns true if a game was started.
func (m *Match) TickCountdown(now time.Time) (bool, error) {
	if m.Phase != PhaseCountdown || now.Before(m.CountdownDeadline) {
		return false, nil
	}
	return true, m.startGame(now)
}

func (m *Match) startGame(now time.Time) error {
	four := m.seatedThisRound()
	if four == nil {
		m.Phase = PhaseLobby
		return fmt.Errorf("not enough players to start")
	}
	rng := rand.New(rand.NewSource(m.rngSeed + int64(m.nextGameIndex)))
	seats, err := assignSeats(four, rng)
	if err != nil {
		m.Phase = PhaseLobby
		return err
	}
	for i, p := range four {
		s := seats[i]
		p.Seat = &s
		p.GamesBenched = 0
	}
	for _, p := range m.nonObservers() {
		if p.Seat == nil {
			p.GamesBenched++
		}
	}

	seed := m.rngSeed + int64(m.nextGameIndex)*7 + 1
	m.CurrentGame = bughouse.New(seed, m.Rules)
	m.gameStartedAt = now
	m.Phase = PhaseInGame
	return nil
}

// instantSince converts a wall-clock reading into the GameInstant the
// current game's clocks are anchored against.
func (m *Match) instantSince(now time.Time) clock.GameInstant {
	return clock.FromDuration(now.Sub(m.gameStartedAt))
}

// GameInstant is instantSince for callers outside this package (the
// server's event dispatch and clock-snapshot serialization).
func (m *Match) GameInstant(now time.Time) clock.GameInstant {
	return m.instantSince(now)
}

// ApplyTurn gates and applies one turn from a participant: the match must
// be in game, the participant seated on boardID, and the turn theirs to
// make. Rule violations are returned to the caller and never propagate
// further.
func (m *Match) ApplyTurn(id ParticipantID, boardID force.BoardID, t turn.Turn, now time.Time) error {
	if m.Phase != PhaseInGame || m.CurrentGame == nil {
		return fmt.Errorf("no game in progress")
	}
	p, ok := m.Participants[id]
	if !ok || p.Seat == nil {
		return fmt.Errorf("not seated")
	}
	if p.Seat.Board != boardID {
		return fmt.Errorf("seated on board %v, not %v", p.Seat.Board, boardID)
	}
	return m.CurrentGame.ApplyTurn(boardID, p.Seat.Force, t, m.instantSince(now))
}

// SeatedAt finds the participant occupying (boardID, f) this game, if any.
func (m *Match) SeatedAt(boardID force.BoardID, f force.Force) (*Participant, bool) {
	for _, p := range m.Participants {
		if p.Seat != nil && p.Seat.Board == boardID && p.Seat.Force == f {
			return p, true
		}
	}
	return nil, false
}

// Resign ends the current game immediately in favor of resigner's
// opponents.
func (m *Match) Resign(id ParticipantID, now time.Time) error {
	p, ok := m.Participants[id]
	if !ok || p.Seat == nil || m.CurrentGame == nil {
		return fmt.Errorf("not seated in an active game")
	}
	team := force.TeamOf(p.Seat.Board, p.Seat.Force)
	m.CurrentGame.Resign(team, m.instantSince(now))
	return m.finishCurrentGame(now)
}

// AdvanceAfterGameOver moves the match from InGame to PostGame once
// CurrentGame.Status is no longer Active, applying rating updates and
// appending to history.
func (m *Match) AdvanceAfterGameOver(now time.Time) bool {
	if m.Phase != PhaseInGame || m.CurrentGame == nil || m.CurrentGame.Status.Kind == bughouse.Active {
		return false
	}
	return m.finishCurrentGame(now) == nil
}

func (m *Match) finishCurrentGame(now time.Time) error {
	m.GameHistory = append(m.GameHistory, GameOutcome{
		GameIndex: m.nextGameIndex,
		Status:    m.CurrentGame.Status,
		EndedAt:   now,
	})
	if m.Rules.Match.Rated {
		m.applyRatingUpdate()
	}
	for _, p := range m.Participants {
		p.Ready = false
		p.Seat = nil
	}
	m.nextGameIndex++
	m.Phase = PhasePostGame
	return nil
}

// applyRatingUpdate folds the just-finished game's result into both
// teams' seated participants' ratings via internal/rating's per-team Elo
// update.
func (m *Match) applyRatingUpdate() {
	var teamOneIDs, teamTwoIDs []ParticipantID
	var teamOneRatings, teamTwoRatings rating.Team
	for id, p := range m.Participants {
		if p.Seat == nil {
			continue
		}
		r := 1500.0
		if p.Rating != nil {
			r = *p.Rating
		}
		team := force.TeamOf(p.Seat.Board, p.Seat.Force)
		if team == force.TeamOne {
			teamOneIDs = append(teamOneIDs, id)
			teamOneRatings[len(teamOneIDs)-1] = r
		} else {
			teamTwoIDs = append(teamTwoIDs, id)
			teamTwoRatings[len(teamTwoIDs)-1] = r
		}
	}
	if len(teamOneIDs) != 2 || len(teamTwoIDs) != 2 {
		return
	}
	status := m.CurrentGame.Status
	outcome := rating.Drawn
	if status.Kind == bughouse.Victory {
		if status.Winner == force.TeamOne {
			outcome = rating.TeamOneWins
		} else {
			outcome = rating.TeamTwoWins
		}
	}
	delta := rating.Update(teamOneRatings, teamTwoRatings, outcome)
	for i, id := range teamOneIDs {
		updated := teamOneRatings[i] + delta.TeamOne
		m.Participants[id].Rating = &updated
	}
	for i, id := range teamTwoIDs {
		updated := teamTwoRatings[i] + delta.TeamTwo
		m.Participants[id].Rating = &updated
	}
}

// Tick drives the clock-flag and countdown-expiry checks; call
// periodically from the server's per-match event loop. It is
// idempotent: calling it repeatedly with the same `now` before any new
// turn arrives produces no further state change once a terminal phase
// transition has happened.
func (m *Match) Tick(now time.Time) error {
	switch m.Phase {
	case PhaseCountdown:
		_, err := m.TickCountdown(now)
		return err
	case PhaseInGame:
		if m.CurrentGame != nil {
			m.CurrentGame.Tick(m.instantSince(now))
			m.AdvanceAfterGameOver(now)
		}
	}
	return nil
}

// WaybackView reconstructs CurrentGame as of turnIndex by replaying the
// turn log from the known starting position, for archive
// and shared-wayback viewing. It never mutates CurrentGame.
func (m *Match) WaybackView(turnIndex int) (*bughouse.Game, error) {
	if m.CurrentGame == nil {
		return nil, fmt.Errorf("no current game")
	}
	return m.CurrentGame.WaybackView(turnIndex)
}
