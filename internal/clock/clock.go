// Package clock implements the per-board game clock: a server-authoritative
// countdown per force, reconciled against wall-clock time rather than
// ticking on a timer, so a reconnecting client can always recompute an
// exact remaining time from a single snapshot.
//
// GameInstant is time-since-game-start, never wall time, so clocks
// serialize and replay identically regardless of which machine or
// timezone observed them.
package clock

import (
	"time"

	"github.com/amatveiakin/bughouse-chess/internal/force"
)

// TimeControl is a board's starting time, the increment credited to a
// side when it completes its own turn, and the bonus credited to a side
// when its opponent moves.
type TimeControl struct {
	Starting            time.Duration
	Increment           time.Duration
	BonusOnOpponentMove time.Duration
}

// GameInstant is a point in time measured from game start, never as a wall
// clock timestamp, so it can be compared safely across client and server.
type GameInstant struct {
	ElapsedSinceStart time.Duration
	// Approximate marks an instant derived from a possibly-desynced local
	// clock (an online client reconciling against the server); Exact
	// instants (the server's own clock) may never run backward, but an
	// Approximate instant saturates instead of going negative.
	Approximate bool
}

func GameStart() GameInstant { return GameInstant{} }

func FromDuration(d time.Duration) GameInstant { return GameInstant{ElapsedSinceStart: d} }

// DurationSince returns i - earlier, saturating at zero for Approximate
// instants instead of going negative.
func (i GameInstant) DurationSince(earlier GameInstant) time.Duration {
	d := i.ElapsedSinceStart - earlier.ElapsedSinceStart
	if d < 0 && (i.Approximate || earlier.Approximate) {
		return 0
	}
	return d
}

// WallGameTimePair anchors a GameInstant to a real wall-clock reading,
// used to translate "now" (wall time) into game time without ever
// producing a negative duration on reconnect.
type WallGameTimePair struct {
	WallTime time.Time
	GameTime GameInstant
}

func (p WallGameTimePair) Now(wallNow time.Time) GameInstant {
	return GameInstant{
		ElapsedSinceStart: wallNow.Sub(p.WallTime) + p.GameTime.ElapsedSinceStart,
		Approximate:       p.GameTime.Approximate,
	}
}

// Clock tracks one board's two countdowns. It is a pure value: no timer
// goroutine, nothing ticking in the background. Callers ask "how much time
// does White have left as of instant X" on demand (e.g. right before
// serializing a snapshot to send to a client, or when deciding a turn is
// illegal because it arrived after flag-fall).
type Clock struct {
	control       TimeControl
	remaining     map[force.Force]time.Duration
	activeForce   *force.Force
	turnStartedAt GameInstant
}

func New(control TimeControl) *Clock {
	return &Clock{
		control: control,
		remaining: map[force.Force]time.Duration{
			force.White: control.Starting,
			force.Black: control.Starting,
		},
	}
}

func (c *Clock) IsActive() bool { return c.activeForce != nil }

func (c *Clock) ActiveForce() (force.Force, bool) {
	if c.activeForce == nil {
		return 0, false
	}
	return *c.activeForce, true
}

// TimeLeft returns f's remaining time as of `now`, accounting for the
// in-progress turn if f is the currently active side.
func (c *Clock) TimeLeft(f force.Force, now GameInstant) time.Duration {
	remaining := c.remaining[f]
	if c.activeForce != nil && *c.activeForce == f {
		elapsed := now.DurationSince(c.turnStartedAt)
		remaining -= elapsed
		if remaining < 0 {
			remaining = 0
		}
	}
	return remaining
}

// OutOfTime reports whether f has flagged as of `now`: a ticking side is
// out of time once its elapsed turn time has consumed the remainder; a
// stopped side only if it was already at zero when its clock stopped. The
// caller (internal/bughouse) decides what a flag-fall means for the whole
// game, since the other board may have terminated first.
func (c *Clock) OutOfTime(f force.Force, now GameInstant) bool {
	return c.TimeLeft(f, now) <= 0
}

// NewTurn stops the previous side's countdown (applying its increment),
// credits the incoming side's on-opponent-move bonus, and starts the
// incoming side's countdown, all evaluated as of `now`. The game-opening
// call (no side active yet) credits nothing.
func (c *Clock) NewTurn(newForce force.Force, now GameInstant) {
	if c.activeForce != nil {
		prev := *c.activeForce
		c.remaining[prev] = c.TimeLeft(prev, now) + c.control.Increment
		c.remaining[newForce] += c.control.BonusOnOpponentMove
	}
	c.activeForce = &newForce
	c.turnStartedAt = now
}

// Stop freezes both countdowns as of `now` (game over).
func (c *Clock) Stop(now GameInstant) {
	if c.activeForce != nil {
		prev := *c.activeForce
		c.remaining[prev] = c.TimeLeft(prev, now)
	}
	c.activeForce = nil
}

// Snapshot is the wire-serializable state of a Clock at a moment in time:
// enough for a reconnecting client to reconstruct both countdowns without
// replaying every turn.
type Snapshot struct {
	WhiteRemaining time.Duration
	BlackRemaining time.Duration
	ActiveForce    *force.Force
	TurnStartedAt  GameInstant
}

func (c *Clock) Snapshot() Snapshot {
	return Snapshot{
		WhiteRemaining: c.remaining[force.White],
		BlackRemaining: c.remaining[force.Black],
		ActiveForce:    c.activeForce,
		TurnStartedAt:  c.turnStartedAt,
	}
}

func FromSnapshot(control TimeControl, s Snapshot) *Clock {
	return &Clock{
		control: control,
		remaining: map[force.Force]time.Duration{
			force.White: s.WhiteRemaining,
			force.Black: s.BlackRemaining,
		},
		activeForce:   s.ActiveForce,
		turnStartedAt: s.TurnStartedAt,
	}
}
