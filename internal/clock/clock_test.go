package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amatveiakin/bughouse-chess/internal/force"
)

func TestTimeLeftDecreasesWhileActive(t *testing.T) {
	c := New(TimeControl{Starting: 5 * time.Minute})
	c.NewTurn(force.White, GameStart())
	left := c.TimeLeft(force.White, FromDuration(30*time.Second))
	require.Equal(t, 4*time.Minute+30*time.Second, left)
}

func TestNewTurnAppliesIncrementToPreviousSide(t *testing.T) {
	c := New(TimeControl{Starting: time.Minute, Increment: 2 * time.Second})
	c.NewTurn(force.White, GameStart())
	c.NewTurn(force.Black, FromDuration(10*time.Second))
	white := c.TimeLeft(force.White, FromDuration(10*time.Second))
	require.Equal(t, 52*time.Second, white)
}

func TestOutOfTimeFlagsTickingSide(t *testing.T) {
	c := New(TimeControl{Starting: time.Second})
	c.NewTurn(force.White, GameStart())
	require.False(t, c.OutOfTime(force.White, FromDuration(500*time.Millisecond)))
	require.False(t, c.OutOfTime(force.Black, FromDuration(5*time.Second)), "a stopped clock never flags")
	require.True(t, c.OutOfTime(force.White, FromDuration(5*time.Second)))
	c.Stop(FromDuration(5 * time.Second))
	require.True(t, c.OutOfTime(force.White, FromDuration(5*time.Second)), "flag state survives the stop")
}

func TestBonusOnOpponentMoveCreditsIncomingSide(t *testing.T) {
	c := New(TimeControl{Starting: time.Minute, BonusOnOpponentMove: 3 * time.Second})
	c.NewTurn(force.White, GameStart())
	require.Equal(t, time.Minute, c.TimeLeft(force.Black, GameStart()), "no bonus before anyone has moved")

	c.NewTurn(force.Black, FromDuration(5*time.Second))
	require.Equal(t, time.Minute+3*time.Second, c.TimeLeft(force.Black, FromDuration(5*time.Second)))
}

func TestTimeLeftIdempotentAtSameInstant(t *testing.T) {
	c := New(TimeControl{Starting: time.Minute})
	c.NewTurn(force.White, GameStart())
	now := FromDuration(10 * time.Second)
	first := c.TimeLeft(force.White, now)
	second := c.TimeLeft(force.White, now)
	require.Equal(t, first, second)
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := New(TimeControl{Starting: 3 * time.Minute})
	c.NewTurn(force.White, GameStart())
	snap := c.Snapshot()
	restored := FromSnapshot(TimeControl{Starting: 3 * time.Minute}, snap)
	require.Equal(t, c.TimeLeft(force.White, FromDuration(time.Second)), restored.TimeLeft(force.White, FromDuration(time.Second)))
}
