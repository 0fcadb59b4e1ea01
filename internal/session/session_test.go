package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amatveiakin/bughouse-chess/internal/match"
)

func TestAcceptClientSeqOrdersStrictlyIncreasing(t *testing.T) {
	s := New(match.ParticipantID("p1"), time.Now())
	assert.True(t, s.AcceptClientSeq(1))
	assert.True(t, s.AcceptClientSeq(2))
	assert.False(t, s.AcceptClientSeq(2), "duplicate must be rejected")
	assert.False(t, s.AcceptClientSeq(1), "stale retry must be rejected")
	assert.True(t, s.AcceptClientSeq(5), "gaps are fine, only order matters")
}

func TestEnqueueAssignsMonotonicServerSeq(t *testing.T) {
	s := New(match.ParticipantID("p1"), time.Now())
	now := time.Now()
	e1 := s.Enqueue(ServerEvent{Kind: EvPong}, now)
	e2 := s.Enqueue(ServerEvent{Kind: EvPong}, now)
	assert.Equal(t, uint32(0), e1.ServerSeq)
	assert.Equal(t, uint32(1), e2.ServerSeq)
}

func TestReplayReturnsEventsAfterGivenSeq(t *testing.T) {
	s := New(match.ParticipantID("p1"), time.Now())
	now := time.Now()
	for i := 0; i < 5; i++ {
		s.Enqueue(ServerEvent{Kind: EvPong}, now)
	}
	events, ok := s.Replay(2, now)
	require.True(t, ok)
	require.Len(t, events, 2)
	assert.Equal(t, uint32(3), events[0].ServerSeq)
	assert.Equal(t, uint32(4), events[1].ServerSeq)
}

func TestReplayFallsBackOnceWindowExpires(t *testing.T) {
	s := New(match.ParticipantID("p1"), time.Now())
	s.WithWindows(10*time.Millisecond, DefaultPongTimeout)
	base := time.Now()
	s.Enqueue(ServerEvent{Kind: EvPong}, base)
	_, ok := s.Replay(0, base.Add(time.Hour))
	assert.False(t, ok, "replay of a fully-expired buffer must force a snapshot")
}

func TestIsResponsiveRespectsPongTimeout(t *testing.T) {
	base := time.Now()
	s := New(match.ParticipantID("p1"), base)
	assert.True(t, s.IsResponsive(base.Add(5*time.Second)))
	assert.False(t, s.IsResponsive(base.Add(30*time.Second)))
	s.RecordPong(base.Add(25 * time.Second))
	assert.True(t, s.IsResponsive(base.Add(30*time.Second)))
}

func TestEvictMakesSessionUnresponsive(t *testing.T) {
	s := New(match.ParticipantID("p1"), time.Now())
	s.Evict()
	assert.True(t, s.Closed())
	assert.False(t, s.IsResponsive(time.Now()))
}
