package session

import (
	"time"

	"github.com/amatveiakin/bughouse-chess/internal/match"
)

// DefaultReplayWindow bounds how long a ServerEvent stays in a session's
// outgoing buffer before hot-reconnect must fall back to a full
// StateSnapshot.
const DefaultReplayWindow = 5 * time.Minute

// DefaultPongTimeout is how long a session may go without a Pong before
// it is marked irresponsive.
const DefaultPongTimeout = 20 * time.Second

// buffered pairs one sent ServerEvent with the time it was sent, so the
// replay window can be enforced by age rather than by count.
type buffered struct {
	event  ServerEvent
	sentAt time.Time
}

// Session is one live WebSocket bound to a ParticipantID, spanning
// possibly several underlying connections across reconnects. The zero value is not usable; construct with New.
type Session struct {
	ParticipantID match.ParticipantID
	MatchID       *match.MatchID

	replayWindow time.Duration
	pongTimeout  time.Duration

	outgoing      []buffered
	nextServerSeq uint32

	lastClientSeqAccepted *uint32 // nil until the first ClientEvent arrives
	lastPong              time.Time

	// closed marks a session evicted by JoinedInAnotherClient;
	// IsResponsive always reports false for it. Enqueue does not consult it.
	closed bool
}

// New creates a session for participantID, not yet subscribed to any
// match.
func New(participantID match.ParticipantID, now time.Time) *Session {
	return &Session{
		ParticipantID: participantID,
		replayWindow:  DefaultReplayWindow,
		pongTimeout:   DefaultPongTimeout,
		lastPong:      now,
	}
}

// WithWindows overrides the replay and pong-timeout durations (used by
// internal/config-driven server startup); a non-positive value leaves that
// duration at its default.
func (s *Session) WithWindows(replay, pong time.Duration) *Session {
	if replay > 0 {
		s.replayWindow = replay
	}
	if pong > 0 {
		s.pongTimeout = pong
	}
	return s
}

// AcceptClientSeq reports whether seq is the next expected client
// sequence number (strictly greater than the last accepted one),
// recording it if so. Duplicates and stale retries return
// false and must be silently dropped by the caller, not reprocessed.
func (s *Session) AcceptClientSeq(seq uint32) bool {
	if s.lastClientSeqAccepted != nil && seq <= *s.lastClientSeqAccepted {
		return false
	}
	s.lastClientSeqAccepted = &seq
	return true
}

// Enqueue assigns the next ServerSeq to evt, appends it to the outgoing
// replay buffer, and returns the stamped event ready to send on the live
// socket (if any). The buffer is trimmed to the replay window on every
// call so memory is bounded without a separate sweep goroutine.
func (s *Session) Enqueue(evt ServerEvent, now time.Time) ServerEvent {
	evt.ServerSeq = s.nextServerSeq
	s.nextServerSeq++
	s.outgoing = append(s.outgoing, buffered{event: evt, sentAt: now})
	s.trimBuffer(now)
	return evt
}

func (s *Session) trimBuffer(now time.Time) {
	cutoff := now.Add(-s.replayWindow)
	i := 0
	for i < len(s.outgoing) && s.outgoing[i].sentAt.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.outgoing = append([]buffered(nil), s.outgoing[i:]...)
	}
}

// Replay returns every buffered ServerEvent with ServerSeq strictly
// greater than lastServerSeqReceived, in order, for a HotReconnect. ok is
// false when the requested tail has already fallen out of the window and
// the caller must send a full StateSnapshot instead.
func (s *Session) Replay(lastServerSeqReceived uint32, now time.Time) (events []ServerEvent, ok bool) {
	s.trimBuffer(now)
	if len(s.outgoing) == 0 && s.nextServerSeq > 0 {
		// Everything ever sent has aged out; nothing proves the client's
		// claimed position is still contiguous with the stream.
		return nil, false
	}
	if len(s.outgoing) > 0 && s.outgoing[0].event.ServerSeq > lastServerSeqReceived+1 {
		return nil, false
	}
	for _, b := range s.outgoing {
		if b.event.ServerSeq > lastServerSeqReceived {
			events = append(events, b.event)
		}
	}
	return events, true
}

// RecordPong updates the last-seen Pong time.
func (s *Session) RecordPong(now time.Time) {
	s.lastPong = now
}

// IsResponsive reports whether this session has replied to Pong within
// its timeout window.
func (s *Session) IsResponsive(now time.Time) bool {
	if s.closed {
		return false
	}
	return now.Sub(s.lastPong) <= s.pongTimeout
}

// Evict marks the session closed, as happens to the older of two sockets
// claiming the same ParticipantID.
// The caller is responsible for actually closing the underlying socket
// and sending the KickedFromMatch event first.
func (s *Session) Evict() {
	s.closed = true
}

// Closed reports whether Evict has been called.
func (s *Session) Closed() bool { return s.closed }
