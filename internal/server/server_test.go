package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amatveiakin/bughouse-chess/internal/config"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/match"
	"github.com/amatveiakin/bughouse-chess/internal/persistence"
	"github.com/amatveiakin/bughouse-chess/internal/session"
)

func testConfig() *config.Config {
	return &config.Config{
		Session: config.SessionConfig{
			ReplayWindow: 5 * time.Minute,
			PongTimeout:  20 * time.Second,
		},
	}
}

func testServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig(), persistence.NewMemory(), nil)
	require.NoError(t, err)
	return s
}

func defaultRulesJSON(t *testing.T) []byte {
	t.Helper()
	raw, err := json.Marshal(rulesView{
		StartingMillis:  5 * 60 * 1000,
		MinPawnDropRank: 2,
		MaxPawnDropRank: 7,
		DropAggression:  3, // MateAllowed
	})
	require.NoError(t, err)
	return raw
}

// startedMatch drives four participants through create/join/ready into an
// active game and returns the server, the match, and the participants in
// a stable order.
func startedMatch(t *testing.T) (*Server, *match.Match, []match.ParticipantID) {
	t.Helper()
	s := testServer(t)
	now := time.Now()

	host := match.NewParticipantID()
	out := s.handleEvent(host, session.ClientEvent{
		ClientSeq: 1,
		Kind:      session.EvNewMatch,
		NewMatch:  &session.NewMatchPayload{RulesJSON: defaultRulesJSON(t)},
	}, now)
	require.Len(t, out, 1)
	require.Equal(t, session.EvMatchJoined, out[0].evt.Kind)

	var m *match.Match
	for _, mm := range s.matches {
		m = mm
	}
	require.NotNil(t, m)

	pids := []match.ParticipantID{host}
	for i := 0; i < 3; i++ {
		pid := match.NewParticipantID()
		out = s.handleEvent(pid, session.ClientEvent{
			ClientSeq: 1,
			Kind:      session.EvJoin,
			Join:      &session.JoinPayload{MatchCode: string(m.Code), Name: "p"},
		}, now)
		require.NotEmpty(t, out)
		pids = append(pids, pid)
	}

	for _, pid := range pids {
		s.handleEvent(pid, session.ClientEvent{
			ClientSeq:  2,
			Kind:       session.EvSetFaction,
			SetFaction: &session.SetFactionPayload{Random: true},
		}, now)
	}
	for _, pid := range pids {
		s.handleEvent(pid, session.ClientEvent{ClientSeq: 3, Kind: session.EvToggleReady}, now)
	}
	require.Equal(t, match.PhaseCountdown, m.Phase)

	s.tickAll(now.Add(10 * time.Second))
	require.Equal(t, match.PhaseInGame, m.Phase)
	require.NotNil(t, m.CurrentGame)
	return s, m, pids
}

func seatOf(t *testing.T, m *match.Match, boardID force.BoardID, f force.Force) match.ParticipantID {
	t.Helper()
	p, ok := m.SeatedAt(boardID, f)
	require.True(t, ok)
	return p.ID
}

func makeTurnEvent(seq uint32, boardID force.BoardID, text string) session.ClientEvent {
	raw, _ := json.Marshal(text)
	return session.ClientEvent{
		ClientSeq: seq,
		Kind:      session.EvMakeTurn,
		MakeTurn:  &session.MakeTurnPayload{Board: boardID, Turn: raw},
	}
}

func TestMatchLifecycleReachesInGame(t *testing.T) {
	_, m, pids := startedMatch(t)
	assert.Len(t, pids, 4)
	seats := 0
	for _, p := range m.Participants {
		if p.Seat != nil {
			seats++
		}
	}
	assert.Equal(t, 4, seats)
}

func TestTurnBroadcastsToAllSubscribers(t *testing.T) {
	s, m, pids := startedMatch(t)
	now := time.Now()
	white := seatOf(t, m, force.BoardA, force.White)

	out := s.handleEvent(white, makeTurnEvent(4, force.BoardA, "e4"), now)
	turnMade := map[match.ParticipantID]bool{}
	for _, d := range out {
		if d.evt.Kind == session.EvTurnMade {
			turnMade[d.to] = true
			require.NotNil(t, d.evt.TurnMade)
			assert.Equal(t, force.BoardA, d.evt.TurnMade.Board)
		}
	}
	assert.Len(t, turnMade, len(pids), "every subscriber sees the turn")
	assert.Equal(t, 1, m.CurrentGame.Log.Len())
}

func TestIllegalTurnRejectedSessionContinues(t *testing.T) {
	s, m, _ := startedMatch(t)
	now := time.Now()
	white := seatOf(t, m, force.BoardA, force.White)

	out := s.handleEvent(white, makeTurnEvent(4, force.BoardA, "e5"), now)
	require.Len(t, out, 1)
	require.Equal(t, session.EvError, out[0].evt.Kind)
	assert.Equal(t, string(KindRuleViolation), out[0].evt.Error.Kind)
	assert.Equal(t, 0, m.CurrentGame.Log.Len())
}

// Preturn race: the opponent's move lands, then
// the banked preturn applies, both broadcast in order atomically.
func TestPreturnAppliesAfterOpponentMove(t *testing.T) {
	s, m, _ := startedMatch(t)
	now := time.Now()
	white := seatOf(t, m, force.BoardA, force.White)
	black := seatOf(t, m, force.BoardA, force.Black)

	// Black banks a preturn while it is white's move.
	out := s.handleEvent(black, makeTurnEvent(4, force.BoardA, "e7e5"), now)
	require.Len(t, out, 1)
	require.Equal(t, session.EvSessionUpdated, out[0].evt.Kind)
	require.Equal(t, 0, m.CurrentGame.Log.Len())

	// White's move triggers the chain: e4 applies, then the preturn e5.
	out = s.handleEvent(white, makeTurnEvent(4, force.BoardA, "e4"), now)
	var made []string
	for _, d := range out {
		if d.evt.Kind == session.EvTurnMade && d.to == white {
			var text string
			require.NoError(t, json.Unmarshal(d.evt.TurnMade.Turn, &text))
			made = append(made, text)
		}
	}
	require.Equal(t, []string{"e4", "e5"}, made)
	assert.Equal(t, 2, m.CurrentGame.Log.Len())
}

func TestPreturnCancel(t *testing.T) {
	s, m, _ := startedMatch(t)
	now := time.Now()
	white := seatOf(t, m, force.BoardA, force.White)
	black := seatOf(t, m, force.BoardA, force.Black)

	s.handleEvent(black, makeTurnEvent(4, force.BoardA, "e7e5"), now)
	s.handleEvent(black, session.ClientEvent{
		ClientSeq:     5,
		Kind:          session.EvCancelPreturn,
		CancelPreturn: &session.CancelPreturnPayload{Board: force.BoardA},
	}, now)

	s.handleEvent(white, makeTurnEvent(4, force.BoardA, "e4"), now)
	assert.Equal(t, 1, m.CurrentGame.Log.Len(), "cancelled preturn must not fire")
}

func TestResignEndsGameForAllBoards(t *testing.T) {
	s, m, pids := startedMatch(t)
	now := time.Now()
	white := seatOf(t, m, force.BoardA, force.White)

	out := s.handleEvent(white, session.ClientEvent{ClientSeq: 4, Kind: session.EvResign}, now)
	over := 0
	for _, d := range out {
		if d.evt.Kind == session.EvGameOver {
			over++
		}
	}
	assert.Equal(t, len(pids), over)
	assert.Equal(t, match.PhasePostGame, m.Phase)
}

func TestHotReconnectReplaysBufferedEvents(t *testing.T) {
	s, m, _ := startedMatch(t)
	now := time.Now()
	white := seatOf(t, m, force.BoardA, force.White)
	black := seatOf(t, m, force.BoardA, force.Black)

	s.handleEvent(white, makeTurnEvent(4, force.BoardA, "e4"), now)
	s.handleEvent(black, makeTurnEvent(4, force.BoardA, "e5"), now)

	sess := s.sessions[black]
	require.NotNil(t, sess)

	// Black claims to have seen nothing past seq 1; the gap replays in
	// order with the original numbering.
	out := s.handleEvent(black, session.ClientEvent{
		ClientSeq:    5,
		Kind:         session.EvHotReconnect,
		HotReconnect: &session.HotReconnectPayload{LastServerSeq: 1},
	}, now)
	require.NotEmpty(t, out)
	var prev uint32 = 1
	for _, d := range out {
		assert.Equal(t, black, d.to)
		assert.Greater(t, d.evt.ServerSeq, prev)
		prev = d.evt.ServerSeq
	}
}

func TestChatFansOut(t *testing.T) {
	s, _, pids := startedMatch(t)
	now := time.Now()
	out := s.handleEvent(pids[0], session.ClientEvent{
		ClientSeq: 4,
		Kind:      session.EvSendChat,
		SendChat:  &session.SendChatPayload{Text: "gg"},
	}, now)
	require.Len(t, out, len(pids))
	for _, d := range out {
		require.Equal(t, session.EvChatMessage, d.evt.Kind)
		assert.Equal(t, "gg", d.evt.ChatMessage.Text)
	}
}

func TestJoinUnknownMatchIsIgnorable(t *testing.T) {
	s := testServer(t)
	pid := match.NewParticipantID()
	out := s.handleEvent(pid, session.ClientEvent{
		ClientSeq: 1,
		Kind:      session.EvJoin,
		Join:      &session.JoinPayload{MatchCode: "ZZZZZZ", Name: "x"},
	}, time.Now())
	require.Len(t, out, 1)
	require.Equal(t, session.EvError, out[0].evt.Kind)
	assert.Equal(t, string(KindIgnorable), out[0].evt.Error.Kind)
}

func TestRequestExportProducesBPGN(t *testing.T) {
	s, m, _ := startedMatch(t)
	now := time.Now()
	white := seatOf(t, m, force.BoardA, force.White)
	s.handleEvent(white, makeTurnEvent(4, force.BoardA, "e4"), now)

	out := s.handleEvent(white, session.ClientEvent{ClientSeq: 5, Kind: session.EvRequestExport}, now)
	require.Len(t, out, 1)
	require.Equal(t, session.EvExportReady, out[0].evt.Kind)
	content := out[0].evt.ExportReady.Content
	assert.Contains(t, content, "[Variant \"Bughouse\"]")
	assert.Contains(t, content, "e4")
}

func TestServerSeqStrictlyIncreasesPerSession(t *testing.T) {
	s, _, pids := startedMatch(t)
	now := time.Now()
	pid := pids[0]
	var seqs []uint32
	out := s.handleEvent(pid, session.ClientEvent{ClientSeq: 4, Kind: session.EvPing, Ping: &session.PingPayload{Seq: 1}}, now)
	seqs = append(seqs, out[0].evt.ServerSeq)
	out = s.handleEvent(pid, session.ClientEvent{ClientSeq: 5, Kind: session.EvPing, Ping: &session.PingPayload{Seq: 2}}, now)
	seqs = append(seqs, out[0].evt.ServerSeq)
	assert.Greater(t, seqs[1], seqs[0])
}
