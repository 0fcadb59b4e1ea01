package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/amatveiakin/bughouse-chess/internal/board"
	"github.com/amatveiakin/bughouse-chess/internal/bpgn"
	"github.com/amatveiakin/bughouse-chess/internal/bughouse"
	"github.com/amatveiakin/bughouse-chess/internal/coord"
	"github.com/amatveiakin/bughouse-chess/internal/force"
	"github.com/amatveiakin/bughouse-chess/internal/match"
	"github.com/amatveiakin/bughouse-chess/internal/persistence"
	"github.com/amatveiakin/bughouse-chess/internal/piece"
	"github.com/amatveiakin/bughouse-chess/internal/protocol"
	"github.com/amatveiakin/bughouse-chess/internal/rules"
	"github.com/amatveiakin/bughouse-chess/internal/session"
	"github.com/amatveiakin/bughouse-chess/internal/turn"
)

// delivery is one stamped ServerEvent addressed to one participant's
// session; the socket layer writes deliveries out after the state
// transition that produced them has fully committed.
type delivery struct {
	to  match.ParticipantID
	evt session.ServerEvent
}

// handleEvent applies one already-sequence-checked ClientEvent and
// returns every induced delivery. Must be called with s.mu held.
func (s *Server) handleEvent(pid match.ParticipantID, evt session.ClientEvent, now time.Time) []delivery {
	switch evt.Kind {
	case session.EvPing:
		return s.onPing(pid, evt, now)
	case session.EvJoin:
		return s.onJoin(pid, evt, now)
	case session.EvNewMatch:
		return s.onNewMatch(pid, evt, now)
	case session.EvLeave:
		return s.onLeave(pid, now)
	case session.EvSetFaction, session.EvChangeFactionInGame:
		return s.onSetFaction(pid, evt, now)
	case session.EvToggleReady:
		return s.onToggleReady(pid, now)
	case session.EvMakeTurn:
		return s.onMakeTurn(pid, evt, now)
	case session.EvCancelPreturn:
		return s.onCancelPreturn(pid, evt, now)
	case session.EvResign:
		return s.onResign(pid, now)
	case session.EvToggleSharedWayback:
		return s.onToggleSharedWayback(pid, now)
	case session.EvWaybackTo:
		return s.onWaybackTo(pid, evt, now)
	case session.EvSendChat:
		return s.onSendChat(pid, evt, now)
	case session.EvHotReconnect:
		return s.onHotReconnect(pid, evt, now)
	case session.EvRequestExport:
		return s.onRequestExport(pid, now)
	case session.EvReportError:
		return s.onReportError(pid, evt)
	default:
		return s.errorTo(pid, KindInvalidCommand, "unknown event kind", now)
	}
}

// stamp enqueues evt on pid's session (assigning its server_seq) and
// wraps it as a delivery.
func (s *Server) stamp(pid match.ParticipantID, evt session.ServerEvent, now time.Time) delivery {
	sess, ok := s.sessions[pid]
	if !ok {
		sess = session.New(pid, now).WithWindows(s.cfg.Session.ReplayWindow, s.cfg.Session.PongTimeout)
		s.sessions[pid] = sess
	}
	return delivery{to: pid, evt: sess.Enqueue(evt, now)}
}

// toMatch stamps one logical event for every participant subscribed to
// matchID; each session receives its own server_seq-numbered copy.
func (s *Server) toMatch(matchID match.MatchID, mk func() session.ServerEvent, now time.Time) []delivery {
	var out []delivery
	for pid, mid := range s.matchOf {
		if mid != matchID {
			continue
		}
		out = append(out, s.stamp(pid, mk(), now))
	}
	return out
}

func (s *Server) errorTo(pid match.ParticipantID, kind ErrorKind, text string, now time.Time) []delivery {
	return []delivery{s.stamp(pid, session.ServerEvent{
		Kind:  session.EvError,
		Error: &session.ErrorPayload{Kind: string(kind), Text: text},
	}, now)}
}

func (s *Server) matchFor(pid match.ParticipantID) (*match.Match, match.MatchID, bool) {
	mid, ok := s.matchOf[pid]
	if !ok {
		return nil, "", false
	}
	m, ok := s.matches[mid]
	return m, mid, ok
}

func (s *Server) onPing(pid match.ParticipantID, evt session.ClientEvent, now time.Time) []delivery {
	if sess, ok := s.sessions[pid]; ok {
		sess.RecordPong(now)
	}
	var seq uint32
	if evt.Ping != nil {
		seq = evt.Ping.Seq
	}
	return []delivery{s.stamp(pid, session.ServerEvent{
		Kind: session.EvPong,
		Pong: &session.PongPayload{Seq: seq},
	}, now)}
}

func (s *Server) onJoin(pid match.ParticipantID, evt session.ClientEvent, now time.Time) []delivery {
	if evt.Join == nil {
		return s.errorTo(pid, KindInvalidCommand, "join payload missing", now)
	}
	code := match.Code(evt.Join.MatchCode)
	mid, ok := s.codes[code]
	if !ok && s.index != nil {
		if id, found, err := s.index.ResolveCode(context.Background(), string(code)); err == nil && found {
			mid, ok = match.MatchID(id), true
		}
	}
	m, exists := s.matches[mid]
	if !ok || !exists {
		return s.errorTo(pid, KindIgnorable, "no such match: "+string(code), now)
	}
	m.JoinAs(pid, evt.Join.Name, true)
	s.matchOf[pid] = mid

	out := []delivery{s.stamp(pid, session.ServerEvent{
		Kind:        session.EvMatchJoined,
		MatchJoined: &session.MatchSnapshotPayload{Snapshot: buildSnapshot(m, now)},
	}, now)}
	out = append(out, s.matchUpdated(mid, m, now, pid)...)
	return out
}

func (s *Server) onNewMatch(pid match.ParticipantID, evt session.ClientEvent, now time.Time) []delivery {
	if evt.NewMatch == nil {
		return s.errorTo(pid, KindInvalidCommand, "new_match payload missing", now)
	}
	r, err := parseRules(evt.NewMatch.RulesJSON)
	if err != nil {
		return s.errorTo(pid, KindInvalidCommand, "bad rules: "+err.Error(), now)
	}

	var code match.Code
	for {
		code, err = match.GenerateCode()
		if err != nil {
			return s.errorTo(pid, KindFatal, "code generation failed", now)
		}
		if _, taken := s.codes[code]; !taken {
			break
		}
	}
	m, err := match.New(r, code, now.UnixNano())
	if err != nil {
		return s.errorTo(pid, KindInvalidCommand, err.Error(), now)
	}
	s.matches[m.ID] = m
	s.codes[code] = m.ID
	s.preturns[m.ID] = protocol.NewPreturnStore()
	if s.index != nil {
		if err := s.index.PutCode(context.Background(), string(code), string(m.ID)); err != nil {
			log.Warn().Err(err).Str("code", string(code)).Msg("failed to index match code")
		}
	}
	log.Info().Str("code", string(code)).Str("matchID", string(m.ID)).Msg("match created")

	m.JoinAs(pid, "", true)
	s.matchOf[pid] = m.ID
	return []delivery{s.stamp(pid, session.ServerEvent{
		Kind:        session.EvMatchJoined,
		MatchJoined: &session.MatchSnapshotPayload{Snapshot: buildSnapshot(m, now)},
	}, now)}
}

func (s *Server) onLeave(pid match.ParticipantID, now time.Time) []delivery {
	m, mid, ok := s.matchFor(pid)
	if !ok {
		return nil
	}
	if ps, found := s.preturns[mid]; found {
		ps.CancelAll(string(pid))
	}
	m.Leave(pid)
	delete(s.matchOf, pid)
	return s.matchUpdated(mid, m, now, "")
}

func (s *Server) onSetFaction(pid match.ParticipantID, evt session.ClientEvent, now time.Time) []delivery {
	m, mid, ok := s.matchFor(pid)
	if !ok {
		return s.errorTo(pid, KindIgnorable, "not in a match", now)
	}
	p := evt.SetFaction
	if p == nil {
		p = evt.ChangeFactionInGame
	}
	if p == nil {
		return s.errorTo(pid, KindInvalidCommand, "faction payload missing", now)
	}
	f := match.Random()
	switch {
	case p.Observer:
		f = match.Observer()
	case p.Team != nil:
		f = match.FixedTeam(*p.Team)
	}
	if err := m.SetFaction(pid, f); err != nil {
		return s.errorTo(pid, KindIgnorable, err.Error(), now)
	}
	return s.matchUpdated(mid, m, now, "")
}

func (s *Server) onToggleReady(pid match.ParticipantID, now time.Time) []delivery {
	m, mid, ok := s.matchFor(pid)
	if !ok {
		return s.errorTo(pid, KindIgnorable, "not in a match", now)
	}
	if err := m.ToggleReady(pid); err != nil {
		return s.errorTo(pid, KindIgnorable, err.Error(), now)
	}
	m.StartReadyCountdown(now)
	out := s.matchUpdated(mid, m, now, "")
	out = append(out, s.lobbyCountdown(mid, m, now)...)
	return out
}

// lobbyCountdown broadcasts the current countdown state: seconds left
// while counting, null after a drop back to Lobby.
func (s *Server) lobbyCountdown(mid match.MatchID, m *match.Match, now time.Time) []delivery {
	var left *int
	if m.Phase == match.PhaseCountdown {
		v := int(m.CountdownDeadline.Sub(now).Seconds())
		if v < 0 {
			v = 0
		}
		left = &v
	}
	return s.toMatch(mid, func() session.ServerEvent {
		return session.ServerEvent{
			Kind:           session.EvLobbyCountdown,
			LobbyCountdown: &session.LobbyCountdownPayload{SecondsLeft: left},
		}
	}, now)
}

func (s *Server) matchUpdated(mid match.MatchID, m *match.Match, now time.Time, skip match.ParticipantID) []delivery {
	var out []delivery
	for pid, id := range s.matchOf {
		if id != mid || pid == skip {
			continue
		}
		out = append(out, s.stamp(pid, session.ServerEvent{
			Kind:         session.EvMatchUpdated,
			MatchUpdated: &session.MatchDeltaPayload{Delta: buildSnapshot(m, now)},
		}, now))
	}
	return out
}

func (s *Server) onMakeTurn(pid match.ParticipantID, evt session.ClientEvent, now time.Time) []delivery {
	m, mid, ok := s.matchFor(pid)
	if !ok {
		return s.errorTo(pid, KindIgnorable, "not in a match", now)
	}
	if evt.MakeTurn == nil {
		return s.errorTo(pid, KindInvalidCommand, "make_turn payload missing", now)
	}
	var text string
	if err := json.Unmarshal(evt.MakeTurn.Turn, &text); err != nil {
		return s.errorTo(pid, KindInvalidCommand, "turn payload must be algebraic text", now)
	}
	boardID := evt.MakeTurn.Board
	if m.Phase != match.PhaseInGame || m.CurrentGame == nil {
		return s.errorTo(pid, KindRuleViolation, "no game in progress", now)
	}
	p, exists := m.Participants[pid]
	if !exists || p.Seat == nil || p.Seat.Board != boardID {
		return s.errorTo(pid, KindRuleViolation, "not seated on that board", now)
	}

	b := m.CurrentGame.Boards[boardID]
	if b.ActiveSide != p.Seat.Force {
		// Not this player's move yet: bank the input as a preturn
		// (validated only for ownership and shape, never legality).
		t, err := parsePreturnShape(text, b, p.Seat.Force)
		if err != nil {
			return s.errorTo(pid, KindRuleViolation, err.Error(), now)
		}
		if err := s.preturns[mid].Queue(string(pid), boardID, b, p.Seat.Force, t, evt.ClientSeq); err != nil {
			return s.errorTo(pid, KindRuleViolation, err.Error(), now)
		}
		return []delivery{s.stamp(pid, session.ServerEvent{
			Kind:           session.EvSessionUpdated,
			SessionUpdated: &session.SessionUpdatedPayload{AckClientSeq: evt.ClientSeq},
		}, now)}
	}

	t, err := protocol.Canonicalize(protocol.Algebraic(text), b, p.Seat.Force)
	if err != nil {
		return s.errorTo(pid, KindRuleViolation, err.Error(), now)
	}
	return s.applyTurnChain(mid, m, pid, boardID, t, now)
}

// applyTurnChain applies one validated turn, broadcasts it, then attempts
// any preturn the newly-to-move player had banked — repeating while
// preturns keep firing, so a preturn race resolves in a single atomic
// dispatch.
func (s *Server) applyTurnChain(mid match.MatchID, m *match.Match, pid match.ParticipantID, boardID force.BoardID, t turn.Turn, now time.Time) []delivery {
	var out []delivery
	applyPid, applyTurn := pid, t
	for depth := 0; depth < 8; depth++ {
		if err := m.ApplyTurn(applyPid, boardID, applyTurn, now); err != nil {
			if depth == 0 {
				return s.errorTo(applyPid, KindRuleViolation, err.Error(), now)
			}
			// A rejected preturn is silently dropped; its owner is told.
			out = append(out, s.errorTo(applyPid, KindRuleViolation, "preturn dropped: "+err.Error(), now)...)
			break
		}
		out = append(out, s.broadcastTurnMade(mid, m, boardID, now)...)

		if m.CurrentGame.Status.Kind != bughouse.Active {
			m.AdvanceAfterGameOver(now)
			out = append(out, s.broadcastGameOver(mid, m, now)...)
			s.persistFinishedGame(mid, m, now)
			return out
		}

		next, seated := m.SeatedAt(boardID, m.CurrentGame.Boards[boardID].ActiveSide)
		if !seated {
			break
		}
		pt, queued := s.preturns[mid].Take(string(next.ID), boardID)
		if !queued {
			break
		}
		applyPid, applyTurn = next.ID, pt.Turn
	}
	return out
}

func (s *Server) broadcastTurnMade(mid match.MatchID, m *match.Match, boardID force.BoardID, now time.Time) []delivery {
	g := m.CurrentGame
	entries := g.Log.Entries()
	last := entries[len(entries)-1]
	instant := m.GameInstant(now)
	texts := logTexts(g)
	text := texts[len(texts)-1].Text
	raw, _ := json.Marshal(text)
	clocks := map[force.Force]session.ClockReading{
		force.White: clockReading(g.Clocks[boardID], force.White, instant),
		force.Black: clockReading(g.Clocks[boardID], force.Black, instant),
	}
	return s.toMatch(mid, func() session.ServerEvent {
		return session.ServerEvent{
			Kind: session.EvTurnMade,
			TurnMade: &session.TurnMadePayload{
				Board:     boardID,
				Turn:      raw,
				TurnIndex: last.Index.GlobalIndex,
				Clocks:    clocks,
			},
		}
	}, now)
}

func (s *Server) broadcastGameOver(mid match.MatchID, m *match.Match, now time.Time) []delivery {
	status := m.CurrentGame.Status
	return s.toMatch(mid, func() session.ServerEvent {
		return session.ServerEvent{
			Kind: session.EvGameOver,
			GameOver: &session.GameOverPayload{
				Result: status.String(),
				Reason: status.Reason.String(),
			},
		}
	}, now)
}

func (s *Server) broadcastGameStarted(mid match.MatchID, m *match.Match, now time.Time) []delivery {
	return s.toMatch(mid, func() session.ServerEvent {
		return session.ServerEvent{
			Kind:        session.EvGameStarted,
			GameStarted: &session.MatchSnapshotPayload{Snapshot: buildSnapshot(m, now)},
		}
	}, now)
}

func (s *Server) onCancelPreturn(pid match.ParticipantID, evt session.ClientEvent, now time.Time) []delivery {
	_, mid, ok := s.matchFor(pid)
	if !ok || evt.CancelPreturn == nil {
		return nil
	}
	if ps, found := s.preturns[mid]; found {
		ps.Cancel(string(pid), evt.CancelPreturn.Board)
	}
	return []delivery{s.stamp(pid, session.ServerEvent{
		Kind:           session.EvSessionUpdated,
		SessionUpdated: &session.SessionUpdatedPayload{AckClientSeq: evt.ClientSeq},
	}, now)}
}

func (s *Server) onResign(pid match.ParticipantID, now time.Time) []delivery {
	m, mid, ok := s.matchFor(pid)
	if !ok {
		return s.errorTo(pid, KindIgnorable, "not in a match", now)
	}
	if err := m.Resign(pid, now); err != nil {
		return s.errorTo(pid, KindRuleViolation, err.Error(), now)
	}
	out := s.broadcastGameOver(mid, m, now)
	s.persistFinishedGame(mid, m, now)
	return out
}

func (s *Server) onToggleSharedWayback(pid match.ParticipantID, now time.Time) []delivery {
	m, mid, ok := s.matchFor(pid)
	if !ok {
		return s.errorTo(pid, KindIgnorable, "not in a match", now)
	}
	if m.SharedWaybackIndex != nil {
		m.SharedWaybackIndex = nil
	} else if m.CurrentGame != nil {
		idx := m.CurrentGame.Log.Len() - 1
		m.SharedWaybackIndex = &idx
	}
	return s.matchUpdated(mid, m, now, "")
}

func (s *Server) onWaybackTo(pid match.ParticipantID, evt session.ClientEvent, now time.Time) []delivery {
	m, mid, ok := s.matchFor(pid)
	if !ok || evt.WaybackTo == nil {
		return s.errorTo(pid, KindInvalidCommand, "wayback payload missing", now)
	}
	view, err := m.WaybackView(evt.WaybackTo.TurnIndex)
	if err != nil {
		return s.errorTo(pid, KindIgnorable, err.Error(), now)
	}
	raw, _ := json.Marshal(buildGameSnapshot(view, m.GameInstant(now)))
	out := []delivery{s.stamp(pid, session.ServerEvent{
		Kind:              session.EvArchiveGameLoaded,
		ArchiveGameLoaded: &session.MatchSnapshotPayload{Snapshot: raw},
	}, now)}
	if m.SharedWaybackIndex != nil {
		idx := evt.WaybackTo.TurnIndex
		m.SharedWaybackIndex = &idx
		out = append(out, s.matchUpdated(mid, m, now, pid)...)
	}
	return out
}

func (s *Server) onSendChat(pid match.ParticipantID, evt session.ClientEvent, now time.Time) []delivery {
	m, mid, ok := s.matchFor(pid)
	if !ok || evt.SendChat == nil {
		return s.errorTo(pid, KindInvalidCommand, "chat payload missing", now)
	}
	name := string(pid)
	if p, exists := m.Participants[pid]; exists && p.DisplayName != "" {
		name = p.DisplayName
	}
	text := evt.SendChat.Text
	return s.toMatch(mid, func() session.ServerEvent {
		return session.ServerEvent{
			Kind:        session.EvChatMessage,
			ChatMessage: &session.ChatMessagePayload{From: name, Text: text},
		}
	}, now)
}

func (s *Server) onHotReconnect(pid match.ParticipantID, evt session.ClientEvent, now time.Time) []delivery {
	sess, ok := s.sessions[pid]
	if !ok || evt.HotReconnect == nil {
		return s.errorTo(pid, KindInvalidCommand, "hot_reconnect payload missing", now)
	}
	ctx := context.Background()

	// Another process may already know this participant's buffer aged
	// out; don't bother replaying a gap that cannot be contiguous.
	overflowed := false
	if s.index != nil {
		overflowed, _ = s.index.HasOverflowed(ctx, string(pid))
	}
	if !overflowed {
		if events, replayable := sess.Replay(evt.HotReconnect.LastServerSeq, now); replayable {
			out := make([]delivery, 0, len(events))
			for _, e := range events {
				// Already stamped on first send; re-deliver as-is.
				out = append(out, delivery{to: pid, evt: e})
			}
			return out
		}
		if s.index != nil {
			_ = s.index.MarkOverflow(ctx, string(pid), now)
		}
	}

	// Window exhausted: full StateSnapshot instead.
	m, _, inMatch := s.matchFor(pid)
	if !inMatch {
		return s.errorTo(pid, KindIgnorable, "no match to resume", now)
	}
	out := []delivery{s.stamp(pid, session.ServerEvent{
		Kind:        session.EvMatchJoined,
		MatchJoined: &session.MatchSnapshotPayload{Snapshot: buildSnapshot(m, now)},
	}, now)}
	if s.index != nil {
		// The snapshot made the client whole; the marker has served.
		_ = s.index.ClearOverflow(ctx, string(pid))
	}
	return out
}

func (s *Server) onRequestExport(pid match.ParticipantID, now time.Time) []delivery {
	m, _, ok := s.matchFor(pid)
	if !ok || m.CurrentGame == nil {
		return s.errorTo(pid, KindIgnorable, "nothing to export", now)
	}
	content := exportBPGN(m, now)
	return []delivery{s.stamp(pid, session.ServerEvent{
		Kind:        session.EvExportReady,
		ExportReady: &session.ExportReadyPayload{Content: content},
	}, now)}
}

func (s *Server) onReportError(pid match.ParticipantID, evt session.ClientEvent) []delivery {
	if evt.ReportError != nil {
		// Client panic reports are captured server-side for diagnosis; the
		// socket stays open.
		log.Error().
			Str("participantID", string(pid)).
			Str("kind", evt.ReportError.Kind).
			Str("report", evt.ReportError.Text).
			Msg("client error report")
	}
	return nil
}

// exportBPGN renders the match's current (possibly finished) game.
func exportBPGN(m *match.Match, now time.Time) string {
	g := m.CurrentGame
	start := bughouse.New(g.Seed, g.Rules)
	h := bpgn.Headers{
		Event: "Bughouse match " + string(m.Code),
		Site:  "bughouse-chess",
		Date:  now.Format("2006.01.02"),
		Round: "1",
	}
	if wa, ok := m.SeatedAt(force.BoardA, force.White); ok {
		h.WhiteA = wa.DisplayName
	}
	if ba, ok := m.SeatedAt(force.BoardA, force.Black); ok {
		h.BlackA = ba.DisplayName
	}
	if wb, ok := m.SeatedAt(force.BoardB, force.White); ok {
		h.WhiteB = wb.DisplayName
	}
	if bb, ok := m.SeatedAt(force.BoardB, force.Black); ok {
		h.BlackB = bb.DisplayName
	}
	h.Result = resultTag(g.Status)
	return bpgn.Export(g, start.Boards[force.BoardA], start.Boards[force.BoardB], g.Rules, h)
}

func resultTag(st bughouse.Status) string {
	switch st.Kind {
	case bughouse.Victory:
		if st.Winner == bughouse.TeamOne {
			return "1-0"
		}
		return "0-1"
	case bughouse.Draw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// persistFinishedGame queues the archive write off the critical path.
func (s *Server) persistFinishedGame(mid match.MatchID, m *match.Match, now time.Time) {
	if m.CurrentGame == nil {
		return
	}
	content := exportBPGN(m, now)
	outcome := m.CurrentGame.Status.String()
	ratings := make(map[string]float64)
	for id, p := range m.Participants {
		if p.Rating != nil {
			ratings[string(id)] = *p.Rating
		}
	}
	ratingsJSON, _ := json.Marshal(ratings)
	gameID := uuid.NewString()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.persist.SaveGame(ctx, string(mid), gameID, content, outcome, "", string(ratingsJSON), now, nil); err != nil {
			log.Error().Err(err).Str("matchID", string(mid)).Msg("failed to persist finished game")
		}
	}()
}

// parsePreturnShape builds a turn from text without consulting the
// legal-move set (the board will have changed by application time).
// Coordinate-pair text ("e2e4", "e7e8=Q") is the primary preturn shape
// since a premove is usually not legal in the current position; SAN-style
// text is resolved against a probe board with the mover set active, as a
// best effort.
func parsePreturnShape(text string, b *board.Board, mover force.Force) (turn.Turn, error) {
	text = strings.TrimSpace(text)
	if t, ok := parseCoordPair(text); ok {
		return t, nil
	}
	if len(text) >= 2 && text[1] == '@' {
		// Drops carry their full shape in the text; the reserve piece need
		// not exist yet (the partner may capture it before this applies).
		kind, kok := kindFromDropLetter(text[0])
		to, cok := coord.FromAlgebraic(text[2:])
		if kok && cok {
			return turn.Drop(kind, to), nil
		}
	}
	if text == "O-O" {
		return turn.Castle(turn.Kingside), nil
	}
	if text == "O-O-O" {
		return turn.Castle(turn.Queenside), nil
	}
	return protocol.Canonicalize(protocol.Algebraic(text), preturnProbe(b, mover), mover)
}

// parseCoordPair reads "e2e4" or "e7e8=Q" into a Move turn.
func parseCoordPair(s string) (turn.Turn, bool) {
	if len(s) != 4 && !(len(s) == 6 && s[4] == '=') {
		return turn.Turn{}, false
	}
	from, ok := coord.FromAlgebraic(s[:2])
	if !ok {
		return turn.Turn{}, false
	}
	to, ok := coord.FromAlgebraic(s[2:4])
	if !ok {
		return turn.Turn{}, false
	}
	if len(s) == 6 {
		kind, ok := kindFromDropLetter(s[5])
		if !ok {
			return turn.Turn{}, false
		}
		return turn.MoveWithPromotion(from, to, turn.PromotionChoice{PromoteTo: kind}), true
	}
	return turn.Move(from, to), true
}

func kindFromDropLetter(c byte) (piece.Kind, bool) {
	switch c {
	case 'P':
		return piece.Pawn, true
	case 'N':
		return piece.Knight, true
	case 'B':
		return piece.Bishop, true
	case 'R':
		return piece.Rook, true
	case 'Q':
		return piece.Queen, true
	case 'K':
		return piece.King, true
	default:
		return 0, false
	}
}

// preturnProbe clones b with the mover set active so the algebraic parser
// can resolve sources against their own pieces even though it is the
// opponent's move.
func preturnProbe(b *board.Board, mover force.Force) *board.Board {
	probe := b.Clone()
	probe.ActiveSide = mover
	probe.PendingDuckMove = false
	return probe
}

// --- HTTP surface ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": ServerVersion})
}

// handleActiveMatches lists joinable match codes: cluster-wide through
// the Redis index when configured, this process's own otherwise.
func (s *Server) handleActiveMatches(w http.ResponseWriter, r *http.Request) {
	var codes []string
	if s.index != nil {
		if indexed, err := s.index.ActiveCodes(r.Context()); err == nil {
			codes = indexed
		}
	}
	if codes == nil {
		s.mu.Lock()
		for code := range s.codes {
			codes = append(codes, string(code))
		}
		s.mu.Unlock()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string][]string{"matches": codes})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	gameID, err := uuid.Parse(vars["gameId"])
	if err != nil {
		http.Error(w, "bad game id", http.StatusBadRequest)
		return
	}
	rec, err := s.persist.LoadGame(r.Context(), gameID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("gameID", gameID.String()).Msg("failed to load game")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-chess-pgn")
	_, _ = w.Write([]byte(rec.BPGN))
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	accountID, err := uuid.Parse(vars["accountId"])
	if err != nil {
		http.Error(w, "bad account id", http.StatusBadRequest)
		return
	}
	page := 0
	if p := r.URL.Query().Get("page"); p != "" {
		page, _ = strconv.Atoi(p)
	}
	recs, err := s.persist.ListGamesForUser(r.Context(), accountID, page, 20)
	if err != nil {
		log.Error().Err(err).Str("accountID", accountID.String()).Msg("failed to list games")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(recs)
}

// handleWebSocket upgrades the connection, binds (or rebinds) a
// participant identity, sends Welcome, and runs the read loop. A second
// live socket claiming the same ParticipantID evicts the first with
// JoinedInAnotherClient.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	now := time.Now()

	pid := match.NewParticipantID()
	if tok := r.URL.Query().Get("reconnect"); tok != "" {
		if claims, err := s.issuer.Verify(tok); err == nil {
			pid = match.ParticipantID(claims.ParticipantID)
		}
	}

	c := &connection{conn: conn}
	s.mu.Lock()
	if old, exists := s.conns[pid]; exists && old != nil {
		kicked := s.stamp(pid, session.ServerEvent{
			Kind:            session.EvKickedFromMatch,
			KickedFromMatch: &session.KickedFromMatchPayload{Reason: "JoinedInAnotherClient"},
		}, now)
		writeEvent(old, kicked.evt)
		_ = old.conn.Close()
	}
	s.conns[pid] = c
	if _, exists := s.sessions[pid]; !exists {
		s.sessions[pid] = session.New(pid, now).WithWindows(s.cfg.Session.ReplayWindow, s.cfg.Session.PongTimeout)
	}
	matchID := ""
	if mid, bound := s.matchOf[pid]; bound {
		matchID = string(mid)
	}
	token, err := s.issuer.Issue(string(pid), matchID)
	if err != nil {
		log.Warn().Err(err).Str("participantID", string(pid)).Msg("failed to issue reconnect token")
	}
	welcome := s.stamp(pid, session.ServerEvent{
		Kind: session.EvWelcome,
		Welcome: &session.WelcomePayload{
			ServerVersion:  ServerVersion,
			ParticipantID:  string(pid),
			ReconnectToken: token,
		},
	}, now)
	s.mu.Unlock()
	writeEvent(c, welcome.evt)

	log.Info().Str("participantID", string(pid)).Msg("client connected")
	s.readLoop(pid, c)
}

func (s *Server) readLoop(pid match.ParticipantID, c *connection) {
	defer func() {
		s.mu.Lock()
		if s.conns[pid] == c {
			s.conns[pid] = nil
		}
		s.mu.Unlock()
		_ = c.conn.Close()
		log.Info().Str("participantID", string(pid)).Msg("client disconnected")
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var evt session.ClientEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			s.mu.Lock()
			out := s.errorTo(pid, KindInvalidCommand, "malformed frame", time.Now())
			s.mu.Unlock()
			s.deliver(out)
			continue
		}

		now := time.Now()
		s.mu.Lock()
		sess := s.sessions[pid]
		if sess == nil || !sess.AcceptClientSeq(evt.ClientSeq) {
			s.mu.Unlock()
			continue // duplicate or stale retry, silently dropped
		}
		out := s.handleEvent(pid, evt, now)
		s.mu.Unlock()
		s.deliver(out)
	}
}

// deliver writes stamped events to whichever recipients still have a live
// socket; everyone else keeps them buffered for hot-reconnect replay.
func (s *Server) deliver(out []delivery) {
	for _, d := range out {
		s.mu.Lock()
		c := s.conns[d.to]
		s.mu.Unlock()
		if c == nil {
			continue
		}
		writeEvent(c, d.evt)
	}
}

func writeEvent(c *connection, evt session.ServerEvent) {
	raw, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal server event")
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteMessage(websocket.TextMessage, raw)
}

// parseRules decodes a rulesView JSON payload into rules.Rules,
// validating cross-field constraints.
func parseRules(raw []byte) (rules.Rules, error) {
	var v rulesView
	if err := json.Unmarshal(raw, &v); err != nil {
		return rules.Rules{}, err
	}
	r := rules.Rules{
		Match: rules.MatchRules{Rated: v.Rated},
		Chess: rules.ChessRules{
			DuckChess: v.DuckChess,
			FogOfWar:  v.FogOfWar,
			Koedem:    v.Koedem,
			TimeControl: rules.TimeControl{
				Starting:            time.Duration(v.StartingMillis) * time.Millisecond,
				Increment:           time.Duration(v.IncrementMillis) * time.Millisecond,
				BonusOnOpponentMove: time.Duration(v.BonusMillis) * time.Millisecond,
			},
		},
	}
	if v.FischerRandom {
		r.Chess.StartingPosition = rules.FischerRandom
	}
	if v.Accolade {
		r.Chess.FairyPieces = rules.Accolade
	}
	minRow, ok := coord.SubjectiveRowFromOneBased(v.MinPawnDropRank)
	if !ok {
		return rules.Rules{}, errors.New("bad min pawn drop rank")
	}
	maxRow, ok := coord.SubjectiveRowFromOneBased(v.MaxPawnDropRank)
	if !ok {
		return rules.Rules{}, errors.New("bad max pawn drop rank")
	}
	r.Bughouse = rules.BughouseRules{
		Promotion:      rules.Promotion(v.Promotion),
		MinPawnDropRow: minRow,
		MaxPawnDropRow: maxRow,
		DropAggression: rules.DropAggression(v.DropAggression),
	}
	if err := r.Validate(); err != nil {
		return rules.Rules{}, err
	}
	return r, nil
}
