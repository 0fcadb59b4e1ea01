// Package server is the merged listener: the map of Matches and
// ClientSessions, WebSocket game traffic, and the HTTP surface for
// archive listing and BPGN export. It owns all cross-match and
// cross-session mutable state; MatchCoordinator mutations are only ever
// made through internal/match's methods.
//
// Delivery is per-ClientSession and sequence-numbered rather than
// room-broadcast, since hot reconnect needs individually tracked replay
// state.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/amatveiakin/bughouse-chess/internal/config"
	"github.com/amatveiakin/bughouse-chess/internal/match"
	"github.com/amatveiakin/bughouse-chess/internal/persistence"
	"github.com/amatveiakin/bughouse-chess/internal/protocol"
	"github.com/amatveiakin/bughouse-chess/internal/reconnect"
	"github.com/amatveiakin/bughouse-chess/internal/redisindex"
	"github.com/amatveiakin/bughouse-chess/internal/session"
)

// ServerVersion is compared against the client build for
// ProtocolMismatch detection.
const ServerVersion = "1"

// ReapAfterIdle is how long a match with no game in progress (Lobby or
// PostGame phase) and zero connected participants survives before
// eviction, when the config's match.reap_after_idle is unset.
const ReapAfterIdle = 2 * time.Minute

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// connection pairs a live socket with the conn-level write mutex gorilla
// requires (only one goroutine may call WriteMessage at a time).
type connection struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Server holds the map of Matches and ClientSessions and drives the
// single-threaded per-match event loop via a background
// ticker; it exposes WebSocket and HTTP endpoints on one listener.
type Server struct {
	mu sync.Mutex

	matches map[match.MatchID]*match.Match
	codes   map[match.Code]match.MatchID

	sessions map[match.ParticipantID]*session.Session
	matchOf  map[match.ParticipantID]match.MatchID
	conns    map[match.ParticipantID]*connection

	idleSince map[match.MatchID]time.Time
	preturns  map[match.MatchID]*protocol.PreturnStore

	persist persistence.Interface
	index   *redisindex.Index // nil when running without Redis
	issuer  *reconnect.Issuer
	cfg     *config.Config
}

// New constructs a Server. persist must not be nil (use
// persistence.NewMemory() for a database-less run); idx may be nil.
func New(cfg *config.Config, persist persistence.Interface, idx *redisindex.Index) (*Server, error) {
	issuer, err := reconnect.NewIssuer()
	if err != nil {
		return nil, err
	}
	return &Server{
		matches:   make(map[match.MatchID]*match.Match),
		codes:     make(map[match.Code]match.MatchID),
		sessions:  make(map[match.ParticipantID]*session.Session),
		matchOf:   make(map[match.ParticipantID]match.MatchID),
		conns:     make(map[match.ParticipantID]*connection),
		idleSince: make(map[match.MatchID]time.Time),
		preturns:  make(map[match.MatchID]*protocol.PreturnStore),
		persist:   persist,
		index:     idx,
		issuer:    issuer,
		cfg:       cfg,
	}, nil
}

// Router builds the gorilla/mux router exposing /ws and the HTTP /dyn
// endpoints on a single listener.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket)
	r.HandleFunc("/dyn/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/dyn/matches", s.handleActiveMatches).Methods("GET")
	r.HandleFunc("/dyn/export/{gameId}", s.handleExport).Methods("GET")
	r.HandleFunc("/dyn/archive/{accountId}", s.handleArchive).Methods("GET")
	return r
}

// RunReaper blocks, sweeping idle Lobby/PostGame matches every interval until
// ctx is cancelled. Call it in its own goroutine from cmd/bughouse-server.
func (s *Server) RunReaper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.reapIdleMatches(now)
		}
	}
}

func (s *Server) reapIdleMatches(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reapAfter := ReapAfterIdle
	if s.cfg != nil && s.cfg.Match.ReapAfterIdle > 0 {
		reapAfter = s.cfg.Match.ReapAfterIdle
	}
	for id, m := range s.matches {
		if m.Phase != match.PhasePostGame && m.Phase != match.PhaseLobby {
			continue
		}
		if s.connectedParticipants(id) > 0 {
			delete(s.idleSince, id)
			continue
		}
		since, ok := s.idleSince[id]
		if !ok {
			s.idleSince[id] = now
			continue
		}
		if now.Sub(since) > reapAfter {
			delete(s.matches, id)
			delete(s.codes, m.Code)
			delete(s.idleSince, id)
			delete(s.preturns, id)
			if s.index != nil {
				_ = s.index.RemoveCode(context.Background(), string(m.Code))
			}
			log.Info().Str("code", string(m.Code)).Msg("reaped idle match")
		}
	}
}

func (s *Server) connectedParticipants(id match.MatchID) int {
	n := 0
	for pid, mid := range s.matchOf {
		if mid != id {
			continue
		}
		if c, ok := s.conns[pid]; ok && c != nil {
			n++
		}
	}
	return n
}

// RunClockLoop drives Match.Tick for every in-progress match; flag
// falls and countdown expiries must fire even when no client event
// arrives.
func (s *Server) RunClockLoop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.tickAll(now)
		}
	}
}

func (s *Server) tickAll(now time.Time) {
	s.mu.Lock()
	var out []delivery
	for id, m := range s.matches {
		before := m.Phase
		_ = m.Tick(now)
		if before == match.PhaseInGame && m.Phase == match.PhasePostGame {
			out = append(out, s.broadcastGameOver(id, m, now)...)
			s.persistFinishedGame(id, m, now)
		}
		if before == match.PhaseCountdown && m.Phase == match.PhaseInGame {
			out = append(out, s.broadcastGameStarted(id, m, now)...)
		}
	}
	s.mu.Unlock()
	s.deliver(out)
}
