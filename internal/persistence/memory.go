package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Interface is the game-archive persistence surface, satisfied
// by both *Store (Postgres via GORM) and *Memory (tests, local dev
// without a database).
type Interface interface {
	SaveGame(ctx context.Context, matchID, gameID, bpgn, outcome, ratingsBeforeJSON, ratingsAfterJSON string, endedAt time.Time, accountIDs []uuid.UUID) error
	LoadGame(ctx context.Context, gameID uuid.UUID) (*GameRecord, error)
	ListGamesForUser(ctx context.Context, accountID uuid.UUID, page, pageSize int) ([]GameRecord, error)
}

var (
	_ Interface = (*Store)(nil)
	_ Interface = (*Memory)(nil)
)

// Memory is an in-process fake backing the same Interface as Store, for
// unit tests and the single-process local-dev run mode where
// persistence.dsn is left unset.
type Memory struct {
	games     map[uuid.UUID]GameRecord
	byAccount map[uuid.UUID][]uuid.UUID
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		games:     make(map[uuid.UUID]GameRecord),
		byAccount: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (m *Memory) SaveGame(_ context.Context, matchID, gameID, bpgn, outcome, ratingsBeforeJSON, ratingsAfterJSON string, endedAt time.Time, accountIDs []uuid.UUID) error {
	id, err := uuid.Parse(gameID)
	if err != nil {
		id = uuid.New()
	}
	m.games[id] = GameRecord{
		ID:            id,
		MatchID:       matchID,
		BPGN:          bpgn,
		Outcome:       outcome,
		RatingsBefore: ratingsBeforeJSON,
		RatingsAfter:  ratingsAfterJSON,
		EndedAt:       endedAt,
	}
	for _, accID := range accountIDs {
		m.byAccount[accID] = append(m.byAccount[accID], id)
	}
	return nil
}

func (m *Memory) LoadGame(_ context.Context, gameID uuid.UUID) (*GameRecord, error) {
	rec, ok := m.games[gameID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *Memory) ListGamesForUser(_ context.Context, accountID uuid.UUID, page, pageSize int) ([]GameRecord, error) {
	ids := m.byAccount[accountID]
	if pageSize <= 0 {
		pageSize = 20
	}
	start := page * pageSize
	if start >= len(ids) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(ids) {
		end = len(ids)
	}
	out := make([]GameRecord, 0, end-start)
	for _, id := range ids[start:end] {
		out = append(out, m.games[id])
	}
	return out, nil
}
