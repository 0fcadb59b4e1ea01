package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySaveAndLoadGame(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	accID := uuid.New()
	gameID := uuid.New().String()

	err := m.SaveGame(ctx, "match-1", gameID, "[Event \"x\"]", "TeamOne wins", `{}`, `{}`, time.Now(), []uuid.UUID{accID})
	require.NoError(t, err)

	rec, err := m.LoadGame(ctx, uuid.MustParse(gameID))
	require.NoError(t, err)
	assert.Equal(t, "match-1", rec.MatchID)

	games, err := m.ListGamesForUser(ctx, accID, 0, 10)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, gameID, games[0].ID.String())
}

func TestMemoryLoadGameNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.LoadGame(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryListGamesForUserPagination(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	accID := uuid.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, m.SaveGame(ctx, "match-1", uuid.New().String(), "", "", "{}", "{}", time.Now(), []uuid.UUID{accID}))
	}
	page0, err := m.ListGamesForUser(ctx, accID, 0, 2)
	require.NoError(t, err)
	assert.Len(t, page0, 2)
	page1, err := m.ListGamesForUser(ctx, accID, 1, 2)
	require.NoError(t, err)
	assert.Len(t, page1, 1)
}
