// Package persistence implements the archive storage surface —
// SaveGame/LoadGame/ListGamesForUser and account operations — with a
// GORM/Postgres-backed Store and an in-memory fake for tests.
package persistence

import (
	"time"

	"github.com/google/uuid"
)

// Account is a registered user, distinct from a per-match guest
// Participant.
type Account struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Handle       string    `gorm:"uniqueIndex"`
	PasswordHash string
	Rating       float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// GameRecord is one archived bughouse game, keyed by its own GameID
// within the owning MatchID (a match can contain several games).
type GameRecord struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MatchID       string    `gorm:"index"`
	BPGN          string
	Outcome       string
	RatingsBefore string // JSON-encoded map[ParticipantID]float64
	RatingsAfter  string // JSON-encoded map[ParticipantID]float64
	EndedAt       time.Time
	CreatedAt     time.Time
}

// GameParticipant links an Account to a GameRecord it played in, for
// list_games_for_user pagination.
type GameParticipant struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	GameID    uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_game_account"`
	AccountID uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_game_account"`
}
