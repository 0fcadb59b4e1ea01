package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound mirrors gorm's sentinel so callers never import gorm
// directly.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrHandleTaken is returned by CreateAccount on a duplicate handle.
var ErrHandleTaken = errors.New("handle already registered")

// Store is the GORM/Postgres-backed implementation of the persistence
// surface. A nil *Store is a valid no-op sink, so local/dev runs work
// without a database.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an already-migrated gorm.DB.
func NewStore(db *gorm.DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

// Migrate creates/updates the backing tables. Call once at startup.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Account{}, &GameRecord{}, &GameParticipant{})
}

// SaveGame persists one finished game's BPGN export, outcome summary,
// and before/after rating snapshots.
func (s *Store) SaveGame(ctx context.Context, matchID, gameID, bpgn, outcome, ratingsBeforeJSON, ratingsAfterJSON string, endedAt time.Time, accountIDs []uuid.UUID) error {
	if s == nil {
		return nil
	}
	id, err := uuid.Parse(gameID)
	if err != nil {
		id = uuid.New()
	}
	rec := GameRecord{
		ID:            id,
		MatchID:       matchID,
		BPGN:          bpgn,
		Outcome:       outcome,
		RatingsBefore: ratingsBeforeJSON,
		RatingsAfter:  ratingsAfterJSON,
		EndedAt:       endedAt,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
			return err
		}
		for _, accID := range accountIDs {
			link := GameParticipant{GameID: rec.ID, AccountID: accID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadGame fetches one archived game by ID.
func (s *Store) LoadGame(ctx context.Context, gameID uuid.UUID) (*GameRecord, error) {
	if s == nil {
		return nil, ErrNotFound
	}
	var rec GameRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", gameID).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListGamesForUser paginates an account's archived games, newest first.
func (s *Store) ListGamesForUser(ctx context.Context, accountID uuid.UUID, page, pageSize int) ([]GameRecord, error) {
	if s == nil {
		return nil, nil
	}
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	var links []GameParticipant
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Find(&links).Error; err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(links))
	for i, l := range links {
		ids[i] = l.GameID
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var recs []GameRecord
	err := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("ended_at DESC").
		Offset(page * pageSize).
		Limit(pageSize).
		Find(&recs).Error
	return recs, err
}

// CreateAccount registers a new account.
func (s *Store) CreateAccount(ctx context.Context, handle, passwordHash string) (*Account, error) {
	if s == nil {
		return nil, nil
	}
	acc := Account{Handle: handle, PasswordHash: passwordHash, Rating: 1500}
	err := s.db.WithContext(ctx).Create(&acc).Error
	if err != nil {
		return nil, ErrHandleTaken
	}
	return &acc, nil
}

// AuthenticateAccount looks up an account by handle, letting the caller
// verify passwordHash against a known hashing scheme (account_ops:
// authenticate).
func (s *Store) AuthenticateAccount(ctx context.Context, handle string) (*Account, error) {
	if s == nil {
		return nil, ErrNotFound
	}
	var acc Account
	if err := s.db.WithContext(ctx).First(&acc, "handle = ?", handle).Error; err != nil {
		return nil, err
	}
	return &acc, nil
}

// UpdateAccountRating applies a new rating value (account_ops: update).
func (s *Store) UpdateAccountRating(ctx context.Context, accountID uuid.UUID, rating float64) error {
	if s == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&Account{}).Where("id = ?", accountID).Update("rating", rating).Error
}

// DeleteAccount removes an account and its game-participation links
// (account_ops: delete).
func (s *Store) DeleteAccount(ctx context.Context, accountID uuid.UUID) error {
	if s == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", accountID).Delete(&GameParticipant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Account{}, "id = ?", accountID).Error
	})
}
