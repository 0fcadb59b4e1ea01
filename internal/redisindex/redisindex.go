// Package redisindex provides a cross-process cache in front of
// internal/match's in-memory MatchId lookup: a match-code to MatchId
// index (so any server process can resolve ?match-id=XXXXXX without
// owning that match) and a marker recording when a session's
// hot-reconnect buffer has overflowed its window, so a HotReconnect
// arriving at a different process than the one that dropped the socket
// still knows to answer with a StateSnapshot.
//
// Grounded on park285-Cheese-KakaoTalk-bot/internal/pvpchan/store_redis.go:
// same key-prefix-plus-TTL shape, same SAdd-based set indexing for the
// lobby list.
package redisindex

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL bounds how long a match code or overflow marker survives without
// being refreshed; a match idle longer than this is assumed reaped
// (the server's 2-minute reap window, with headroom).
const TTL = 10 * time.Minute

// Index wraps a redis.Client with the key helpers this package needs.
type Index struct {
	rdb *redis.Client
}

// New wraps an already-connected redis.Client.
func New(rdb *redis.Client) *Index {
	return &Index{rdb: rdb}
}

func (idx *Index) keyCode(code string) string   { return "bh:code:" + strings.TrimSpace(code) }
func (idx *Index) keyOverflow(id string) string { return "bh:overflow:" + strings.TrimSpace(id) }
func (idx *Index) keyLobbyCodes() string        { return "bh:codes:active" }

// PutCode records that a match code maps to matchID, so any server
// process can resolve a join-by-URL request.
func (idx *Index) PutCode(ctx context.Context, code, matchID string) error {
	if err := idx.rdb.Set(ctx, idx.keyCode(code), matchID, TTL).Err(); err != nil {
		return err
	}
	return idx.rdb.SAdd(ctx, idx.keyLobbyCodes(), code).Err()
}

// ResolveCode looks up the MatchId a code maps to. ok is false if the
// code is unknown or has expired.
func (idx *Index) ResolveCode(ctx context.Context, code string) (matchID string, ok bool, err error) {
	v, err := idx.rdb.Get(ctx, idx.keyCode(code)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// RemoveCode drops a match code once its match is reaped.
func (idx *Index) RemoveCode(ctx context.Context, code string) error {
	if err := idx.rdb.Del(ctx, idx.keyCode(code)).Err(); err != nil {
		return err
	}
	return idx.rdb.SRem(ctx, idx.keyLobbyCodes(), code).Err()
}

// ActiveCodes lists every match code currently indexed, for an archive
// or lobby-browsing HTTP endpoint.
func (idx *Index) ActiveCodes(ctx context.Context) ([]string, error) {
	return idx.rdb.SMembers(ctx, idx.keyLobbyCodes()).Result()
}

// MarkOverflow records that participantID's hot-reconnect buffer has
// aged out of its replay window on this process, valid for TTL; any
// process handling a later HotReconnect for participantID can check this
// instead of guessing from a cold ClientSession.
func (idx *Index) MarkOverflow(ctx context.Context, participantID string, now time.Time) error {
	return idx.rdb.Set(ctx, idx.keyOverflow(participantID), now.Unix(), TTL).Err()
}

// HasOverflowed reports whether MarkOverflow was called for
// participantID within the last TTL.
func (idx *Index) HasOverflowed(ctx context.Context, participantID string) (bool, error) {
	n, err := idx.rdb.Exists(ctx, idx.keyOverflow(participantID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClearOverflow removes the overflow marker once a StateSnapshot has
// been sent and the buffer restarted fresh.
func (idx *Index) ClearOverflow(ctx context.Context, participantID string) error {
	return idx.rdb.Del(ctx, idx.keyOverflow(participantID)).Err()
}
