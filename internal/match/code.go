// Package match implements the MatchCoordinator: the lobby/ready/
// countdown/in-game/post-game state machine, faction and seat assignment,
// readiness gating, and rating updates for one bughouse match.
package match

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet excludes visually ambiguous letters (I, O) so match codes
// read unambiguously out loud or handwritten.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ"

// Code is the six-letter, human-shareable match code that appears in
// URLs as ?match-id=XXXXXX. It is distinct from MatchID, the
// internal UUID key.
type Code string

// GenerateCode draws a random six-letter code from the homoglyph-free
// alphabet. Uniqueness against already-issued codes is the caller's
// responsibility (retry on collision).
func GenerateCode() (Code, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate match code: %w", err)
	}
	out := make([]byte, 6)
	for i, v := range b {
		out[i] = codeAlphabet[int(v)%len(codeAlphabet)]
	}
	return Code(out), nil
}
