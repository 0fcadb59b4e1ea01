// Package reconnect issues and verifies short-lived signed tokens that let
// a dropped client resume a match without replaying a login flow: the
// token binds a ParticipantId to a MatchId so a fresh socket can present it
// instead of re-joining from scratch.
//
// Tokens are ES256-signed JWTs with the participant as subject and the
// match as audience; account login, when present, is a separate concern
// layered above this.
package reconnect

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TTL is how long a reconnect token remains valid after issuance. It only
// needs to outlive the session replay window (internal/session), since a
// client that waits longer is sent a StateSnapshot instead of being asked
// to use stale credentials.
const TTL = 10 * time.Minute

// Issuer signs and verifies reconnect tokens with a single ES256 key pair
// generated at server startup. Tokens are never persisted; restarting the
// server invalidates every outstanding reconnect token, which simply
// forces affected clients through MatchJoined from scratch.
type Issuer struct {
	key *ecdsa.PrivateKey
}

func NewIssuer() (*Issuer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate reconnect signing key: %w", err)
	}
	return &Issuer{key: key}, nil
}

// Claims is the decoded payload of a reconnect token.
type Claims struct {
	ParticipantID string
	MatchID       string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// Issue mints a token binding participantID to matchID, valid for TTL.
func (i *Issuer) Issue(participantID, matchID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": participantID,
		"aud": matchID,
		"iat": now.Unix(),
		"exp": now.Add(TTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign reconnect token: %w", err)
	}
	return signed, nil
}

// Verify checks the token's signature and expiry and returns its claims.
// An expired or forged token is rejected with an error; the caller (the
// session layer) treats this as "start fresh", not a fatal error.
func (i *Issuer) Verify(tokenString string) (Claims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return &i.key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	if err != nil {
		return Claims{}, fmt.Errorf("reconnect token invalid: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return Claims{}, fmt.Errorf("reconnect token invalid")
	}
	sub, _ := claims["sub"].(string)
	aud, _ := claims["aud"].(string)
	iat, _ := claims.GetIssuedAt()
	exp, _ := claims.GetExpirationTime()
	out := Claims{ParticipantID: sub, MatchID: aud}
	if iat != nil {
		out.IssuedAt = iat.Time
	}
	if exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}
