package reconnect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	issuer, err := NewIssuer()
	require.NoError(t, err)

	token, err := issuer.Issue("participant-1", "match-1")
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "participant-1", claims.ParticipantID)
	assert.Equal(t, "match-1", claims.MatchID)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt))
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	a, err := NewIssuer()
	require.NoError(t, err)
	b, err := NewIssuer()
	require.NoError(t, err)

	token, err := a.Issue("p", "m")
	require.NoError(t, err)
	_, err = b.Verify(token)
	assert.Error(t, err, "a token signed by another server's key must not verify")
}

func TestVerifyRejectsGarbage(t *testing.T) {
	issuer, err := NewIssuer()
	require.NoError(t, err)
	_, err = issuer.Verify("not.a.token")
	assert.Error(t, err)
}
