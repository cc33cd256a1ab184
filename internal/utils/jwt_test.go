package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccessTokenClaims(t *testing.T) {
	tok, err := NewAccessToken("s3cret", "resident-7", "RESIDENT", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Exp, 5*time.Second)

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tok.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("s3cret"), nil
	})
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	sub, err := claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "resident-7", sub)
	assert.Equal(t, "RESIDENT", claims["role"])

	_, err = jwt.Parse(tok.Token, func(*jwt.Token) (interface{}, error) { return []byte("other"), nil })
	assert.Error(t, err)
}
