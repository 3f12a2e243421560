package signing

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHash(t *testing.T) {
	buf := []byte("the same bytes")

	first := ContentHash(buf)
	second := ContentHash(buf)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)

	changed := ContentHash([]byte("the same bytez"))
	assert.NotEqual(t, first, changed)
}

func TestContentHashEmpty(t *testing.T) {
	// sha256 of zero bytes is a fixed, well-known value
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		ContentHash(nil),
	)
}

func TestNewSignerRequiresSecret(t *testing.T) {
	_, err := NewSigner("")
	assert.Error(t, err)

	s, err := NewSigner("test-secret")
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestTokenRoundTrip(t *testing.T) {
	s, err := NewSigner("test-secret")
	require.NoError(t, err)

	claims := AssetClaims{
		AssetID:   "asset-1",
		Variant:   "web",
		Audience:  "ticket-42",
		ExpiresAt: time.Now().Add(15 * time.Minute).Unix(),
	}

	token := s.CreateToken(claims)
	parsed := s.ParseToken(token)

	require.NotNil(t, parsed)
	assert.Equal(t, claims, *parsed)
}

func TestParseTokenFailsClosed(t *testing.T) {
	s, err := NewSigner("test-secret")
	require.NoError(t, err)

	valid := s.CreateToken(AssetClaims{
		AssetID:   "asset-1",
		Variant:   "web",
		Audience:  "ticket-42",
		ExpiresAt: time.Now().Add(time.Minute).Unix(),
	})

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"no separator", "abcdef"},
		{"garbage payload", "!!!not-base64." + strings.Split(valid, ".")[1]},
		{"tampered signature", strings.Split(valid, ".")[0] + ".deadbeef"},
		{"payload swap", "eyJmb28iOiJiYXIifQ." + strings.Split(valid, ".")[1]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, s.ParseToken(tt.token))
		})
	}
}

func TestParseTokenExpired(t *testing.T) {
	s, err := NewSigner("test-secret")
	require.NoError(t, err)

	token := s.CreateToken(AssetClaims{
		AssetID:   "asset-1",
		Variant:   "web",
		Audience:  "ticket-42",
		ExpiresAt: time.Now().Add(-time.Second).Unix(),
	})

	assert.Nil(t, s.ParseToken(token))
}

func TestParseTokenDifferentSecret(t *testing.T) {
	a, err := NewSigner("secret-a")
	require.NoError(t, err)
	b, err := NewSigner("secret-b")
	require.NoError(t, err)

	token := a.CreateToken(AssetClaims{
		AssetID:   "asset-1",
		Variant:   "thumb",
		Audience:  "ticket-7",
		ExpiresAt: time.Now().Add(time.Minute).Unix(),
	})

	assert.NotNil(t, a.ParseToken(token))
	assert.Nil(t, b.ParseToken(token))
}
