package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ContentHash returns the hex SHA-256 of raw bytes. Used both as the
// dedup key for stored images and in storage path construction.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// AssetClaims is the payload of a signed asset-access token: a
// capability for one asset variant, scoped to the owning ticket.
type AssetClaims struct {
	AssetID   string `json:"asset_id"`
	Variant   string `json:"variant"`
	Audience  string `json:"aud"` // owning ticket id
	ExpiresAt int64  `json:"exp"` // unix seconds
}

// Signer mints and verifies asset tokens. Verification never returns an
// error: every failure mode collapses to nil so callers cannot
// accidentally trust a half-validated token.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner rejects an empty secret; config validation enforces the
// same upstream so a misconfigured deployment fails at startup.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret must not be empty")
	}
	return &Signer{
		secret: []byte(secret),
		now:    time.Now,
	}, nil
}

func (s *Signer) sign(payload []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// CreateToken encodes claims as base64url(JSON) + "." + hex HMAC-SHA256.
func (s *Signer) CreateToken(claims AssetClaims) string {
	payload, _ := json.Marshal(claims)
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + s.sign(payload)
}

// ParseToken verifies the signature and expiry. Malformed input, a
// signature mismatch, or an exp in the past all yield nil.
func (s *Signer) ParseToken(token string) *AssetClaims {
	encoded, signature, ok := strings.Cut(token, ".")
	if !ok {
		return nil
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil
	}

	expected := s.sign(payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return nil
	}

	var claims AssetClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil
	}

	if claims.ExpiresAt <= s.now().Unix() {
		return nil
	}

	return &claims
}
