package assetserve

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailroom/internal/assets"
	"mailroom/internal/config"
	"mailroom/internal/logger"
	"mailroom/internal/signing"
	pkgerrors "mailroom/pkg/errors"
	"mailroom/pkg/models"
)

type stubLookup struct {
	assets map[string]*models.MessageAsset
}

func (s *stubLookup) GetAssetByID(ctx context.Context, id string) (*models.MessageAsset, error) {
	asset, ok := s.assets[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	return asset, nil
}

type fixture struct {
	router *gin.Engine
	signer *signing.Signer
	store  assets.Store
	lookup *stubLookup
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	signer, err := signing.NewSigner("serve-secret")
	require.NoError(t, err)

	store := assets.NewDiskStore(config.StorageConfig{
		Disk:          config.DiskConfig{Root: t.TempDir()},
		PublicBaseURL: "https://app.example.com",
	})

	lookup := &stubLookup{assets: make(map[string]*models.MessageAsset)}
	handler := NewHandler(lookup, store, signer, logger.NopLogger())

	router := gin.New()
	handler.RegisterRoutes(router)

	return &fixture{router: router, signer: signer, store: store, lookup: lookup}
}

func (f *fixture) seedAsset(t *testing.T, id, ticketID, variant string, data []byte) *models.MessageAsset {
	t.Helper()

	key := "tickets/" + ticketID + "/hash/" + variant + ".webp"
	_, err := f.store.Put(context.Background(), key, "image/webp", data)
	require.NoError(t, err)

	asset := &models.MessageAsset{
		ID:         id,
		MessageID:  "m-1",
		TicketID:   ticketID,
		Kind:       "inline",
		MIME:       "image/webp",
		Size:       int64(len(data)),
		SHA256:     "hash",
		StorageKey: key,
		Variant:    variant,
	}
	f.lookup.assets[id] = asset
	return asset
}

func (f *fixture) token(assetID, variant, audience string, ttl time.Duration) string {
	return f.signer.CreateToken(signing.AssetClaims{
		AssetID:   assetID,
		Variant:   variant,
		Audience:  audience,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	})
}

func (f *fixture) get(assetID, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/assets/"+assetID+"?token="+token, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestServeAsset_Success(t *testing.T) {
	f := newFixture(t)
	payload := []byte("webp bytes")
	f.seedAsset(t, "a1", "T-1", "web", payload)

	w := f.get("a1", f.token("a1", "web", "T-1", time.Minute))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, payload, w.Body.Bytes())
	assert.Equal(t, "image/webp", w.Header().Get("Content-Type"))
}

func TestServeAsset_MissingToken(t *testing.T) {
	f := newFixture(t)
	f.seedAsset(t, "a1", "T-1", "web", []byte("x"))

	w := f.get("a1", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServeAsset_TamperedToken(t *testing.T) {
	f := newFixture(t)
	f.seedAsset(t, "a1", "T-1", "web", []byte("x"))

	token := f.token("a1", "web", "T-1", time.Minute)
	w := f.get("a1", token[:len(token)-2]+"zz")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServeAsset_ExpiredToken(t *testing.T) {
	f := newFixture(t)
	f.seedAsset(t, "a1", "T-1", "web", []byte("x"))

	w := f.get("a1", f.token("a1", "web", "T-1", -time.Minute))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServeAsset_TokenForDifferentAsset(t *testing.T) {
	f := newFixture(t)
	f.seedAsset(t, "a1", "T-1", "web", []byte("x"))
	f.seedAsset(t, "a2", "T-1", "web", []byte("y"))

	w := f.get("a1", f.token("a2", "web", "T-1", time.Minute))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServeAsset_AudienceMismatch(t *testing.T) {
	f := newFixture(t)
	f.seedAsset(t, "a1", "T-1", "web", []byte("x"))

	// Token scoped to another ticket must not open this asset.
	w := f.get("a1", f.token("a1", "web", "T-2", time.Minute))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServeAsset_VariantMismatch(t *testing.T) {
	f := newFixture(t)
	f.seedAsset(t, "a1", "T-1", "web", []byte("x"))

	w := f.get("a1", f.token("a1", "thumb", "T-1", time.Minute))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServeAsset_UnknownAsset(t *testing.T) {
	f := newFixture(t)

	w := f.get("ghost", f.token("ghost", "web", "T-1", time.Minute))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
