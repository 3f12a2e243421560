package ingest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mailroom/internal/assets"
	"mailroom/internal/config"
	"mailroom/internal/logger"
	"mailroom/internal/sanitizer"
	"mailroom/internal/signing"
	pkgerrors "mailroom/pkg/errors"
	"mailroom/pkg/models"
)

type memoryRepository struct {
	mu       sync.Mutex
	messages map[string]*models.InboundMessage
	assets   []*models.MessageAsset

	failCreateAsset bool
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{messages: make(map[string]*models.InboundMessage)}
}

func (r *memoryRepository) GetMessageByMessageID(ctx context.Context, messageID string) (*models.InboundMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[messageID]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	copied := *msg
	return &copied, nil
}

func (r *memoryRepository) CreateMessage(ctx context.Context, msg *models.InboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.messages[msg.MessageID]; ok {
		return pkgerrors.ErrConflict
	}
	msg.CreatedAt = time.Now()
	msg.UpdatedAt = time.Now()
	copied := *msg
	r.messages[msg.MessageID] = &copied
	return nil
}

func (r *memoryRepository) UpdateMessageSanitizedHTML(ctx context.Context, id, html string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, msg := range r.messages {
		if msg.ID == id {
			msg.HTMLSanitized = &html
			msg.UpdatedAt = time.Now()
			return nil
		}
	}
	return pkgerrors.ErrNotFound
}

func (r *memoryRepository) CreateAsset(ctx context.Context, asset *models.MessageAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failCreateAsset {
		return fmt.Errorf("simulated asset insert failure")
	}
	for _, existing := range r.assets {
		if existing.MessageID == asset.MessageID && existing.StorageKey == asset.StorageKey {
			return pkgerrors.ErrConflict
		}
	}
	asset.CreatedAt = time.Now()
	copied := *asset
	r.assets = append(r.assets, &copied)
	return nil
}

func (r *memoryRepository) CountAssetsByMessageID(ctx context.Context, messageID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, asset := range r.assets {
		if asset.MessageID == messageID {
			count++
		}
	}
	return count, nil
}

func (r *memoryRepository) ListInlineAssets(ctx context.Context, messageID, variant string) ([]models.MessageAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.MessageAsset
	for _, asset := range r.assets {
		if asset.MessageID == messageID && asset.Variant == variant &&
			asset.Kind == "inline" && asset.ContentID != nil {
			out = append(out, *asset)
		}
	}
	return out, nil
}

func (r *memoryRepository) GetAssetByID(ctx context.Context, id string) (*models.MessageAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, asset := range r.assets {
		if asset.ID == id {
			copied := *asset
			return &copied, nil
		}
	}
	return nil, pkgerrors.ErrNotFound
}

func (r *memoryRepository) assetsFor(messageID string) []*models.MessageAsset {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.MessageAsset
	for _, asset := range r.assets {
		if asset.MessageID == messageID {
			out = append(out, asset)
		}
	}
	return out
}

type memoryDedup struct {
	mu   sync.Mutex
	seen map[string]struct{}
	err  error
}

func newMemoryDedup() *memoryDedup {
	return &memoryDedup{seen: make(map[string]struct{})}
}

func (d *memoryDedup) MarkIfFirst(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return false, d.err
	}
	if _, ok := d.seen[messageID]; ok {
		return false, nil
	}
	d.seen[messageID] = struct{}{}
	return true, nil
}

func testConfig() config.Config {
	return config.Config{
		Signing: config.SigningConfig{
			Secret:          "test-signing-secret",
			TokenTTLSeconds: 900,
		},
		Email: config.EmailConfig{
			MaxFileSize:  1 << 20,
			MaxTotalSize: 2 << 20,
		},
	}
}

type testEnv struct {
	svc    *Service
	repo   *memoryRepository
	dedup  *memoryDedup
	store  *assets.DiskStore
	signer *signing.Signer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := testConfig()
	log := logger.NopLogger()

	store := assets.NewDiskStore(config.StorageConfig{
		Disk:          config.DiskConfig{Root: t.TempDir()},
		PublicBaseURL: "https://app.example.com",
	})

	signer, err := signing.NewSigner(cfg.Signing.Secret)
	require.NoError(t, err)

	repo := newMemoryRepository()
	dedup := newMemoryDedup()
	resolver := NewResolver(repo, signer, "https://app.example.com", 900*time.Second)

	svc := NewService(
		repo,
		dedup,
		assets.NewService(store, log),
		sanitizer.New(log),
		resolver,
		nil,
		cfg,
		log,
	)

	return &testEnv{svc: svc, repo: repo, dedup: dedup, store: store, signer: signer}
}

func makeTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 64, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
