package assets

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailroom/internal/logger"
	"mailroom/internal/signing"
)

func TestProcessImageStoresAllVariants(t *testing.T) {
	store := newTestDiskStore(t)
	svc := NewService(store, logger.NopLogger())
	ctx := context.Background()

	src := makePNG(t, 2400, 1200)
	hash := signing.ContentHash(src)

	result, err := svc.ProcessImage(ctx, src, "T-42", "image/png", ".png")
	require.NoError(t, err)

	assert.Equal(t, hash, result.Hash)

	prefix := fmt.Sprintf("tickets/T-42/%s/", hash)
	assert.Equal(t, prefix+"original.png", result.Original.StorageKey)
	assert.Equal(t, prefix+"web.webp", result.Web.StorageKey)
	assert.Equal(t, prefix+"thumb.webp", result.Thumb.StorageKey)

	assert.Equal(t, int64(len(src)), result.Original.Size)
	assert.Equal(t, 2400, result.Original.Width)
	assert.Equal(t, 1200, result.Original.Height)

	assert.Equal(t, 1600, result.Web.Width)
	assert.Equal(t, "image/webp", result.Web.MIME)
	assert.LessOrEqual(t, result.Thumb.Width, 320)
	assert.LessOrEqual(t, result.Thumb.Height, 320)

	for _, key := range []string{result.Original.StorageKey, result.Web.StorageKey, result.Thumb.StorageKey} {
		data, err := store.Get(ctx, key)
		require.NoError(t, err, "variant %s not stored", key)
		assert.NotEmpty(t, data)
	}

	original, err := store.Get(ctx, result.Original.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, src, original)
}

func TestProcessImageIsDeterministic(t *testing.T) {
	store := newTestDiskStore(t)
	svc := NewService(store, logger.NopLogger())
	ctx := context.Background()

	src := makePNG(t, 640, 480)

	first, err := svc.ProcessImage(ctx, src, "T-1", "image/png", ".png")
	require.NoError(t, err)

	second, err := svc.ProcessImage(ctx, src, "T-1", "image/png", ".png")
	require.NoError(t, err)

	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, first.Original.StorageKey, second.Original.StorageKey)
}

func TestProcessImageRejectsCorruptBuffer(t *testing.T) {
	store := newTestDiskStore(t)
	svc := NewService(store, logger.NopLogger())

	_, err := svc.ProcessImage(context.Background(), []byte("garbage bytes"), "T-1", "image/png", ".png")
	assert.Error(t, err)
}

func TestProcessImageDefaultsExtension(t *testing.T) {
	store := newTestDiskStore(t)
	svc := NewService(store, logger.NopLogger())

	src := makePNG(t, 32, 32)
	result, err := svc.ProcessImage(context.Background(), src, "T-1", "application/octet-stream", "")
	require.NoError(t, err)

	assert.Contains(t, result.Original.StorageKey, "original.bin")
}

func TestExtensionForMIME(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{mime: "image/png", want: ".png"},
		{mime: "image/jpeg", want: ".jpg"},
		{mime: "IMAGE/JPEG", want: ".jpg"},
		{mime: " image/gif ", want: ".gif"},
		{mime: "image/webp", want: ".webp"},
		{mime: "image/svg+xml", want: ".svg"},
		{mime: "application/pdf", want: ".bin"},
		{mime: "", want: ".bin"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtensionForMIME(tt.mime), "mime %q", tt.mime)
	}
}

func TestIsImageMIME(t *testing.T) {
	assert.True(t, IsImageMIME("image/png"))
	assert.True(t, IsImageMIME("IMAGE/JPEG"))
	assert.True(t, IsImageMIME(" image/gif"))
	assert.False(t, IsImageMIME("application/pdf"))
	assert.False(t, IsImageMIME("text/html"))
	assert.False(t, IsImageMIME(""))
}
