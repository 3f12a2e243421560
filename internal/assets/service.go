package assets

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"mailroom/internal/logger"
	"mailroom/internal/signing"
	"mailroom/pkg/metrics"
	"mailroom/pkg/retry"
)

// Variant is one stored form of a processed image.
type Variant struct {
	StorageKey string
	Size       int64
	Width      int
	Height     int
	MIME       string
}

// ProcessedImage is the result of processing one distinct source image:
// a shared content hash and the three stored variants.
type ProcessedImage struct {
	Hash     string
	Original Variant
	Web      Variant
	Thumb    Variant
}

type Service struct {
	store       Store
	retryPolicy retry.Policy
	logger      logger.Logger
}

func NewService(store Store, log logger.Logger) *Service {
	return &Service{
		store:       store,
		retryPolicy: retry.DefaultPolicy(),
		logger:      log,
	}
}

// ProcessImage hashes the source once, derives the web and thumb
// variants, and stores all three under a shared
// tickets/{ticketId}/{hash}/ prefix. Invoked once per distinct image
// encountered by the pipeline; any failure here is reported to the
// caller, which logs it and continues with the remaining images.
func (s *Service) ProcessImage(ctx context.Context, buf []byte, ticketID, contentType, ext string) (*ProcessedImage, error) {
	hash := signing.ContentHash(buf)
	prefix := fmt.Sprintf("tickets/%s/%s/", ticketID, hash)

	web, err := DeriveWeb(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to derive web variant: %w", err)
	}

	thumb, err := DeriveThumb(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to derive thumb variant: %w", err)
	}

	origWidth, origHeight := sourceDimensions(buf)

	result := &ProcessedImage{
		Hash: hash,
		Original: Variant{
			StorageKey: prefix + "original" + normalizeExt(ext),
			Size:       int64(len(buf)),
			Width:      origWidth,
			Height:     origHeight,
			MIME:       contentType,
		},
		Web: Variant{
			StorageKey: prefix + "web.webp",
			Size:       int64(len(web.Data)),
			Width:      web.Width,
			Height:     web.Height,
			MIME:       "image/webp",
		},
		Thumb: Variant{
			StorageKey: prefix + "thumb.webp",
			Size:       int64(len(thumb.Data)),
			Width:      thumb.Width,
			Height:     thumb.Height,
			MIME:       "image/webp",
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	puts := []struct {
		key         string
		contentType string
		data        []byte
	}{
		{result.Original.StorageKey, contentType, buf},
		{result.Web.StorageKey, "image/webp", web.Data},
		{result.Thumb.StorageKey, "image/webp", thumb.Data},
	}

	for _, put := range puts {
		g.Go(func() error {
			return s.putWithRetry(gctx, put.key, put.contentType, put.data)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to store image variants for %s: %w", hash, err)
	}

	return result, nil
}

func (s *Service) putWithRetry(ctx context.Context, key, contentType string, data []byte) error {
	return retry.Retry(ctx, s.retryPolicy, func() error {
		start := time.Now()
		_, err := s.store.Put(ctx, key, contentType, data)
		metrics.ObserveStoragePutDuration(s.store.Driver(), time.Since(start))
		return err
	})
}

func sourceDimensions(buf []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func normalizeExt(ext string) string {
	if ext == "" {
		return ".bin"
	}
	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return ext
}

// ExtensionForMIME maps common image MIME types to a file extension for
// the original-variant storage key.
func ExtensionForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	case "image/svg+xml":
		return ".svg"
	default:
		return ".bin"
	}
}

// IsImageMIME reports whether a content type is an image the pipeline
// should derive variants for.
func IsImageMIME(mime string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mime)), "image/")
}
