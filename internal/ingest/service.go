package ingest

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"

	"mailroom/internal/assets"
	"mailroom/internal/broker"
	"mailroom/internal/config"
	"mailroom/internal/constants"
	"mailroom/internal/logger"
	"mailroom/internal/mailparse"
	"mailroom/internal/sanitizer"
	"mailroom/internal/signing"
	"mailroom/internal/tnef"
	"mailroom/pkg/errors"
	"mailroom/pkg/logging"
	"mailroom/pkg/metrics"
	"mailroom/pkg/models"
	"mailroom/pkg/tracing"
)

// Service runs the inbound email pipeline: parse, dedupe, unwrap TNEF,
// validate sizes, persist, derive and store image variants, rewrite and
// sanitize the HTML.
type Service struct {
	repo      Repository
	dedup     DedupCache
	assets    *assets.Service
	sanitizer *sanitizer.Sanitizer
	resolver  *Resolver
	producer  broker.Producer
	cfg       config.Config
	logger    logger.Logger
}

func NewService(
	repo Repository,
	dedup DedupCache,
	assetSvc *assets.Service,
	san *sanitizer.Sanitizer,
	resolver *Resolver,
	producer broker.Producer,
	cfg config.Config,
	log logger.Logger,
) *Service {
	return &Service{
		repo:      repo,
		dedup:     dedup,
		assets:    assetSvc,
		sanitizer: san,
		resolver:  resolver,
		producer:  producer,
		cfg:       cfg,
		logger:    log,
	}
}

// storedImage tracks one distinct source image already pushed through
// variant derivation, keyed by content hash so a repeated image inside
// the same email is processed once.
type storedImage struct {
	processed  *assets.ProcessedImage
	webAssetID string
}

// Process runs the whole pipeline for one inbound email. Unsupported
// formats and oversized payloads abort before anything is persisted;
// per-image failures are logged and skipped; a known message id
// short-circuits into a no-op.
func (s *Service) Process(ctx context.Context, ticketID string, env mailparse.Envelope) (*models.ProcessResult, error) {
	start := time.Now()
	ctx, span := tracing.GetTracer("ingest").Start(ctx, "email.process")
	defer span.End()

	ctx = logging.WithTicketID(ctx, ticketID)

	parsed, err := mailparse.Parse(env)
	if err != nil {
		metrics.EmailsProcessedTotal.WithLabelValues("unsupported").Inc()
		return nil, err
	}

	if parsed.MessageID == "" {
		parsed.MessageID = uuid.New().String()
		s.logger.WarnwCtx(ctx, "Email carries no message id, generated one",
			"generated_id", parsed.MessageID,
		)
	}
	ctx = logging.WithMessageID(ctx, parsed.MessageID)

	if duplicate, result, err := s.checkDuplicate(ctx, parsed.MessageID); err != nil {
		return nil, err
	} else if duplicate {
		metrics.DuplicateShortCircuitsTotal.Inc()
		metrics.EmailsProcessedTotal.WithLabelValues("duplicate").Inc()
		s.logger.InfowCtx(ctx, "Duplicate message, short-circuiting")
		return result, nil
	}

	parts := tnef.ProcessParts(parsed.Parts)

	if err := s.validateSizes(parts); err != nil {
		metrics.EmailsProcessedTotal.WithLabelValues("oversized").Inc()
		return nil, err
	}

	msg := &models.InboundMessage{
		ID:         uuid.New().String(),
		MessageID:  parsed.MessageID,
		TicketID:   ticketID,
		From:       parsed.From,
		Subject:    parsed.Subject,
		ReceivedAt: time.Now(),
		HTMLRaw:    parsed.HTML,
		TextRaw:    parsed.Text,
	}

	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		if errors.IsConflict(err) {
			// Lost the race against a concurrent delivery of the same
			// message; the winner's run owns the heavy processing.
			count, countErr := s.repo.CountAssetsByMessageID(ctx, parsed.MessageID)
			if countErr != nil {
				return nil, countErr
			}
			metrics.DuplicateShortCircuitsTotal.Inc()
			metrics.EmailsProcessedTotal.WithLabelValues("duplicate").Inc()
			return &models.ProcessResult{
				MessageID:   parsed.MessageID,
				AssetsCount: count,
				Duplicate:   true,
			}, nil
		}
		metrics.EmailsProcessedTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	byHash := make(map[string]*storedImage)
	rowsPersisted := 0

	inlineCount, cidMap := s.processInlineImages(ctx, msg, parts, byHash, &rowsPersisted)

	dataURICount, dataURIMap := s.processDataURIImages(ctx, msg, parsed.HTML, byHash, &rowsPersisted)
	inlineCount += dataURICount

	attachmentsCount := s.processAttachments(ctx, msg, parts, byHash, &rowsPersisted)

	html := s.sanitizer.RewriteCIDReferences(parsed.HTML, cidMap)
	html = s.sanitizer.RewriteDataURIImages(html, dataURIMap)

	clean := s.sanitizer.Sanitize(html)

	if err := s.repo.UpdateMessageSanitizedHTML(ctx, msg.ID, clean); err != nil {
		metrics.EmailsProcessedTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	result := &models.ProcessResult{
		MessageID:         parsed.MessageID,
		AssetsCount:       rowsPersisted,
		InlineImagesCount: inlineCount,
		AttachmentsCount:  attachmentsCount,
	}

	s.publishProcessedEvent(ctx, ticketID, result)

	metrics.EmailsProcessedTotal.WithLabelValues("success").Inc()
	metrics.ObserveEmailProcessingDuration(time.Since(start), "success")
	s.logger.InfowCtx(ctx, "Email processed",
		"assets_count", result.AssetsCount,
		"inline_images", result.InlineImagesCount,
		"attachments", result.AttachmentsCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}

// checkDuplicate is the idempotency gate: a redis SetNX fast path when
// configured, then the authoritative database lookup. The unique
// constraint on message_id remains the correctness backstop for the
// race two concurrent deliveries can still win together.
func (s *Service) checkDuplicate(ctx context.Context, messageID string) (bool, *models.ProcessResult, error) {
	if s.dedup != nil && s.cfg.Ingest.Dedup.Enabled {
		ttl := time.Duration(s.cfg.Ingest.Dedup.TTLSeconds) * time.Second
		first, err := s.dedup.MarkIfFirst(ctx, messageID, ttl)
		switch {
		case err != nil:
			if s.cfg.Ingest.Dedup.OnRedisError == constants.FallbackDeny {
				metrics.FallbackUsageTotal.WithLabelValues("ingest", "deny_on_error", err.Error()).Inc()
				return false, nil, errors.Wrap(err, errors.ErrInternal)
			}
			metrics.FallbackUsageTotal.WithLabelValues("ingest", "allow_on_error", err.Error()).Inc()
			s.logger.WarnwCtx(ctx, "Redis error during dedup check, continuing (fallback: allow)",
				"error", err,
			)
		case !first:
			// The fast path only proves a prior claim on the id; the
			// database decides whether that run actually persisted.
		}
	}

	existing, err := s.repo.GetMessageByMessageID(ctx, messageID)
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil, nil
		}
		return false, nil, err
	}

	count, err := s.repo.CountAssetsByMessageID(ctx, existing.MessageID)
	if err != nil {
		return false, nil, err
	}

	return true, &models.ProcessResult{
		MessageID:   existing.MessageID,
		AssetsCount: count,
		Duplicate:   true,
	}, nil
}

func (s *Service) validateSizes(parts []models.EmailPart) error {
	maxFile := s.cfg.Email.MaxFileSize
	if maxFile <= 0 {
		maxFile = constants.DefaultMaxFileSize
	}
	maxTotal := s.cfg.Email.MaxTotalSize
	if maxTotal <= 0 {
		maxTotal = constants.DefaultMaxTotalSize
	}

	var total int64
	for _, part := range parts {
		if part.Size > maxFile {
			return errors.ErrPayloadTooLarge.WithDetail("filename", part.Filename).
				WithDetail("size", part.Size)
		}
		total += part.Size
	}
	if total > maxTotal {
		return errors.ErrPayloadTooLarge.WithDetail("total_size", total)
	}
	return nil
}

// processInlineImages handles parts referenceable from the HTML via
// cid: URIs. Each failure is isolated: logged, counted, skipped.
func (s *Service) processInlineImages(
	ctx context.Context,
	msg *models.InboundMessage,
	parts []models.EmailPart,
	byHash map[string]*storedImage,
	rowsPersisted *int,
) (int, map[string]string) {
	cidMap := make(map[string]string)
	count := 0

	for _, part := range mailparse.InlineImages(parts) {
		contentID := sanitizer.NormalizeCID(part.ContentID)
		img, err := s.storeImage(ctx, msg, constants.AssetKindInline, &contentID, part.Filename, part.ContentType, part.Content, byHash, rowsPersisted)
		if err != nil {
			metrics.ImageFailuresTotal.WithLabelValues("inline").Inc()
			s.logger.WarnwCtx(ctx, "Failed to process inline image, skipping",
				"content_id", contentID,
				"filename", part.Filename,
				"error", err,
			)
			continue
		}
		count++
		cidMap[contentID] = s.resolver.SignedAssetURL(img.webAssetID, msg.TicketID, constants.VariantWeb)
	}

	return count, cidMap
}

// processDataURIImages extracts base64 images embedded directly in the
// HTML and pushes them through the same derivation path as inline
// parts. They carry no Content-ID; the full data URI string is the
// rewrite key.
func (s *Service) processDataURIImages(
	ctx context.Context,
	msg *models.InboundMessage,
	html string,
	byHash map[string]*storedImage,
	rowsPersisted *int,
) (int, map[string]string) {
	dataURIMap := make(map[string]string)
	count := 0

	for _, embedded := range sanitizer.ExtractDataURIImages(html) {
		content, err := base64.StdEncoding.DecodeString(stripWhitespace(embedded.Base64))
		if err != nil {
			metrics.ImageFailuresTotal.WithLabelValues("data_uri").Inc()
			s.logger.WarnwCtx(ctx, "Failed to decode embedded data-uri image, skipping",
				"mime", embedded.MIME,
				"error", err,
			)
			continue
		}

		img, err := s.storeImage(ctx, msg, constants.AssetKindInline, nil, "embedded"+assets.ExtensionForMIME(embedded.MIME), embedded.MIME, content, byHash, rowsPersisted)
		if err != nil {
			metrics.ImageFailuresTotal.WithLabelValues("data_uri").Inc()
			s.logger.WarnwCtx(ctx, "Failed to process embedded data-uri image, skipping",
				"mime", embedded.MIME,
				"error", err,
			)
			continue
		}
		count++
		dataURIMap[embedded.DataURI] = s.resolver.SignedAssetURL(img.webAssetID, msg.TicketID, constants.VariantWeb)
	}

	return count, dataURIMap
}

// processAttachments stores image attachments that are not inline. Non
// image attachments are skipped entirely and never persisted.
func (s *Service) processAttachments(
	ctx context.Context,
	msg *models.InboundMessage,
	parts []models.EmailPart,
	byHash map[string]*storedImage,
	rowsPersisted *int,
) int {
	count := 0

	for _, part := range mailparse.Attachments(parts) {
		if !assets.IsImageMIME(part.ContentType) {
			continue
		}

		var contentID *string
		if part.ContentID != "" {
			cid := sanitizer.NormalizeCID(part.ContentID)
			contentID = &cid
		}

		_, err := s.storeImage(ctx, msg, constants.AssetKindAttachment, contentID, part.Filename, part.ContentType, part.Content, byHash, rowsPersisted)
		if err != nil {
			metrics.ImageFailuresTotal.WithLabelValues("attachment").Inc()
			s.logger.WarnwCtx(ctx, "Failed to process image attachment, skipping",
				"filename", part.Filename,
				"error", err,
			)
			continue
		}
		count++
	}

	return count
}

// storeImage derives and stores the three variants of one source image
// and persists their asset rows. Repeated content within the same email
// is processed once and reused.
func (s *Service) storeImage(
	ctx context.Context,
	msg *models.InboundMessage,
	kind string,
	contentID *string,
	filename, mime string,
	content []byte,
	byHash map[string]*storedImage,
	rowsPersisted *int,
) (*storedImage, error) {
	hash := signing.ContentHash(content)
	if img, ok := byHash[hash]; ok {
		return img, nil
	}

	processed, err := s.assets.ProcessImage(ctx, content, msg.TicketID, mime, assets.ExtensionForMIME(mime))
	if err != nil {
		return nil, err
	}

	img := &storedImage{processed: processed}

	variants := []struct {
		name string
		v    assets.Variant
	}{
		{constants.VariantOriginal, processed.Original},
		{constants.VariantWeb, processed.Web},
		{constants.VariantThumb, processed.Thumb},
	}

	for _, variant := range variants {
		row := &models.MessageAsset{
			ID:         uuid.New().String(),
			MessageID:  msg.MessageID,
			TicketID:   msg.TicketID,
			Kind:       kind,
			ContentID:  contentID,
			Filename:   filename,
			MIME:       variant.v.MIME,
			Size:       variant.v.Size,
			SHA256:     processed.Hash,
			Width:      intPtr(variant.v.Width),
			Height:     intPtr(variant.v.Height),
			StorageKey: variant.v.StorageKey,
			Variant:    variant.name,
		}

		if err := s.repo.CreateAsset(ctx, row); err != nil {
			return nil, err
		}

		metrics.IncAssetStored(kind, variant.name)
		*rowsPersisted++

		if variant.name == constants.VariantWeb {
			img.webAssetID = row.ID
		}
	}

	byHash[hash] = img
	return img, nil
}

func (s *Service) publishProcessedEvent(ctx context.Context, ticketID string, result *models.ProcessResult) {
	if s.producer == nil {
		return
	}

	topic := s.cfg.Broker.Kafka.ProcessedTopic
	if topic == "" {
		topic = constants.DefaultProcessedTopic
	}

	event := models.ProcessedEmailEvent{
		MessageID:         result.MessageID,
		TicketID:          ticketID,
		AssetsCount:       result.AssetsCount,
		InlineImagesCount: result.InlineImagesCount,
		AttachmentsCount:  result.AttachmentsCount,
		ProcessedAt:       time.Now(),
	}

	if err := s.producer.Publish(ctx, topic, event); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to publish processed-email event",
			"topic", topic,
			"error", err,
		)
	}
}

func intPtr(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
}
