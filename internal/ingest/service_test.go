package ingest

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailroom/internal/mailparse"
	"mailroom/pkg/errors"
	"mailroom/pkg/metrics"
	"mailroom/pkg/models"
)

func inlinePNGMIME(t *testing.T) []byte {
	t.Helper()

	pngB64 := base64.StdEncoding.EncodeToString(makeTestPNG(t, 640, 480))
	raw := fmt.Sprintf(`From: Alice <alice@example.com>
Subject: Logo attached
Message-Id: <msg-e2e-1@example.com>
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/related; boundary="inner"

--inner
Content-Type: text/html; charset="utf-8"

<p>Here is our logo: <img src="cid:logo123"></p>
--inner
Content-Type: image/png; name="logo.png"
Content-Id: <logo123>
Content-Transfer-Encoding: base64
Content-Disposition: inline

%s
--inner--
--outer
Content-Type: application/pdf; name="report.pdf"
Content-Transfer-Encoding: base64
Content-Disposition: attachment; filename="report.pdf"

JVBERi0xLjQK
--outer--
`, pngB64)
	return []byte(strings.ReplaceAll(raw, "\n", "\r\n"))
}

func sanitizeSampleCount(t *testing.T) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.SanitizeDuration.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestIngestService_Process_SanitizeObservedOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	before := sanitizeSampleCount(t)

	_, err := env.svc.Process(ctx, "T-100", mailparse.MIMEEnvelope(inlinePNGMIME(t)))
	require.NoError(t, err)

	assert.Equal(t, before+1, sanitizeSampleCount(t), "one pipeline run records exactly one sanitize duration")
}

func TestIngestService_Process_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.svc.Process(ctx, "T-100", mailparse.MIMEEnvelope(inlinePNGMIME(t)))
	require.NoError(t, err)

	assert.Equal(t, "msg-e2e-1@example.com", result.MessageID)
	assert.False(t, result.Duplicate)
	assert.Equal(t, 1, result.InlineImagesCount)
	assert.Equal(t, 0, result.AttachmentsCount, "the pdf is not an image and must be skipped")
	assert.Equal(t, 3, result.AssetsCount, "one image yields original, web and thumb rows")

	msg, err := env.repo.GetMessageByMessageID(ctx, result.MessageID)
	require.NoError(t, err)
	assert.Equal(t, "T-100", msg.TicketID)
	assert.Equal(t, "alice@example.com", msg.From)
	assert.Contains(t, msg.HTMLRaw, "cid:logo123")

	require.NotNil(t, msg.HTMLSanitized)
	assert.NotContains(t, *msg.HTMLSanitized, "cid:logo123")
	assert.Contains(t, *msg.HTMLSanitized, "/api/v1/assets/")
	assert.Contains(t, *msg.HTMLSanitized, "token=")
	assert.Contains(t, *msg.HTMLSanitized, `loading="lazy"`)

	rows := env.repo.assetsFor(result.MessageID)
	require.Len(t, rows, 3)

	variants := make(map[string]*models.MessageAsset)
	for _, row := range rows {
		variants[row.Variant] = row
		assert.Equal(t, "inline", row.Kind)
		require.NotNil(t, row.ContentID)
		assert.Equal(t, "logo123", *row.ContentID)
		assert.NotEmpty(t, row.SHA256)
		assert.Contains(t, row.StorageKey, "tickets/T-100/"+row.SHA256+"/")
	}
	require.Len(t, variants, 3)
	assert.Equal(t, "image/png", variants["original"].MIME)
	assert.Equal(t, "image/webp", variants["web"].MIME)
	assert.Equal(t, "image/webp", variants["thumb"].MIME)
	assert.Equal(t, variants["original"].SHA256, variants["web"].SHA256)

	// Every variant landed in the object store.
	for _, row := range rows {
		data, err := env.store.Get(ctx, row.StorageKey)
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	}
}

func TestIngestService_Process_SignedURLGrantsAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.svc.Process(ctx, "T-100", mailparse.MIMEEnvelope(inlinePNGMIME(t)))
	require.NoError(t, err)

	msg, err := env.repo.GetMessageByMessageID(ctx, result.MessageID)
	require.NoError(t, err)

	// Pull the minted token back out of the rewritten HTML and verify
	// its claims line up with the stored web asset.
	html := *msg.HTMLSanitized
	idx := strings.Index(html, "token=")
	require.Greater(t, idx, 0)
	token := html[idx+len("token="):]
	token = token[:strings.IndexAny(token, `"&`)]

	claims := env.signer.ParseToken(token)
	require.NotNil(t, claims)
	assert.Equal(t, "T-100", claims.Audience)
	assert.Equal(t, "web", claims.Variant)

	asset, err := env.repo.GetAssetByID(ctx, claims.AssetID)
	require.NoError(t, err)
	assert.Equal(t, "web", asset.Variant)
}

func TestIngestService_Process_DuplicateShortCircuit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.Process(ctx, "T-1", mailparse.MIMEEnvelope(inlinePNGMIME(t)))
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	second, err := env.svc.Process(ctx, "T-1", mailparse.MIMEEnvelope(inlinePNGMIME(t)))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.AssetsCount, second.AssetsCount)
	assert.Zero(t, second.InlineImagesCount)
	assert.Zero(t, second.AttachmentsCount)

	// No additional rows or messages were created.
	assert.Len(t, env.repo.assetsFor(first.MessageID), 3)
	assert.Len(t, env.repo.messages, 1)
}

func TestIngestService_Process_UnsupportedFormat(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Process(context.Background(), "T-1", mailparse.Envelope{})
	assert.True(t, errors.IsUnsupportedFormat(err))
	assert.Empty(t, env.repo.messages, "nothing may be persisted for an unparseable email")
}

func TestIngestService_Process_OversizedPartAbortsBeforePersistence(t *testing.T) {
	env := newTestEnv(t)

	pre := models.ParsedEmail{
		MessageID: "big-part@example.com",
		HTML:      "<p>big</p>",
		Parts: []models.EmailPart{
			{
				Filename:    "huge.png",
				ContentType: "image/png",
				Disposition: "inline",
				ContentID:   "huge",
				Content:     []byte{1},
				Size:        10 << 20, // over the 1MB test limit
			},
		},
	}

	_, err := env.svc.Process(context.Background(), "T-1", mailparse.PartsEnvelope(pre))
	assert.True(t, errors.IsPayloadTooLarge(err))
	assert.Empty(t, env.repo.messages)
	assert.Empty(t, env.repo.assets)
}

func TestIngestService_Process_OversizedTotalAbortsBeforePersistence(t *testing.T) {
	env := newTestEnv(t)

	part := models.EmailPart{
		Filename:    "a.bin",
		ContentType: "application/octet-stream",
		Disposition: "attachment",
		Content:     []byte{1},
		Size:        900 << 10,
	}
	pre := models.ParsedEmail{
		MessageID: "big-total@example.com",
		Parts:     []models.EmailPart{part, part, part},
	}

	_, err := env.svc.Process(context.Background(), "T-1", mailparse.PartsEnvelope(pre))
	assert.True(t, errors.IsPayloadTooLarge(err))
	assert.Empty(t, env.repo.messages)
}

func TestIngestService_Process_PerImageFailureIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	valid := makeTestPNG(t, 64, 64)
	pre := models.ParsedEmail{
		MessageID: "partial@example.com",
		HTML:      `<p><img src="cid:good"> and <img src="cid:bad"></p>`,
		Parts: []models.EmailPart{
			{ContentID: "good", Filename: "good.png", ContentType: "image/png", Disposition: "inline", Content: valid, Size: int64(len(valid))},
			{ContentID: "bad", Filename: "bad.png", ContentType: "image/png", Disposition: "inline", Content: []byte("not an image"), Size: 12},
		},
	}

	result, err := env.svc.Process(ctx, "T-2", mailparse.PartsEnvelope(pre))
	require.NoError(t, err, "a corrupt image must not abort the pipeline")

	assert.Equal(t, 1, result.InlineImagesCount)
	assert.Equal(t, 3, result.AssetsCount)

	msg, err := env.repo.GetMessageByMessageID(ctx, result.MessageID)
	require.NoError(t, err)
	require.NotNil(t, msg.HTMLSanitized)
	assert.NotContains(t, *msg.HTMLSanitized, "cid:good")
	// The unresolvable reference stays verbatim instead of being dropped.
	assert.Contains(t, *msg.HTMLSanitized, "cid:bad")
}

func TestIngestService_Process_DataURIImages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pngB64 := base64.StdEncoding.EncodeToString(makeTestPNG(t, 48, 48))
	pre := models.ParsedEmail{
		MessageID: "datauri@example.com",
		HTML:      fmt.Sprintf(`<p><img src="data:image/png;base64,%s"></p>`, pngB64),
	}

	result, err := env.svc.Process(ctx, "T-3", mailparse.PartsEnvelope(pre))
	require.NoError(t, err)

	assert.Equal(t, 1, result.InlineImagesCount)
	assert.Equal(t, 3, result.AssetsCount)

	msg, err := env.repo.GetMessageByMessageID(ctx, result.MessageID)
	require.NoError(t, err)
	require.NotNil(t, msg.HTMLSanitized)
	assert.NotContains(t, *msg.HTMLSanitized, "base64,")
	assert.Contains(t, *msg.HTMLSanitized, "/api/v1/assets/")

	for _, row := range env.repo.assetsFor(result.MessageID) {
		assert.Equal(t, "inline", row.Kind)
		assert.Nil(t, row.ContentID, "data-uri images carry no content id")
	}
}

func TestIngestService_Process_ImageAttachment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	photo := makeTestPNG(t, 128, 96)
	pre := models.ParsedEmail{
		MessageID: "attach@example.com",
		HTML:      "<p>photo attached</p>",
		Parts: []models.EmailPart{
			{Filename: "photo.png", ContentType: "image/png", Disposition: "attachment", Content: photo, Size: int64(len(photo))},
			{Filename: "notes.txt", ContentType: "text/plain", Disposition: "attachment", Content: []byte("notes"), Size: 5},
		},
	}

	result, err := env.svc.Process(ctx, "T-4", mailparse.PartsEnvelope(pre))
	require.NoError(t, err)

	assert.Equal(t, 1, result.AttachmentsCount)
	assert.Equal(t, 0, result.InlineImagesCount)
	assert.Equal(t, 3, result.AssetsCount)

	for _, row := range env.repo.assetsFor(result.MessageID) {
		assert.Equal(t, "attachment", row.Kind)
	}
}

func TestIngestService_Process_RepeatedImageProcessedOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	photo := makeTestPNG(t, 64, 64)
	pre := models.ParsedEmail{
		MessageID: "repeat@example.com",
		HTML:      `<p><img src="cid:one"> <img src="cid:two"></p>`,
		Parts: []models.EmailPart{
			{ContentID: "one", Filename: "a.png", ContentType: "image/png", Disposition: "inline", Content: photo, Size: int64(len(photo))},
			{ContentID: "two", Filename: "b.png", ContentType: "image/png", Disposition: "inline", Content: photo, Size: int64(len(photo))},
		},
	}

	result, err := env.svc.Process(ctx, "T-5", mailparse.PartsEnvelope(pre))
	require.NoError(t, err)

	// Identical bytes are derived and stored once; both CIDs resolve.
	assert.Equal(t, 3, result.AssetsCount)

	msg, err := env.repo.GetMessageByMessageID(ctx, result.MessageID)
	require.NoError(t, err)
	assert.NotContains(t, *msg.HTMLSanitized, "cid:one")
	assert.NotContains(t, *msg.HTMLSanitized, "cid:two")
}

func TestIngestService_Process_TNEFPlaceholder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tnefBlob := []byte{0x78, 0x9f, 0x3e, 0x22, 0x00, 0x00, 0x00, 0x00}
	pre := models.ParsedEmail{
		MessageID: "tnef@example.com",
		HTML:      "<p>from outlook</p>",
		Parts: []models.EmailPart{
			{Filename: "winmail.dat", ContentType: "application/ms-tnef", Disposition: "attachment", Content: tnefBlob, Size: int64(len(tnefBlob))},
		},
	}

	result, err := env.svc.Process(ctx, "T-6", mailparse.PartsEnvelope(pre))
	require.NoError(t, err)

	// The placeholder text part is not an image, so nothing is stored.
	assert.Zero(t, result.AssetsCount)
	assert.Zero(t, result.AttachmentsCount)
	assert.Len(t, env.repo.messages, 1)
}

func TestIngestService_Process_DedupFallbackAllow(t *testing.T) {
	env := newTestEnv(t)
	env.svc.cfg.Ingest.Dedup.Enabled = true
	env.svc.cfg.Ingest.Dedup.OnRedisError = "allow"
	env.dedup.err = fmt.Errorf("redis unreachable")

	result, err := env.svc.Process(context.Background(), "T-7", mailparse.MIMEEnvelope(inlinePNGMIME(t)))
	require.NoError(t, err, "a redis outage must not block ingestion with fallback allow")
	assert.False(t, result.Duplicate)
}

func TestIngestService_Process_DedupFallbackDeny(t *testing.T) {
	env := newTestEnv(t)
	env.svc.cfg.Ingest.Dedup.Enabled = true
	env.svc.cfg.Ingest.Dedup.OnRedisError = "deny"
	env.dedup.err = fmt.Errorf("redis unreachable")

	_, err := env.svc.Process(context.Background(), "T-7", mailparse.MIMEEnvelope(inlinePNGMIME(t)))
	require.Error(t, err)
	assert.Empty(t, env.repo.messages)
}
