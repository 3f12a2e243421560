package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailroom/internal/ingest"
	"mailroom/pkg/errors"
	"mailroom/pkg/models"
)

func createStoredMessage(t *testing.T, repo ingest.Repository, messageID, ticketID string) *models.InboundMessage {
	t.Helper()

	msg := &models.InboundMessage{
		ID:         uuid.NewString(),
		MessageID:  messageID,
		TicketID:   ticketID,
		From:       "alice@example.com",
		Subject:    "test subject",
		ReceivedAt: time.Now(),
		HTMLRaw:    `<p><img src="cid:logo"></p>`,
	}
	require.NoError(t, repo.CreateMessage(context.Background(), msg))
	return msg
}

func createStoredAsset(t *testing.T, repo ingest.Repository, messageID, ticketID, kind, variant string, contentID *string) *models.MessageAsset {
	t.Helper()

	asset := &models.MessageAsset{
		ID:         uuid.NewString(),
		MessageID:  messageID,
		TicketID:   ticketID,
		Kind:       kind,
		ContentID:  contentID,
		Filename:   "logo.png",
		MIME:       "image/png",
		Size:       128,
		SHA256:     "abc123",
		StorageKey: "tickets/" + ticketID + "/abc123/" + variant + "-" + uuid.NewString(),
		Variant:    variant,
	}
	require.NoError(t, repo.CreateAsset(context.Background(), asset))
	return asset
}

func TestIngestRepository_CreateMessage_Roundtrip(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	ctx := context.Background()
	repo := ingest.NewRepository(infra.PostgresDB)

	created := createStoredMessage(t, repo, "msg-rt-1@example.com", "T-1")

	got, err := repo.GetMessageByMessageID(ctx, "msg-rt-1@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "T-1", got.TicketID)
	assert.Equal(t, "alice@example.com", got.From)
	assert.Equal(t, "test subject", got.Subject)
	assert.Contains(t, got.HTMLRaw, "cid:logo")
	assert.Nil(t, got.HTMLSanitized)
}

func TestIngestRepository_CreateMessage_DuplicateMessageID(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	ctx := context.Background()
	repo := ingest.NewRepository(infra.PostgresDB)

	createStoredMessage(t, repo, "msg-dup-1@example.com", "T-1")

	dup := &models.InboundMessage{
		ID:         uuid.NewString(),
		MessageID:  "msg-dup-1@example.com",
		TicketID:   "T-2",
		ReceivedAt: time.Now(),
	}
	err := repo.CreateMessage(ctx, dup)
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
}

func TestIngestRepository_GetMessageByMessageID_NotFound(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	repo := ingest.NewRepository(infra.PostgresDB)

	_, err := repo.GetMessageByMessageID(context.Background(), "missing@example.com")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestIngestRepository_UpdateMessageSanitizedHTML(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	ctx := context.Background()
	repo := ingest.NewRepository(infra.PostgresDB)

	created := createStoredMessage(t, repo, "msg-san-1@example.com", "T-1")

	sanitized := `<p><img src="https://app.example.com/api/v1/assets/x?token=y"></p>`
	require.NoError(t, repo.UpdateMessageSanitizedHTML(ctx, created.ID, sanitized))

	got, err := repo.GetMessageByMessageID(ctx, created.MessageID)
	require.NoError(t, err)
	require.NotNil(t, got.HTMLSanitized)
	assert.Equal(t, sanitized, *got.HTMLSanitized)
}

func TestIngestRepository_UpdateMessageSanitizedHTML_NotFound(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	repo := ingest.NewRepository(infra.PostgresDB)

	err := repo.UpdateMessageSanitizedHTML(context.Background(), uuid.NewString(), "<p>x</p>")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestIngestRepository_CreateAsset_Roundtrip(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	ctx := context.Background()
	repo := ingest.NewRepository(infra.PostgresDB)

	msg := createStoredMessage(t, repo, "msg-asset-1@example.com", "T-1")
	cid := "logo"
	asset := createStoredAsset(t, repo, msg.MessageID, msg.TicketID, "inline", "web", &cid)

	got, err := repo.GetAssetByID(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.StorageKey, got.StorageKey)
	assert.Equal(t, "inline", got.Kind)
	assert.Equal(t, "web", got.Variant)
	require.NotNil(t, got.ContentID)
	assert.Equal(t, "logo", *got.ContentID)
}

func TestIngestRepository_CreateAsset_DuplicateStorageKeySameMessage(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	ctx := context.Background()
	repo := ingest.NewRepository(infra.PostgresDB)

	msg := createStoredMessage(t, repo, "msg-asset-2@example.com", "T-1")
	asset := createStoredAsset(t, repo, msg.MessageID, msg.TicketID, "attachment", "original", nil)

	dup := *asset
	dup.ID = uuid.NewString()
	err := repo.CreateAsset(ctx, &dup)
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
}

func TestIngestRepository_CreateAsset_SameStorageKeyAcrossMessages(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	ctx := context.Background()
	repo := ingest.NewRepository(infra.PostgresDB)

	first := createStoredMessage(t, repo, "msg-asset-3@example.com", "T-1")
	second := createStoredMessage(t, repo, "msg-asset-4@example.com", "T-1")

	asset := createStoredAsset(t, repo, first.MessageID, first.TicketID, "attachment", "original", nil)

	// Identical content in two emails shares a content-addressed key;
	// each message still gets its own row.
	shared := *asset
	shared.ID = uuid.NewString()
	shared.MessageID = second.MessageID
	require.NoError(t, repo.CreateAsset(ctx, &shared))

	count, err := repo.CountAssetsByMessageID(ctx, second.MessageID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIngestRepository_ListInlineAssets_Filtering(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	ctx := context.Background()
	repo := ingest.NewRepository(infra.PostgresDB)

	msg := createStoredMessage(t, repo, "msg-list-1@example.com", "T-1")
	other := createStoredMessage(t, repo, "msg-list-2@example.com", "T-1")

	cid := "logo"
	want := createStoredAsset(t, repo, msg.MessageID, msg.TicketID, "inline", "web", &cid)
	createStoredAsset(t, repo, msg.MessageID, msg.TicketID, "inline", "original", &cid)
	createStoredAsset(t, repo, msg.MessageID, msg.TicketID, "inline", "thumb", &cid)
	createStoredAsset(t, repo, msg.MessageID, msg.TicketID, "attachment", "web", nil)
	createStoredAsset(t, repo, msg.MessageID, msg.TicketID, "inline", "web", nil)
	createStoredAsset(t, repo, other.MessageID, other.TicketID, "inline", "web", &cid)

	got, err := repo.ListInlineAssets(ctx, msg.MessageID, "web")
	require.NoError(t, err)
	require.Len(t, got, 1, "only inline web assets with a content id belong in the CID map")
	assert.Equal(t, want.ID, got[0].ID)
}

func TestIngestRepository_CountAssetsByMessageID(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	ctx := context.Background()
	repo := ingest.NewRepository(infra.PostgresDB)

	msg := createStoredMessage(t, repo, "msg-count-1@example.com", "T-1")
	cid := "logo"
	createStoredAsset(t, repo, msg.MessageID, msg.TicketID, "inline", "original", &cid)
	createStoredAsset(t, repo, msg.MessageID, msg.TicketID, "inline", "web", &cid)
	createStoredAsset(t, repo, msg.MessageID, msg.TicketID, "inline", "thumb", &cid)

	count, err := repo.CountAssetsByMessageID(ctx, msg.MessageID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = repo.CountAssetsByMessageID(ctx, "missing@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestIngestRepository_GetAssetByID_NotFound(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	repo := ingest.NewRepository(infra.PostgresDB)

	_, err := repo.GetAssetByID(context.Background(), uuid.NewString())
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}
