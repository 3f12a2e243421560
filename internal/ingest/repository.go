package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	pkgerrors "mailroom/pkg/errors"
	"mailroom/pkg/metrics"
	"mailroom/pkg/models"
)

type Repository interface {
	GetMessageByMessageID(ctx context.Context, messageID string) (*models.InboundMessage, error)
	CreateMessage(ctx context.Context, msg *models.InboundMessage) error
	UpdateMessageSanitizedHTML(ctx context.Context, id, html string) error
	CreateAsset(ctx context.Context, asset *models.MessageAsset) error
	CountAssetsByMessageID(ctx context.Context, messageID string) (int, error)
	ListInlineAssets(ctx context.Context, messageID, variant string) ([]models.MessageAsset, error)
	GetAssetByID(ctx context.Context, id string) (*models.MessageAsset, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetMessageByMessageID(ctx context.Context, messageID string) (*models.InboundMessage, error) {
	query := `
		SELECT id, message_id, ticket_id, from_addr, subject, received_at,
		       html_raw, text_raw, html_sanitized, created_at, updated_at
		FROM inbound_messages
		WHERE message_id = $1
	`

	row := r.db.QueryRowContext(ctx, query, messageID)

	var msg models.InboundMessage
	var htmlRaw, textRaw sql.NullString
	err := row.Scan(
		&msg.ID, &msg.MessageID, &msg.TicketID, &msg.From, &msg.Subject,
		&msg.ReceivedAt, &htmlRaw, &textRaw, &msg.HTMLSanitized,
		&msg.CreatedAt, &msg.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithCause(err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	msg.HTMLRaw = htmlRaw.String
	msg.TextRaw = textRaw.String
	return &msg, nil
}

func (r *PostgresRepository) CreateMessage(ctx context.Context, msg *models.InboundMessage) error {
	now := time.Now()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	query := `
		INSERT INTO inbound_messages (id, message_id, ticket_id, from_addr, subject,
		                              received_at, html_raw, text_raw, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		msg.ID, msg.MessageID, msg.TicketID, msg.From, msg.Subject,
		msg.ReceivedAt, msg.HTMLRaw, msg.TextRaw, msg.CreatedAt, msg.UpdatedAt,
	)
	r.recordQuery("create_message", start, err)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return pkgerrors.ErrConflict.WithCause(err).
				WithDetail("message", fmt.Sprintf("message %s already ingested", msg.MessageID))
		}
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

func (r *PostgresRepository) UpdateMessageSanitizedHTML(ctx context.Context, id, html string) error {
	query := `
		UPDATE inbound_messages
		SET html_sanitized = $1, updated_at = $2
		WHERE id = $3
	`

	start := time.Now()
	res, err := r.db.ExecContext(ctx, query, html, time.Now(), id)
	r.recordQuery("update_sanitized_html", start, err)

	if err != nil {
		return fmt.Errorf("failed to update sanitized html: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("message %s not found", id))
	}

	return nil
}

func (r *PostgresRepository) CreateAsset(ctx context.Context, asset *models.MessageAsset) error {
	asset.CreatedAt = time.Now()

	query := `
		INSERT INTO message_assets (id, message_id, ticket_id, kind, content_id, filename,
		                            mime, size, sha256, width, height, storage_key, variant, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		asset.ID, asset.MessageID, asset.TicketID, asset.Kind, asset.ContentID,
		asset.Filename, asset.MIME, asset.Size, asset.SHA256, asset.Width,
		asset.Height, asset.StorageKey, asset.Variant, asset.CreatedAt,
	)
	r.recordQuery("create_asset", start, err)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return pkgerrors.ErrConflict.WithCause(err).
				WithDetail("message", fmt.Sprintf("asset %s already stored for message %s", asset.StorageKey, asset.MessageID))
		}
		return fmt.Errorf("failed to create asset: %w", err)
	}

	return nil
}

func (r *PostgresRepository) CountAssetsByMessageID(ctx context.Context, messageID string) (int, error) {
	query := `SELECT COUNT(*) FROM message_assets WHERE message_id = $1`

	var count int
	if err := r.db.QueryRowContext(ctx, query, messageID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count assets: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) ListInlineAssets(ctx context.Context, messageID, variant string) ([]models.MessageAsset, error) {
	query := `
		SELECT id, message_id, ticket_id, kind, content_id, filename, mime,
		       size, sha256, width, height, storage_key, variant, created_at
		FROM message_assets
		WHERE message_id = $1 AND variant = $2 AND kind = 'inline' AND content_id IS NOT NULL
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, messageID, variant)
	if err != nil {
		return nil, fmt.Errorf("failed to list inline assets: %w", err)
	}
	defer rows.Close()

	var assets []models.MessageAsset
	for rows.Next() {
		var asset models.MessageAsset
		if err := rows.Scan(
			&asset.ID, &asset.MessageID, &asset.TicketID, &asset.Kind,
			&asset.ContentID, &asset.Filename, &asset.MIME, &asset.Size,
			&asset.SHA256, &asset.Width, &asset.Height, &asset.StorageKey,
			&asset.Variant, &asset.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assets: %w", err)
	}

	return assets, nil
}

func (r *PostgresRepository) GetAssetByID(ctx context.Context, id string) (*models.MessageAsset, error) {
	query := `
		SELECT id, message_id, ticket_id, kind, content_id, filename, mime,
		       size, sha256, width, height, storage_key, variant, created_at
		FROM message_assets
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	var asset models.MessageAsset
	err := row.Scan(
		&asset.ID, &asset.MessageID, &asset.TicketID, &asset.Kind,
		&asset.ContentID, &asset.Filename, &asset.MIME, &asset.Size,
		&asset.SHA256, &asset.Width, &asset.Height, &asset.StorageKey,
		&asset.Variant, &asset.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithCause(err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	return &asset, nil
}

func (r *PostgresRepository) recordQuery(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.IncDatabaseQuery("ingest", operation, status)
	metrics.ObserveDatabaseQueryDuration("ingest", operation, time.Since(start))
}
