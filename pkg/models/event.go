package models

import "time"

// ProcessedEmailEvent is published after a pipeline run finalizes a
// message. Consumers (ticket UI cache invalidation, notifications) are
// outside this repository.
type ProcessedEmailEvent struct {
	MessageID         string    `json:"message_id"`
	TicketID          string    `json:"ticket_id"`
	AssetsCount       int       `json:"assets_count"`
	InlineImagesCount int       `json:"inline_images_count"`
	AttachmentsCount  int       `json:"attachments_count"`
	ProcessedAt       time.Time `json:"processed_at"`
}
