package models

import "time"

// InboundMessage is one uniquely identified inbound email. MessageID is
// the wire-level identifier and the idempotency key; HTMLSanitized stays
// nil until the pipeline completes.
type InboundMessage struct {
	ID            string     `json:"id"`
	MessageID     string     `json:"message_id"`
	TicketID      string     `json:"ticket_id"`
	From          string     `json:"from"`
	Subject       string     `json:"subject"`
	ReceivedAt    time.Time  `json:"received_at"`
	HTMLRaw       string     `json:"html_raw,omitempty"`
	TextRaw       string     `json:"text_raw,omitempty"`
	HTMLSanitized *string    `json:"html_sanitized,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// MessageAsset is one stored binary variant. The three variants of one
// source image share a SHA256 but carry distinct storage keys.
type MessageAsset struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"message_id"`
	TicketID   string    `json:"ticket_id"`
	Kind       string    `json:"kind"` // "inline" or "attachment"
	ContentID  *string   `json:"content_id,omitempty"`
	Filename   string    `json:"filename"`
	MIME       string    `json:"mime"`
	Size       int64     `json:"size"`
	SHA256     string    `json:"sha256"`
	Width      *int      `json:"width,omitempty"`
	Height     *int      `json:"height,omitempty"`
	StorageKey string    `json:"storage_key"`
	Variant    string    `json:"variant"` // "original", "web" or "thumb"
	CreatedAt  time.Time `json:"created_at"`
}

// ProcessResult summarizes one pipeline run. AssetsCount counts variant
// rows, not source images.
type ProcessResult struct {
	MessageID         string `json:"message_id"`
	AssetsCount       int    `json:"assets_count"`
	InlineImagesCount int    `json:"inline_images_count"`
	AttachmentsCount  int    `json:"attachments_count"`
	Duplicate         bool   `json:"duplicate"`
}
