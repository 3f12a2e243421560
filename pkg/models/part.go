package models

// EmailPart is one decoded body part or attachment. Parts are produced
// by the parser and consumed within a single pipeline run; they are
// never persisted directly.
type EmailPart struct {
	ContentID   string `json:"content_id,omitempty"` // normalized, no angle brackets
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Disposition string `json:"disposition"` // "inline" or "attachment"
	Content     []byte `json:"content,omitempty"`
	Size        int64  `json:"size"`
}

// ParsedEmail is the format-agnostic shape every wire format normalizes
// into before the pipeline runs.
type ParsedEmail struct {
	MessageID string
	From      string
	Subject   string
	HTML      string
	Text      string
	Parts     []EmailPart
}
