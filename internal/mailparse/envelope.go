// Package mailparse normalizes the supported email wire formats into
// one internal representation so the rest of the pipeline never needs
// format-specific knowledge.
package mailparse

import "mailroom/pkg/models"

const (
	formatGraph = "graph"
	formatMIME  = "mime"
	formatParts = "parts"
)

// Envelope tags a raw payload with its wire format. Callers state the
// format explicitly at construction; Parse never guesses from payload
// shape.
type Envelope struct {
	format string
	raw    []byte
	parts  *models.ParsedEmail
}

// GraphEnvelope wraps a Microsoft Graph message JSON document.
func GraphEnvelope(raw []byte) Envelope {
	return Envelope{format: formatGraph, raw: raw}
}

// MIMEEnvelope wraps a raw RFC 5322 message.
func MIMEEnvelope(raw []byte) Envelope {
	return Envelope{format: formatMIME, raw: raw}
}

// PartsEnvelope wraps an already-structured email. Parse passes it
// through unchanged.
func PartsEnvelope(pre models.ParsedEmail) Envelope {
	return Envelope{format: formatParts, parts: &pre}
}

func (e Envelope) Format() string {
	return e.format
}
