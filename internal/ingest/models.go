package ingest

import (
	"encoding/base64"
	"encoding/json"

	"mailroom/internal/mailparse"
	"mailroom/pkg/errors"
	"mailroom/pkg/models"
)

// EmailRequest is the JSON body of the ingest endpoint. Raw MIME can
// alternatively be posted directly with Content-Type message/rfc822.
type EmailRequest struct {
	Format string              `json:"format" binding:"required"`
	Graph  json.RawMessage     `json:"graph,omitempty"`
	MIME   string              `json:"mime,omitempty"` // base64-encoded RFC 5322 message
	Parts  *models.ParsedEmail `json:"parts,omitempty"`
}

// Envelope maps the request onto a tagged parser envelope.
func (r *EmailRequest) Envelope() (mailparse.Envelope, error) {
	switch r.Format {
	case "graph":
		if len(r.Graph) == 0 {
			return mailparse.Envelope{}, errors.ErrValidation.WithDetail("message", "graph payload is required for format graph")
		}
		return mailparse.GraphEnvelope(r.Graph), nil
	case "mime":
		raw, err := base64.StdEncoding.DecodeString(r.MIME)
		if err != nil {
			return mailparse.Envelope{}, errors.ErrValidation.WithCause(err).WithDetail("message", "mime payload must be base64")
		}
		if len(raw) == 0 {
			return mailparse.Envelope{}, errors.ErrValidation.WithDetail("message", "mime payload is required for format mime")
		}
		return mailparse.MIMEEnvelope(raw), nil
	case "parts":
		if r.Parts == nil {
			return mailparse.Envelope{}, errors.ErrValidation.WithDetail("message", "parts payload is required for format parts")
		}
		return mailparse.PartsEnvelope(*r.Parts), nil
	default:
		return mailparse.Envelope{}, errors.ErrUnsupportedFormat.WithDetail("format", r.Format)
	}
}
