package mailparse

import (
	"strings"

	"mailroom/internal/constants"
	"mailroom/pkg/errors"
	"mailroom/pkg/models"
)

// Parse normalizes an envelope into a ParsedEmail. Unknown or empty
// formats fail with an unsupported-format error, which the pipeline
// treats as fatal.
func Parse(env Envelope) (*models.ParsedEmail, error) {
	switch env.format {
	case formatGraph:
		return parseGraph(env.raw)
	case formatMIME:
		return parseMIME(env.raw)
	case formatParts:
		parsed := *env.parts
		return &parsed, nil
	default:
		return nil, errors.ErrUnsupportedFormat.WithDetail("message", "no recognized email format")
	}
}

// InlineImages filters to parts that are referenceable from the HTML
// body: they carry a Content-ID, an inline disposition, and an image
// content type.
func InlineImages(parts []models.EmailPart) []models.EmailPart {
	var out []models.EmailPart
	for _, part := range parts {
		if isInlineImage(part) {
			out = append(out, part)
		}
	}
	return out
}

// Attachments is the complement of InlineImages: every part that is not
// an inline-with-CID image.
func Attachments(parts []models.EmailPart) []models.EmailPart {
	var out []models.EmailPart
	for _, part := range parts {
		if !isInlineImage(part) {
			out = append(out, part)
		}
	}
	return out
}

func isInlineImage(part models.EmailPart) bool {
	return part.ContentID != "" &&
		part.Disposition == constants.DispositionInline &&
		isImageContentType(part.ContentType)
}

func isImageContentType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}

// normalizeID strips the RFC 2392 angle brackets from a Content-ID or
// Message-ID header value.
func normalizeID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return strings.TrimSpace(id)
}
