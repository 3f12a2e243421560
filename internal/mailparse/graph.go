package mailparse

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"mailroom/internal/constants"
	"mailroom/pkg/errors"
	"mailroom/pkg/models"
)

// graphMessage represents the relevant fields of a Microsoft Graph
// message resource.
type graphMessage struct {
	ID                string `json:"id"`
	InternetMessageID string `json:"internetMessageId"`
	Subject           string `json:"subject"`
	From              struct {
		EmailAddress struct {
			Address string `json:"address"`
			Name    string `json:"name"`
		} `json:"emailAddress"`
	} `json:"from"`
	Body struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	Attachments []graphAttachment `json:"attachments"`
}

type graphAttachment struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentID    string `json:"contentId"`
	ContentBytes string `json:"contentBytes"`
	IsInline     bool   `json:"isInline"`
	Size         int64  `json:"size"`
}

func parseGraph(raw []byte) (*models.ParsedEmail, error) {
	var msg graphMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, errors.Wrap(err, errors.ErrUnsupportedFormat)
	}

	if msg.ID == "" && msg.InternetMessageID == "" && msg.From.EmailAddress.Address == "" {
		return nil, errors.ErrUnsupportedFormat.WithDetail("message", "payload has no Graph message fields")
	}

	// internetMessageId is stable across mailboxes; the Graph id is a
	// per-mailbox identifier and only used as a fallback.
	messageID := normalizeID(msg.InternetMessageID)
	if messageID == "" {
		messageID = msg.ID
	}

	parsed := &models.ParsedEmail{
		MessageID: messageID,
		From:      msg.From.EmailAddress.Address,
		Subject:   msg.Subject,
	}

	switch strings.ToLower(msg.Body.ContentType) {
	case "html":
		parsed.HTML = msg.Body.Content
	default:
		parsed.Text = msg.Body.Content
	}

	for _, att := range msg.Attachments {
		content, err := base64.StdEncoding.DecodeString(att.ContentBytes)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrUnsupportedFormat).
				WithDetail("attachment", att.Name)
		}

		disposition := constants.DispositionAttachment
		if att.IsInline {
			disposition = constants.DispositionInline
		}

		// Size limits are enforced against the decoded bytes, never the
		// sender-declared size field.
		size := int64(len(content))
		if att.Size > size {
			size = att.Size
		}

		parsed.Parts = append(parsed.Parts, models.EmailPart{
			ContentID:   normalizeID(att.ContentID),
			Filename:    att.Name,
			ContentType: att.ContentType,
			Disposition: disposition,
			Content:     content,
			Size:        size,
		})
	}

	return parsed, nil
}
