package mailparse

import (
	"bytes"
	"io"
	"strings"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	htmlcharset "golang.org/x/net/html/charset"

	"mailroom/internal/constants"
	"mailroom/pkg/errors"
	"mailroom/pkg/models"
)

func init() {
	gomessage.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return htmlcharset.NewReaderLabel(charset, input)
	}
}

func parseMIME(raw []byte) (*models.ParsedEmail, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrUnsupportedFormat)
	}
	defer mr.Close()

	parsed := &models.ParsedEmail{}

	if id, err := mr.Header.MessageID(); err == nil {
		parsed.MessageID = id
	} else {
		parsed.MessageID = normalizeID(mr.Header.Get("Message-Id"))
	}
	if subject, err := mr.Header.Subject(); err == nil {
		parsed.Subject = subject
	}
	if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		parsed.From = addrs[0].Address
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrUnsupportedFormat)
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			if err := collectInlinePart(parsed, p, h); err != nil {
				return nil, err
			}
		case *mail.AttachmentHeader:
			if err := collectAttachmentPart(parsed, p, h); err != nil {
				return nil, err
			}
		}
	}

	return parsed, nil
}

// collectInlinePart routes text bodies into the parsed email and keeps
// every other inline part (inline images primarily) as an EmailPart.
func collectInlinePart(parsed *models.ParsedEmail, p *mail.Part, h *mail.InlineHeader) error {
	contentType, params, err := h.ContentType()
	if err != nil {
		contentType = "application/octet-stream"
	}

	body, err := io.ReadAll(p.Body)
	if err != nil {
		return errors.Wrap(err, errors.ErrUnsupportedFormat)
	}

	contentID := normalizeID(h.Get("Content-Id"))

	switch {
	case contentType == "text/html" && contentID == "":
		if parsed.HTML == "" {
			parsed.HTML = string(body)
		}
	case contentType == "text/plain" && contentID == "":
		if parsed.Text == "" {
			parsed.Text = string(body)
		}
	default:
		parsed.Parts = append(parsed.Parts, models.EmailPart{
			ContentID:   contentID,
			Filename:    partFilename(params, contentID),
			ContentType: contentType,
			Disposition: constants.DispositionInline,
			Content:     body,
			Size:        int64(len(body)),
		})
	}
	return nil
}

func collectAttachmentPart(parsed *models.ParsedEmail, p *mail.Part, h *mail.AttachmentHeader) error {
	contentType, params, err := h.ContentType()
	if err != nil {
		contentType = "application/octet-stream"
	}

	body, err := io.ReadAll(p.Body)
	if err != nil {
		return errors.Wrap(err, errors.ErrUnsupportedFormat)
	}

	filename, err := h.Filename()
	if err != nil || filename == "" {
		filename = partFilename(params, "")
	}

	parsed.Parts = append(parsed.Parts, models.EmailPart{
		ContentID:   normalizeID(h.Get("Content-Id")),
		Filename:    filename,
		ContentType: contentType,
		Disposition: constants.DispositionAttachment,
		Content:     body,
		Size:        int64(len(body)),
	})
	return nil
}

func partFilename(params map[string]string, contentID string) string {
	if name := params["name"]; name != "" {
		return name
	}
	if contentID != "" {
		// Keep a usable filename for CID-only inline parts.
		return strings.ReplaceAll(contentID, "/", "_")
	}
	return "unnamed"
}
