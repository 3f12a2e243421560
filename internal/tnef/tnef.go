// Package tnef detects Outlook's proprietary winmail.dat container.
//
// Only signature detection is implemented. A valid container is replaced
// by a synthetic placeholder text part so downstream consumers know an
// attachment existed but could not be decoded; full decoding would need
// a real TNEF parser and is a documented fallback, not a bug.
package tnef

import (
	"encoding/binary"
	"strings"

	"mailroom/internal/constants"
	"mailroom/pkg/models"
)

// Signature is the little-endian TNEF magic number.
const Signature = 0x223e9f78

const placeholderText = "A winmail.dat (TNEF) attachment was present but could not be decoded."

var tnefMIMETypes = map[string]struct{}{
	"application/ms-tnef":     {},
	"application/vnd.ms-tnef": {},
}

// IsTNEF detects a TNEF part by filename or declared MIME type.
func IsTNEF(part models.EmailPart) bool {
	if strings.EqualFold(part.Filename, "winmail.dat") {
		return true
	}
	mime := strings.ToLower(strings.TrimSpace(part.ContentType))
	_, ok := tnefMIMETypes[mime]
	return ok
}

// ExtractParts verifies the TNEF magic before anything else. An invalid
// signature yields an empty slice: nothing extractable, not an error. A
// valid signature yields one placeholder text part.
func ExtractParts(data []byte) []models.EmailPart {
	if len(data) < 4 {
		return nil
	}
	if binary.LittleEndian.Uint32(data[0:4]) != Signature {
		return nil
	}

	content := []byte(placeholderText)
	return []models.EmailPart{
		{
			Filename:    "winmail.txt",
			ContentType: "text/plain",
			Disposition: constants.DispositionAttachment,
			Content:     content,
			Size:        int64(len(content)),
		},
	}
}

// ProcessParts replaces every detected TNEF part with its extraction
// result and passes all other parts through unchanged.
func ProcessParts(parts []models.EmailPart) []models.EmailPart {
	out := make([]models.EmailPart, 0, len(parts))
	for _, part := range parts {
		if IsTNEF(part) {
			out = append(out, ExtractParts(part.Content)...)
			continue
		}
		out = append(out, part)
	}
	return out
}
