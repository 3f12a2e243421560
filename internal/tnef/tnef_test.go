package tnef

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailroom/pkg/models"
)

func tnefBlob() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], Signature)
	return buf
}

func TestIsTNEF(t *testing.T) {
	tests := []struct {
		name string
		part models.EmailPart
		want bool
	}{
		{
			name: "winmail.dat filename",
			part: models.EmailPart{Filename: "winmail.dat", ContentType: "application/octet-stream"},
			want: true,
		},
		{
			name: "filename case insensitive",
			part: models.EmailPart{Filename: "WinMail.DAT"},
			want: true,
		},
		{
			name: "ms-tnef mime",
			part: models.EmailPart{Filename: "data.bin", ContentType: "application/ms-tnef"},
			want: true,
		},
		{
			name: "vnd.ms-tnef mime",
			part: models.EmailPart{Filename: "data.bin", ContentType: "application/vnd.ms-tnef"},
			want: true,
		},
		{
			name: "ordinary attachment",
			part: models.EmailPart{Filename: "report.pdf", ContentType: "application/pdf"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTNEF(tt.part))
		})
	}
}

func TestExtractPartsInvalidSignature(t *testing.T) {
	assert.Empty(t, ExtractParts([]byte("not tnef at all")))
	assert.Empty(t, ExtractParts([]byte{0x22}))
	assert.Empty(t, ExtractParts(nil))
}

func TestExtractPartsValidSignature(t *testing.T) {
	parts := ExtractParts(tnefBlob())

	require.Len(t, parts, 1)
	assert.Equal(t, "text/plain", parts[0].ContentType)
	assert.Contains(t, string(parts[0].Content), "could not be decoded")
	assert.Equal(t, int64(len(parts[0].Content)), parts[0].Size)
}

func TestProcessParts(t *testing.T) {
	pdf := models.EmailPart{Filename: "report.pdf", ContentType: "application/pdf", Content: []byte("pdf")}
	winmail := models.EmailPart{Filename: "winmail.dat", ContentType: "application/ms-tnef", Content: tnefBlob()}
	badWinmail := models.EmailPart{Filename: "winmail.dat", Content: []byte("junk")}

	out := ProcessParts([]models.EmailPart{pdf, winmail, badWinmail})

	// pdf passes through, valid tnef becomes a placeholder, invalid tnef vanishes
	require.Len(t, out, 2)
	assert.Equal(t, "report.pdf", out[0].Filename)
	assert.Equal(t, "winmail.txt", out[1].Filename)
}
