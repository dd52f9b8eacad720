package domain

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// MaxAttachmentBytes caps one attachment payload (2 MiB). The record store has
// no size budget of its own, so oversized blobs are refused at ingestion.
const MaxAttachmentBytes = 2 << 20

// defaultMimeType is recorded when the uploader does not supply one.
const defaultMimeType = "application/octet-stream"

// Attachment stores one file in a deal's activity log.
// Payload is an opaque data URL and is never decoded by the pipeline.
type Attachment struct {
	ID        int64
	Name      string
	SizeLabel string
	SizeBytes int64
	Date      time.Time
	MimeType  string
	Payload   string
}

// AttachmentInput holds file metadata for attachment ingestion.
type AttachmentInput struct {
	Name     string
	MimeType string
}

// NewAttachment encodes file bytes into an attachment record.
func NewAttachment(id int64, in AttachmentInput, data []byte, now time.Time) (Attachment, error) {
	if id <= 0 {
		return Attachment{}, ErrInvalidID
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Attachment{}, ErrInvalidAttachment
	}
	if len(data) > MaxAttachmentBytes {
		return Attachment{}, ErrAttachmentTooLarge
	}
	mimeType := strings.TrimSpace(in.MimeType)
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	size := int64(len(data))
	return Attachment{
		ID:        id,
		Name:      name,
		SizeLabel: humanize.IBytes(uint64(size)),
		SizeBytes: size,
		Date:      now.UTC(),
		MimeType:  mimeType,
		Payload:   EncodeDataURL(mimeType, data),
	}, nil
}

// EncodeDataURL renders bytes as a base64 data URL.
func EncodeDataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
