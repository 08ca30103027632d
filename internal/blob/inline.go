package blob

import (
	"bytes"
	"fmt"
	"time"

	"carevault/internal/models"
)

// EncodeInline wraps a small payload in an inline descriptor. Pure and
// synchronous; the buffer is copied so the caller may reuse it. Size policy
// is the selector's job, not enforced here.
func EncodeInline(data []byte, contentType, fileName string) models.FileDescriptor {
	payload := bytes.Clone(data)
	return models.FileDescriptor{
		StorageMode:   string(models.StorageModeInline),
		ContentType:   contentType,
		FileName:      fileName,
		SizeBytes:     int64(len(payload)),
		UploadDate:    time.Now().UTC(),
		InlinePayload: payload,
	}
}

// DecodeInline returns the embedded payload of an inline descriptor.
func DecodeInline(desc *models.FileDescriptor) ([]byte, error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: descriptor is required", ErrValidation)
	}
	if !desc.Inline() {
		return nil, fmt.Errorf("%w: descriptor is not inline", ErrValidation)
	}
	return desc.InlinePayload, nil
}
