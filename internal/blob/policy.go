package blob

import (
	"fmt"
	"mime"
	"strings"

	"carevault/internal/models"
)

// Default policy values. The inline thresholds bound what may be embedded in
// a stage record and depend on the record store's maximum row size, so they
// are configuration, not constants.
const (
	DefaultChunkSize            = 255 * 1024 // 261120
	DefaultInlineMaxBytes       = 1 << 20
	DefaultBase64InlineMaxBytes = 768 << 10
	DefaultMaxUploadBytes       = 100 << 20
)

// DefaultAllowedContentTypes is the upload allow-list in the reference
// deployment.
var DefaultAllowedContentTypes = []string{
	"application/pdf",
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/gif",
}

// SourceEncoding identifies the upload path a payload arrived on.
type SourceEncoding string

const (
	// SourceRaw marks already-decoded binary uploads.
	SourceRaw SourceEncoding = "raw"
	// SourceBase64 marks base64 text uploads, where size is estimated from
	// encoded length before the true size is known.
	SourceBase64 SourceEncoding = "base64"
)

// Policy selects a storage mode per upload and validates content types.
type Policy struct {
	// InlineMaxBytes is the inline threshold for raw-binary uploads.
	InlineMaxBytes int64
	// Base64InlineMaxBytes is the inline threshold for base64 uploads. Kept
	// separate from InlineMaxBytes on purpose: the two ingestion paths carry
	// independently tuned cutoffs.
	Base64InlineMaxBytes int64
	// ChunkSize is the fixed chunk length for chunked storage.
	ChunkSize int
	// MaxUploadBytes is the hard maximum the chunked path accepts.
	MaxUploadBytes int64

	allowed map[string]struct{}
}

// NewPolicy builds a policy, filling zero fields with defaults.
func NewPolicy(inlineMax, base64InlineMax int64, chunkSize int, maxUpload int64, allowedContentTypes []string) Policy {
	p := Policy{
		InlineMaxBytes:       inlineMax,
		Base64InlineMaxBytes: base64InlineMax,
		ChunkSize:            chunkSize,
		MaxUploadBytes:       maxUpload,
	}
	if p.InlineMaxBytes <= 0 {
		p.InlineMaxBytes = DefaultInlineMaxBytes
	}
	if p.Base64InlineMaxBytes <= 0 {
		p.Base64InlineMaxBytes = DefaultBase64InlineMaxBytes
	}
	if p.ChunkSize <= 0 {
		p.ChunkSize = DefaultChunkSize
	}
	if p.MaxUploadBytes <= 0 {
		p.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if len(allowedContentTypes) == 0 {
		allowedContentTypes = DefaultAllowedContentTypes
	}
	p.allowed = make(map[string]struct{}, len(allowedContentTypes))
	for _, raw := range allowedContentTypes {
		normalized, err := normalizeContentType(raw)
		if err != nil || normalized == "" {
			continue
		}
		p.allowed[normalized] = struct{}{}
	}
	return p
}

// Decide selects the storage mode for a payload of the given size. Ties at
// the threshold resolve to inline. The decision is deterministic and does not
// depend on anything but size and the ingestion path.
func (p Policy) Decide(sizeBytes int64, encoding SourceEncoding) models.StorageMode {
	threshold := p.InlineMaxBytes
	if encoding == SourceBase64 {
		threshold = p.Base64InlineMaxBytes
	}
	if sizeBytes <= threshold {
		return models.StorageModeInline
	}
	return models.StorageModeChunked
}

// CheckContentType validates a declared content type against the allow-list.
// Validation precedes any storage decision.
func (p Policy) CheckContentType(contentType string) error {
	normalized, err := normalizeContentType(contentType)
	if err != nil || normalized == "" {
		return fmt.Errorf("%w: invalid content type %q", ErrUnsupportedMediaType, contentType)
	}
	if _, ok := p.allowed[normalized]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedMediaType, normalized)
	}
	return nil
}

// CheckSize enforces the hard upload maximum.
func (p Policy) CheckSize(sizeBytes int64) error {
	if sizeBytes > p.MaxUploadBytes {
		return fmt.Errorf("%w: %d bytes exceeds maximum of %d", ErrSizeExceeded, sizeBytes, p.MaxUploadBytes)
	}
	return nil
}

// EstimateDecodedSize estimates the decoded byte size of a base64 payload
// from its encoded length.
func EstimateDecodedSize(encodedLen int) int64 {
	return int64(encodedLen) * 3 / 4
}

func normalizeContentType(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	parsed, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(parsed)), nil
}
