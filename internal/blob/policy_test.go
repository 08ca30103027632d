package blob

import (
	"errors"
	"testing"

	"carevault/internal/models"
)

func TestDecideRawThreshold(t *testing.T) {
	p := NewPolicy(0, 0, 0, 0, nil)

	cases := []struct {
		size int64
		want models.StorageMode
	}{
		{0, models.StorageModeInline},
		{10, models.StorageModeInline},
		{DefaultInlineMaxBytes - 1, models.StorageModeInline},
		{DefaultInlineMaxBytes, models.StorageModeInline}, // tie goes inline
		{DefaultInlineMaxBytes + 1, models.StorageModeChunked},
		{100 << 20, models.StorageModeChunked},
	}
	for _, tc := range cases {
		if got := p.Decide(tc.size, SourceRaw); got != tc.want {
			t.Errorf("Decide(%d, raw) = %s, want %s", tc.size, got, tc.want)
		}
	}
}

func TestDecideBase64UsesOwnThreshold(t *testing.T) {
	p := NewPolicy(1<<20, 1024, 0, 0, nil)

	if got := p.Decide(1024, SourceBase64); got != models.StorageModeInline {
		t.Errorf("Decide(1024, base64) = %s, want inline", got)
	}
	if got := p.Decide(1025, SourceBase64); got != models.StorageModeChunked {
		t.Errorf("Decide(1025, base64) = %s, want chunked", got)
	}
	// The raw path is unaffected by the base64 cutoff.
	if got := p.Decide(1025, SourceRaw); got != models.StorageModeInline {
		t.Errorf("Decide(1025, raw) = %s, want inline", got)
	}
}

func TestCheckContentType(t *testing.T) {
	p := NewPolicy(0, 0, 0, 0, nil)

	for _, ok := range []string{
		"application/pdf",
		"APPLICATION/PDF",
		"image/png",
		"image/jpeg; charset=binary",
	} {
		if err := p.CheckContentType(ok); err != nil {
			t.Errorf("CheckContentType(%q) = %v, want nil", ok, err)
		}
	}

	for _, bad := range []string{
		"text/plain",
		"application/octet-stream",
		"",
		"not a media type",
	} {
		err := p.CheckContentType(bad)
		if !errors.Is(err, ErrUnsupportedMediaType) {
			t.Errorf("CheckContentType(%q) = %v, want ErrUnsupportedMediaType", bad, err)
		}
	}
}

func TestCheckContentTypeCustomAllowList(t *testing.T) {
	p := NewPolicy(0, 0, 0, 0, []string{"application/dicom"})

	if err := p.CheckContentType("application/dicom"); err != nil {
		t.Errorf("custom type rejected: %v", err)
	}
	if err := p.CheckContentType("application/pdf"); !errors.Is(err, ErrUnsupportedMediaType) {
		t.Errorf("default type should not be allowed: %v", err)
	}
}

func TestCheckSize(t *testing.T) {
	p := NewPolicy(0, 0, 0, 1024, nil)

	if err := p.CheckSize(1024); err != nil {
		t.Errorf("CheckSize(1024) = %v, want nil", err)
	}
	if err := p.CheckSize(1025); !errors.Is(err, ErrSizeExceeded) {
		t.Errorf("CheckSize(1025) = %v, want ErrSizeExceeded", err)
	}
}

func TestNewPolicyDefaults(t *testing.T) {
	p := NewPolicy(0, 0, 0, 0, nil)
	if p.InlineMaxBytes != DefaultInlineMaxBytes {
		t.Errorf("InlineMaxBytes = %d", p.InlineMaxBytes)
	}
	if p.Base64InlineMaxBytes != DefaultBase64InlineMaxBytes {
		t.Errorf("Base64InlineMaxBytes = %d", p.Base64InlineMaxBytes)
	}
	if p.ChunkSize != DefaultChunkSize {
		t.Errorf("ChunkSize = %d", p.ChunkSize)
	}
	if p.MaxUploadBytes != DefaultMaxUploadBytes {
		t.Errorf("MaxUploadBytes = %d", p.MaxUploadBytes)
	}
}

func TestEstimateDecodedSize(t *testing.T) {
	cases := []struct {
		encodedLen int
		want       int64
	}{
		{0, 0},
		{4, 3},
		{8, 6},
		{7, 5}, // unpadded tail rounds down
		{1 << 20, 786432},
	}
	for _, tc := range cases {
		if got := EstimateDecodedSize(tc.encodedLen); got != tc.want {
			t.Errorf("EstimateDecodedSize(%d) = %d, want %d", tc.encodedLen, got, tc.want)
		}
	}
}
