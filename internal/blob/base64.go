package blob

import (
	"encoding/base64"
	"fmt"
	"io"
)

// Base64Decoder incrementally decodes a base64 string into binary chunks of
// at most chunkSize bytes without materializing the full decoded payload.
// It is single-pass and not restartable.
//
// Segment boundaries are aligned to multiples of four encoded characters
// (three decoded bytes), so no boundary ever splits a base64 quantum. The
// final segment may be shorter and may be unpadded.
type Base64Decoder struct {
	encoded    string
	pos        int
	encPerRead int
	failed     bool
}

// NewBase64Decoder creates a decoder producing chunks of at most chunkSize
// decoded bytes.
func NewBase64Decoder(encoded string, chunkSize int) (*Base64Decoder, error) {
	if chunkSize < 3 {
		return nil, fmt.Errorf("chunk size must be at least 3 bytes, got %d", chunkSize)
	}
	// Largest multiple of 4 encoded chars that decodes to <= chunkSize bytes.
	encPerRead := (chunkSize / 3) * 4
	return &Base64Decoder{encoded: encoded, encPerRead: encPerRead}, nil
}

// Next returns the next decoded chunk, or io.EOF when the input is consumed.
// A malformed segment fails the whole sequence with ErrDecode; no partial
// chunk is emitted for the offending segment and subsequent calls keep
// failing.
func (d *Base64Decoder) Next() ([]byte, error) {
	if d.failed {
		return nil, fmt.Errorf("%w: decoder is in a failed state", ErrDecode)
	}
	if d.pos >= len(d.encoded) {
		return nil, io.EOF
	}

	end := d.pos + d.encPerRead
	if end > len(d.encoded) {
		end = len(d.encoded)
	}
	segment := d.encoded[d.pos:end]
	last := end == len(d.encoded)

	var decoded []byte
	var err error
	switch {
	case last && len(segment)%4 != 0:
		// Unpadded tail.
		decoded, err = base64.RawStdEncoding.DecodeString(segment)
	case last:
		decoded, err = base64.StdEncoding.DecodeString(segment)
	default:
		// Interior segments are exact quanta and must carry no padding.
		decoded, err = base64.StdEncoding.Strict().DecodeString(segment)
	}
	if err != nil {
		d.failed = true
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if !last && len(decoded) != len(segment)/4*3 {
		// Padding mid-stream truncates the quantum; treat as malformed.
		d.failed = true
		return nil, fmt.Errorf("%w: padding inside encoded stream", ErrDecode)
	}

	d.pos = end
	return decoded, nil
}
