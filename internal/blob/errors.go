package blob

import "errors"

// Engine error taxonomy. Callers classify with errors.Is; the HTTP layer maps
// these onto status codes.
var (
	// ErrValidation reports a caller mistake such as a missing identifier.
	ErrValidation = errors.New("validation failed")
	// ErrUnsupportedMediaType reports a content type outside the allowed set.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrNotFound reports an attachment point or file id that does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrDecode reports malformed base64 input.
	ErrDecode = errors.New("base64 decode failed")
	// ErrStorageUnavailable reports an unreachable store or a write that
	// failed mid-stream. Not retried by the engine; chunks already flushed
	// for the failed object are left for the orphan sweep.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrSizeExceeded reports a payload above the hard upload maximum.
	ErrSizeExceeded = errors.New("size exceeded")
	// ErrReassembly reports a chunk sequence that cannot be reassembled
	// (gap, short chunk, or trailing data).
	ErrReassembly = errors.New("chunk reassembly failed")
)
