package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument    = 1000
	ErrCodeInvalidJSON        = 1001
	ErrCodeRequestTooLarge    = 1002
	ErrCodeInvalidQuery       = 1003
	ErrCodeInvalidID          = 1004
	ErrCodeMissingRequired    = 1005
	ErrCodeInvalidContentType = 1006
	ErrCodeInvalidEncoding    = 1007
	ErrCodeInvalidTime        = 1008

	// Domain state (2xxx)
	ErrCodePatientNotFound = 2001
	ErrCodeEpisodeNotFound = 2002
	ErrCodeStageNotFound   = 2003
	ErrCodeFileNotFound    = 2004
	ErrCodeFileIDExists    = 2101
	ErrCodeConflict        = 2102

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeForbidden         = 3002
	ErrCodeResourceExhausted = 3003

	// Internal/system (4xxx)
	ErrCodeInternal          = 4001
	ErrCodeStoreFailure      = 4002
	ErrCodeChunkStoreFailure = 4003
	ErrCodeSweepFailed       = 4004
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 403:
		return ErrCodeForbidden
	case 404:
		return ErrCodePatientNotFound
	case 409:
		return ErrCodeConflict
	case 413:
		return ErrCodeRequestTooLarge
	case 415:
		return ErrCodeInvalidContentType
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	default:
		return 0
	}
}
