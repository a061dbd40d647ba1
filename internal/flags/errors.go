package flags

import "errors"

var (
	// ErrFetchFailed wraps transport or HTTP status failures.
	ErrFetchFailed = errors.New("flags: fetch failed")

	// ErrBadPayload is returned when the response is not a JSON object.
	ErrBadPayload = errors.New("flags: response is not a flag object")
)
