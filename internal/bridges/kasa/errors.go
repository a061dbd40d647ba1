package kasa

import "errors"

var (
	// ErrNoState is returned by Poll when the device has never reported.
	ErrNoState = errors.New("kasa: no state reported")

	// ErrStale is returned by Poll when the last report is too old.
	ErrStale = errors.New("kasa: state is stale")

	// ErrInvalidMessage is returned for payloads that cannot be decoded.
	ErrInvalidMessage = errors.New("kasa: invalid message")

	// ErrPublishFailed wraps MQTT publish failures.
	ErrPublishFailed = errors.New("kasa: publish failed")
)
