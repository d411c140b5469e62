package session

import "errors"

var (
	// ErrConfiguration rejects a bad protocol identifier or player name.
	ErrConfiguration = errors.New("session: invalid configuration")
	// ErrAlreadyInitialized rejects a second Initialize.
	ErrAlreadyInitialized = errors.New("session: already initialized")
	// ErrNotReady rejects an operation invoked before the required state.
	ErrNotReady = errors.New("session: not ready")
	// ErrBusy rejects a guest operation while a connection is in progress
	// or established.
	ErrBusy = errors.New("session: connection in progress")
	// ErrInvalidArgument rejects a bad argument before any link activity.
	ErrInvalidArgument = errors.New("session: invalid argument")
	// ErrMessageTooLarge rejects payloads above the frame limit.
	ErrMessageTooLarge = errors.New("session: message too large")
	// ErrAlreadyAdvertising rejects a second StartAdvertising.
	ErrAlreadyAdvertising = errors.New("session: already advertising")
	// ErrTransportFailure reports a link failure.
	ErrTransportFailure = errors.New("session: transport failure")
	// ErrAuthenticationFailed reports a digest mismatch.
	ErrAuthenticationFailed = errors.New("session: authentication failed")
	// ErrPeerLimitExceeded reports that no identity or player slot is free.
	ErrPeerLimitExceeded = errors.New("session: peer limit exceeded")
	// ErrProtocolViolation reports an out-of-sequence or malformed message.
	ErrProtocolViolation = errors.New("session: protocol violation")
	// ErrBufferOverflow reports an exceeded send or receive bound.
	ErrBufferOverflow = errors.New("session: buffer overflow")
	// ErrTimeout reports a connection that did not authenticate in time.
	ErrTimeout = errors.New("session: acceptance timeout")
	// ErrDisposed rejects every operation after Dispose.
	ErrDisposed = errors.New("session: disposed")
)
