package bridge

import "errors"

// Lifecycle errors. A terminated bridge reports one of the first three
// through Err.
var (
	// ErrConnectFailed means the initial broker connection could not be made.
	ErrConnectFailed = errors.New("bridge: initial connect failed")

	// ErrSessionTooShort means the connection dropped within the minimum
	// session length of the last connect.
	ErrSessionTooShort = errors.New("bridge: connection lost too soon after connect")

	// ErrReconnectTimeout means reconnection did not succeed within the
	// grace period.
	ErrReconnectTimeout = errors.New("bridge: reconnect grace period exceeded")

	// ErrInvalidTransition is returned for a lifecycle move the state
	// machine does not allow.
	ErrInvalidTransition = errors.New("bridge: invalid lifecycle transition")
)
