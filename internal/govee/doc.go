// Package govee is a client for the Govee developer REST API (v1).
//
// It exposes the three calls the bridge needs: list devices, read one
// device's state and send one control command. Every call returns a
// tri-state result (OK, Empty, Error) instead of a bare error, so callers
// never mistake a failed read for "nothing changed".
//
// The client is stateless apart from its http.Client. No call is retried.
// Each call runs under its own timeout derived from the caller's context.
//
// When enabled, a rate guard sits in the HTTP transport. It reads the
// vendor's rate-limit headers and refuses calls with ErrRateLimited while
// the remaining budget is at or below the configured floor.
package govee
