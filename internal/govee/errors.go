package govee

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRateLimited is returned when the rate guard refuses a call.
	ErrRateLimited = errors.New("govee: rate limited")

	// ErrAPI is returned when the response body carries a non-200 code.
	ErrAPI = errors.New("govee: api error")

	// ErrDecode is returned when a response body is not the expected JSON.
	ErrDecode = errors.New("govee: malformed response")

	// ErrHTTPStatus is returned for HTTP status codes of 400 and above.
	ErrHTTPStatus = errors.New("govee: http error")
)

// HTTPStatusError carries the status and body of a failed request.
type HTTPStatusError struct {
	Status int
	Body   string
}

func (e HTTPStatusError) Error() string {
	return fmt.Sprintf("govee api error %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// Is makes errors.Is(err, ErrHTTPStatus) match.
func (e HTTPStatusError) Is(target error) bool {
	return target == ErrHTTPStatus
}
