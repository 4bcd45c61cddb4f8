package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks provider rejections of a request, typically a
	// stale or inaccessible object id. Test with errors.Is.
	ErrInvalidRequest = errors.New("provider rejected request")
	// ErrInvalidAmount is returned for non-positive or unparseable checkout amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidCheckout wraps validation failures of a CheckoutRequest.
	ErrInvalidCheckout = errors.New("invalid checkout request")
	// ErrInvalidPayload is returned when a webhook body cannot be parsed.
	ErrInvalidPayload = errors.New("invalid webhook payload")
	// ErrInvalidSignature is returned when a webhook signature does not verify.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// UpstreamError is a failed call to the payment provider (network, auth,
// rate limit or rejected request).
type UpstreamError struct {
	Op             string
	StatusCode     int
	Code           string
	InvalidRequest bool
	Err            error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: provider status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrInvalidRequest) true for rejected requests.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrInvalidRequest && e.InvalidRequest
}
