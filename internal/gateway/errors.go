package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway failure.
type Kind string

const (
	// KindTransport covers unreachable hosts, timeouts and cancellation.
	KindTransport Kind = "transport"
	// KindServer is a non-2xx response.
	KindServer Kind = "server"
	// KindDecode is a response body that failed schema validation.
	KindDecode Kind = "decode"
)

// GatewayError is the single error type returned for any failed round trip.
// Detail holds the backend's {"detail": ...} text when one was sent.
type GatewayError struct {
	Op      string
	Kind    Kind
	Status  int
	Message string
	Detail  string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s error (status %d): %s", e.Op, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Op, e.Kind, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Detail returns the server-provided message, or "" when the failure carried
// none.
func Detail(err error) string {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Detail
	}
	return ""
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Kind == KindTransport
}
