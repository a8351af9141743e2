package sentiment

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned when the service rejects the token
	// or key.
	ErrInvalidCredentials = errors.New("incorrect key or token")
	// ErrMalformedResponse is returned when a response body is not a JSON
	// object of the expected shape.
	ErrMalformedResponse = errors.New("malformed response")
	ErrUnavailable       = errors.New("sentiment api unavailable")
)

// APIError is a non-2xx reply carrying the service's message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sentiment api error (status %d): %s", e.Status, e.Message)
}
