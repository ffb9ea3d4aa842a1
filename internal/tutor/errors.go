package tutor

import (
	"fmt"

	"github.com/ashureev/mathtutor/internal/domain"
)

// ConfigurationError reports a backend that cannot be called as configured,
// typically because no credential was supplied. No request was sent.
type ConfigurationError struct {
	Backend domain.BackendID
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not configured: %s", e.Backend.DisplayName(), e.Reason)
}

// BackendError reports that the external service rejected the call or
// returned an unusable response. Message is the service's own text.
type BackendError struct {
	Backend    domain.BackendID
	StatusCode int
	Message    string
	Err        error
}

func (e *BackendError) Error() string {
	name := e.Backend.DisplayName()
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error %d: %s", name, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", name, e.Message)
}

func (e *BackendError) Unwrap() error { return e.Err }
