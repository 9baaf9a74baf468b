package resource

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"docprov/internal/docdb"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

var (
	// ErrEmptyID is returned when a descriptor carries no id
	ErrEmptyID = errors.New("resource id cannot be empty")

	// ErrCancelled is returned when the caller cancelled a mutation; it wraps ctx.Err()
	ErrCancelled = errors.New("mutation cancelled")

	// ErrRetriesExhausted is returned when a mutation hit its attempt or time limit
	// while the service kept reporting conflicts
	ErrRetriesExhausted = errors.New("mutation retries exhausted")
)

// ErrorClass is the coarse classification of a service failure
type ErrorClass string

const (
	ErrorClassNone               ErrorClass = ""
	ErrorClassNotFound           ErrorClass = "not_found"
	ErrorClassConflict           ErrorClass = "conflict"
	ErrorClassTransientTransport ErrorClass = "transient_transport"
	ErrorClassFatal              ErrorClass = "fatal"
)

// Classify maps an error to its class. Service errors are recognised through
// the apimachinery status predicates, transport errors through net.Error.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ErrorClassNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassFatal
	case apierrors.IsNotFound(err):
		return ErrorClassNotFound
	case apierrors.IsConflict(err), apierrors.IsAlreadyExists(err):
		return ErrorClassConflict
	case apierrors.IsTooManyRequests(err), apierrors.IsServiceUnavailable(err),
		apierrors.IsServerTimeout(err), apierrors.IsTimeout(err):
		return ErrorClassTransientTransport
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassTransientTransport
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrorClassTransientTransport
	}
	return ErrorClassFatal
}

// IsConflict reports whether err is an HTTP 409 class failure
func IsConflict(err error) bool {
	return Classify(err) == ErrorClassConflict
}

// IsNotFound reports whether err means the resource does not exist
func IsNotFound(err error) bool {
	return Classify(err) == ErrorClassNotFound
}

// RetryHint extracts the service's suggested wait from err. Zero means no hint.
func RetryHint(err error) time.Duration {
	var svcErr *docdb.ServiceError
	if errors.As(err, &svcErr) && svcErr.RetryAfter > 0 {
		return svcErr.RetryAfter
	}
	if seconds, ok := apierrors.SuggestsClientDelay(err); ok && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}

// ErrorType represents the category of reconciliation error
type ErrorType string

const (
	ErrorTypeDependency    ErrorType = "dependency"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeService       ErrorType = "service"
	ErrorTypeConfiguration ErrorType = "configuration"
)

// ReconciliationError represents an error that occurred during reconciliation
type ReconciliationError struct {
	Type        ErrorType         `json:"type"`
	Resource    ResourceReference `json:"resource"`
	Message     string            `json:"message"`
	Cause       error             `json:"cause,omitempty"`
	Recoverable bool              `json:"recoverable"`
}

// Error implements the error interface
func (r *ReconciliationError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", r.Type, r.Resource, r.Message)
	if r.Cause != nil {
		msg += ": " + r.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause error
func (r *ReconciliationError) Unwrap() error {
	return r.Cause
}

// NewReconciliationError creates a new ReconciliationError
func NewReconciliationError(errorType ErrorType, resource ResourceReference, message string, cause error, recoverable bool) *ReconciliationError {
	return &ReconciliationError{
		Type:        errorType,
		Resource:    resource,
		Message:     message,
		Cause:       cause,
		Recoverable: recoverable,
	}
}

// NewDependencyError creates a dependency-related error
func NewDependencyError(resource ResourceReference, message string, cause error) *ReconciliationError {
	return NewReconciliationError(ErrorTypeDependency, resource, message, cause, false)
}

// NewValidationError creates a validation-related error
func NewValidationError(resource ResourceReference, message string, cause error) *ReconciliationError {
	return NewReconciliationError(ErrorTypeValidation, resource, message, cause, false)
}

// NewServiceError wraps a document service failure. Conflicts and transport
// failures are recoverable by running the operation again.
func NewServiceError(resource ResourceReference, message string, cause error) *ReconciliationError {
	class := Classify(cause)
	recoverable := class == ErrorClassConflict || class == ErrorClassTransientTransport
	return NewReconciliationError(ErrorTypeService, resource, message, cause, recoverable)
}

// NewConfigurationError creates a configuration-related error
func NewConfigurationError(resource ResourceReference, message string, cause error) *ReconciliationError {
	return NewReconciliationError(ErrorTypeConfiguration, resource, message, cause, false)
}

// AsReconciliationError attempts to cast an error to ReconciliationError
func AsReconciliationError(err error) (*ReconciliationError, bool) {
	var recErr *ReconciliationError
	if errors.As(err, &recErr) {
		return recErr, true
	}
	return nil, false
}
