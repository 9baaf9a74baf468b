package docdb

import (
	"fmt"
	"math"
	"net/http"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ServiceError is a failure response from the document database service.
// It implements the apimachinery APIStatus interface so callers can classify
// it with k8s.io/apimachinery/pkg/api/errors predicates.
type ServiceError struct {
	Op         string              `json:"-"`
	StatusCode int                 `json:"-"`
	Reason     metav1.StatusReason `json:"code"`
	Message    string              `json:"message"`
	RetryAfter time.Duration       `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %d %s: %s", e.Op, e.StatusCode, e.Reason, e.Message)
}

// Status implements apierrors.APIStatus
func (e *ServiceError) Status() metav1.Status {
	status := metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    int32(e.StatusCode),
		Reason:  e.Reason,
		Message: e.Message,
	}
	if e.RetryAfter > 0 {
		status.Details = &metav1.StatusDetails{
			RetryAfterSeconds: int32(math.Ceil(e.RetryAfter.Seconds())),
		}
	}
	return status
}

// NewNotFound reports that a resource does not exist
func NewNotFound(op, kind, id string) *ServiceError {
	return &ServiceError{
		Op:         op,
		StatusCode: http.StatusNotFound,
		Reason:     metav1.StatusReasonNotFound,
		Message:    fmt.Sprintf("%s %q not found", kind, id),
	}
}

// NewAlreadyExists reports an id collision on create
func NewAlreadyExists(op, kind, id string) *ServiceError {
	return &ServiceError{
		Op:         op,
		StatusCode: http.StatusConflict,
		Reason:     metav1.StatusReasonAlreadyExists,
		Message:    fmt.Sprintf("%s %q already exists", kind, id),
	}
}

// NewConflict reports a concurrent modification; retryAfter is the server's
// suggested wait and may be zero
func NewConflict(op, message string, retryAfter time.Duration) *ServiceError {
	return &ServiceError{
		Op:         op,
		StatusCode: http.StatusConflict,
		Reason:     metav1.StatusReasonConflict,
		Message:    message,
		RetryAfter: retryAfter,
	}
}

// NewBadRequest reports an invalid request
func NewBadRequest(op, message string) *ServiceError {
	return &ServiceError{
		Op:         op,
		StatusCode: http.StatusBadRequest,
		Reason:     metav1.StatusReasonBadRequest,
		Message:    message,
	}
}

// NewThrottled reports that the request rate is too large
func NewThrottled(op string, retryAfter time.Duration) *ServiceError {
	return &ServiceError{
		Op:         op,
		StatusCode: http.StatusTooManyRequests,
		Reason:     metav1.StatusReasonTooManyRequests,
		Message:    "request rate is large",
		RetryAfter: retryAfter,
	}
}

// NewUnavailable reports that the service cannot take requests right now
func NewUnavailable(op, message string) *ServiceError {
	return &ServiceError{
		Op:         op,
		StatusCode: http.StatusServiceUnavailable,
		Reason:     metav1.StatusReasonServiceUnavailable,
		Message:    message,
	}
}

// reasonForCode picks a status reason when the response body did not carry one
func reasonForCode(code int) metav1.StatusReason {
	switch code {
	case http.StatusBadRequest:
		return metav1.StatusReasonBadRequest
	case http.StatusUnauthorized:
		return metav1.StatusReasonUnauthorized
	case http.StatusForbidden:
		return metav1.StatusReasonForbidden
	case http.StatusNotFound:
		return metav1.StatusReasonNotFound
	case http.StatusConflict:
		return metav1.StatusReasonConflict
	case http.StatusTooManyRequests:
		return metav1.StatusReasonTooManyRequests
	case http.StatusServiceUnavailable:
		return metav1.StatusReasonServiceUnavailable
	case http.StatusGatewayTimeout:
		return metav1.StatusReasonTimeout
	default:
		return metav1.StatusReasonInternalError
	}
}
