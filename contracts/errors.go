package contracts

import (
	"errors"

	"github.com/glimte/aopdemo/aop"
)

// ErrOperationFailed matches every OperationError through errors.Is
var ErrOperationFailed = errors.New("operation failed")

// ErrMethodNotAllowed is returned when a known path is called with an unsupported method
var ErrMethodNotAllowed = errors.New("method not allowed")

// OperationError is raised by an operation that failed on purpose
type OperationError struct {
	Message string
}

// NewOperationError creates an operation error carrying message
func NewOperationError(message string) *OperationError {
	return &OperationError{Message: message}
}

func (e *OperationError) Error() string {
	return e.Message
}

// Is reports whether target is ErrOperationFailed
func (e *OperationError) Is(target error) bool {
	return target == ErrOperationFailed
}

// Error codes carried by replies
const (
	CodeOperationFailed  = "OPERATION_FAILED"
	CodeAdviceFailed     = "ADVICE_FAILED"
	CodeNoSuchOperation  = "NO_SUCH_OPERATION"
	CodeThrottled        = "THROTTLED"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternal         = "INTERNAL"
)

// CodeForError classifies an invocation error
func CodeForError(err error) string {
	switch {
	case err == nil:
		return ""
	case aop.IsAdviceError(err):
		return CodeAdviceFailed
	case errors.Is(err, ErrOperationFailed):
		return CodeOperationFailed
	case errors.Is(err, aop.ErrNoSuchOperation):
		return CodeNoSuchOperation
	case errors.Is(err, aop.ErrThrottled):
		return CodeThrottled
	case errors.Is(err, ErrMethodNotAllowed):
		return CodeMethodNotAllowed
	default:
		return CodeInternal
	}
}
