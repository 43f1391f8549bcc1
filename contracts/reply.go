package contracts

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BaseMessage provides common fields for all replies
type BaseMessage struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Type          string    `json:"type"`
	CorrelationID string    `json:"correlationId,omitempty"`
}

// NewBaseMessage creates a new base message with generated ID and current timestamp
func NewBaseMessage(messageType string) BaseMessage {
	return BaseMessage{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      messageType,
	}
}

// InvocationReply is the outcome of one operation invocation
type InvocationReply struct {
	BaseMessage
	Operation    string `json:"operation"`
	Success      bool   `json:"success"`
	Result       any    `json:"result,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	DurationMs   int64  `json:"durationMs"`
}

// NewInvocationReply creates the reply for an invocation of operation
func NewInvocationReply(operation string, result any, err error, duration time.Duration) *InvocationReply {
	reply := &InvocationReply{
		BaseMessage: NewBaseMessage("InvocationReply"),
		Operation:   operation,
		Success:     err == nil,
		DurationMs:  duration.Milliseconds(),
	}
	if err != nil {
		reply.ErrorCode = CodeForError(err)
		reply.ErrorMessage = err.Error()
		return reply
	}
	reply.Result = result
	return reply
}

// GetError returns the error carried by the reply, or nil on success
func (r *InvocationReply) GetError() error {
	if r.Success {
		return nil
	}
	return fmt.Errorf("%s: %s", r.ErrorCode, r.ErrorMessage)
}

// ErrorReply represents an error response
type ErrorReply struct {
	BaseMessage
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	Path         string `json:"path,omitempty"`
}

// NewErrorReply creates a new error reply for err
func NewErrorReply(path string, err error) *ErrorReply {
	return &ErrorReply{
		BaseMessage:  NewBaseMessage("ErrorReply"),
		ErrorCode:    CodeForError(err),
		ErrorMessage: err.Error(),
		Path:         path,
	}
}
