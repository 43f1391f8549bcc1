// Package contracts provides the error kinds and reply types shared by the
// controller and the transports that expose it.
//
//   - OperationError: the single "operation failed" kind raised by controller methods
//   - InvocationReply: the reply sent for an invocation received over a transport
//   - ErrorReply: the error body written by the HTTP transport
//
// CodeForError maps any invocation error to a stable error code.
package contracts
