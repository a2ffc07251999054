package bridge

import "fmt"

// Reserved protocol error codes. New error conditions must pick codes outside
// this range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601

	// CodeHandlerError reports a semantic failure signaled by an operation
	// handler ("node not found" and the like).
	CodeHandlerError = 1000
)

// sentinelID is echoed on responses to frames whose id could not be parsed.
const sentinelID = "0"

// Request is the frame sent controller to target.
type Request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// Response is the frame sent target to controller. Exactly one of Result and
// Error is meaningful; ID echoes the originating request.
type Response struct {
	ID     string         `json:"id"`
	Result any            `json:"result,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("bridge error %d: %s", e.Code, e.Message)
}

// rawRequest is the decode-side view of an inbound frame. Method is a pointer
// so a missing field can be told apart from an empty one.
type rawRequest struct {
	ID     string  `json:"id"`
	Method *string `json:"method"`
	Params any     `json:"params"`
}
