package core

import "fmt"

// TransportError is a connection or HTTP level failure. It aborts the
// current turn; the transcript is rolled back so the turn can be retried.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a malformed or unexpected frame that could not be
// degraded to a visible notice.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol: " + e.Reason
}

// ToolError reports a failed or unknown tool. Always recoverable: it
// surfaces as a tool result message so the model can react, and never
// aborts the orchestration loop.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ConfigurationError means no usable provider or setting was configured;
// it is surfaced immediately and no request is attempted.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Reason
}
