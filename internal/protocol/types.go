// Package protocol defines the WebMCP wire types shared by the relay and its
// HTTP surface.
package protocol

import "time"

// Version is the single protocol version this server speaks.
const Version = "2026-02-playground"

// SideEffect classifies what a tool does to server state.
type SideEffect string

const (
	SideEffectRead      SideEffect = "read"
	SideEffectWrite     SideEffect = "write"
	SideEffectSensitive SideEffect = "sensitive"
)

// Valid reports whether s is one of the known side effect classes.
func (s SideEffect) Valid() bool {
	switch s {
	case SideEffectRead, SideEffectWrite, SideEffectSensitive:
		return true
	default:
		return false
	}
}

// Kind is the declared primitive type of a tool input parameter.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
)

// Outcome is the terminal state of a tool call.
type Outcome string

const (
	OutcomeOK    Outcome = "ok"
	OutcomeError Outcome = "error"
)

// ToolDescriptor is the public description of a tool returned by list_tools.
type ToolDescriptor struct {
	Name                 string          `json:"name"`
	Description          string          `json:"description"`
	Input                map[string]Kind `json:"input"`
	SideEffect           SideEffect      `json:"sideEffect"`
	RequiresConfirmation bool            `json:"requiresConfirmation"`
	SessionScoped        bool            `json:"sessionScoped"`
}

// CallRequest is a single call_tool invocation. Optional fields are pointers
// so that absence can be told apart from a zero value.
type CallRequest struct {
	Name            string         `json:"name" validate:"required"`
	Arguments       map[string]any `json:"arguments,omitempty"`
	SessionID       *string        `json:"sessionId,omitempty" validate:"omitnil,max=128"`
	RequestID       *string        `json:"requestId,omitempty" validate:"omitnil,min=1,max=128"`
	Confirmed       *bool          `json:"confirmed,omitempty"`
	ProtocolVersion *string        `json:"protocolVersion,omitempty"`
}

// Session returns the session id or "" when absent.
func (r *CallRequest) Session() string {
	if r.SessionID == nil {
		return ""
	}
	return *r.SessionID
}

// IsConfirmed reports whether the caller sent confirmed=true.
func (r *CallRequest) IsConfirmed() bool {
	return r.Confirmed != nil && *r.Confirmed
}

// Error is the error half of a CallResponse.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// NewError builds an envelope error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CallResponse is the versioned envelope around every call outcome.
// Exactly one of Result and Error is set.
type CallResponse struct {
	ProtocolVersion string `json:"protocolVersion"`
	RequestID       string `json:"requestId"`
	OK              bool   `json:"ok"`
	Result          any    `json:"result,omitempty"`
	Error           *Error `json:"error,omitempty"`
}

// Success wraps a tool result.
func Success(requestID string, result any) CallResponse {
	return CallResponse{
		ProtocolVersion: Version,
		RequestID:       requestID,
		OK:              true,
		Result:          result,
	}
}

// Failure wraps an envelope error.
func Failure(requestID string, err *Error) CallResponse {
	return CallResponse{
		ProtocolVersion: Version,
		RequestID:       requestID,
		OK:              false,
		Error:           err,
	}
}

// ListToolsResponse is the list_tools response body.
type ListToolsResponse struct {
	ProtocolVersion string           `json:"protocolVersion"`
	Tools           []ToolDescriptor `json:"tools"`
}

// AuditEntry records one completed call. Argument and result values are
// already redacted when an entry is built.
type AuditEntry struct {
	Timestamp       time.Time         `json:"timestamp"`
	RequestID       string            `json:"requestId"`
	SessionID       string            `json:"sessionId,omitempty"`
	ToolName        string            `json:"toolName"`
	SideEffect      SideEffect        `json:"sideEffect,omitempty"`
	ArgumentSummary map[string]string `json:"argumentSummary"`
	ResultSummary   string            `json:"resultSummary"`
	Outcome         Outcome           `json:"outcome"`
	ErrorCode       string            `json:"errorCode,omitempty"`
	LatencyMs       float64           `json:"latencyMs"`
}

// AuditLogResponse is the audit_log response body.
type AuditLogResponse struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Entries         []AuditEntry `json:"entries"`
}
