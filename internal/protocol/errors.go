package protocol

// Error codes surfaced inside the envelope. All are request-local and
// non-retryable.
const (
	CodeBadJSON                    = "BAD_JSON"
	CodeBadRequest                 = "BAD_REQUEST"
	CodeUnsupportedProtocolVersion = "UNSUPPORTED_PROTOCOL_VERSION"
	CodeSessionRequired            = "SESSION_REQUIRED"
	CodeConfirmationRequired       = "CONFIRMATION_REQUIRED"
	CodeInvalidArguments           = "INVALID_ARGUMENTS"
	CodeToolNotFound               = "TOOL_NOT_FOUND"
	CodeToolExecutionFailed        = "TOOL_EXECUTION_FAILED"

	// HTTP surface only.
	CodeNotFound     = "NOT_FOUND"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInternal     = "INTERNAL_ERROR"
)
