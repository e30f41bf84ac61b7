// Package relay is the tool-invocation orchestrator. Every call passes the
// same pipeline: version check, tool lookup, policy, argument validation,
// execution, output sanitization, then audit and metrics.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/webmcp/relay/internal/audit"
	"github.com/webmcp/relay/internal/catalog"
	"github.com/webmcp/relay/internal/metrics"
	"github.com/webmcp/relay/internal/policy"
	"github.com/webmcp/relay/internal/protocol"
	"github.com/webmcp/relay/internal/redact"
	"github.com/webmcp/relay/internal/sanitize"
	"github.com/webmcp/relay/internal/session"
	"go.uber.org/zap"
)

// Status tells the transport how to classify a call response.
type Status int

const (
	StatusOK Status = iota
	StatusBadRequest
)

// Deps is everything the relay owns. Catalog, Sessions, Audit, Metrics,
// Sanitizer and Summarizer are required.
type Deps struct {
	Catalog    *catalog.Catalog
	Sessions   *session.Store
	Audit      *audit.Log
	Metrics    *metrics.Aggregator
	Sanitizer  *sanitize.Sanitizer
	Summarizer *redact.Summarizer
	Logger     *zap.Logger

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// MetricsResponse is the metrics endpoint body.
type MetricsResponse struct {
	ProtocolVersion string `json:"protocolVersion"`
	metrics.Snapshot
}

// Relay handles list_tools, call_tool, audit_log and metrics.
type Relay struct {
	catalog    *catalog.Catalog
	sessions   *session.Store
	audit      *audit.Log
	metrics    *metrics.Aggregator
	sanitizer  *sanitize.Sanitizer
	summarizer *redact.Summarizer
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

func New(d Deps) *Relay {
	r := &Relay{
		catalog:    d.Catalog,
		sessions:   d.Sessions,
		audit:      d.Audit,
		metrics:    d.Metrics,
		sanitizer:  d.Sanitizer,
		summarizer: d.Summarizer,
		logger:     d.Logger,
		now:        d.Now,
		newID:      d.NewID,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	return r
}

// ListTools returns every descriptor in catalog order.
func (r *Relay) ListTools() protocol.ListToolsResponse {
	return protocol.ListToolsResponse{
		ProtocolVersion: protocol.Version,
		Tools:           r.catalog.List(),
	}
}

// AuditLog returns up to limit entries, newest first.
func (r *Relay) AuditLog(limit int) protocol.AuditLogResponse {
	return protocol.AuditLogResponse{
		ProtocolVersion: protocol.Version,
		Entries:         r.audit.List(limit),
	}
}

// Metrics returns the current counters.
func (r *Relay) Metrics() MetricsResponse {
	return MetricsResponse{
		ProtocolVersion: protocol.Version,
		Snapshot:        r.metrics.Snapshot(),
	}
}

// ResetState clears sessions, the audit log and the metrics counters.
func (r *Relay) ResetState(ctx context.Context) {
	r.sessions.Reset(ctx)
	r.audit.Reset()
	r.metrics.Reset()
	r.logger.Info("relay state reset")
}

// call carries one request through the pipeline.
type call struct {
	start     time.Time
	requestID string
	req       protocol.CallRequest
	effect    protocol.SideEffect // empty until the tool is resolved
}

// CallTool runs one tool call. Failures are returned inside the envelope;
// the Status only distinguishes transport-level bad requests.
func (r *Relay) CallTool(ctx context.Context, req protocol.CallRequest) (protocol.CallResponse, Status) {
	c := &call{start: r.now(), req: req}
	if req.RequestID != nil && *req.RequestID != "" {
		c.requestID = *req.RequestID
	} else {
		c.requestID = r.newID()
	}

	// Never audited: the request is not for this protocol.
	if req.ProtocolVersion != nil && *req.ProtocolVersion != protocol.Version {
		return protocol.Failure(c.requestID, protocol.NewError(protocol.CodeUnsupportedProtocolVersion,
			fmt.Sprintf("Unsupported protocolVersion %q; this server speaks %q.", *req.ProtocolVersion, protocol.Version),
		)), StatusBadRequest
	}

	tool, ok := r.catalog.Lookup(req.Name)
	if !ok {
		return r.fail(ctx, c, protocol.NewError(protocol.CodeToolNotFound,
			fmt.Sprintf("Unknown tool %q.", req.Name))), StatusOK
	}
	c.effect = tool.Descriptor.SideEffect

	callCtx := catalog.CallContext{
		RequestID: c.requestID,
		SessionID: req.Session(),
		Confirmed: req.IsConfirmed(),
	}

	if perr := policy.Evaluate(tool.Descriptor, callCtx); perr != nil {
		return r.fail(ctx, c, perr), StatusOK
	}

	args, err := r.catalog.Validate(req.Name, req.Arguments)
	if err != nil {
		return r.fail(ctx, c, protocol.NewError(protocol.CodeInvalidArguments, err.Error())), StatusOK
	}

	result, err := execute(ctx, tool, args, callCtx)
	if err != nil {
		r.logger.Warn("tool execution failed",
			zap.String("request_id", c.requestID),
			zap.String("tool", req.Name),
			zap.Error(err),
		)
		return r.fail(ctx, c, protocol.NewError(protocol.CodeToolExecutionFailed,
			fmt.Sprintf("Tool %q failed to execute.", req.Name))), StatusOK
	}

	clean, filtered := r.sanitizer.Sanitize(result)
	if filtered > 0 {
		r.logger.Info("tool output filtered",
			zap.String("request_id", c.requestID),
			zap.String("tool", req.Name),
			zap.Int("filtered_values", filtered),
		)
	}

	if _, err := json.Marshal(clean); err != nil {
		r.logger.Warn("tool result not encodable",
			zap.String("request_id", c.requestID),
			zap.String("tool", req.Name),
			zap.Error(err),
		)
		return r.fail(ctx, c, protocol.NewError(protocol.CodeToolExecutionFailed,
			fmt.Sprintf("Tool %q returned a result that cannot be encoded as JSON.", req.Name))), StatusOK
	}

	r.finish(ctx, c, clean, nil)
	return protocol.Success(c.requestID, clean), StatusOK
}

func (r *Relay) fail(ctx context.Context, c *call, perr *protocol.Error) protocol.CallResponse {
	r.finish(ctx, c, nil, perr)
	return protocol.Failure(c.requestID, perr)
}

// finish writes the call's single audit entry and metrics record.
func (r *Relay) finish(ctx context.Context, c *call, result any, perr *protocol.Error) {
	latencyMs := float64(r.now().Sub(c.start).Microseconds()) / 1000

	outcome, code := protocol.OutcomeOK, ""
	if perr != nil {
		outcome, code = protocol.OutcomeError, perr.Code
	}

	r.audit.Append(protocol.AuditEntry{
		Timestamp:       c.start.UTC().Truncate(time.Millisecond),
		RequestID:       c.requestID,
		SessionID:       c.req.Session(),
		ToolName:        c.req.Name,
		SideEffect:      c.effect,
		ArgumentSummary: r.summarizer.SummarizeArguments(c.req.Arguments, c.effect),
		ResultSummary:   r.summarizer.SummarizeResult(result, c.effect),
		Outcome:         outcome,
		ErrorCode:       code,
		LatencyMs:       latencyMs,
	})
	r.metrics.Record(ctx, c.req.Name, outcome, latencyMs, code)

	r.logger.Debug("tool call completed",
		zap.String("request_id", c.requestID),
		zap.String("tool", c.req.Name),
		zap.String("outcome", string(outcome)),
		zap.String("error_code", code),
		zap.Float64("latency_ms", latencyMs),
	)
}

// execute runs the tool, turning a panic into an error.
func execute(ctx context.Context, tool catalog.Tool, args catalog.Args, cc catalog.CallContext) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tool %q panicked: %v", tool.Descriptor.Name, p)
		}
	}()
	return tool.Execute(ctx, args, cc)
}
