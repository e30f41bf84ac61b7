package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/webmcp/relay/internal/audit"
	"github.com/webmcp/relay/internal/protocol"
	"github.com/webmcp/relay/internal/relay"
	"go.uber.org/zap"
)

var errEmptyBody = errors.New("empty body")

func (d *Dependencies) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, IndexResp{
		Name:            ServiceName,
		ProtocolVersion: protocol.Version,
		Endpoints:       d.endpoints(),
	})
}

func (d *Dependencies) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResp{OK: true, Service: ServiceName})
}

// handleListTools implements POST /mcp/list_tools. The body is ignored.
func (d *Dependencies) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, d.Relay.ListTools())
}

// handleCallTool implements POST /mcp/call_tool.
func (d *Dependencies) handleCallTool(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	req, perr, status := d.decodeCall(r)
	if perr != nil {
		writeJSON(w, status, protocol.Failure(uuid.NewString(), perr))
		return
	}

	resp, st := d.Relay.CallTool(r.Context(), req)
	code := http.StatusOK
	if st == relay.StatusBadRequest {
		code = http.StatusBadRequest
	}
	writeJSON(w, code, resp)
}

// decodeCall parses and validates a call_tool body. Syntactically broken JSON
// is BAD_JSON; valid JSON with the wrong shape is BAD_REQUEST.
func (d *Dependencies) decodeCall(r *http.Request) (protocol.CallRequest, *protocol.Error, int) {
	var req protocol.CallRequest

	raw, err := readBody(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, protocol.NewError(protocol.CodeBadRequest, "Request body too large."), http.StatusRequestEntityTooLarge
		}
		return req, protocol.NewError(protocol.CodeBadJSON, "Invalid JSON body."), http.StatusBadRequest
	}
	if !json.Valid(raw) {
		return req, protocol.NewError(protocol.CodeBadJSON, "Invalid JSON body."), http.StatusBadRequest
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, badRequest(err.Error()), http.StatusBadRequest
	}

	if err := d.validate.Struct(&req); err != nil {
		return req, badRequest(describeValidation(err)), http.StatusBadRequest
	}
	return req, nil, http.StatusOK
}

func badRequest(detail string) *protocol.Error {
	return protocol.NewError(protocol.CodeBadRequest,
		"Expected { name: string, arguments?: object, sessionId?: string, requestId?: string, confirmed?: boolean, protocolVersion?: string }: "+detail)
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := jsonFieldName(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "min":
			parts = append(parts, field+" must not be empty")
		case "max":
			parts = append(parts, field+" must be at most 128 characters")
		default:
			parts = append(parts, field+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}

func jsonFieldName(goName string) string {
	switch goName {
	case "SessionID":
		return "sessionId"
	case "RequestID":
		return "requestId"
	default:
		return strings.ToLower(goName[:1]) + goName[1:]
	}
}

// readBody returns the request body, treating an empty body as {}.
func readBody(r *http.Request) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("{}"), nil
	}
	return raw, nil
}

// handleAuditLog implements GET /mcp/audit_log?limit=N.
func (d *Dependencies) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r.URL.Query(), "limit", audit.DefaultListLimit)
	writeJSON(w, http.StatusOK, d.Relay.AuditLog(limit))
}

func (d *Dependencies) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, d.Relay.Metrics())
}

// handleAdminReset implements POST /mcp/admin/reset.
func (d *Dependencies) handleAdminReset(w http.ResponseWriter, r *http.Request) {
	d.Relay.ResetState(r.Context())
	d.Logger.Warn("relay state reset via admin endpoint", zap.String("remote_addr", r.RemoteAddr))
	writeJSON(w, http.StatusOK, ResetResp{OK: true})
}

func (d *Dependencies) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResp(protocol.CodeNotFound, "Route not found."))
}

func queryInt(q interface{ Get(string) string }, key string, defaultVal int) int {
	v := q.Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}
