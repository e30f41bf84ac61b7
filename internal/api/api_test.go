package api

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webmcp/relay/internal/audit"
	"github.com/webmcp/relay/internal/catalog"
	"github.com/webmcp/relay/internal/metrics"
	"github.com/webmcp/relay/internal/protocol"
	"github.com/webmcp/relay/internal/redact"
	"github.com/webmcp/relay/internal/relay"
	"github.com/webmcp/relay/internal/risk"
	"github.com/webmcp/relay/internal/sanitize"
	"github.com/webmcp/relay/internal/session"
	"github.com/webmcp/relay/internal/tools"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testAdminKey = "admin_test_key_1234567890"

func newTestHandler(t *testing.T, adminHash string) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	detector := risk.NewDefaultDetector()
	sessions := session.NewStore(nil, logger)

	cat, err := catalog.New(detector, tools.Builtins(sessions, nil)...)
	require.NoError(t, err)

	r := relay.New(relay.Deps{
		Catalog:    cat,
		Sessions:   sessions,
		Audit:      audit.New(audit.DefaultCapacity, logger),
		Metrics:    metrics.NewAggregator(),
		Sanitizer:  sanitize.New(detector, true),
		Summarizer: redact.New(nil),
		Logger:     logger,
	})

	return NewRouter(&Dependencies{Relay: r, AdminKeyHash: adminHash, Logger: logger})
}

func newTestServer(t *testing.T, adminHash string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(newTestHandler(t, adminHash))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string, headers ...string) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealthAndIndex(t *testing.T) {
	srv := newTestServer(t, "")

	status, body := do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, ServiceName, body["service"])

	status, body = do(t, srv, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, ServiceName, body["name"])
	assert.Contains(t, body["endpoints"], "POST /mcp/call_tool")
	assert.NotContains(t, body["endpoints"], "POST /mcp/admin/reset")
}

func TestListTools(t *testing.T) {
	srv := newTestServer(t, "")

	status, body := do(t, srv, http.MethodPost, "/mcp/list_tools", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, protocol.Version, body["protocolVersion"])

	toolList := body["tools"].([]any)
	require.Len(t, toolList, 6)
	first := toolList[0].(map[string]any)
	assert.Equal(t, "echo", first["name"])
	assert.Equal(t, "read", first["sideEffect"])
	assert.Contains(t, first, "requiresConfirmation")
	assert.Contains(t, first, "sessionScoped")
}

func TestCallTool_Scenarios(t *testing.T) {
	srv := newTestServer(t, "")

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantOK     bool
		wantCode   string
	}{
		{"sum ok", `{"name":"sum","arguments":{"a":7,"b":35}}`, 200, true, ""},
		{"sum bad arg", `{"name":"sum","arguments":{"a":"bad","b":35}}`, 200, false, protocol.CodeInvalidArguments},
		{"legacy version", `{"name":"sum","protocolVersion":"legacy-v1","arguments":{"a":1,"b":2}}`, 400, false, protocol.CodeUnsupportedProtocolVersion},
		{"unknown tool", `{"name":"does_not_exist"}`, 200, false, protocol.CodeToolNotFound},
		{"session required", `{"name":"list_notes","arguments":{"extra":1}}`, 200, false, protocol.CodeSessionRequired},
		{"confirmation required", `{"name":"append_note","sessionId":"s1","arguments":{"text":"hi"}}`, 200, false, protocol.CodeConfirmationRequired},
		{"broken json", `{"name":`, 400, false, protocol.CodeBadJSON},
		{"trailing garbage", `{"name":"sum"} x`, 400, false, protocol.CodeBadJSON},
		{"extra top-level field", `{"name":"sum","arguments":{"a":1,"b":2},"admin":true}`, 400, false, protocol.CodeBadRequest},
		{"arguments not an object", `{"name":"sum","arguments":[1,2]}`, 400, false, protocol.CodeBadRequest},
		{"missing name", `{"arguments":{}}`, 400, false, protocol.CodeBadRequest},
		{"empty body", ``, 400, false, protocol.CodeBadRequest},
		{"empty session id", `{"name":"list_notes","sessionId":""}`, 200, false, protocol.CodeSessionRequired},
		{"sum overflow", `{"name":"sum","arguments":{"a":1e308,"b":1e308}}`, 200, false, protocol.CodeInvalidArguments},
		{"empty request id", `{"name":"echo","requestId":"","arguments":{"text":"x"}}`, 400, false, protocol.CodeBadRequest},
		{"session id too long", `{"name":"list_notes","sessionId":"` + strings.Repeat("s", 129) + `"}`, 400, false, protocol.CodeBadRequest},
		{"confirmed wrong type", `{"name":"append_note","confirmed":"yes"}`, 400, false, protocol.CodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, srv, http.MethodPost, "/mcp/call_tool", tt.body)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantOK, body["ok"])
			assert.Equal(t, protocol.Version, body["protocolVersion"])
			assert.NotEmpty(t, body["requestId"])
			if tt.wantOK {
				assert.Contains(t, body, "result")
				assert.NotContains(t, body, "error")
			} else {
				assert.Equal(t, tt.wantCode, errorCode(body))
				assert.NotContains(t, body, "result")
			}
		})
	}
}

func TestCallTool_SumResult(t *testing.T) {
	srv := newTestServer(t, "")
	_, body := do(t, srv, http.MethodPost, "/mcp/call_tool", `{"name":"sum","arguments":{"a":7,"b":35},"requestId":"r-1"}`)
	assert.Equal(t, "r-1", body["requestId"])
	assert.Equal(t, map[string]any{"value": 42.0}, body["result"])
}

func TestWriteJSON_UnencodableValue(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]any{"value": math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, protocol.CodeInternal, errorCode(body))
}

func TestCallTool_NotesEndToEnd(t *testing.T) {
	srv := newTestServer(t, "")

	_, body := do(t, srv, http.MethodPost, "/mcp/call_tool",
		`{"name":"append_note","sessionId":"s1","confirmed":true,"arguments":{"text":"hi"}}`)
	require.Equal(t, true, body["ok"], "append: %v", body)

	_, body = do(t, srv, http.MethodPost, "/mcp/call_tool", `{"name":"list_notes","sessionId":"s1","arguments":{}}`)
	require.Equal(t, true, body["ok"])
	assert.Equal(t, []any{"hi"}, body["result"].(map[string]any)["notes"])

	_, body = do(t, srv, http.MethodPost, "/mcp/call_tool", `{"name":"list_notes","sessionId":"s2"}`)
	assert.Equal(t, []any{}, body["result"].(map[string]any)["notes"])
}

func TestCallTool_BodyTooLarge(t *testing.T) {
	h := newTestHandler(t, "")
	big := `{"name":"echo","arguments":{"text":"` + strings.Repeat("a", maxBodyBytes) + `"}}`

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp/call_tool", strings.NewReader(big)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, protocol.CodeBadRequest, errorCode(body))
}

func TestAuditLogEndpoint(t *testing.T) {
	srv := newTestServer(t, "")
	for i := 0; i < 3; i++ {
		do(t, srv, http.MethodPost, "/mcp/call_tool", `{"name":"now_utc"}`)
	}
	do(t, srv, http.MethodPost, "/mcp/call_tool", `{"name":"append_note","sessionId":"s1","confirmed":true,"arguments":{"text":"secret stuff"}}`)

	status, body := do(t, srv, http.MethodGet, "/mcp/audit_log?limit=2", "")
	require.Equal(t, http.StatusOK, status)
	entries := body["entries"].([]any)
	require.Len(t, entries, 2)

	newest := entries[0].(map[string]any)
	assert.Equal(t, "append_note", newest["toolName"])
	assert.Equal(t, map[string]any{"text": redact.Redacted}, newest["argumentSummary"])
	assert.Equal(t, redact.Redacted, newest["resultSummary"])
	assert.Equal(t, "ok", newest["outcome"])

	_, body = do(t, srv, http.MethodGet, "/mcp/audit_log", "")
	assert.Len(t, body["entries"], 4)

	_, body = do(t, srv, http.MethodGet, "/mcp/audit_log?limit=0", "")
	assert.Len(t, body["entries"], 1, "limit is clamped to at least 1")

	_, body = do(t, srv, http.MethodGet, "/mcp/audit_log?limit=abc", "")
	assert.Len(t, body["entries"], 4, "invalid limit falls back to the default")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, "")
	do(t, srv, http.MethodPost, "/mcp/call_tool", `{"name":"sum","arguments":{"a":1,"b":2}}`)
	do(t, srv, http.MethodPost, "/mcp/call_tool", `{"name":"sum","arguments":{}}`)

	status, body := do(t, srv, http.MethodGet, "/mcp/metrics", "")
	require.Equal(t, http.StatusOK, status)

	totals := body["totals"].(map[string]any)
	assert.Equal(t, 2.0, totals["totalCalls"])
	assert.Equal(t, 1.0, totals["okCalls"])
	assert.Equal(t, 1.0, totals["errorCalls"])
	assert.Equal(t, 1.0, body["errorsByCode"].(map[string]any)[protocol.CodeInvalidArguments])
	assert.Contains(t, body["tools"], "sum")
}

func TestNotFound(t *testing.T) {
	srv := newTestServer(t, "")
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/nope"},
		{http.MethodGet, "/mcp/call_tool"},
		{http.MethodDelete, "/health"},
		{http.MethodPost, "/mcp/admin/reset"},
	} {
		status, body := do(t, srv, tc.method, tc.path, "")
		assert.Equal(t, http.StatusNotFound, status, "%s %s", tc.method, tc.path)
		assert.Equal(t, false, body["ok"])
		assert.Equal(t, protocol.CodeNotFound, errorCode(body))
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, "")
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/mcp/call_tool", nil)
	require.NoError(t, err)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestAdminReset(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminKey), bcrypt.MinCost)
	require.NoError(t, err)
	srv := newTestServer(t, string(hash))

	do(t, srv, http.MethodPost, "/mcp/call_tool", `{"name":"append_note","sessionId":"s1","confirmed":true,"arguments":{"text":"hi"}}`)

	status, body := do(t, srv, http.MethodPost, "/mcp/admin/reset", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, protocol.CodeUnauthorized, errorCode(body))

	status, _ = do(t, srv, http.MethodPost, "/mcp/admin/reset", "", "Authorization", "Bearer wrong-key")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = do(t, srv, http.MethodPost, "/mcp/admin/reset", "", "Authorization", "Bearer "+testAdminKey)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])

	_, body = do(t, srv, http.MethodPost, "/mcp/call_tool", `{"name":"list_notes","sessionId":"s1"}`)
	assert.Equal(t, []any{}, body["result"].(map[string]any)["notes"])

	_, body = do(t, srv, http.MethodGet, "/mcp/audit_log", "")
	assert.Len(t, body["entries"], 1, "only the list_notes call after reset")
}
