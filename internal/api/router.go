// Package api is the HTTP surface of the relay.
package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/webmcp/relay/internal/relay"
	"go.uber.org/zap"
)

// ServiceName is reported by the health and index endpoints.
const ServiceName = "webmcp-playground"

// maxBodyBytes caps call_tool request bodies.
const maxBodyBytes = 1 << 20

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Relay *relay.Relay
	// AdminKeyHash is a bcrypt hash of the admin bearer key. Empty disables
	// the admin routes.
	AdminKeyHash string
	Logger       *zap.Logger

	validate *validator.Validate
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	deps.validate = validator.New(validator.WithRequiredStructEnabled())

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", deps.handleIndex)
	mux.HandleFunc("GET /health", deps.handleHealth)

	// Protocol endpoints
	mux.HandleFunc("POST /mcp/list_tools", deps.handleListTools)
	mux.HandleFunc("POST /mcp/call_tool", deps.handleCallTool)
	mux.HandleFunc("GET /mcp/audit_log", deps.handleAuditLog)
	mux.HandleFunc("GET /mcp/metrics", deps.handleMetrics)

	// Admin (bcrypt bearer key)
	if deps.AdminKeyHash != "" {
		mux.HandleFunc("POST /mcp/admin/reset", deps.adminMiddleware(deps.handleAdminReset))
	}

	// Everything else, any method.
	mux.HandleFunc("/", deps.handleNotFound)

	return corsMiddleware(requestLogging(mux, deps.Logger))
}

// endpoints is listed by the index route.
func (d *Dependencies) endpoints() []string {
	eps := []string{
		"GET /health",
		"POST /mcp/list_tools",
		"POST /mcp/call_tool",
		"GET /mcp/audit_log",
		"GET /mcp/metrics",
	}
	if d.AdminKeyHash != "" {
		eps = append(eps, "POST /mcp/admin/reset")
	}
	return eps
}
