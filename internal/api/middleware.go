package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/webmcp/relay/internal/protocol"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// --- Admin auth ---

// adminMiddleware requires "Authorization: Bearer <key>" where key matches
// AdminKeyHash.
func (d *Dependencies) adminMiddleware(next http.HandlerFunc) http.HandlerFunc {
	hash := []byte(d.AdminKeyHash)

	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := extractBearerToken(r)
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, errorResp(protocol.CodeUnauthorized, "Missing or invalid Authorization header."))
			return
		}
		if err := bcrypt.CompareHashAndPassword(hash, []byte(token)); err != nil {
			d.Logger.Warn("admin auth failed", zap.String("remote_addr", r.RemoteAddr))
			writeJSON(w, http.StatusUnauthorized, errorResp(protocol.CodeUnauthorized, "Invalid admin key."))
			return
		}
		next(w, r)
	}
}

// extractBearerToken extracts the token from "Authorization: Bearer <token>".
func extractBearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return strings.TrimSpace(auth[len(prefix):]), true
}

// --- JSON helpers ---

// writeJSON writes a JSON response with the given status code. The body is
// encoded before the header is sent so an unencodable value becomes a 500.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		buf.Reset()
		status = http.StatusInternalServerError
		json.NewEncoder(&buf).Encode(errorResp(protocol.CodeInternal, "Response could not be encoded.")) //nolint:errcheck
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes()) //nolint:errcheck
}

// --- Request logging ---

func requestLogging(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// --- CORS ---

// corsMiddleware lets the browser extension and web playground call the relay.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
