package api

import "github.com/webmcp/relay/internal/protocol"

// IndexResp is the GET / body.
type IndexResp struct {
	Name            string   `json:"name"`
	ProtocolVersion string   `json:"protocolVersion"`
	Endpoints       []string `json:"endpoints"`
}

// HealthResp is the GET /health body.
type HealthResp struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
}

// ErrorResp is returned by routes that do not produce a call envelope.
type ErrorResp struct {
	OK    bool            `json:"ok"`
	Error *protocol.Error `json:"error"`
}

// ResetResp is the admin reset body.
type ResetResp struct {
	OK bool `json:"ok"`
}

func errorResp(code, message string) ErrorResp {
	return ErrorResp{OK: false, Error: protocol.NewError(code, message)}
}
