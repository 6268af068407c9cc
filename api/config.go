// Package api provides the HTTP API for inspecting and administering
// long-term memory.
package api

import (
	"net/http"

	"github.com/papercomputeco/mnemosyne/pkg/retention"
	"github.com/papercomputeco/mnemosyne/pkg/session"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8090")
	ListenAddr string

	// Budget is the default retention budget for /v1/filter.
	Budget retention.Budget

	// Tracker backs /v1/sessions. Optional.
	Tracker *session.Tracker

	// MCPHandler is mounted at /mcp when set.
	MCPHandler http.Handler

	// DisableMetrics turns off the /metrics endpoint.
	DisableMetrics bool
}
