// Package mcpserver exposes the daemon to external AI clients as an MCP
// server: a fixed tool catalog for task/approval workflows plus a read-only
// clawd:// resource namespace, and an outbound client wrapper for upstream
// MCP servers the daemon itself talks to.
//
// Built on the server.NewMCPServer/mcp.NewTool shape and the outbound
// Trusted/Untrusted connection pattern, using mark3labs/mcp-go and
// modelcontextprotocol/go-sdk.
package mcpserver

import (
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/clawd-io/clawd/internal/approval"
	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/internal/taskengine"
)

// DefaultApprovalTimeout bounds how long run_tests blocks waiting for a
// human decision on a NeedsApproval command before giving up.
const DefaultApprovalTimeout = 10 * time.Minute

// Deps are the daemon components the MCP surface reads and writes through.
// All of them are already shared with internal/rpc; the MCP server is a
// second front door onto the same task/approval state.
type Deps struct {
	Store           *store.Store
	Tasks           *taskengine.Engine
	Approvals       *approval.Router
	ApprovalTimeout time.Duration
}

func (d Deps) timeout() time.Duration {
	if d.ApprovalTimeout > 0 {
		return d.ApprovalTimeout
	}
	return DefaultApprovalTimeout
}

// NewServer builds the MCP server: the fixed tool catalog plus the clawd://
// resource namespace, bound to deps.
func NewServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"clawd",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
	)

	registerTools(s, deps)
	registerResources(s, deps)

	return s
}
