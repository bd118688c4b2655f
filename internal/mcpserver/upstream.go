package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/clawd-io/clawd/internal/policy"
	"github.com/clawd-io/clawd/pkg/types"
)

// Upstream wraps one outbound connection to an external MCP server the
// daemon itself calls into (as opposed to the inbound server.MCPServer
// above, which other clients call into). Trusted upstreams return tool
// results untouched; Untrusted upstreams run every result through
// policy.SanitizeMCPResponse before it reaches a turn's context, since a
// compromised or malicious MCP server is exactly the injection vector
// policy.SourceMcpToolResponse exists for.
//
// Grounded on internal/mcp/client.go's connectServer transport switch,
// narrowed to one server per Upstream instead of a name-keyed registry.
type Upstream struct {
	name    string
	trusted bool
	client  *sdkmcp.Client
	session *sdkmcp.ClientSession
}

// Connect dials the MCP server described by cfg and returns a ready Upstream.
func Connect(ctx context.Context, name string, cfg types.MCPConfig) (*Upstream, error) {
	timeout := 10 * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "clawd",
		Version: "1.0.0",
	}, nil)

	var transport sdkmcp.Transport
	switch cfg.Type {
	case "remote":
		httpClient := &http.Client{Timeout: timeout}
		transport = &sdkmcp.SSEClientTransport{Endpoint: cfg.URL, HTTPClient: httpClient}
	case "local", "":
		if len(cfg.Command) == 0 {
			return nil, fmt.Errorf("mcp server %s: empty command", name)
		}
		cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
		cmd.Env = os.Environ()
		transport = &sdkmcp.CommandTransport{Command: cmd}
	default:
		return nil, fmt.Errorf("mcp server %s: unknown transport %q", name, cfg.Type)
	}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to mcp server %s: %w", name, err)
	}

	return &Upstream{name: name, trusted: cfg.Trusted, client: client, session: session}, nil
}

// CallTool invokes a tool on the upstream server, sanitizing the result
// when the upstream is Untrusted.
func (u *Upstream) CallTool(ctx context.Context, toolName string, args map[string]any) (string, error) {
	result, err := u.session.CallTool(ctx, &sdkmcp.CallToolParams{Name: toolName, Arguments: args})
	if err != nil {
		return "", err
	}
	if result.IsError {
		return "", fmt.Errorf("mcp server %s: tool %s returned an error", u.name, toolName)
	}

	var out strings.Builder
	for _, content := range result.Content {
		text, ok := content.(*sdkmcp.TextContent)
		if !ok {
			continue
		}
		if u.trusted {
			out.WriteString(text.Text)
			continue
		}
		sanitized, _ := policy.SanitizeMCPResponse(text.Text).(string)
		out.WriteString(sanitized)
	}
	return out.String(), nil
}

// Close disconnects the session.
func (u *Upstream) Close() error {
	return u.session.Close()
}

// UpstreamSet holds every outbound MCP server configured for the daemon,
// keyed by the name it was declared under in types.Config.MCP.
type UpstreamSet struct {
	byName map[string]*Upstream
}

// ConnectAll dials every enabled server in cfg, skipping and recording any
// that fail rather than aborting the whole set — one bad upstream shouldn't
// stop the daemon from starting.
func ConnectAll(ctx context.Context, cfg map[string]types.MCPConfig) (*UpstreamSet, map[string]error) {
	set := &UpstreamSet{byName: make(map[string]*Upstream)}
	failures := make(map[string]error)
	for name, serverCfg := range cfg {
		if serverCfg.Disabled {
			continue
		}
		up, err := Connect(ctx, name, serverCfg)
		if err != nil {
			failures[name] = err
			continue
		}
		set.byName[name] = up
	}
	return set, failures
}

// Get returns the named upstream, if connected.
func (s *UpstreamSet) Get(name string) (*Upstream, bool) {
	up, ok := s.byName[name]
	return up, ok
}

// Close disconnects every upstream.
func (s *UpstreamSet) Close() {
	for _, up := range s.byName {
		_ = up.Close()
	}
}
