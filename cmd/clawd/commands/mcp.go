package commands

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/clawd-io/clawd/internal/approval"
	"github.com/clawd-io/clawd/internal/config"
	"github.com/clawd-io/clawd/internal/event"
	"github.com/clawd-io/clawd/internal/mcpserver"
	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/internal/taskengine"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the clawd MCP tool/resource surface over stdio",
	Long: `Run clawd's MCP server over stdio, for AI clients (Claude Desktop,
IDE agents) that spawn an MCP server as a subprocess rather than dialing the
JSON-RPC WebSocket API directly. Reads and writes the same on-disk store as
"clawd serve".`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return fmt.Errorf("creating data directories: %w", err)
	}

	st, err := store.Open(context.Background(), paths.StoreFile())
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	bus := event.New()
	defer bus.Close()

	deps := mcpserver.Deps{
		Store:     st,
		Tasks:     taskengine.New(paths.Data, st, bus),
		Approvals: approval.New(st, bus),
	}

	s := mcpserver.NewServer(deps)
	return server.ServeStdio(s)
}
