package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clawd-io/clawd/internal/approval"
	"github.com/clawd-io/clawd/internal/config"
	"github.com/clawd-io/clawd/internal/deadletter"
	"github.com/clawd-io/clawd/internal/event"
	"github.com/clawd-io/clawd/internal/governor"
	"github.com/clawd-io/clawd/internal/logging"
	"github.com/clawd-io/clawd/internal/mcpserver"
	"github.com/clawd-io/clawd/internal/rpc"
	"github.com/clawd-io/clawd/internal/scheduler"
	"github.com/clawd-io/clawd/internal/session"
	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/internal/taskengine"
	"github.com/clawd-io/clawd/internal/turn"
	"github.com/clawd-io/clawd/internal/worktree"
	"github.com/clawd-io/clawd/pkg/types"
)

var (
	serveAddr   string
	serveDir    string
	serveNoAuth bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the clawd daemon",
	Long: `Run clawd as a resident daemon exposing a JSON-RPC 2.0 API over
WebSocket for the CLI/TUI front end and any MCP-speaking agent.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:4411", "Address to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Default working directory for config resolution")
	serveCmd.Flags().BoolVar(&serveNoAuth, "no-auth", false, "Disable daemon.auth gating (local development only)")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return fmt.Errorf("creating data directories: %w", err)
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logging.Info().Str("version", Version).Str("addr", serveAddr).Msg("starting clawd")

	st, err := store.Open(context.Background(), paths.StoreFile())
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	bus := event.New()
	defer bus.Close()

	dlq := deadletter.New(st, nil)
	bus.SetFailureSink(dlq)
	dlq.Start()
	defer dlq.Stop()

	approvals := approval.New(st, bus)
	pool := scheduler.New(appConfig)
	sessions := session.New(st, bus, providerRunnerFactory(st, bus, approvals, pool, appConfig))
	tasks := taskengine.New(paths.Data, st, bus)
	worktrees := worktree.New(paths.WorktreesDir(""), st)

	ctx := context.Background()
	if err := worktrees.Reconcile(ctx); err != nil {
		logging.Warn().Err(err).Msg("worktree reconcile failed")
	}
	worktrees.SetBus(bus)
	worktrees.WatchAll()

	gov := governor.New(governor.Config{
		BudgetPct:           appConfig.RAMBudgetPct,
		MaxConcurrentActive: appConfig.MaxConcurrentActive,
	}, bus, sessions)
	govCtx, govCancel := context.WithCancel(ctx)
	go gov.Run(govCtx)
	defer govCancel()

	upstreams, upstreamErrs := mcpserver.ConnectAll(ctx, appConfig.MCP)
	for name, err := range upstreamErrs {
		logging.Warn().Err(err).Str("server", name).Msg("mcp upstream connect failed")
	}
	defer upstreams.Close()

	authToken := ""
	if !serveNoAuth {
		authToken, err = rpc.ReadAuthToken(paths.AuthTokenPath())
		if err != nil {
			return fmt.Errorf("loading auth token: %w", err)
		}
	}

	srv := rpc.New(&rpc.Config{Addr: serveAddr, EnableCORS: true}, rpc.Deps{
		Sessions:    sessions,
		Tasks:       tasks,
		Approvals:   approvals,
		Governor:    gov,
		Worktrees:   worktrees,
		DeadLetters: dlq,
		Store:       st,
		Bus:         bus,
		AuthToken:   authToken,
	})

	go func() {
		logging.Info().Str("addr", serveAddr).Msg("listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("rpc server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("shutdown error")
	}
	sessions.Drain(shutdownCtx)
	logging.Info().Msg("stopped")
	return nil
}

// providerRunnerFactory resolves each provider's CLI command from config and
// binds it into a turn.Runner at session-creation time. The approvals router
// is shared across every session so request_approval gating works the same
// regardless of which provider is driving the turn. pool picks which
// account to dispatch under (falling back to another account, or another
// provider entirely, if the requested one has no account available) and
// tracks the cooldown/health that fallback decision feeds on.
func providerRunnerFactory(st *store.Store, bus *event.Bus, approvals *approval.Router, pool *scheduler.Pool, cfg *types.Config) session.RunnerFactory {
	return func(sessionID, repoPath string, provider types.Provider) *turn.Runner {
		resolved, account, err := pool.SelectForRole(scheduler.RoleImplementer, provider)
		if err != nil {
			logging.Warn().Err(err).Str("provider", string(provider)).Msg("no account available, falling back to requested provider unscheduled")
			resolved, account = provider, ""
		}

		command := []string{string(resolved)}
		if pc, ok := cfg.Providers[string(resolved)]; ok && len(pc.Command) > 0 {
			command = pc.Command
		}

		runner := turn.New(st, bus, approvals, sessionID, "", repoPath, command)
		if account != "" {
			runner.SetSchedule(pool, resolved, account)
		}
		return runner
	}
}
