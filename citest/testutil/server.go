// Package testutil boots a real clawd daemon (rpc.Server over an
// httptest.Server, backed by a fresh on-disk store) for black-box suites to
// drive over the same JSON-RPC/WebSocket wire protocol a CLI front end
// would use.
//
// Constructs the daemon's dependency graph in-process rather than spawning
// a subprocess, since clawd's daemon has no network dependency on an
// external LLM API.
package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	gorillaws "github.com/gorilla/websocket"

	"github.com/clawd-io/clawd/internal/approval"
	"github.com/clawd-io/clawd/internal/event"
	"github.com/clawd-io/clawd/internal/rpc"
	"github.com/clawd-io/clawd/internal/session"
	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/internal/taskengine"
	"github.com/clawd-io/clawd/internal/turn"
	"github.com/clawd-io/clawd/internal/worktree"
	"github.com/clawd-io/clawd/pkg/types"
)

// TestServer is one running daemon instance for the duration of a suite.
type TestServer struct {
	RPC   *rpc.Server
	HTTP  *httptest.Server
	store *store.Store
	dir   string
}

// StartTestServer opens a fresh store under a temp directory and serves it
// over an in-process httptest.Server, unauthenticated, matching the
// "--no-auth" local-development posture.
func StartTestServer() (*TestServer, error) {
	dir, err := os.MkdirTemp("", "clawd-citest-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}

	st, err := store.Open(context.Background(), filepath.Join(dir, "clawd.db"))
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("opening store: %w", err)
	}

	bus := event.New()
	approvals := approval.New(st, bus)
	sessions := session.New(st, bus, fakeRunnerFactory(st, bus))
	tasks := taskengine.New(dir, st, bus)
	worktrees := worktree.New(filepath.Join(dir, "worktrees"), st)

	srv := rpc.New(&rpc.Config{EnableCORS: false}, rpc.Deps{
		Sessions:  sessions,
		Tasks:     tasks,
		Approvals: approvals,
		Worktrees: worktrees,
		Store:     st,
		Bus:       bus,
	})

	return &TestServer{
		RPC:   srv,
		HTTP:  httptest.NewServer(srv.Router()),
		store: st,
		dir:   dir,
	}, nil
}

// Stop tears down the httptest listener, closes the store, and removes the
// temp directory.
func (ts *TestServer) Stop() {
	ts.HTTP.Close()
	_ = ts.store.Close()
	os.RemoveAll(ts.dir)
}

// Client dials a fresh WebSocket connection to the running server.
func (ts *TestServer) Client() *TestClient {
	url := "ws" + strings.TrimPrefix(ts.HTTP.URL, "http") + "/rpc"
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		panic(fmt.Sprintf("testutil: dialing rpc server: %v", err))
	}
	return &TestClient{conn: conn}
}

// fakeRunnerFactory binds a no-op provider command ("true") so sessions can
// run a full turn lifecycle without spawning a real provider CLI.
func fakeRunnerFactory(st *store.Store, bus *event.Bus) session.RunnerFactory {
	return func(sessionID, repoPath string, provider types.Provider) *turn.Runner {
		return turn.New(st, bus, nil, sessionID, "", repoPath, []string{"true"})
	}
}

// SkipIfMissingEnv reports whether any of the named environment variables
// is unset, for suites that gate a scenario on real provider credentials.
func SkipIfMissingEnv(names ...string) bool {
	for _, name := range names {
		if os.Getenv(name) == "" {
			return true
		}
	}
	return false
}
