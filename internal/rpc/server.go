package rpc

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/clawd-io/clawd/internal/approval"
	"github.com/clawd-io/clawd/internal/deadletter"
	"github.com/clawd-io/clawd/internal/event"
	"github.com/clawd-io/clawd/internal/governor"
	"github.com/clawd-io/clawd/internal/logging"
	"github.com/clawd-io/clawd/internal/session"
	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/internal/taskengine"
	"github.com/clawd-io/clawd/internal/worktree"
)

// Config controls the listen address and CORS posture.
type Config struct {
	Addr       string
	EnableCORS bool
}

// DefaultConfig returns the standard local-loopback HTTP server defaults.
func DefaultConfig() *Config {
	return &Config{Addr: "127.0.0.1:4411", EnableCORS: true}
}

// Server is the daemon's single external entrypoint: JSON-RPC 2.0 over
// WebSocket at /rpc, plus a plain GET /health for process supervisors.
type Server struct {
	cfg *Config

	sessions    *session.Manager
	tasks       *taskengine.Engine
	approvals   *approval.Router
	governor    *governor.Governor
	worktrees   *worktree.Manager
	deadletters *deadletter.Queue
	store       *store.Store
	bus         *event.Bus

	authToken string

	router   *chi.Mux
	httpSrv  *http.Server
	upgrader websocket.Upgrader

	handlers map[string]handlerFunc
}

type handlerFunc func(ctx context.Context, c *connState, params []byte) (any, *Error)

// Deps bundles every component the dispatch table wires into RPC methods.
type Deps struct {
	Sessions    *session.Manager
	Tasks       *taskengine.Engine
	Approvals   *approval.Router
	Governor    *governor.Governor
	Worktrees   *worktree.Manager
	DeadLetters *deadletter.Queue
	Store       *store.Store
	Bus         *event.Bus
	AuthToken   string
}

// New builds a Server bound to cfg.Addr, wiring every dependency in deps
// into the method dispatch table.
func New(cfg *Config, deps Deps) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Server{
		cfg:         cfg,
		sessions:    deps.Sessions,
		tasks:       deps.Tasks,
		approvals:   deps.Approvals,
		governor:    deps.Governor,
		worktrees:   deps.Worktrees,
		deadletters: deps.DeadLetters,
		store:       deps.Store,
		bus:         deps.Bus,
		authToken:   deps.AuthToken,
		router:      chi.NewRouter(),
		upgrader:    websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
	s.handlers = s.buildDispatchTable()
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)
	if s.cfg.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/rpc", s.handleWebSocket)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	pressure := governor.PressureNormal
	if s.governor != nil {
		pressure = s.governor.Current()
	}
	w.Write([]byte(`{"status":"ok","pressure":"` + string(pressure) + `"}`))
}

// connState is the per-WebSocket-connection session: auth gate and the
// event-bus subscription backing outbound push notifications.
type connState struct {
	mu            sync.Mutex
	authenticated bool
	conn          *websocket.Conn
	unsubscribe   func()
}

func (c *connState) send(resp *Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(resp)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("rpc: websocket upgrade failed")
		return
	}
	defer conn.Close()

	c := &connState{conn: conn}
	c.unsubscribe = s.bus.SubscribeAll(func(ev event.Event) {
		_ = c.send(notification(string(ev.Name), ev.Payload))
	})
	defer c.unsubscribe()

	if s.authToken == "" {
		c.authenticated = true
	}

	ctx := r.Context()
	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		resp := s.dispatch(ctx, c, &req)
		if resp == nil {
			continue
		}
		if err := c.send(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, c *connState, req *Request) *Response {
	if req.JSONRPC != "2.0" {
		return errResponse(req.ID, InvalidRequest, "jsonrpc must be \"2.0\"")
	}

	if req.Method == "daemon.auth" {
		return s.handleAuth(c, req)
	}
	if req.Method == "daemon.ping" {
		return okResponse(req.ID, map[string]any{"pong": true})
	}

	if !c.authenticated {
		return errResponse(req.ID, CodeUnauthenticated, "connection has not completed daemon.auth")
	}

	fn, ok := s.handlers[req.Method]
	if !ok {
		return errResponse(req.ID, MethodNotFound, "method not found: "+req.Method)
	}

	result, rpcErr := fn(ctx, c, req.Params)
	if rpcErr != nil {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	return okResponse(req.ID, result)
}

func (s *Server) handleAuth(c *connState, req *Request) *Response {
	var params struct {
		Token string `json:"token"`
	}
	if len(req.Params) > 0 {
		if err := unmarshalParams(req.Params, &params); err != nil {
			return errResponse(req.ID, InvalidParams, "invalid params")
		}
	}
	if s.authToken != "" && params.Token != s.authToken {
		return errResponse(req.ID, CodeUnauthenticated, "invalid token")
	}
	c.mu.Lock()
	c.authenticated = true
	c.mu.Unlock()
	return okResponse(req.ID, map[string]any{"authenticated": true})
}

// ReadAuthToken loads the shared-secret token from path, generating and
// persisting a fresh one at mode 0600 if the file does not exist yet.
func ReadAuthToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return string(data), nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	token := generateToken()
	if err := os.WriteFile(path, []byte(token), 0600); err != nil {
		return "", err
	}
	return token, nil
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called, mirroring net/http.Server.ListenAndServe's contract.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router exposes the chi router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
