package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"qmaze/maze"
	"qmaze/metrics"
	"qmaze/qtable"
	"qmaze/reinforcement"
	"qmaze/server/cell_views"
	"qmaze/server/fastview"
	"qmaze/server/root_view"
	"qmaze/store"
	"qmaze/token"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownGracePeriod = 5 * time.Second

// Server exposes the training engine over http: a live page of the value table
// pushed over a websocket, a json api for training and reading values, and the
// token endpoints.
//
// Training calls are serialized by mu, and across processes by the store's lock
// when the store is shared. The root view's update channel is consumed by one
// websocket at a time; a second page waits for the first to disconnect.
type Server struct {
	addr   string
	router *mux.Router
	logger *log.Logger

	mu       sync.Mutex // guards engine
	engine   *reinforcement.Engine
	store    store.Store
	stateKey string

	stateUpdates chan qtable.State
	rootView     *root_view.RootView
	wsMu         sync.Mutex // one websocket consumer at a time

	recorder *metrics.Recorder
	gatherer prometheus.Gatherer
	tokens   *token.Registry
	auth     *Authenticator
}

type Option func(*Server)

// WithStore saves the engine state under key after every training call.
func WithStore(st store.Store, key string) Option {
	return func(s *Server) {
		s.store = st
		s.stateKey = key
	}
}

// WithMetrics records training calls on rec and serves gatherer at /metrics.
func WithMetrics(rec *metrics.Recorder, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.recorder = rec
		s.gatherer = gatherer
	}
}

func WithTokens(reg *token.Registry) Option {
	return func(s *Server) { s.tokens = reg }
}

// WithAuth requires a bearer token for the mutating endpoints.
func WithAuth(auth *Authenticator) Option {
	return func(s *Server) { s.auth = auth }
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer initializes the views and routes. stateUpdates carries training
// snapshots to the views; the server also publishes to it after each training call.
func NewServer(
	ctx context.Context,
	addr string,
	engine *reinforcement.Engine,
	stateUpdates chan qtable.State,
	opts ...Option,
) (*Server, error) {
	server := &Server{
		addr:         addr,
		logger:       log.New(os.Stderr, "[SERVER] ", log.LstdFlags),
		engine:       engine,
		stateUpdates: stateUpdates,
		tokens:       token.NewRegistry(nil),
	}
	for _, opt := range opts {
		opt(server)
	}

	rootView, err := root_view.NewRootView(ctx, engine.Layout(), stateUpdates)
	if err != nil {
		return nil, fmt.Errorf("build views: %w", err)
	}
	server.rootView = rootView
	server.router = server.routes()
	return server, nil
}

func (server *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", server.serveIndex).Methods(http.MethodGet)
	r.HandleFunc("/ws", server.serveWebsocket).Methods(http.MethodGet)

	r.HandleFunc("/qtable", server.getQTable).Methods(http.MethodGet)
	r.HandleFunc("/qtable/{row:[0-9]+}/{col:[0-9]+}", server.getCell).Methods(http.MethodGet)
	r.HandleFunc("/policy", server.getPolicy).Methods(http.MethodGet)
	r.HandleFunc("/policy.svg", server.getPolicySVG).Methods(http.MethodGet)
	r.Handle("/train", server.guard(http.HandlerFunc(server.postTrain))).Methods(http.MethodPost)

	r.Handle("/tokens", server.guard(http.HandlerFunc(server.postToken))).Methods(http.MethodPost)
	r.HandleFunc("/tokens/{id:[0-9]+}", server.getToken).Methods(http.MethodGet)
	r.HandleFunc("/tokens/{id:[0-9]+}/uri", server.getTokenURI).Methods(http.MethodGet)

	if server.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(server.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

// guard wraps h with the bearer-token check when auth is configured.
func (server *Server) guard(h http.Handler) http.Handler {
	if server.auth == nil {
		return h
	}
	return server.auth.Middleware(h)
}

// Handler returns the server's routes, for mounting or testing.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (server *Server) Serve(ctx context.Context) (err error) {
	srv := &http.Server{
		Addr:              server.addr,
		Handler:           server.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	server.logger.Printf("listening on %s", server.addr)
	if err = srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Train runs one serialized training call, persists the result, and pushes the
// new state to the views. Calls that fail Params.Validate are refused before any
// lock is taken.
func (server *Server) Train(ctx context.Context, params reinforcement.Params) (stats reinforcement.Stats, snap qtable.State, err error) {
	if err = params.Validate(); err != nil {
		return
	}
	if locker, ok := server.store.(store.Locker); ok {
		var unlock func()
		if unlock, err = locker.Lock(ctx, server.stateKey); err != nil {
			return
		}
		defer unlock()
	}

	server.mu.Lock()
	defer server.mu.Unlock()

	// A shared store may hold state trained by another process.
	if _, shared := server.store.(store.Locker); shared {
		var latest qtable.State
		latest, err = store.LoadOrNew(ctx, server.store, server.stateKey, server.engine.Snapshot())
		if err != nil {
			return
		}
		server.engine.Restore(latest)
	}

	stats = server.engine.Train(params)
	snap = server.engine.Snapshot()

	if server.recorder != nil {
		server.recorder.Observe(stats, snap.Seed)
	}
	server.PublishState(snap)

	if server.store != nil {
		if err = server.store.Save(ctx, server.stateKey, snap); err != nil {
			err = fmt.Errorf("save state: %w", err)
		}
	}
	return
}

// PublishState offers a snapshot to the views, dropping it if they are busy;
// a later snapshot supersedes it anyway.
func (server *Server) PublishState(snap qtable.State) {
	select {
	case server.stateUpdates <- snap:
	default:
	}
}

// snapshot returns a consistent copy of the engine state.
func (server *Server) snapshot() qtable.State {
	server.mu.Lock()
	defer server.mu.Unlock()
	return server.engine.Snapshot()
}

func (server *Server) layout() maze.Layout {
	return server.engine.Layout()
}

// serveWebsocket publishes view updates to the client via websocket until it disconnects.
func (server *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	if !server.wsMu.TryLock() {
		http.Error(w, "another page is attached", http.StatusConflict)
		return
	}
	defer server.wsMu.Unlock()

	cli, err := fastview.NewClient(server.rootView.Updates(), fastview.Coalesce, w, r)
	if err != nil {
		server.logger.Println("upgrade:", err)
		return
	}

	// bring the new page current
	server.PublishState(server.snapshot())
	if err = cli.Sync(); err != nil {
		server.logger.Printf("websocket: %v", err)
	}
}

// Serve the index.html main page.
func (server *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")

	snap := server.snapshot()
	layout := server.layout()
	cells := cell_views.Convert(&layout, &snap.Table)
	if err := renderTemplate(w, server.rootView, cells); err != nil {
		server.logger.Printf("render index: %v", err)
		_, _ = w.Write([]byte(err.Error()))
	}
}

func renderTemplate(
	w io.Writer,
	vc fastview.ViewComponent,
	data interface{},
) (err error) {
	t := template.New("index.html")
	var tname string
	if tname, err = vc.Parse(t); err != nil {
		return
	}
	if _, err = t.Parse(`{{ template "` + tname + `" . }}`); err != nil {
		return
	}

	err = t.Execute(w, data)
	return
}
