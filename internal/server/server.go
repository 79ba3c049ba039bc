// Package server exposes modelling sessions over a websocket. Every
// connection gets its own Studio and therefore its own session history.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/manash/modelchat/internal/config"
	"github.com/manash/modelchat/internal/display"
	"github.com/manash/modelchat/internal/studio"
)

var ErrUnknownRequest = errors.New("unknown request type")

// StudioFactory builds the Studio for a new connection.
type StudioFactory func() (*studio.Studio, error)

type Server struct {
	cfg       config.ServerConfig
	newStudio StudioFactory
	source    display.Source
	gatherer  prometheus.Gatherer
	logger    *zap.Logger
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// New builds a Server. src resolves preview bytes for state events and may be
// nil, in which case only previews that already carry data include it.
func New(cfg config.ServerConfig, newStudio StudioFactory, src display.Source, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		newStudio: newStudio,
		source:    src,
		gatherer:  prometheus.DefaultGatherer,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "ws_server"))
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down within
// ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("starting server", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	st, err := s.newStudio()
	if err != nil {
		s.logger.Error("failed to create studio", zap.Error(err))
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}
	defer st.Close()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	if s.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}

	c := &connection{
		conn:   conn,
		studio: st,
		source: s.source,
		logger: s.logger.With(zap.String("session_id", st.Session().ID())),
	}
	c.logger.Info("client connected", zap.String("remote", r.RemoteAddr))
	c.serve(r.Context())
}

// connection adapts one websocket to one Studio. Writes are serialized
// because the websocket does not allow concurrent writers.
type connection struct {
	conn   *websocket.Conn
	studio *studio.Studio
	source display.Source
	logger *zap.Logger

	mu sync.Mutex
}

func (c *connection) serve(ctx context.Context) {
	defer c.conn.Close(websocket.StatusNormalClosure, "closing")

	if err := c.write(ctx, c.stateEvent(ctx, EventState)); err != nil {
		c.logger.Debug("initial write failed", zap.Error(err))
		return
	}

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.logger.Info("client disconnected")
			default:
				c.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			if err := c.write(ctx, errorEvent(fmt.Errorf("malformed request: %w", err))); err != nil {
				return
			}
			continue
		}

		if err := c.write(ctx, c.handle(ctx, req)); err != nil {
			c.logger.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}

func (c *connection) handle(ctx context.Context, req Request) Event {
	switch req.Type {
	case RequestDescribe:
		step, err := c.studio.Generate(ctx, req.Text)
		if err != nil {
			return errorEvent(err)
		}
		return c.stepEvent(ctx, step)
	case RequestRefine:
		step, err := c.studio.Refine(ctx, req.Text)
		if err != nil {
			return errorEvent(err)
		}
		return c.stepEvent(ctx, step)
	case RequestSubmit:
		result := c.studio.Submit(ctx)
		ev := c.stateEvent(ctx, EventSubmission)
		ev.Submission = result
		ev.OK = result.OK()
		return ev
	case RequestClear:
		c.studio.Clear()
		return c.stateEvent(ctx, EventState)
	case RequestState:
		return c.stateEvent(ctx, EventState)
	default:
		return errorEvent(fmt.Errorf("%w: %q", ErrUnknownRequest, req.Type))
	}
}

func (c *connection) stepEvent(ctx context.Context, step *studio.StepResult) Event {
	ev := c.stateEvent(ctx, EventReply)
	reply := step.Reply
	ev.Reply = &reply
	ev.OK = step.OK
	return ev
}

func (c *connection) stateEvent(ctx context.Context, typ string) Event {
	snap := c.studio.Snapshot()
	state := &State{
		SessionID:   snap.SessionID,
		Messages:    snap.Conversation,
		Adjustments: snap.Adjustments,
	}

	if p := c.studio.Preview(); p != nil {
		data := p.Data
		if len(data) == 0 && c.source != nil {
			b, err := c.source.Bytes(ctx, p)
			if err != nil {
				c.logger.Warn("failed to load preview data", zap.String("preview_id", p.ID), zap.Error(err))
			} else {
				data = b
			}
		}
		state.Preview = newPreviewView(p, data)
	}

	return Event{Type: typ, OK: true, State: state}
}

func errorEvent(err error) Event {
	return Event{Type: EventError, Error: err.Error()}
}

func (c *connection) write(ctx context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}
