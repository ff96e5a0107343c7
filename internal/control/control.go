package control

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/NodePath81/hyperspeed/internal/engine"
	"github.com/NodePath81/hyperspeed/internal/util"
)

const (
	startRatePerSecond = 1
	startRateBurst     = 5
	maxCommandBytes    = 4 << 10
	sendQueueSize      = 64
	wsWriteWait        = 10 * time.Second
	wsPongWait         = 60 * time.Second
	wsPingInterval     = 30 * time.Second
)

// Runner executes benchmark runs; *engine.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, req engine.Request, events chan<- engine.Event) (engine.Summary, error)
	Abort()
}

// RunnerFactory builds a Runner targeting host:port. Empty host and zero
// port mean the server itself.
type RunnerFactory func(host string, port int) (Runner, error)

// Handler serves the websocket control channel.
type Handler struct {
	factory  RunnerFactory
	auth     Authorizer
	sessions *SessionStore
	limiter  *rateLimiter
	logger   util.Logger
}

func NewHandler(factory RunnerFactory, auth Authorizer, sessions *SessionStore, logger util.Logger) *Handler {
	if sessions == nil {
		sessions = NewSessionStore(nil)
	}
	return &Handler{
		factory:  factory,
		auth:     auth,
		sessions: sessions,
		limiter:  newRateLimiter(startRatePerSecond, startRateBurst, 5*time.Minute),
		logger:   logger,
	}
}

// Sessions exposes the live session registry.
func (h *Handler) Sessions() *SessionStore { return h.sessions }

// Close disconnects every session, aborting their runs.
func (h *Handler) Close() { h.sessions.CloseAll() }

// ServeSessions writes the live session list as JSON. It is guarded by the
// same token as the control channel.
func (h *Handler) ServeSessions(w http.ResponseWriter, r *http.Request) {
	if !h.auth.checkAuth(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(h.sessions.Snapshot())
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.auth.checkAuth(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	upgrader := websocket.Upgrader{
		CheckOrigin:  h.auth.originAllowed,
		Subprotocols: []string{wsPrimaryProtocol},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(maxCommandBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	id, addr := uuid.New().String(), clientIP(r)
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:     id,
		addr:   addr,
		h:      h,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		logger: h.logger.With("session", id, "client", addr),
	}
	h.sessions.add(SessionInfo{ID: s.id, ClientAddr: s.addr, Connected: time.Now()}, s.close)
	s.logger.Debug("control session opened")

	go s.readLoop()
	go s.writeLoop()
}

// session is one websocket connection. It runs at most one benchmark at a
// time; all writes go through send and the single writer goroutine.
type session struct {
	id     string
	addr   string
	h      *Handler
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	logger util.Logger

	closeOnce sync.Once
	mu        sync.Mutex
	runner    Runner
	wg        sync.WaitGroup
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *session) readLoop() {
	defer func() {
		s.close()
		s.wg.Wait()
		s.h.sessions.remove(s.id)
		s.logger.Debug("control session closed")
	}()
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			s.sendMessage(engine.ErrorMessage("invalid command"))
			continue
		}
		switch cmd.Command {
		case CommandStart:
			s.start(cmd)
		case CommandAbort:
			s.mu.Lock()
			if s.runner != nil {
				s.runner.Abort()
			}
			s.mu.Unlock()
		default:
			s.sendMessage(engine.ErrorMessage("unknown command: " + cmd.Command))
		}
	}
}

func (s *session) start(cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runner != nil {
		s.sendMessage(engine.ErrorMessage(engine.ErrRunInProgress.Error()))
		return
	}
	if !s.h.limiter.Allow(s.addr) {
		s.sendMessage(engine.ErrorMessage("rate limit exceeded"))
		return
	}
	runner, err := s.h.factory(cmd.Host, cmd.Port)
	if err != nil {
		s.sendMessage(engine.ErrorMessage(err.Error()))
		return
	}
	s.runner = runner
	s.wg.Add(1)
	go s.run(runner, cmd.Request())
}

func (s *session) run(runner Runner, req engine.Request) {
	defer s.wg.Done()
	events := make(chan engine.Event, sendQueueSize)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for ev := range events {
			if ev.Phase == engine.PhasePing && ev.Status == engine.StatusStarting {
				s.h.sessions.setRun(s.id, ev.RunID)
			}
			s.sendMessage(ev.Message())
		}
	}()

	s.logger.Info("control run started", "streams", req.Streams, "duration", req.Duration)
	_, err := runner.Run(s.ctx, req, events)
	close(events)
	<-forwarded

	s.mu.Lock()
	s.runner = nil
	s.mu.Unlock()
	s.h.sessions.setRun(s.id, "")
	if err != nil {
		s.logger.Info("control run ended", "error", err)
		return
	}
	s.logger.Info("control run finished")
}

// sendMessage queues m for the writer, blocking while the queue is full
// until the session closes.
func (s *session) sendMessage(m engine.Message) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	select {
	case <-s.done:
	case s.send <- data:
	}
}

func (s *session) writeLoop() {
	defer s.close()
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
