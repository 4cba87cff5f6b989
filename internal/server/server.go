package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	apperrors "github.com/sageorb/platform/internal/errors"
	"github.com/sageorb/platform/internal/mode"
	"github.com/sageorb/platform/internal/session"
	"github.com/sageorb/platform/internal/session/history"
	"github.com/sageorb/platform/internal/trace"
)

// Controller is the slice of the session machine the server drives.
type Controller interface {
	StartListening() error
	StopListening()
	Snapshot() (session.State, *session.Result)
}

// ModeSink receives cultural mode updates from the external detector.
type ModeSink interface {
	Set(m mode.Mode, detectedItems []string) error
	Current() mode.Mode
}

// Message types.
type Message struct {
	Type string `json:"type"`
}

type IntentMessage struct {
	Type    string `json:"type"`
	TraceID string `json:"trace_id,omitempty"`
}

type ModeMessage struct {
	Type          string   `json:"type"`
	Mode          string   `json:"mode"`
	DetectedItems []string `json:"detected_items,omitempty"`
}

type StateMessage struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

type ResultMessage struct {
	Type   string         `json:"type"`
	Result session.Result `json:"result"`
}

type NoticeMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	// Prune old timestamps
	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	machine    Controller
	modes      ModeSink
	journal    *history.Journal
	mu         sync.RWMutex
	conns      map[*websocket.Conn]struct{}
	rateLimits map[*websocket.Conn]*rateLimiter
}

// New creates a new server and starts the event broadcaster.
func New(machine Controller, modes ModeSink, journal *history.Journal) *Server {
	s := &Server{
		machine:    machine,
		modes:      modes,
		journal:    journal,
		conns:      make(map[*websocket.Conn]struct{}),
		rateLimits: make(map[*websocket.Conn]*rateLimiter),
	}

	go s.broadcastEvents()

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.rateLimits[conn] = &rateLimiter{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		delete(s.rateLimits, conn)
		s.mu.Unlock()
	}()

	// Get trace context from HTTP upgrade request
	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	// New connections get the current state right away.
	state, _ := s.machine.Snapshot()
	_ = wsjson.Write(baseCtx, conn, StateMessage{Type: "state", State: state.String()})

	for {
		var msg json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		// Check rate limit
		s.mu.RLock()
		rl := s.rateLimits[conn]
		s.mu.RUnlock()

		if !rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(baseCtx, conn, ErrorMessage{
				Type:    "error",
				Message: "rate limit exceeded",
			})
			continue
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}

		switch base.Type {
		case "start", "stop":
			var intent IntentMessage
			if err := json.Unmarshal(msg, &intent); err != nil {
				continue
			}
			s.handleIntent(intentCtx(baseCtx, intent.TraceID), conn, base.Type)
		case "mode":
			var mm ModeMessage
			if err := json.Unmarshal(msg, &mm); err != nil {
				continue
			}
			s.handleMode(baseCtx, conn, mm)
		}
	}
}

// intentCtx threads the caller's trace ID into the handler's context.
func intentCtx(ctx context.Context, traceID string) context.Context {
	if traceID != "" {
		tc := trace.Context{TraceID: traceID, SpanID: ""}
		tc = trace.NewChild(tc)
		return trace.WithContext(ctx, tc)
	}
	ctx, _ = trace.EnsureContext(ctx)
	return ctx
}

func (s *Server) handleIntent(ctx context.Context, conn *websocket.Conn, intent string) {
	ctx, span := trace.StartSpan(ctx, "handle_"+intent)
	defer span.End()

	log := trace.Logger(ctx)
	log.Info("session intent", "intent", intent)

	switch intent {
	case "start":
		if err := s.machine.StartListening(); err != nil {
			span.SetAttr("error", err.Error())
			log.Warn("start rejected", "error", err)
			_ = wsjson.Write(ctx, conn, NoticeMessage{Type: "notice", Message: apperrors.Notice(err)})
		}
	case "stop":
		s.machine.StopListening()
	}
}

func (s *Server) handleMode(ctx context.Context, conn *websocket.Conn, mm ModeMessage) {
	log := trace.Logger(ctx)

	if mm.Mode == "" {
		_ = wsjson.Write(ctx, conn, ErrorMessage{Type: "error", Message: "mode message missing mode"})
		return
	}

	if err := s.modes.Set(mode.Mode(mm.Mode), mm.DetectedItems); err != nil {
		log.Error("mode update failed", "mode", mm.Mode, "error", err)
		_ = wsjson.Write(ctx, conn, ErrorMessage{Type: "error", Message: apperrors.Notice(err)})
		return
	}
	log.Info("cultural mode updated", "mode", mm.Mode, "items", len(mm.DetectedItems))
}

// broadcastEvents fans journal events out to every connection.
func (s *Server) broadcastEvents() {
	for evt := range s.journal.Events() {
		var msg interface{}
		switch evt.Kind {
		case history.KindState:
			msg = StateMessage{Type: "state", State: evt.State}
		case history.KindResult:
			msg = ResultMessage{Type: "result", Result: *evt.Result}
		case history.KindNotice:
			msg = NoticeMessage{Type: "notice", Message: evt.Notice}
		default:
			continue
		}

		s.mu.RLock()
		for conn := range s.conns {
			go func(c *websocket.Conn, m interface{}) {
				_ = wsjson.Write(context.Background(), c, m)
			}(conn, msg)
		}
		s.mu.RUnlock()
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state, result := s.machine.Snapshot()

	resp := struct {
		State  string          `json:"state"`
		Mode   string          `json:"mode"`
		Result *session.Result `json:"result,omitempty"`
	}{
		State:  state.String(),
		Mode:   string(s.modes.Current()),
		Result: result,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	events := s.journal.Recent(HistoryLimit)
	if events == nil {
		events = []history.Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"events": events,
	})
}
