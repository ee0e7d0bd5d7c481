package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Raikerian/go-rtc-translate/internal/metrics"
	"github.com/Raikerian/go-rtc-translate/internal/session"
	"github.com/Raikerian/go-rtc-translate/internal/signaling"
	"github.com/Raikerian/go-rtc-translate/internal/turn"
)

const maxBodyBytes = 1 << 16

// SessionControl starts and stops the peer session.
type SessionControl interface {
	Connect(ctx context.Context, devReset bool) error
	Stop()
}

// Conversation is the turn coordinator as driven by the UI.
type Conversation interface {
	Snapshot() turn.Snapshot
	PressMic(section turn.Section) error
	SetLanguage(section turn.Section, code string) error
	History() []turn.Record
	Reset()
}

// Server is the local HTTP control surface of the client.
type Server struct {
	logger   *zap.Logger
	metrics  *metrics.Metrics
	hub      *Hub
	sessions SessionControl
	conv     Conversation
	devReset bool
	addr     string

	server   *http.Server
	listener net.Listener
}

// NewServer wires the routes; it does not listen until Start.
func NewServer(
	logger *zap.Logger,
	m *metrics.Metrics,
	hub *Hub,
	sessions SessionControl,
	conv Conversation,
	addr string,
	devReset bool,
) *Server {
	s := &Server{
		logger:   logger.Named("bridge"),
		metrics:  m,
		hub:      hub,
		sessions: sessions,
		conv:     conv,
		devReset: devReset,
		addr:     addr,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.withMetrics("/healthz", s.handleHealth))
	mux.HandleFunc("GET /events", hub.ServeWS)
	mux.HandleFunc("GET /state", s.withMetrics("/state", s.handleState))
	mux.HandleFunc("POST /session/connect", s.withMetrics("/session/connect", s.handleConnect))
	mux.HandleFunc("POST /session/disconnect", s.withMetrics("/session/disconnect", s.handleDisconnect))
	mux.HandleFunc("POST /mic", s.withMetrics("/mic", s.handleMic))
	mux.HandleFunc("PUT /languages", s.withMetrics("/languages", s.handleLanguage))
	mux.HandleFunc("GET /transcripts", s.withMetrics("/transcripts", s.handleTranscripts))
	mux.Handle("GET /metrics", m.Handler())

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}

	return s.addr
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Bridge server failed", zap.Error(err))
		}
	}()

	s.logger.Info("Bridge listening", zap.String("addr", ln.Addr().String()))

	return nil
}

// Stop drains requests and disconnects websocket clients.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Close()

	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.conv.Snapshot())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	err := s.sessions.Connect(r.Context(), s.devReset)
	if err != nil {
		writeError(w, connectStatus(err), err)

		return
	}

	snap := s.conv.Snapshot()
	s.hub.HandleSnapshot(snap)
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	s.sessions.Stop()
	// Reset notifies listeners, the hub included
	s.conv.Reset()

	writeJSON(w, http.StatusOK, s.conv.Snapshot())
}

type micRequest struct {
	Section string `json:"section"`
}

func (s *Server) handleMic(w http.ResponseWriter, r *http.Request) {
	var req micRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	section, err := turn.ParseSection(req.Section)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	if err := s.conv.PressMic(section); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, turn.ErrNoSession) {
			status = http.StatusConflict
		}
		writeError(w, status, err)

		return
	}

	writeJSON(w, http.StatusOK, s.conv.Snapshot())
}

type languageRequest struct {
	Section string `json:"section"`
	Code    string `json:"code"`
}

func (s *Server) handleLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	section, err := turn.ParseSection(req.Section)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	if err := s.conv.SetLanguage(section, req.Code); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, turn.ErrLanguageConflict) {
			status = http.StatusConflict
		}
		writeError(w, status, err)

		return
	}

	writeJSON(w, http.StatusOK, s.conv.Snapshot())
}

func (s *Server) handleTranscripts(w http.ResponseWriter, _ *http.Request) {
	records := s.conv.History()
	if records == nil {
		records = []turn.Record{}
	}

	writeJSON(w, http.StatusOK, records)
}

func connectStatus(err error) int {
	var (
		statusErr   *signaling.StatusError
		rejectedErr *signaling.RejectedError
	)

	switch {
	case errors.Is(err, session.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, session.ErrIceGatheringTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, signaling.ErrHealthCheckFailed):
		return http.StatusServiceUnavailable
	case errors.As(err, &statusErr), errors.As(err, &rejectedErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	return dec.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// withMetrics records request count and latency per route.
func (s *Server) withMetrics(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next(rw, r)

		s.metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(rw.statusCode), time.Since(start).Seconds())
		s.logger.Debug("Bridge request",
			zap.String("method", r.Method),
			zap.String("endpoint", endpoint),
			zap.Int("status", rw.statusCode))
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
