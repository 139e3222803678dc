package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tryonrelay/internal/api"
	"tryonrelay/internal/config"
	"tryonrelay/internal/correlation"
	"tryonrelay/internal/dispatch"
	"tryonrelay/internal/logging"
	"tryonrelay/internal/replies"
	"tryonrelay/internal/reqid"
	"tryonrelay/internal/telegram"
)

const (
	maxWebhookBytes     = 1 << 20
	defaultRequestLimit = 50
	maxRequestLimit     = 500
)

type apiServer struct {
	bind      string
	logger    *slog.Logger
	daemon    *Daemon
	maxUpload int64
	handler   http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:      strings.TrimSpace(cfg.Server.Bind),
		logger:    logger,
		daemon:    d,
		maxUpload: cfg.MaxUploadBytes(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/send-to-telegram", srv.handleSubmit)
	mux.HandleFunc("/status/", srv.handleStatus)
	mux.HandleFunc("/telegram/webhook", webhookSecretMiddleware(cfg.Telegram.WebhookSecret, srv.handleWebhook))
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/api/requests", authMiddleware(cfg.Server.APIToken, srv.handleRequests))

	srv.handler = srv.withRequestID(mux)
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSON(w, http.StatusMethodNotAllowed, api.SubmitResponse{Error: "method not allowed"})
		return
	}
	logger := logging.WithContext(r.Context(), s.log())

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeJSON(w, http.StatusRequestEntityTooLarge, api.SubmitResponse{Error: "Imagen demasiado grande"})
			return
		}
		logger.Info("submission rejected", logging.String("reason", "unreadable form"), logging.Error(err))
		s.writeJSON(w, http.StatusBadRequest, api.SubmitResponse{Error: api.MissingFieldsMessage})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	submission := dispatch.Submission{
		RequesterName: r.FormValue("name"),
		CatalogRef:    r.FormValue("catalogPath"),
	}
	if file, header, err := r.FormFile("userImage"); err == nil {
		data, readErr := io.ReadAll(file)
		_ = file.Close()
		if readErr != nil {
			s.writeJSON(w, http.StatusBadRequest, api.SubmitResponse{Error: api.MissingFieldsMessage})
			return
		}
		submission.Image = data
		submission.Filename = header.Filename
	}

	receipt, err := s.daemon.dispatcher.Submit(r.Context(), submission)
	switch {
	case errors.Is(err, dispatch.ErrInvalidInput):
		logger.Info("submission rejected", logging.Error(err))
		s.writeJSON(w, http.StatusBadRequest, api.SubmitResponse{Error: api.MissingFieldsMessage})
	case err != nil:
		s.writeJSON(w, http.StatusBadGateway, api.SubmitResponse{Error: "No se pudo enviar la solicitud"})
	default:
		s.writeJSON(w, http.StatusOK, api.SubmitResponse{Success: true, ID: receipt.ID.String()})
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/status/")
	if !isDigits(raw) {
		s.writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	st := correlation.Query(s.daemon.store, reqid.ID(raw))
	w.Header().Set("Cache-Control", "no-store")
	s.writeJSON(w, http.StatusOK, api.FromStatus(st))
}

func (s *apiServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	logger := logging.WithContext(r.Context(), s.log())

	// Anything past the secret check is acknowledged so Telegram does not
	// redeliver application-level misses.
	defer s.writeJSON(w, http.StatusOK, api.WebhookAck{OK: true})

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		logger.Warn("webhook body unreadable", logging.Error(err))
		return
	}
	var update telegram.Update
	if err := json.Unmarshal(body, &update); err != nil {
		logging.WarnWithContext(logger, "webhook payload is not a telegram update", "webhook_malformed",
			logging.Error(err),
			logging.Int("bytes", len(body)),
		)
		return
	}
	ev, ok := replies.EventFromUpdate(update)
	if !ok {
		logger.Debug("webhook update without message ignored", logging.Int64(logging.FieldUpdateID, update.UpdateID))
		return
	}
	s.daemon.replies.Submit(r.Context(), ev)
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, api.Health{
		Status:  "ok",
		Ledger:  s.daemon.ledger != nil,
		Events:  s.daemon.cfg.Events.AMQPURL != "",
		Pending: s.daemon.dispatcher.Pending(),
	})
}

func (s *apiServer) handleRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := defaultRequestLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(parsed, maxRequestLimit)
	}
	if s.daemon.ledger == nil {
		s.writeJSON(w, http.StatusOK, api.RequestListResponse{Items: []api.RequestRecord{}})
		return
	}
	recs, err := s.daemon.ledger.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.RequestListResponse{Items: api.FromLedgerRecords(recs)})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
