// Package control serves the local HTTP API of the long-running daemon. Editor
// integrations post save and open events to it; the CLI uses it to kill or
// inspect a sync owned by the daemon.
package control

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/schaermu/sitesync/internal/activation"
	"github.com/schaermu/sitesync/internal/config"
	"github.com/schaermu/sitesync/internal/sync"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Sitesync-Signature-256"

const maxBodySize = 1 << 20

// Controller is the command surface the server exposes.
type Controller interface {
	Start(ctx context.Context, req sync.Request) (<-chan sync.Outcome, error)
	OnSave(ctx context.Context, path string) (<-chan sync.Outcome, error)
	OnOpen(ctx context.Context, path string) (<-chan sync.Outcome, error)
	Kill() bool
	Busy() bool
	Last() sync.Outcome
	Current() *config.Site
	Select(key string) (*config.Site, error)
	Deselect() error
}

// Server implements the control HTTP server.
type Server struct {
	ctl    Controller
	logger *slog.Logger
	addr   string
	secret []byte
}

// NewServer creates a control server. Without a secret file requests are not
// authenticated.
func NewServer(ctl Controller, cfg config.ServeConfig, logger *slog.Logger) (*Server, error) {
	secret, err := readSecret(cfg.SecretFile)
	if err != nil {
		return nil, err
	}
	if secret == nil {
		logger.Warn("no control secret configured, requests are not authenticated")
	}

	return &Server{
		ctl:    ctl,
		logger: logger,
		addr:   cfg.ListenAddr,
		secret: secret,
	}, nil
}

func readSecret(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read control secret: %w", err)
	}
	return []byte(strings.TrimSpace(string(data))), nil
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sync/{direction}", s.handleSync(false))
	mux.HandleFunc("POST /v1/compare/{direction}", s.handleSync(true))
	mux.HandleFunc("POST /v1/kill", s.handleKill)
	mux.HandleFunc("POST /v1/events/save", s.handleEvent(s.ctl.OnSave))
	mux.HandleFunc("POST /v1/events/open", s.handleEvent(s.ctl.OnOpen))
	mux.HandleFunc("POST /v1/sites/select", s.handleSelect)
	mux.HandleFunc("POST /v1/sites/deselect", s.handleDeselect)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	return s.authenticate(mux)
}

// Start serves the API until ctx is cancelled. A socket passed by systemd
// socket activation is used instead of listening on the configured address.
func (s *Server) Start(ctx context.Context) error {
	listener, err := s.listen()
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// no WriteTimeout: ?wait=true responses last as long as the sync
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control server starting", "addr", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down control server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) listen() (net.Listener, error) {
	listener, activated, err := activation.Listen(s.addr)
	if err != nil {
		return nil, err
	}
	if activated {
		s.logger.Info("using socket-activated listener", "addr", listener.Addr().String())
	}
	return listener, nil
}

// authenticate verifies the body signature of every request.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			s.logger.Error("failed to read request body", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to read body")
			return
		}
		_ = r.Body.Close()

		if s.secret != nil && !VerifySignature(s.secret, body, r.Header.Get(SignatureHeader)) {
			s.logger.Warn("rejecting request with invalid signature", "path", r.URL.Path)
			writeError(w, http.StatusForbidden, "invalid signature")
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSync(dryRun bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dir := sync.Direction(r.PathValue("direction"))
		if dir != sync.Up && dir != sync.Down {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown direction %q", dir))
			return
		}

		req := sync.Request{Direction: dir, DryRun: dryRun, Trigger: sync.TriggerCommand}
		done, err := s.ctl.Start(context.WithoutCancel(r.Context()), req)
		s.respondStarted(w, r, done, err)
	}
}

func (s *Server) handleEvent(trigger func(context.Context, string) (<-chan sync.Outcome, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body EventRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Path == "" {
			writeError(w, http.StatusBadRequest, "expected a JSON body with a path")
			return
		}

		done, err := trigger(context.WithoutCancel(r.Context()), body.Path)
		s.respondStarted(w, r, done, err)
	}
}

// respondStarted answers a trigger. With ?wait=true the response is sent
// once the sync finished and carries its outcome.
func (s *Server) respondStarted(w http.ResponseWriter, r *http.Request, done <-chan sync.Outcome, err error) {
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if done == nil {
		writeJSON(w, http.StatusOK, TriggerResponse{Started: false})
		return
	}

	if r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, TriggerResponse{Started: true})
		return
	}

	select {
	case out := <-done:
		result := newOutcome(out)
		writeJSON(w, http.StatusOK, TriggerResponse{Started: true, Outcome: &result})
	case <-r.Context().Done():
	}
}

func (s *Server) handleKill(w http.ResponseWriter, _ *http.Request) {
	killed := s.ctl.Kill()
	s.logger.Info("kill requested", "was_running", killed)
	writeJSON(w, http.StatusOK, KillResponse{Killed: killed})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var body SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "expected a JSON body with a name")
		return
	}

	if _, err := s.ctl.Select(body.Name); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleDeselect(w http.ResponseWriter, _ *http.Request) {
	if err := s.ctl.Deselect(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) status() StatusResponse {
	resp := StatusResponse{
		Site: config.DisplayName(s.ctl.Current()),
		Busy: s.ctl.Busy(),
	}
	if last := s.ctl.Last(); last.RunID != "" {
		o := newOutcome(last)
		resp.Last = &o
	}
	return resp
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, sync.ErrBusy):
		return http.StatusConflict
	case sync.IsConfigurationError(err):
		return http.StatusPreconditionFailed
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature is the HMAC-SHA256 of body.
func VerifySignature(secret, body []byte, signature string) bool {
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(Sign(secret, body)))
}
