package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"syncengine/internal/config"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrBadSignature is returned by a Verifier when the request does not carry a
// valid provider signature.
var ErrBadSignature = errors.New("webhook signature verification failed")

// Verifier authenticates an inbound request before the gateway runs.
type Verifier interface {
	Verify(providerID string, header http.Header, body []byte) error
}

// HMACVerifier checks an `X-Webhook-Signature` header (hex-encoded
// HMAC-SHA256 of the body) against per-provider shared secrets. Providers
// without a configured secret pass unverified.
type HMACVerifier struct {
	secrets map[string]string
}

func NewHMACVerifier(secrets map[string]string) *HMACVerifier {
	return &HMACVerifier{secrets: secrets}
}

func (v *HMACVerifier) Verify(providerID string, header http.Header, body []byte) error {
	secret, ok := v.secrets[providerID]
	if !ok || secret == "" {
		return nil
	}

	got := header.Get("X-Webhook-Signature")
	if got == "" {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(got), []byte(want)) {
		return ErrBadSignature
	}
	return nil
}

// Server exposes the webhook ingestion endpoint. Whatever happens inside the
// gateway, a delivery that passes verification is answered 200 so providers
// never retry into duplicate side effects.
type Server struct {
	cfg      config.WebhookConfig
	gateway  *Gateway
	verifier Verifier
	server   *http.Server
	log      zerolog.Logger

	limiters sync.Map // provider id -> *rate.Limiter
}

func NewServer(cfg config.WebhookConfig, gateway *Gateway, verifier Verifier, logger *zerolog.Logger) *Server {
	srv := &Server{
		cfg:      cfg,
		gateway:  gateway,
		verifier: verifier,
	}
	if logger != nil {
		srv.log = logger.With().Str("component", "webhook_server").Logger()
	}

	router := mux.NewRouter()
	router.HandleFunc("/webhooks/{provider}", srv.handleWebhook).Methods(http.MethodPost)
	router.HandleFunc("/healthz", srv.handleHealth).Methods(http.MethodGet)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("webhook server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	providerID := mux.Vars(r)["provider"]

	if !s.limiter(providerID).Allow() {
		s.log.Warn().Str("provider", providerID).Msg("webhook rate limited")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	if s.verifier != nil {
		if err := s.verifier.Verify(providerID, r.Header, body); err != nil {
			s.log.Warn().Err(err).Str("provider", providerID).Msg("webhook rejected")
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "signature verification failed"})
			return
		}
	}

	rawEventType := r.Header.Get("X-Event-Type")
	if err := s.gateway.Handle(r.Context(), providerID, rawEventType, body); err != nil {
		// Internal fault. Still ack: the provider retrying would hit the
		// same fault, and the ledger protects us once it recovers.
		s.log.Error().Err(err).Str("provider", providerID).Msg("webhook ingestion error")
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) limiter(providerID string) *rate.Limiter {
	if v, ok := s.limiters.Load(providerID); ok {
		return v.(*rate.Limiter)
	}

	rps := s.cfg.RateLimit.RPS
	if rps <= 0 {
		rps = 10
	}
	burst := s.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 20
	}

	lim := rate.NewLimiter(rate.Limit(rps), burst)
	if actual, loaded := s.limiters.LoadOrStore(providerID, lim); loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
