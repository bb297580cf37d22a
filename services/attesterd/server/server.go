// Package server exposes the attestation engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"symmoracle/api"
	"symmoracle/attestation"
	"symmoracle/observability"
	"symmoracle/oracleerr"
	"symmoracle/services/attesterd/storage"
)

const maxBodyBytes = 1 << 20

// Engine evaluates requests. *router.Router implements it.
type Engine interface {
	Handle(ctx context.Context, req api.Request) (api.Response, error)
}

// TupleBuilder derives the signing pre-image. *attestation.Builder implements it.
type TupleBuilder interface {
	SigningTuple(req api.Request, own api.Response) (attestation.Tuple, error)
}

// Signer signs tuple hashes with the node key. *crypto.PrivateKey implements it.
type Signer interface {
	Sign(digest common.Hash) ([]byte, error)
	Address() common.Address
}

// Journal records signed attestations. *storage.Journal implements it.
type Journal interface {
	Record(ctx context.Context, e storage.Entry) (uuid.UUID, error)
}

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	Auth          AuthConfig
	RateLimit     RateLimitConfig
}

// Server hosts the attestation API.
type Server struct {
	cfg      Config
	engine   Engine
	builder  TupleBuilder
	signer   Signer
	journal  Journal
	logger   *slog.Logger
	metrics  *observability.AttesterdMetrics
	gatherer prometheus.Gatherer
	auth     *Authenticator
	limiter  *RateLimiter
}

// Option configures a Server.
type Option func(*Server)

// WithSigner enables /v1/sign.
func WithSigner(s Signer) Option { return func(srv *Server) { srv.signer = s } }

// WithJournal records every signature.
func WithJournal(j Journal) Option { return func(srv *Server) { srv.journal = j } }

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option { return func(srv *Server) { srv.logger = l } }

// WithMetrics records request outcomes.
func WithMetrics(m *observability.AttesterdMetrics) Option {
	return func(srv *Server) { srv.metrics = m }
}

// WithGatherer overrides the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option { return func(srv *Server) { srv.gatherer = g } }

// New constructs a new HTTP server.
func New(cfg Config, engine Engine, builder TupleBuilder, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine required")
	}
	if builder == nil {
		return nil, fmt.Errorf("tuple builder required")
	}
	srv := &Server{
		cfg:      cfg,
		engine:   engine,
		builder:  builder,
		logger:   slog.Default(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(srv)
		}
	}
	if srv.logger == nil {
		srv.logger = slog.Default()
	}
	auth, err := NewAuthenticator(cfg.Auth, srv.logger)
	if err != nil {
		return nil, err
	}
	auth.rejected = srv.metrics.RecordThrottle
	srv.auth = auth
	srv.limiter = NewRateLimiter(cfg.RateLimit)
	srv.limiter.limited = srv.metrics.RecordThrottle
	return srv, nil
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(s.auth.Middleware)
		v1.Use(s.limiter.Middleware)
		v1.Post("/request", s.handleRequest)
		v1.Post("/sign", s.handleSign)
	})
	return otelhttp.NewHandler(r, "attesterd")
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "addr", s.cfg.ListenAddress, "signer", s.signerAddress())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) signerAddress() string {
	if s.signer == nil {
		return ""
	}
	return s.signer.Address().Hex()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type requestResult struct {
	Response api.Response `json:"response"`
}

type signResult struct {
	Response  api.Response      `json:"response"`
	Tuple     attestation.Tuple `json:"tuple"`
	Hash      common.Hash       `json:"hash"`
	Signature string            `json:"signature"`
	Signer    common.Address    `json:"signer"`
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	start := time.Now()
	resp, err := s.engine.Handle(r.Context(), req)
	s.observe(r, req.Method, start, err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requestResult{Response: resp})
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	if s.signer == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorEnvelope{Error: errorBody{
			Kind:    "signer_unavailable",
			Message: "node signing key not configured",
		}})
		return
	}
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	start := time.Now()
	resp, err := s.engine.Handle(r.Context(), req)
	var tuple attestation.Tuple
	if err == nil {
		tuple, err = s.builder.SigningTuple(req, resp)
	}
	s.observe(r, req.Method, start, err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	hash, err := tuple.Hash()
	if err != nil {
		s.writeError(w, err)
		return
	}
	sig, err := s.signer.Sign(hash)
	if err != nil {
		s.writeError(w, fmt.Errorf("sign tuple: %w", err))
		return
	}
	out := signResult{
		Response:  resp,
		Tuple:     tuple,
		Hash:      hash,
		Signature: hexutil.Encode(sig),
		Signer:    s.signer.Address(),
	}
	s.metrics.RecordSignature(req.Method)
	s.record(r.Context(), out)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) record(ctx context.Context, out signResult) {
	if s.journal == nil {
		return
	}
	_, err := s.journal.Record(ctx, storage.Entry{
		Method:    out.Response.Method,
		ChainID:   uint64(out.Response.ChainID),
		Symmio:    out.Response.Symmio.Hex(),
		Hash:      out.Hash.Hex(),
		Signer:    out.Signer.Hex(),
		Signature: out.Signature,
		Tuple:     out.Tuple,
		Response:  out.Response,
	})
	if err != nil {
		s.logger.Warn("journal write failed", "hash", out.Hash.Hex(), "error", err)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (api.Request, bool) {
	var req api.Request
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err == nil {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		s.writeError(w, oracleerr.Wrap(oracleerr.KindInvalidParams, err, "param", "body"))
		return api.Request{}, false
	}
	return req, true
}

func (s *Server) observe(r *http.Request, method string, start time.Time, err error) {
	elapsed := time.Since(start)
	kind := ""
	if err != nil {
		kind = oracleerr.KindOf(err).Code()
	}
	s.metrics.ObserveRequest(method, kind, elapsed)
	s.logger.Info("request evaluated",
		"request_id", middleware.GetReqID(r.Context()),
		"method", method,
		"kind", kind,
		"duration", elapsed.String())
}

type errorBody struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Detail  map[string]string `json:"detail,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// statusFor maps an error class onto an HTTP status.
func statusFor(kind oracleerr.Kind) int {
	switch kind.Class() {
	case oracleerr.ClassInput:
		return http.StatusBadRequest
	case oracleerr.ClassIntegrity:
		return http.StatusUnprocessableEntity
	case oracleerr.ClassAgreement:
		return http.StatusConflict
	case oracleerr.ClassUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	e := oracleerr.As(err)
	if e.Kind == oracleerr.KindUnknown {
		s.logger.Error("internal error", "error", err)
	}
	writeJSON(w, statusFor(e.Kind), errorEnvelope{Error: errorBody{
		Kind:    e.Kind.Code(),
		Message: e.Kind.String(),
		Detail:  e.Detail,
	}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
