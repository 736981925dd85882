// Package rpc exposes the lending pool over JSON-RPC 2.0.
package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lendcore/gateway/middleware"
	nativecommon "lendcore/native/common"
	"lendcore/native/lending"
	"lendcore/observability"
	"lendcore/observability/logging"
	telemetry "lendcore/observability/otel"
	"lendcore/storage/journal"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeBusinessRule   = -32010
	codeConfiguration  = -32011
	codeTransfer       = -32012
	codeArithmetic     = -32013
)

// Config wires the server's collaborators. Only Pool is required.
type Config struct {
	Pool   *lending.Pool
	Pauses *nativecommon.Pauses
	Logger *slog.Logger

	Metrics  *observability.RPCMetrics
	Gatherer prometheus.Gatherer

	Auth          *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig

	// Events enables the GET /ws event stream.
	Events *EventHub
	// Journal enables lending_getEvents.
	Journal *journal.Journal

	// AllowExplicitCaller lets requests without a principal name the caller
	// in their params. Only for deployments with authentication disabled.
	AllowExplicitCaller bool
}

// Server dispatches JSON-RPC calls onto the pool.
type Server struct {
	cfg     Config
	pool    *lending.Pool
	logger  *slog.Logger
	tracer  trace.Tracer
	methods map[string]method
}

// NewServer builds the method table.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("rpc: pool required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		pool:   cfg.Pool,
		logger: logger.With("component", "rpc"),
		tracer: telemetry.Tracer("lendcore/rpc"),
	}
	s.methods = make(map[string]method)
	s.registerLending()
	s.registerViews()
	s.registerAdmin()
	return s, nil
}

// Router mounts the RPC endpoint, the health probe and the metrics handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(s.cfg.CORS))

	rpcHandler := http.Handler(http.HandlerFunc(s.handle))
	if s.cfg.RateLimiter != nil {
		rpcHandler = s.cfg.RateLimiter.Middleware("rpc")(rpcHandler)
	}
	if s.cfg.Auth != nil {
		rpcHandler = s.cfg.Auth.Middleware()(rpcHandler)
	}
	if s.cfg.Observability != nil {
		rpcHandler = s.cfg.Observability.Middleware("rpc")(rpcHandler)
	}
	r.Method(http.MethodPost, "/", rpcHandler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"reserves": len(s.pool.ReservesList()),
			"paused":   s.cfg.Pauses != nil && s.cfg.Pauses.IsPaused(lending.ModuleName),
		})
	})
	if s.cfg.Events != nil {
		// The stream skips the observability wrapper, its recorder cannot
		// hijack the connection.
		stream := http.Handler(http.HandlerFunc(s.handleEventStream))
		if s.cfg.RateLimiter != nil {
			stream = s.cfg.RateLimiter.Middleware("rpc")(stream)
		}
		if s.cfg.Auth != nil {
			stream = s.cfg.Auth.Middleware()(stream)
		}
		r.Method(http.MethodGet, "/ws", stream)
	}
	if s.cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// RPCRequest is a JSON-RPC 2.0 call. Params carries one object.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      json.RawMessage   `json:"id"`
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

func writeError(w http.ResponseWriter, status int, id json.RawMessage, rpcErr *RPCError) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: rpcErr})
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
			s.cfg.Metrics.RecordThrottle("body_too_large")
		}
		writeError(w, status, nil, &RPCError{Code: codeInvalidRequest, Message: message, Data: err.Error()})
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, &RPCError{Code: codeInvalidRequest, Message: "request body required"})
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, &RPCError{Code: codeParseError, Message: "invalid JSON payload", Data: err.Error()})
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, &RPCError{Code: codeInvalidRequest, Message: "unsupported jsonrpc version", Data: req.JSONRPC})
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, &RPCError{Code: codeInvalidRequest, Message: "method required"})
		return
	}
	m, ok := s.methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, &RPCError{Code: codeMethodNotFound, Message: "method not found", Data: req.Method})
		return
	}

	ctx, span := s.tracer.Start(r.Context(), req.Method, trace.WithAttributes(attribute.String("rpc.method", req.Method)))
	defer span.End()

	start := time.Now()
	result, rpcErr := s.dispatch(r.WithContext(ctx), req, m)
	code := 0
	if rpcErr != nil {
		code = rpcErr.Code
		span.SetStatus(codes.Error, rpcErr.Message)
	}
	s.cfg.Metrics.Observe(req.Method, code, time.Since(start))
	if rpcErr != nil {
		writeError(w, httpStatus(rpcErr.Code), req.ID, rpcErr)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) dispatch(r *http.Request, req *RPCRequest, m method) (interface{}, *RPCError) {
	if len(req.Params) > 1 {
		return nil, invalidParams("expected a single parameter object", nil)
	}
	var raw json.RawMessage
	if len(req.Params) == 1 {
		raw = req.Params[0]
	}
	c := &call{ctx: r.Context(), raw: raw}
	if m.scope != "" {
		caller, rpcErr := s.resolveCaller(r, raw, m.scope)
		if rpcErr != nil {
			return nil, rpcErr
		}
		c.caller = caller
	}
	result, err := m.fn(c)
	if err != nil {
		rpcErr := s.toRPCError(err)
		if rpcErr.Code == codeServerError {
			s.logger.Error("rpc call failed", "method", req.Method, "error", err, "request_id", middleware.RequestIDFrom(r.Context()))
		} else {
			s.logger.Debug("rpc call rejected", "method", req.Method, "code", lending.Code(err), "caller", logging.MaskAddress(c.caller.Hex()))
		}
		return nil, rpcErr
	}
	return result, nil
}

// resolveCaller picks the acting address. The authenticated principal wins;
// an explicit caller param is only honoured when configured.
func (s *Server) resolveCaller(r *http.Request, raw json.RawMessage, scope string) (common.Address, *RPCError) {
	if principal, ok := middleware.PrincipalFrom(r.Context()); ok {
		if !principal.HasScope(scope) {
			return common.Address{}, &RPCError{Code: codeUnauthorized, Message: "insufficient scope", Data: scope}
		}
		return principal.Subject, nil
	}
	if !s.cfg.AllowExplicitCaller {
		return common.Address{}, &RPCError{Code: codeUnauthorized, Message: "authentication required"}
	}
	var explicit struct {
		Caller string `json:"caller"`
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &explicit)
	}
	addr, err := parseAddress("caller", explicit.Caller)
	if err != nil {
		return common.Address{}, invalidParams(err.Error(), nil)
	}
	return addr, nil
}

func (s *Server) toRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	code := lending.Code(err)
	switch lending.KindOf(err) {
	case lending.KindAuthorization:
		return &RPCError{Code: codeUnauthorized, Message: err.Error(), Data: code}
	case lending.KindBusinessRule:
		return &RPCError{Code: codeBusinessRule, Message: err.Error(), Data: code}
	case lending.KindConfiguration:
		return &RPCError{Code: codeConfiguration, Message: err.Error(), Data: code}
	case lending.KindTransfer:
		return &RPCError{Code: codeTransfer, Message: err.Error(), Data: code}
	case lending.KindArithmetic:
		return &RPCError{Code: codeArithmetic, Message: err.Error(), Data: code}
	}
	if code == "" {
		code = "INTERNAL"
	}
	return &RPCError{Code: codeServerError, Message: "internal error", Data: code}
}

func httpStatus(code int) int {
	switch code {
	case codeInvalidParams, codeInvalidRequest, codeParseError:
		return http.StatusBadRequest
	case codeUnauthorized:
		return http.StatusForbidden
	case codeMethodNotFound:
		return http.StatusNotFound
	case codeServerError:
		return http.StatusInternalServerError
	default:
		// Domain rejections are well-formed calls with an error result.
		return http.StatusOK
	}
}

func invalidParams(message string, data interface{}) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: message, Data: data}
}
