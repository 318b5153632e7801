package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fusd/native/common"
	"fusd/native/synth"
	"fusd/native/token"
	"fusd/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	rateLimitWindow = time.Minute
	maxTxPerWindow  = 30
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      interface{}       `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type rateLimiter struct {
	count       int
	windowStart time.Time
}

// Server exposes the synth engine over JSON-RPC. Mutating methods require the
// configured bearer token and are rate limited per source address.
type Server struct {
	engine    *synth.Engine
	debtToken *token.Token

	mu           sync.Mutex
	rateLimiters map[string]*rateLimiter
	authToken    string
	metrics      *observability.EngineMetrics
}

func NewServer(engine *synth.Engine, debtToken *token.Token) *Server {
	authToken := strings.TrimSpace(os.Getenv("FUSD_RPC_TOKEN"))
	return &Server{
		engine:       engine,
		debtToken:    debtToken,
		rateLimiters: make(map[string]*rateLimiter),
		authToken:    authToken,
		metrics:      observability.Metrics(),
	}
}

// Router builds the HTTP surface: the JSON-RPC endpoint plus health and
// metrics probes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/rpc", s.handleRPC)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(RPCResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message, Data: data},
	})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(RPCResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Result:  result,
	})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "failed to read request body", err.Error())
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large", nil)
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	if mutatingMethods[method] {
		if !s.authorized(r) {
			writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "missing or invalid bearer token", nil)
			return
		}
		if !s.allow(remoteHost(r)) {
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
			return
		}
	}

	handler, ok := methodTable[method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", method)
		return
	}
	handler(s, w, r, &req)
}

var mutatingMethods = map[string]bool{
	"synth_depositCollateral":       true,
	"synth_mintDebt":                true,
	"synth_redeemCollateral":        true,
	"synth_burnDebt":                true,
	"synth_depositAndMint":          true,
	"synth_redeemCollateralForDebt": true,
	"synth_liquidate":               true,
}

var methodTable = map[string]func(*Server, http.ResponseWriter, *http.Request, *RPCRequest){
	"synth_depositCollateral":       (*Server).handleDepositCollateral,
	"synth_mintDebt":                (*Server).handleMintDebt,
	"synth_redeemCollateral":        (*Server).handleRedeemCollateral,
	"synth_burnDebt":                (*Server).handleBurnDebt,
	"synth_depositAndMint":          (*Server).handleDepositAndMint,
	"synth_redeemCollateralForDebt": (*Server).handleRedeemForDebt,
	"synth_liquidate":               (*Server).handleLiquidate,
	"synth_getPosition":             (*Server).handleGetPosition,
	"synth_healthFactor":            (*Server).handleHealthFactor,
	"synth_accountValue":            (*Server).handleAccountValue,
	"synth_listAssets":              (*Server).handleListAssets,
	"synth_totalSupply":             (*Server).handleTotalSupply,
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) == 1
}

func (s *Server) allow(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	limiter, ok := s.rateLimiters[host]
	if !ok || now.Sub(limiter.windowStart) >= rateLimitWindow {
		s.rateLimiters[host] = &rateLimiter{count: 1, windowStart: now}
		return true
	}
	if limiter.count >= maxTxPerWindow {
		return false
	}
	limiter.count++
	return true
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// errorStatus maps engine failures onto HTTP status and JSON-RPC error codes.
func errorStatus(err error) (int, int) {
	switch {
	case errors.Is(err, synth.ErrInvalidAmount),
		errors.Is(err, synth.ErrAssetNotAllowed),
		errors.Is(err, synth.ErrInvalidTarget),
		errors.Is(err, synth.ErrInsufficientDebt),
		errors.Is(err, synth.ErrInsufficientCollateral):
		return http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, synth.ErrHealthFactorBroken),
		errors.Is(err, synth.ErrHealthFactorOk),
		errors.Is(err, synth.ErrHealthFactorNotImproved):
		return http.StatusConflict, codeServerError
	case errors.Is(err, common.ErrReentrancy), errors.Is(err, common.ErrModulePaused):
		return http.StatusServiceUnavailable, codeServerError
	case errors.Is(err, synth.ErrStalePrice):
		return http.StatusBadGateway, codeServerError
	default:
		return http.StatusInternalServerError, codeServerError
	}
}
