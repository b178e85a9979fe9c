package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"veritynet/core"
	"veritynet/native/assertion"
	"veritynet/native/challenge"
	"veritynet/native/common"
	"veritynet/native/gov"
	"veritynet/native/ledger"
	"veritynet/native/reputation"
	"veritynet/native/topic"
	"veritynet/observability"
	"veritynet/observability/logging"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	defaultRatePerMinute = 120
	defaultRateBurst     = 20
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeNotFound       = -32010
	codeRateLimited    = -32020
	codeModulePaused   = -32030
)

// Server exposes the node's operations over JSON-RPC (POST /rpc), the event
// feed over a websocket (GET /ws/events), and Prometheus collectors
// (GET /metrics). Mutating methods require the bearer token configured via
// VERITYNET_RPC_TOKEN and are rate limited per source address.
type Server struct {
	node      *core.Node
	logger    *slog.Logger
	authToken string

	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	perSecond rate.Limit
	burst     int
}

func NewServer(node *core.Node, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	token := strings.TrimSpace(os.Getenv("VERITYNET_RPC_TOKEN"))
	return &Server{
		node:      node,
		logger:    logger,
		authToken: token,
		limiters:  make(map[string]*rate.Limiter),
		perSecond: rate.Limit(defaultRatePerMinute / 60.0),
		burst:     defaultRateBurst,
	}
}

// SetRateLimit replaces the per-source throttle applied to mutating methods.
// Existing per-source limiters are discarded so the new budget takes effect
// immediately.
func (s *Server) SetRateLimit(perMinute float64, burst int) {
	if perMinute <= 0 {
		perMinute = defaultRatePerMinute
	}
	if burst <= 0 {
		burst = defaultRateBurst
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perSecond = rate.Limit(perMinute / 60.0)
	s.burst = burst
	s.limiters = make(map[string]*rate.Limiter)
}

// Handler returns the HTTP routes served by the RPC server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", s.handle)
	mux.HandleFunc("/ws/events", s.handleEventsWS)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// rpcHandler produces a result or an error; the dispatcher writes the
// response and records metrics, so handlers never touch the writer.
type rpcHandler func(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError)

type methodEntry struct {
	handler  rpcHandler
	mutating bool
}

var methodTable = map[string]methodEntry{
	"assert_submit":            {handler: handleAssertSubmit, mutating: true},
	"assert_attest":            {handler: handleAssertAttest, mutating: true},
	"assert_dispute":           {handler: handleAssertDispute, mutating: true},
	"assert_signalRelevance":   {handler: handleAssertSignalRelevance, mutating: true},
	"assert_markObsolete":      {handler: handleAssertMarkObsolete, mutating: true},
	"assert_resolve":           {handler: handleAssertResolve, mutating: true},
	"assert_claimStake":        {handler: handleAssertClaimStake, mutating: true},
	"assert_claimDisputeStake": {handler: handleAssertClaimDisputeStake, mutating: true},
	"assert_get":               {handler: handleAssertGet},
	"assert_listDisputes":      {handler: handleAssertListDisputes},
	"rep_get":                  {handler: handleRepGet},
	"rep_delegate":             {handler: handleRepDelegate, mutating: true},
	"rep_undelegate":           {handler: handleRepUndelegate, mutating: true},
	"rep_openChallenge":        {handler: handleRepOpenChallenge, mutating: true},
	"rep_voteChallenge":        {handler: handleRepVoteChallenge, mutating: true},
	"rep_resolveChallenge":     {handler: handleRepResolveChallenge, mutating: true},
	"rep_claimChallengeStake":  {handler: handleRepClaimChallengeStake, mutating: true},
	"rep_getChallenge":         {handler: handleRepGetChallenge},
	"topic_propose":            {handler: handleTopicPropose, mutating: true},
	"topic_approve":            {handler: handleTopicApprove, mutating: true},
	"topic_abandon":            {handler: handleTopicAbandon, mutating: true},
	"topic_get":                {handler: handleTopicGet},
	"gov_propose":              {handler: handleGovPropose, mutating: true},
	"gov_vote":                 {handler: handleGovVote, mutating: true},
	"gov_finalize":             {handler: handleGovFinalize, mutating: true},
	"gov_execute":              {handler: handleGovExecute, mutating: true},
	"gov_get":                  {handler: handleGovGet},
	"ledger_balance":           {handler: handleLedgerBalance},
	"ledger_transfer":          {handler: handleLedgerTransfer, mutating: true},
	"ledger_approve":           {handler: handleLedgerApprove, mutating: true},
	"ledger_allowance":         {handler: handleLedgerAllowance},
	"ledger_totalSupply":       {handler: handleLedgerTotalSupply},
}

// handle is the main request handler that routes to specific method handlers.
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
			message = "request body too large"
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	module := moduleOf(req.Method)
	start := time.Now()
	entry, ok := methodTable[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		observability.ModuleMetrics().Observe(module, req.Method, codeMethodNotFound, time.Since(start))
		return
	}
	if entry.mutating {
		if authErr := s.requireAuth(r); authErr != nil {
			s.logger.Warn("rpc auth failed",
				slog.String("method", req.Method),
				slog.String("remote", clientSource(r)),
				logging.MaskField("token", bearerToken(r)),
			)
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			observability.ModuleMetrics().Observe(module, req.Method, authErr.Code, time.Since(start))
			return
		}
		source := clientSource(r)
		if !s.allowSource(source) {
			observability.ModuleMetrics().RecordThrottle(module, "rate_limit")
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", source)
			observability.ModuleMetrics().Observe(module, req.Method, codeRateLimited, time.Since(start))
			return
		}
	}

	result, rpcErr := entry.handler(s, r, req)
	if rpcErr != nil {
		writeError(w, httpStatusFor(rpcErr.Code), req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		observability.ModuleMetrics().Observe(module, req.Method, rpcErr.Code, time.Since(start))
		return
	}
	writeResult(w, req.ID, result)
	observability.ModuleMetrics().Observe(module, req.Method, 0, time.Since(start))
}

func moduleOf(method string) string {
	if idx := strings.Index(method, "_"); idx > 0 {
		return method[:idx]
	}
	return method
}

func httpStatusFor(code int) int {
	switch code {
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeRateLimited:
		return http.StatusTooManyRequests
	case codeNotFound:
		return http.StatusNotFound
	case codeModulePaused:
		return http.StatusServiceUnavailable
	case codeServerError:
		return http.StatusInternalServerError
	case codeMethodNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(s.perSecond, s.burst)
		s.limiters[source] = limiter
	}
	return limiter.Allow()
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// decodeParams unmarshals the single positional parameter object every
// method takes into dst.
func decodeParams(req *RPCRequest, dst interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "parameter object required"}
	}
	if err := json.Unmarshal(req.Params[0], dst); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
	}
	return nil
}

func errInvalidParams(message string, err error) *RPCError {
	out := &RPCError{Code: codeInvalidParams, Message: message}
	if err != nil {
		out.Data = err.Error()
	}
	return out
}

var notFoundErrors = []error{
	assertion.ErrNotFound,
	challenge.ErrNotFound,
	gov.ErrNotFound,
	topic.ErrNotFound,
	reputation.ErrNotFound,
}

var callerFaultErrors = []error{
	assertion.ErrInvalidState,
	assertion.ErrInsufficientStake,
	assertion.ErrTopicNotActive,
	assertion.ErrUnauthorized,
	assertion.ErrWindowNotElapsed,
	assertion.ErrWindowClosed,
	assertion.ErrAlreadyClaimed,
	assertion.ErrNothingToClaim,
	challenge.ErrInvalidState,
	challenge.ErrInsufficientStake,
	challenge.ErrUnauthorized,
	challenge.ErrWindowNotElapsed,
	challenge.ErrWindowClosed,
	challenge.ErrAlreadyVoted,
	challenge.ErrAlreadyClaimed,
	challenge.ErrNothingToClaim,
	gov.ErrInvalidState,
	gov.ErrUnknownParam,
	gov.ErrInvalidValue,
	gov.ErrInsufficientDeposit,
	gov.ErrNoVotingWeight,
	gov.ErrWindowNotElapsed,
	gov.ErrWindowClosed,
	gov.ErrTimelockNotElapsed,
	topic.ErrInvalidName,
	topic.ErrInvalidState,
	topic.ErrAlreadyApproved,
	topic.ErrUnauthorized,
	reputation.ErrInvalidAmount,
	reputation.ErrUnauthorized,
	reputation.ErrSelfDelegation,
	reputation.ErrInsufficientDelegation,
	ledger.ErrInsufficientFunds,
	ledger.ErrInsufficientAllowance,
	ledger.ErrInvalidAmount,
}

// engineError maps a node operation failure onto a JSON-RPC error. Known
// caller-fault sentinels keep their message; anything else is reported as an
// internal error with the detail in the data field.
func engineError(err error) *RPCError {
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrModulePaused) {
		return &RPCError{Code: codeModulePaused, Message: err.Error()}
	}
	for _, sentinel := range notFoundErrors {
		if errors.Is(err, sentinel) {
			return &RPCError{Code: codeNotFound, Message: err.Error()}
		}
	}
	for _, sentinel := range callerFaultErrors {
		if errors.Is(err, sentinel) {
			return &RPCError{Code: codeInvalidParams, Message: err.Error()}
		}
	}
	return &RPCError{Code: codeServerError, Message: "internal error", Data: err.Error()}
}
