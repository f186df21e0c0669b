package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deedvault/escrow"
	"deedvault/observability"
	"deedvault/registry"
	"deedvault/state"
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
	codeUnauthorized   = -32001
	codeServerError    = -32000

	codeEscrowNotListed        = -32022
	codeEscrowForbidden        = -32023
	codeEscrowPrecondition     = -32024
	codeEscrowInsufficient     = -32025
	codeEscrowTransferRejected = -32026
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// Server exposes the escrow ledger over JSON-RPC 2.0. Mutating methods
// require the configured bearer token; an empty token leaves the server open,
// which is only acceptable for local development.
type Server struct {
	ledger    *escrow.Ledger
	st        *state.Manager
	devReg    *registry.Memory
	authToken string
	log       *slog.Logger
}

// NewServer constructs an RPC server. devReg may be nil when the daemon is
// wired against a real external registry; the registry_* dev methods are then
// unavailable.
func NewServer(ledger *escrow.Ledger, st *state.Manager, devReg *registry.Memory, authToken string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ledger:    ledger,
		st:        st,
		devReg:    devReg,
		authToken: strings.TrimSpace(authToken),
		log:       logger,
	}
}

// Router returns the HTTP handler: JSON-RPC on POST /, plus health and
// prometheus endpoints.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return r
}

var mutatingMethods = map[string]bool{
	"escrow_list":                true,
	"escrow_depositEarnest":      true,
	"escrow_setInspectionStatus": true,
	"escrow_setLegalStatus":      true,
	"escrow_approveSale":         true,
	"escrow_finalize":            true,
	"escrow_cancelSale":          true,
	"escrow_fund":                true,
	"registry_mint":              true,
	"registry_approve":           true,
	"bank_mint":                  true,
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, nil, codeParseError, "unable to read request body")
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, codeParseError, "invalid JSON payload")
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, req.ID, codeInvalidRequest, "unsupported JSON-RPC version")
		return
	}
	if strings.TrimSpace(req.Method) == "" {
		writeError(w, req.ID, codeInvalidRequest, "method is required")
		return
	}
	if mutatingMethods[req.Method] && !s.authorized(r) {
		writeError(w, req.ID, codeUnauthorized, "missing or invalid auth token")
		return
	}

	start := time.Now()
	result, rpcErr := s.dispatch(req.Method, req.Params)
	outcome := "ok"
	if rpcErr != nil {
		outcome = "error"
	}
	observability.Escrow().ObserveOperation(req.Method, outcome, time.Since(start))

	if rpcErr != nil {
		s.log.Warn("rpc call failed", "method", req.Method, "code", rpcErr.Code, "error", rpcErr.Message)
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	writeResult(w, req.ID, result)
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
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) == 1
}

func (s *Server) dispatch(method string, params json.RawMessage) (any, *rpcError) {
	switch method {
	case "escrow_list":
		return s.handleList(params)
	case "escrow_depositEarnest":
		return s.handleDepositEarnest(params)
	case "escrow_setInspectionStatus":
		return s.handleSetInspectionStatus(params)
	case "escrow_setLegalStatus":
		return s.handleSetLegalStatus(params)
	case "escrow_approveSale":
		return s.handleApproveSale(params)
	case "escrow_finalize":
		return s.handleFinalize(params)
	case "escrow_cancelSale":
		return s.handleCancelSale(params)
	case "escrow_fund":
		return s.handleFund(params)
	case "escrow_getListing":
		return s.handleGetListing(params)
	case "escrow_getBalance":
		return s.handleGetBalance()
	case "escrow_roles":
		return s.handleRoles()
	case "escrow_listEvents":
		return s.handleListEvents(params)
	case "registry_mint":
		return s.handleRegistryMint(params)
	case "registry_approve":
		return s.handleRegistryApprove(params)
	case "registry_ownerOf":
		return s.handleRegistryOwnerOf(params)
	case "bank_mint":
		return s.handleBankMint(params)
	case "bank_getBalance":
		return s.handleBankGetBalance(params)
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: "unknown method " + method}
	}
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, rpcErr *rpcError) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Error: rpcErr})
}

func writeError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	writeRPCError(w, id, &rpcError{Code: code, Message: message})
}
