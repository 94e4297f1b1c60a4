package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"escrowd/escrow"
	"escrowd/observability"
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
	codeNotFound       = -32022
	codeForbidden      = -32023
	codeConflict       = -32024
)

// Server exposes the escrow engine over JSON-RPC 2.0. Mutating methods
// require the configured bearer token; the read surface is open.
type Server struct {
	engine    *escrow.Engine
	authToken string
	log       *slog.Logger
}

// NewServer wires a server around the given engine. An empty token disables
// the bearer check; intended only for tests and local runs.
func NewServer(engine *escrow.Engine, authToken string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{engine: engine, authToken: strings.TrimSpace(authToken), log: log}
}

// Start serves the RPC endpoint until the listener fails.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.Handle)
	s.log.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, mux)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
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
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "missing bearer token"}
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "invalid bearer token"}
	}
	return nil
}

// Handle is the single JSON-RPC entrypoint.
func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "invalid_request", "POST required")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	started := time.Now()
	outcome := s.dispatch(w, r, &req)
	metrics := observability.RPCMetrics()
	metrics.Observe(req.Method, outcome, time.Since(started))
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	switch req.Method {
	case "escrow_get":
		return s.handleGetEscrow(w, req)
	case "escrow_getState":
		return s.handleGetState(w, req)
	case "escrow_getConfig":
		return s.handleGetConfig(w, req)
	case "escrow_create":
		return s.authed(w, r, req, s.handleCreate)
	case "escrow_deposit":
		return s.authed(w, r, req, s.handleDeposit)
	case "escrow_release":
		return s.authed(w, r, req, s.handleRelease)
	case "escrow_confirm":
		return s.authed(w, r, req, s.handleConfirm)
	case "escrow_dispute":
		return s.authed(w, r, req, s.handleDispute)
	case "escrow_resolve":
		return s.authed(w, r, req, s.handleResolve)
	case "escrow_cancel":
		return s.authed(w, r, req, s.handleCancel)
	case "escrow_complete":
		return s.authed(w, r, req, s.handleComplete)
	case "escrow_initialize":
		return s.authed(w, r, req, s.handleInitialize)
	case "escrow_updateFee":
		return s.authed(w, r, req, s.handleUpdateFee)
	case "escrow_setPaused":
		return s.authed(w, r, req, s.handleSetPaused)
	case "escrow_initAdmin":
		return s.authed(w, r, req, s.handleInitAdmin)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", req.Method)
		return "method_not_found"
	}
}

func (s *Server) authed(w http.ResponseWriter, r *http.Request, req *RPCRequest, handler func(http.ResponseWriter, *RPCRequest) string) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "unauthorized"
	}
	return handler(w, req)
}

// writeEngineError maps typed engine errors onto JSON-RPC error families.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) string {
	switch {
	case errors.Is(err, escrow.ErrEscrowNotFound), errors.Is(err, escrow.ErrMilestoneNotFound):
		writeError(w, http.StatusNotFound, id, codeNotFound, "not_found", err.Error())
		return "not_found"
	case errors.Is(err, escrow.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeForbidden, "forbidden", err.Error())
		return "forbidden"
	case errors.Is(err, escrow.ErrEscrowAlreadyExists),
		errors.Is(err, escrow.ErrEscrowAlreadyFunded),
		errors.Is(err, escrow.ErrMilestoneAlreadyReleased),
		errors.Is(err, escrow.ErrAlreadyInDispute),
		errors.Is(err, escrow.ErrAlreadyInitialized),
		errors.Is(err, escrow.ErrInvalidEscrowStatus),
		errors.Is(err, escrow.ErrEscrowNotActive),
		errors.Is(err, escrow.ErrPaused):
		writeError(w, http.StatusConflict, id, codeConflict, "conflict", err.Error())
		return "conflict"
	case errors.Is(err, escrow.ErrSelfDealing),
		errors.Is(err, escrow.ErrZeroAmount),
		errors.Is(err, escrow.ErrTooManyMilestones),
		errors.Is(err, escrow.ErrAmountOverflow),
		errors.Is(err, escrow.ErrInvalidWinner),
		errors.Is(err, escrow.ErrInvalidFeeConfig):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	case errors.Is(err, escrow.ErrTreasuryNotInitialized), errors.Is(err, escrow.ErrAdminNotInitialized):
		writeError(w, http.StatusConflict, id, codeConflict, "not_initialized", err.Error())
		return "conflict"
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "server_error", err.Error())
		return "server_error"
	}
}
