package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"escrowd/escrow"
)

type milestoneParam struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type createParams struct {
	ID         uint64           `json:"id"`
	Depositor  string           `json:"depositor"`
	Recipient  string           `json:"recipient"`
	Token      string           `json:"token"`
	Milestones []milestoneParam `json:"milestones"`
	Deadline   uint64           `json:"deadline"`
}

type idParams struct {
	ID uint64 `json:"id"`
}

type milestoneIndexParams struct {
	ID    uint64 `json:"id"`
	Index int    `json:"index"`
	Buyer string `json:"buyer,omitempty"`
}

type actorParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
}

type resolveParams struct {
	ID     uint64 `json:"id"`
	Winner string `json:"winner"`
}

type initializeParams struct {
	Treasury string `json:"treasury"`
	FeeBps   *int64 `json:"feeBps,omitempty"`
}

type feeParams struct {
	FeeBps int64 `json:"feeBps"`
}

type pausedParams struct {
	Paused bool `json:"paused"`
}

type adminParams struct {
	Admin string `json:"admin"`
}

type milestoneJSON struct {
	Amount      string `json:"amount"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
}

type escrowJSON struct {
	ID            uint64          `json:"id"`
	Depositor     string          `json:"depositor"`
	Recipient     string          `json:"recipient"`
	Token         string          `json:"token"`
	TotalAmount   string          `json:"totalAmount"`
	TotalReleased string          `json:"totalReleased"`
	Milestones    []milestoneJSON `json:"milestones"`
	Status        string          `json:"status"`
	Deadline      uint64          `json:"deadline"`
	Resolution    string          `json:"resolution"`
}

type configJSON struct {
	Treasury string `json:"treasury"`
	FeeBps   int64  `json:"feeBps"`
	Paused   bool   `json:"paused"`
}

func escrowToJSON(e *escrow.Escrow) *escrowJSON {
	out := &escrowJSON{
		ID:            e.ID,
		Depositor:     formatAddress(e.Depositor),
		Recipient:     formatAddress(e.Recipient),
		Token:         e.Token,
		TotalAmount:   e.TotalAmount.String(),
		TotalReleased: e.TotalReleased.String(),
		Status:        e.Status.String(),
		Deadline:      e.Deadline,
		Resolution:    e.Resolution.String(),
	}
	out.Milestones = make([]milestoneJSON, len(e.Milestones))
	for i, m := range e.Milestones {
		out.Milestones[i] = milestoneJSON{
			Amount:      m.Amount.String(),
			Status:      m.Status.String(),
			Description: m.Description,
		}
	}
	return out
}

func formatAddress(addr [20]byte) string { return "0x" + hex.EncodeToString(addr[:]) }

func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address: %v", err)
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("invalid address length: %d", len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}

func parseAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %q", value)
	}
	return amount, nil
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func (s *Server) handleCreate(w http.ResponseWriter, req *RPCRequest) string {
	var params createParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	depositor, err := parseAddress(params.Depositor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	recipient, err := parseAddress(params.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	milestones := make([]*escrow.Milestone, len(params.Milestones))
	for i, m := range params.Milestones {
		amount, err := parseAmount(m.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return "invalid_params"
		}
		milestones[i] = &escrow.Milestone{Amount: amount, Description: m.Description}
	}
	created, err := s.engine.Create(params.ID, depositor, recipient, params.Token, milestones, params.Deadline)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, escrowToJSON(created))
	return "ok"
}

func (s *Server) handleDeposit(w http.ResponseWriter, req *RPCRequest) string {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	if err := s.engine.Deposit(params.ID); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleRelease(w http.ResponseWriter, req *RPCRequest) string {
	var params milestoneIndexParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	if err := s.engine.ReleaseMilestone(params.ID, params.Index); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleConfirm(w http.ResponseWriter, req *RPCRequest) string {
	var params milestoneIndexParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	if err := s.engine.ConfirmDelivery(params.ID, params.Index, buyer); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleDispute(w http.ResponseWriter, req *RPCRequest) string {
	var params actorParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	if err := s.engine.RaiseDispute(params.ID, caller); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleResolve(w http.ResponseWriter, req *RPCRequest) string {
	var params resolveParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	winner, err := parseAddress(params.Winner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	if err := s.engine.ResolveDispute(params.ID, winner); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleCancel(w http.ResponseWriter, req *RPCRequest) string {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	if err := s.engine.Cancel(params.ID); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleComplete(w http.ResponseWriter, req *RPCRequest) string {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	if err := s.engine.Complete(params.ID); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleGetEscrow(w http.ResponseWriter, req *RPCRequest) string {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	esc, err := s.engine.GetEscrow(params.ID)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, escrowToJSON(esc))
	return "ok"
}

func (s *Server) handleGetState(w http.ResponseWriter, req *RPCRequest) string {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	status, err := s.engine.GetState(params.ID)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, status.String())
	return "ok"
}

func (s *Server) handleGetConfig(w http.ResponseWriter, req *RPCRequest) string {
	cfg, err := s.engine.GetConfig()
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, &configJSON{
		Treasury: formatAddress(cfg.Treasury),
		FeeBps:   cfg.FeeBps,
		Paused:   cfg.Paused,
	})
	return "ok"
}

func (s *Server) handleInitialize(w http.ResponseWriter, req *RPCRequest) string {
	var params initializeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	treasury, err := parseAddress(params.Treasury)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	if err := s.engine.Initialize(treasury, params.FeeBps); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleUpdateFee(w http.ResponseWriter, req *RPCRequest) string {
	var params feeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	if err := s.engine.UpdateFee(params.FeeBps); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleSetPaused(w http.ResponseWriter, req *RPCRequest) string {
	var params pausedParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	if err := s.engine.SetPaused(params.Paused); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleInitAdmin(w http.ResponseWriter, req *RPCRequest) string {
	var params adminParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	admin, err := parseAddress(params.Admin)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	if err := s.engine.InitAdmin(admin); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}
