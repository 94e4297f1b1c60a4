package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"escrowd/escrow"
	"escrowd/state"
	"escrowd/storage"
	"escrowd/token"
)

const (
	testDepositor = "0x1111111111111111111111111111111111111111"
	testRecipient = "0x2222222222222222222222222222222222222222"
	testTreasury  = "0x3333333333333333333333333333333333333333"
)

func newTestServer(t *testing.T, authToken string) (*Server, *token.BookLedger, *state.Manager) {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	ledger := token.NewBookLedger()
	engine := escrow.NewEngine()
	engine.SetState(manager)
	engine.SetLedger(ledger)
	engine.SetAuthorizer(escrow.AuthorizerFunc(func([20]byte) error { return nil }))
	return NewServer(engine, authToken, nil), ledger, manager
}

func call(t *testing.T, s *Server, bearer, method string, params interface{}) (*httptest.ResponseRecorder, *RPCResponse) {
	t.Helper()
	body := map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"method":  method,
		"id":      1,
	}
	if params != nil {
		body["params"] = []interface{}{params}
	}
	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(encoded))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.Handle(rec, req)

	resp := new(RPCResponse)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), resp))
	return rec, resp
}

func createParamsFixture(id uint64) map[string]interface{} {
	return map[string]interface{}{
		"id":        id,
		"depositor": testDepositor,
		"recipient": testRecipient,
		"token":     "USDX",
		"milestones": []map[string]string{
			{"amount": "6000", "description": "design"},
			{"amount": "4000", "description": "build"},
		},
		"deadline": 1_900_000_000,
	}
}

func TestRPCCreateAndGet(t *testing.T) {
	s, _, _ := newTestServer(t, "")

	rec, resp := call(t, s, "", "escrow_create", createParamsFixture(1))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)

	rec, resp = call(t, s, "", "escrow_get", map[string]uint64{"id": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)

	result, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var record escrowJSON
	require.NoError(t, json.Unmarshal(result, &record))
	require.Equal(t, uint64(1), record.ID)
	require.Equal(t, "10000", record.TotalAmount)
	require.Equal(t, "created", record.Status)
	require.Len(t, record.Milestones, 2)
	require.Equal(t, "pending", record.Milestones[0].Status)

	_, resp = call(t, s, "", "escrow_getState", map[string]uint64{"id": 1})
	require.Nil(t, resp.Error)
	require.Equal(t, "created", resp.Result)
}

func TestRPCDuplicateCreateIsConflict(t *testing.T) {
	s, _, _ := newTestServer(t, "")
	_, resp := call(t, s, "", "escrow_create", createParamsFixture(1))
	require.Nil(t, resp.Error)

	rec, resp := call(t, s, "", "escrow_create", createParamsFixture(1))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeConflict, resp.Error.Code)
}

func TestRPCGetEscrowNotFound(t *testing.T) {
	s, _, _ := newTestServer(t, "")
	rec, resp := call(t, s, "", "escrow_get", map[string]uint64{"id": 404})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeNotFound, resp.Error.Code)
}

func TestRPCBearerTokenGuardsMutations(t *testing.T) {
	s, _, _ := newTestServer(t, "secret")

	rec, resp := call(t, s, "", "escrow_create", createParamsFixture(1))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	rec, resp = call(t, s, "wrong", "escrow_create", createParamsFixture(1))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	_, resp = call(t, s, "secret", "escrow_create", createParamsFixture(1))
	require.Nil(t, resp.Error)

	// Reads stay open.
	_, resp = call(t, s, "", "escrow_get", map[string]uint64{"id": 1})
	require.Nil(t, resp.Error)
}

func TestRPCInitializeAndGetConfig(t *testing.T) {
	s, _, _ := newTestServer(t, "")

	rec, resp := call(t, s, "", "escrow_getConfig", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, resp.Error)

	fee := int64(75)
	_, resp = call(t, s, "", "escrow_initialize", map[string]interface{}{"treasury": testTreasury, "feeBps": fee})
	require.Nil(t, resp.Error)

	_, resp = call(t, s, "", "escrow_getConfig", nil)
	require.Nil(t, resp.Error)
	encoded, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var cfg configJSON
	require.NoError(t, json.Unmarshal(encoded, &cfg))
	require.Equal(t, testTreasury, cfg.Treasury)
	require.Equal(t, fee, cfg.FeeBps)
	require.False(t, cfg.Paused)
}

func TestRPCDepositAndRelease(t *testing.T) {
	s, ledger, manager := newTestServer(t, "")

	zero := int64(0)
	_, resp := call(t, s, "", "escrow_initialize", map[string]interface{}{"treasury": testTreasury, "feeBps": zero})
	require.Nil(t, resp.Error)
	_, resp = call(t, s, "", "escrow_create", createParamsFixture(1))
	require.Nil(t, resp.Error)

	depositor, err := parseAddress(testDepositor)
	require.NoError(t, err)
	vault, err := manager.VaultAddress("USDX")
	require.NoError(t, err)
	require.NoError(t, ledger.Mint("USDX", depositor, big.NewInt(10_000)))
	require.NoError(t, ledger.Approve("USDX", depositor, vault, big.NewInt(10_000)))

	_, resp = call(t, s, "", "escrow_deposit", map[string]uint64{"id": 1})
	require.Nil(t, resp.Error)

	_, resp = call(t, s, "", "escrow_release", map[string]interface{}{"id": 1, "index": 0})
	require.Nil(t, resp.Error)

	recipient, err := parseAddress(testRecipient)
	require.NoError(t, err)
	require.Zero(t, ledger.BalanceOf("USDX", recipient).Cmp(big.NewInt(6000)))

	rec, resp := call(t, s, "", "escrow_release", map[string]interface{}{"id": 1, "index": 0})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, codeConflict, resp.Error.Code)
}

func TestRPCInvalidAddressRejected(t *testing.T) {
	s, _, _ := newTestServer(t, "")
	params := createParamsFixture(1)
	params["depositor"] = "not-an-address"
	rec, resp := call(t, s, "", "escrow_create", params)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestRPCUnknownMethod(t *testing.T) {
	s, _, _ := newTestServer(t, "")
	rec, resp := call(t, s, "", "escrow_unknown", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}
