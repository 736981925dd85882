package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"lendcore/gateway/middleware"
	nativecommon "lendcore/native/common"
	"lendcore/native/lending"
	"lendcore/native/lending/rates"
	"lendcore/native/lending/wadray"
	"lendcore/observability"
)

var (
	admin = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b0")

	dai  = common.HexToAddress("0x000000000000000000000000000000000000da10")
	weth = common.HexToAddress("0x000000000000000000000000000000000000e710")
)

type testEnv struct {
	pool     *lending.Pool
	pauses   *nativecommon.Pauses
	registry *prometheus.Registry
	handler  http.Handler
}

type testResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func newTestPool(t *testing.T, pauses *nativecommon.Pauses, opts ...lending.Option) *lending.Pool {
	t.Helper()
	require := require.New(t)
	slope1, err := wadray.ParseRay("0.04")
	require.NoError(err)
	slope2, err := wadray.ParseRay("0.75")
	require.NoError(err)
	strategy, err := rates.NewDefaultStrategy(rates.DefaultStrategy{VariableRateSlope1: slope1, VariableRateSlope2: slope2})
	require.NoError(err)
	registry := rates.NewRegistry()
	require.NoError(registry.Register("default", strategy))

	oracle := lending.NewStaticOracle()
	oracle.SetAssetPrice(dai, new(uint256.Int).Set(lending.BaseCurrencyUnit))
	oracle.SetAssetPrice(weth, new(uint256.Int).Mul(uint256.NewInt(2000), lending.BaseCurrencyUnit))
	acl := lending.NewStaticACL()
	acl.Grant(lending.RolePoolAdmin, admin)

	pool := lending.NewPool(oracle, registry, acl, append([]lending.Option{lending.WithPauses(pauses)}, opts...)...)
	for _, asset := range []common.Address{dai, weth} {
		require.NoError(pool.InitReserve(admin, lending.InitReserveInput{Asset: asset, Decimals: 18, Strategy: "default"}))
		require.NoError(pool.ConfigureReserveAsCollateral(admin, asset, 7500, 8000, 10500))
	}
	require.NoError(pool.SetReserveBorrowing(admin, dai, true))
	return pool
}

// newTestEnv serves a pool with dai and weth listed. Auth is enabled when
// tokens are given; otherwise callers name themselves.
func newTestEnv(t *testing.T, tokens ...middleware.StaticToken) *testEnv {
	t.Helper()
	pauses := nativecommon.NewPauses()
	env := &testEnv{pool: newTestPool(t, pauses), pauses: pauses, registry: prometheus.NewRegistry()}
	metrics, err := observability.NewRPCMetrics(env.registry)
	require.NoError(t, err)
	cfg := Config{
		Pool:                env.pool,
		Pauses:              pauses,
		Metrics:             metrics,
		Gatherer:            env.registry,
		AllowExplicitCaller: len(tokens) == 0,
	}
	if len(tokens) > 0 {
		cfg.Auth = middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:       true,
			OptionalPaths: []string{"/healthz", "/metrics"},
			StaticTokens:  tokens,
		}, nil)
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	env.handler = srv.Router()
	return env
}

func (e *testEnv) call(t *testing.T, token, method string, params interface{}) (int, testResponse) {
	t.Helper()
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	var resp testResponse
	if rec.Code != http.StatusUnauthorized {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec.Code, resp
}

func (e *testEnv) mustCall(t *testing.T, method string, params interface{}, out interface{}) {
	t.Helper()
	status, resp := e.call(t, "", method, params)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error, "%s: %+v", method, resp.Error)
	if out != nil {
		require.NoError(t, json.Unmarshal(resp.Result, out))
	}
}

func wei(whole uint64) string {
	return new(uint256.Int).Mul(uint256.NewInt(whole), wadray.Pow10(18)).Dec()
}

func TestSupplyBorrowOverRPC(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	fund := func(user common.Address, asset common.Address, amount string) {
		env.mustCall(t, "lending_admin_mint", map[string]string{"caller": admin.Hex(), "asset": asset.Hex(), "to": user.Hex(), "amount": amount}, nil)
		env.mustCall(t, "lending_approve", map[string]string{"caller": user.Hex(), "asset": asset.Hex(), "amount": "max"}, nil)
	}
	fund(bob, dai, wei(1000))
	env.mustCall(t, "lending_supply", map[string]string{"caller": bob.Hex(), "asset": dai.Hex(), "amount": wei(1000)}, nil)
	fund(alice, weth, wei(1))
	env.mustCall(t, "lending_supply", map[string]string{"caller": alice.Hex(), "asset": weth.Hex(), "amount": wei(1)}, nil)

	var account AccountDataResult
	env.mustCall(t, "lending_getUserAccountData", map[string]string{"user": alice.Hex()}, &account)
	require.Equal("200000000000", account.TotalCollateralBase)
	require.Equal("150000000000", account.AvailableBorrowsBase)
	require.Equal(wadray.MaxUint256.Dec(), account.HealthFactor)

	env.mustCall(t, "lending_borrow", map[string]interface{}{"caller": alice.Hex(), "asset": dai.Hex(), "amount": wei(100), "interestRateMode": 2}, nil)

	var position UserReserveDataResult
	env.mustCall(t, "lending_getUserReserveData", map[string]string{"asset": dai.Hex(), "user": alice.Hex()}, &position)
	require.Equal(wei(100), position.CurrentVariableDebt)

	var reserve ReserveDataResult
	env.mustCall(t, "lending_getReserveData", map[string]string{"asset": dai.Hex()}, &reserve)
	require.Equal(wei(900), reserve.AvailableLiquidity)
	require.Equal(wei(100), reserve.TotalVariableDebt)
	require.True(reserve.Configuration.BorrowingEnabled)

	var balance AmountResult
	env.mustCall(t, "lending_balanceOf", map[string]string{"asset": dai.Hex(), "holder": alice.Hex()}, &balance)
	require.Equal(wei(100), balance.Amount)

	var list []string
	env.mustCall(t, "lending_getReservesList", nil, &list)
	require.Equal([]string{dai.Hex(), weth.Hex()}, list)

	var withdrawn AmountResult
	env.mustCall(t, "lending_withdraw", map[string]string{"caller": bob.Hex(), "asset": dai.Hex(), "amount": wei(10)}, &withdrawn)
	require.Equal(wei(10), withdrawn.Amount)
}

func TestLendingErrorsMapToCodes(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	env.mustCall(t, "lending_admin_mint", map[string]string{"caller": admin.Hex(), "asset": dai.Hex(), "to": alice.Hex(), "amount": wei(10)}, nil)

	cases := []struct {
		name   string
		method string
		params interface{}
		status int
		code   int
		data   string
	}{
		{"transfer", "lending_supply", map[string]string{"caller": alice.Hex(), "asset": dai.Hex(), "amount": wei(10)}, http.StatusOK, codeTransfer, "TRANSFER_AMOUNT_EXCEEDS_ALLOWANCE"},
		{"business rule", "lending_withdraw", map[string]string{"caller": alice.Hex(), "asset": dai.Hex(), "amount": wei(1)}, http.StatusOK, codeBusinessRule, "NOT_ENOUGH_AVAILABLE_USER_BALANCE"},
		{"configuration", "lending_borrow", map[string]interface{}{"caller": alice.Hex(), "asset": weth.Hex(), "amount": "1", "interestRateMode": 2}, http.StatusOK, codeConfiguration, "BORROWING_NOT_ENABLED"},
		{"authorization", "lending_admin_setSupplyCap", map[string]interface{}{"caller": alice.Hex(), "asset": dai.Hex(), "cap": 10}, http.StatusForbidden, codeUnauthorized, "CALLER_NOT_RISK_OR_POOL_ADMIN"},
		{"bad amount", "lending_supply", map[string]string{"caller": alice.Hex(), "asset": dai.Hex(), "amount": "1.5"}, http.StatusBadRequest, codeInvalidParams, ""},
		{"bad address", "lending_getUserAccountData", map[string]string{"user": "alice"}, http.StatusBadRequest, codeInvalidParams, ""},
		{"unknown field", "lending_getUserAccountData", map[string]string{"user": alice.Hex(), "pool": "x"}, http.StatusBadRequest, codeInvalidParams, ""},
		{"rate mode", "lending_borrow", map[string]interface{}{"caller": alice.Hex(), "asset": dai.Hex(), "amount": "1", "interestRateMode": 3}, http.StatusBadRequest, codeInvalidParams, ""},
		{"missing caller", "lending_supply", map[string]string{"asset": dai.Hex(), "amount": "1"}, http.StatusBadRequest, codeInvalidParams, ""},
		{"unknown method", "lending_flashLoan", nil, http.StatusNotFound, codeMethodNotFound, ""},
	}
	for _, tc := range cases {
		status, resp := env.call(t, "", tc.method, tc.params)
		require.Equal(tc.status, status, tc.name)
		require.NotNil(resp.Error, tc.name)
		require.Equal(tc.code, resp.Error.Code, tc.name)
		if tc.data != "" {
			require.Equal(tc.data, resp.Error.Data, tc.name)
		}
	}
}

func TestScopesAndPrincipal(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t,
		middleware.StaticToken{Token: "alice-token", Subject: alice.Hex(), Scopes: []string{middleware.ScopeWrite}},
		middleware.StaticToken{Token: "admin-token", Subject: admin.Hex(), Scopes: []string{middleware.ScopeAdmin}},
		middleware.StaticToken{Token: "reader-token", Subject: bob.Hex()},
	)

	status, _ := env.call(t, "", "lending_getReservesList", nil)
	require.Equal(http.StatusUnauthorized, status)

	status, resp := env.call(t, "reader-token", "lending_getReservesList", nil)
	require.Equal(http.StatusOK, status)
	require.Nil(resp.Error)

	status, resp = env.call(t, "reader-token", "lending_setUserEMode", map[string]interface{}{"categoryId": 0})
	require.Equal(http.StatusForbidden, status)
	require.Equal(codeUnauthorized, resp.Error.Code)

	status, resp = env.call(t, "alice-token", "lending_admin_setReserveFreeze", map[string]interface{}{"asset": dai.Hex(), "enabled": true})
	require.Equal(http.StatusForbidden, status)
	require.Equal(middleware.ScopeAdmin, resp.Error.Data)

	// The principal acts; an explicit caller in the params is ignored.
	status, resp = env.call(t, "admin-token", "lending_admin_setReserveFreeze", map[string]interface{}{"caller": alice.Hex(), "asset": dai.Hex(), "enabled": true})
	require.Equal(http.StatusOK, status)
	require.Nil(resp.Error)
	reserve, err := env.pool.ReserveData(dai)
	require.NoError(err)
	require.True(reserve.Configuration.Frozen)

	status, resp = env.call(t, "alice-token", "lending_setUserEMode", map[string]interface{}{"categoryId": 0})
	require.Equal(http.StatusOK, status)
	require.Nil(resp.Error)
}

func TestKillSwitchBlocksWrites(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	env.mustCall(t, "lending_admin_setModulePaused", map[string]interface{}{"caller": admin.Hex(), "paused": true}, nil)
	require.True(env.pauses.IsPaused(lending.ModuleName))

	_, resp := env.call(t, "", "lending_admin_mint", map[string]string{"caller": admin.Hex(), "asset": dai.Hex(), "to": alice.Hex(), "amount": "1"})
	require.NotNil(resp.Error)
	require.Equal(codeConfiguration, resp.Error.Code)

	var list []string
	env.mustCall(t, "lending_getReservesList", nil, &list)
	require.Len(list, 2)
}

func TestTransportLimitsAndEndpoints(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	huge := strings.Repeat("a", maxRequestBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"jsonrpc":"2.0","method":"`+huge+`"}`))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{")))
	require.Equal(http.StatusBadRequest, rec.Code)
	require.Contains(rec.Body.String(), "invalid JSON payload")

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"jsonrpc":"1.0","method":"lending_getSettings"}`)))
	require.Equal(http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(http.StatusOK, rec.Code)
	var health map[string]interface{}
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal("ok", health["status"])
	require.EqualValues(2, health["reserves"])

	env.mustCall(t, "lending_getSettings", nil, nil)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(http.StatusOK, rec.Code)
	require.Contains(rec.Body.String(), `lending_rpc_requests_total{method="lending_getSettings",outcome="success"} 1`)
	require.Contains(rec.Body.String(), `lending_rpc_throttles_total{reason="body_too_large"} 1`)
}
