package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seisreg/internal/payment/ledger"
	id "seisreg/pkg/domain"
	"seisreg/pkg/platform/middleware/admin"
	"seisreg/pkg/testutil"
)

const adminToken = "operator-secret"

var (
	custody = id.MustParseAddress("0x00000000000000000000000000000000000000cc")
	bob     = id.MustParseAddress("0x0000000000000000000000000000000000000b0b")
	tokenX  = id.MustParseAddress("0x00000000000000000000000000000000000000f0")
)

func newRouter(t *testing.T) (http.Handler, *ledger.Ledger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := ledger.New(custody, ledger.WithLogger(logger))
	r := chi.NewRouter()
	New(l, adminToken, logger).Register(r)
	return r, l
}

func deposit(t *testing.T, router http.Handler, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.NewJSONRequest(t, http.MethodPost, "/dev/ledger/deposits", body)
	if token != "" {
		req.Header.Set(admin.Header, token)
	}
	return testutil.DoRequest(router, req)
}

func TestDepositRequiresAdminToken(t *testing.T) {
	router, l := newRouter(t)

	rec := deposit(t, router, "", DepositRequest{Address: bob.String(), Amount: 10})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = deposit(t, router, "wrong", DepositRequest{Address: bob.String(), Amount: 10})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, l.Balance(id.ZeroAddress, bob))
}

func TestDepositCreditsNativeAndToken(t *testing.T) {
	router, l := newRouter(t)

	rec := deposit(t, router, adminToken, DepositRequest{Address: bob.String(), Amount: 500})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	native := testutil.UnmarshalResponse[BalanceResponse](t, rec)
	assert.Equal(t, uint64(500), native.Balance)
	assert.Nil(t, native.Token)

	rec = deposit(t, router, adminToken, DepositRequest{Address: bob.String(), Token: tokenX.String(), Amount: 7})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, uint64(7), l.Balance(tokenX, bob))
	assert.Equal(t, uint64(500), l.Balance(id.ZeroAddress, bob))

	req := testutil.NewJSONRequest(t, http.MethodGet, "/dev/ledger/balances/"+bob.String()+"?token="+tokenX.String(), nil)
	req.Header.Set(admin.Header, adminToken)
	balanceRec := testutil.DoRequest(router, req)
	require.Equal(t, http.StatusOK, balanceRec.Code)
	tokenBalance := testutil.UnmarshalResponse[BalanceResponse](t, balanceRec)
	assert.Equal(t, uint64(7), tokenBalance.Balance)
	require.NotNil(t, tokenBalance.Token)
	assert.Equal(t, tokenX, *tokenBalance.Token)
}

func TestDepositRejectsBadInput(t *testing.T) {
	router, _ := newRouter(t)

	tests := []struct {
		name string
		body DepositRequest
	}{
		{"missing address", DepositRequest{Amount: 1}},
		{"zero address", DepositRequest{Address: id.ZeroAddress.String(), Amount: 1}},
		{"bad token", DepositRequest{Address: bob.String(), Token: "0x12", Amount: 1}},
		{"zero amount", DepositRequest{Address: bob.String()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := deposit(t, router, adminToken, tt.body)
			testutil.AssertStatusAndError(t, rec, http.StatusBadRequest, "bad_request")
		})
	}
}
