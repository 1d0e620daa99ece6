package metadata

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dlmm-ledger/internal/domain"
	"dlmm-ledger/internal/solana"
)

func TestPairService_GetPair(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pair/pair1", r.URL.Path)
		w.Write([]byte(`{
			"address": "pair1",
			"name": "SOL-USDC",
			"mint_x": "So11111111111111111111111111111111111111112",
			"mint_y": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			"bin_step": 25,
			"base_fee_percentage": "0.25"
		}`))
	}))
	defer server.Close()

	s := NewPairService(server.URL, server.Client(), zap.NewNop())
	pair, err := s.GetPair(context.Background(), "pair1")
	require.NoError(t, err)
	assert.Equal(t, "pair1", pair.Address)
	assert.Equal(t, "SOL-USDC", pair.Name)
	assert.Equal(t, 25, pair.BinStep)
	assert.Equal(t, 25, pair.BaseFeeBps)
}

func TestPairService_CachesResults(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"address": "pair1", "name": "A-B", "mint_x": "a", "mint_y": "b", "bin_step": 10, "base_fee_percentage": "1"}`))
	}))
	defer server.Close()

	s := NewPairService(server.URL, server.Client(), zap.NewNop())
	for i := 0; i < 3; i++ {
		_, err := s.GetPair(context.Background(), "pair1")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestPairService_Seed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("seeded pair must not hit the API")
	}))
	defer server.Close()

	s := NewPairService(server.URL, server.Client(), zap.NewNop())
	s.Seed([]domain.Pair{{Address: "pair1", Name: "A-B", BinStep: 10}})

	pair, err := s.GetPair(context.Background(), "pair1")
	require.NoError(t, err)
	assert.Equal(t, "A-B", pair.Name)
}

func TestPairService_RetriesRateLimitHTML(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("<html><body>rate limit exceeded</body></html>"))
			return
		}
		w.Write([]byte(`{"address": "pair1", "name": "A-B", "mint_x": "a", "mint_y": "b", "bin_step": 10, "base_fee_percentage": "0.1"}`))
	}))
	defer server.Close()

	s := NewPairService(server.URL, server.Client(), zap.NewNop())
	pair, err := s.GetPair(context.Background(), "pair1")
	require.NoError(t, err)
	assert.Equal(t, 10, pair.BaseFeeBps)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPairService_GetAllPairs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pair/all", r.URL.Path)
		w.Write([]byte(`[
			{"address": "p1", "name": "A-B", "mint_x": "a", "mint_y": "b", "bin_step": 10, "base_fee_percentage": "0.1"},
			{"address": "p2", "name": "C-D", "mint_x": "c", "mint_y": "d", "bin_step": 20, "base_fee_percentage": "bogus"}
		]`))
	}))
	defer server.Close()

	s := NewPairService(server.URL, server.Client(), zap.NewNop())
	pairs, err := s.GetAllPairs(context.Background())
	require.NoError(t, err)
	// The malformed entry is skipped, not fatal.
	require.Len(t, pairs, 1)
	assert.Equal(t, "p1", pairs[0].Address)
}

type stubRPC struct {
	account *solana.AccountInfo
}

func (s *stubRPC) GetSignaturesForAddress(context.Context, string, *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	return nil, nil
}

func (s *stubRPC) GetParsedTransaction(context.Context, string) (*solana.ParsedTransaction, error) {
	return nil, nil
}

func (s *stubRPC) GetAccountInfo(context.Context, string) (*solana.AccountInfo, error) {
	return s.account, nil
}

func TestTokenService_GetToken_Listed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token/mint1", r.URL.Path)
		w.Write([]byte(`{"address": "mint1", "name": "Token", "symbol": "TOK", "decimals": 6, "logoURI": "https://example.com/t.png"}`))
	}))
	defer server.Close()

	s := NewTokenService(server.URL, server.Client(), &stubRPC{}, zap.NewNop())
	token, err := s.GetToken(context.Background(), "mint1")
	require.NoError(t, err)
	assert.Equal(t, "mint1", token.Address)
	require.NotNil(t, token.Symbol)
	assert.Equal(t, "TOK", *token.Symbol)
	assert.Equal(t, 6, token.Decimals)
}

func TestTokenService_GetToken_OnChainFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Token list answers unknown mints with a JSON null.
		w.Write([]byte(`null`))
	}))
	defer server.Close()

	mintData := make([]byte, 82)
	mintData[44] = 9
	rpc := &stubRPC{account: &solana.AccountInfo{
		Data: base64.StdEncoding.EncodeToString(mintData),
	}}

	s := NewTokenService(server.URL, server.Client(), rpc, zap.NewNop())
	token, err := s.GetToken(context.Background(), "mint1")
	require.NoError(t, err)
	assert.Equal(t, "mint1", token.Address)
	assert.Equal(t, 9, token.Decimals)
	assert.Nil(t, token.Name)
	assert.Nil(t, token.Symbol)
}

func TestTokenService_GetToken_MintMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`null`))
	}))
	defer server.Close()

	s := NewTokenService(server.URL, server.Client(), &stubRPC{}, zap.NewNop())
	_, err := s.GetToken(context.Background(), "mint1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestUsdService_GetPositionTransactions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/position/pos1/deposits":
			w.Write([]byte(`[{"tx_id": "sig1", "token_x_usd_amount": 50, "token_y_usd_amount": 49.5}]`))
		case "/position/pos1/withdraws":
			w.Write([]byte(`[{"tx_id": "sig2", "token_x_usd_amount": 55, "token_y_usd_amount": 50}]`))
		case "/position/pos1/claim_fees":
			w.Write([]byte(`[]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	s := NewUsdService(server.URL, server.Client())
	usd, err := s.GetPositionTransactions(context.Background(), "pos1")
	require.NoError(t, err)
	require.Len(t, usd.Deposits, 1)
	assert.Equal(t, "sig1", usd.Deposits[0].Signature)
	assert.InDelta(t, 49.5, usd.Deposits[0].TokenYUsd, 1e-9)
	require.Len(t, usd.Withdrawals, 1)
	assert.Empty(t, usd.Fees)
}