package metadata

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"dlmm-ledger/internal/domain"
	"dlmm-ledger/internal/solana"
	"dlmm-ledger/internal/throttle"
)

const (
	// DefaultTokenAPI serves the curated token list.
	DefaultTokenAPI = "https://tokens.jup.ag"

	tokenMaxConcurrent = 10
	tokenInterval      = 30 * time.Second

	// SPL mint account layout: decimals is the single byte at offset 44.
	mintDecimalsOffset = 44
)

type tokenListEntry struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
	LogoURI  string `json:"logoURI"`
}

// TokenService resolves token metadata from the token list, falling back to
// the mint account on chain for tokens the list does not carry. Unlisted
// tokens get their decimals from the mint and no name or symbol.
type TokenService struct {
	baseURL string
	client  *http.Client
	rpc     solana.RPCClient
	cache   *throttle.Cached[*domain.Token]
	logger  *zap.Logger
}

func NewTokenService(baseURL string, client *http.Client, rpc solana.RPCClient, logger *zap.Logger) *TokenService {
	if baseURL == "" {
		baseURL = DefaultTokenAPI
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		rpc:     rpc,
		cache:   throttle.NewCached[*domain.Token](throttle.New(tokenMaxConcurrent, tokenInterval)),
		logger:  logger,
	}
}

// Seed primes the cache, typically from a bundled token list.
func (s *TokenService) Seed(tokens []domain.Token) {
	for _, token := range tokens {
		t := token
		s.cache.Seed(t.Address, &t)
	}
}

// GetToken returns metadata for one mint.
func (s *TokenService) GetToken(ctx context.Context, mint string) (*domain.Token, error) {
	return s.cache.Do(ctx, mint, func() (*domain.Token, error) {
		token, err := s.fetchListed(ctx, mint)
		if err != nil {
			return nil, err
		}
		if token != nil {
			return token, nil
		}
		s.logger.Info("token not in list, reading mint on chain", zap.String("mint", mint))
		return s.fetchOnChain(ctx, mint)
	})
}

// GetAllTokens returns the full token list in one request.
func (s *TokenService) GetAllTokens(ctx context.Context) ([]domain.Token, error) {
	var entries []tokenListEntry
	if err := fetchJSON(ctx, s.client, s.baseURL+"/tokens_with_markets", &entries); err != nil {
		return nil, fmt.Errorf("fetch token list: %w", err)
	}
	tokens := make([]domain.Token, 0, len(entries))
	for _, entry := range entries {
		tokens = append(tokens, tokenFromEntry(entry))
	}
	return tokens, nil
}

// fetchListed returns nil without error when the list does not know the
// mint; the endpoint answers those with a JSON null.
func (s *TokenService) fetchListed(ctx context.Context, mint string) (*domain.Token, error) {
	var entry *tokenListEntry
	if err := fetchJSON(ctx, s.client, s.baseURL+"/token/"+mint, &entry); err != nil {
		return nil, fmt.Errorf("fetch token %s: %w", mint, err)
	}
	if entry == nil {
		return nil, nil
	}
	token := tokenFromEntry(*entry)
	return &token, nil
}

func (s *TokenService) fetchOnChain(ctx context.Context, mint string) (*domain.Token, error) {
	info, err := s.rpc.GetAccountInfo(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("fetch mint account %s: %w", mint, err)
	}
	if info == nil {
		return nil, fmt.Errorf("mint account %s not found", mint)
	}
	data, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return nil, fmt.Errorf("decode mint account %s: %w", mint, err)
	}
	if len(data) <= mintDecimalsOffset {
		return nil, fmt.Errorf("mint account %s: data too short (%d bytes)", mint, len(data))
	}
	return &domain.Token{
		Address:  mint,
		Decimals: int(data[mintDecimalsOffset]),
	}, nil
}

func tokenFromEntry(entry tokenListEntry) domain.Token {
	token := domain.Token{
		Address:  entry.Address,
		Decimals: entry.Decimals,
	}
	if entry.Name != "" {
		token.Name = &entry.Name
	}
	if entry.Symbol != "" {
		token.Symbol = &entry.Symbol
	}
	if entry.LogoURI != "" {
		token.Logo = &entry.LogoURI
	}
	return token
}
