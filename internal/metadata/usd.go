package metadata

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"dlmm-ledger/internal/domain"
	"dlmm-ledger/internal/throttle"
)

// usdEntry is one priced sub-transaction from the position endpoints.
type usdEntry struct {
	TxID            string  `json:"tx_id"`
	TokenXUsdAmount float64 `json:"token_x_usd_amount"`
	TokenYUsdAmount float64 `json:"token_y_usd_amount"`
}

// UsdService fetches USD valuations for a position's deposits, withdrawals
// and claimed fees. Results land in the ledger, so there is no cache here,
// only throttling against the shared API host.
type UsdService struct {
	baseURL  string
	client   *http.Client
	throttle *throttle.Limiter
}

func NewUsdService(baseURL string, client *http.Client) *UsdService {
	if baseURL == "" {
		baseURL = DefaultPairAPI
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &UsdService{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		throttle: throttle.New(pairMaxConcurrent, pairInterval),
	}
}

// GetPositionTransactions fetches all three priced endpoints for the
// position concurrently.
func (s *UsdService) GetPositionTransactions(ctx context.Context, position string) (domain.PositionUsd, error) {
	var usd domain.PositionUsd
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		usd.Deposits, err = s.fetch(ctx, position, "/deposits")
		return err
	})
	g.Go(func() error {
		var err error
		usd.Withdrawals, err = s.fetch(ctx, position, "/withdraws")
		return err
	})
	g.Go(func() error {
		var err error
		usd.Fees, err = s.fetch(ctx, position, "/claim_fees")
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.PositionUsd{}, err
	}
	return usd, nil
}

func (s *UsdService) fetch(ctx context.Context, position, endpoint string) ([]domain.UsdAmount, error) {
	url := s.baseURL + "/position/" + position + endpoint
	v, err := s.throttle.Do(ctx, url, func() (interface{}, error) {
		var entries []usdEntry
		if err := fetchJSON(ctx, s.client, url, &entries); err != nil {
			return nil, fmt.Errorf("fetch position %s%s: %w", position, endpoint, err)
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	entries := v.([]usdEntry)
	amounts := make([]domain.UsdAmount, 0, len(entries))
	for _, entry := range entries {
		amounts = append(amounts, domain.UsdAmount{
			Signature: entry.TxID,
			TokenXUsd: entry.TokenXUsdAmount,
			TokenYUsd: entry.TokenYUsdAmount,
		})
	}
	return amounts, nil
}
