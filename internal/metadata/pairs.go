package metadata

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"dlmm-ledger/internal/domain"
	"dlmm-ledger/internal/throttle"
)

const (
	// DefaultPairAPI serves pool metadata for every DLMM pair.
	DefaultPairAPI = "https://dlmm-api.meteora.ag"

	pairMaxConcurrent = 20
	pairInterval      = 3 * time.Second
)

// pairDetail is the subset of the pair endpoint's response we keep.
// base_fee_percentage arrives as a decimal string, e.g. "0.25".
type pairDetail struct {
	Address           string `json:"address"`
	Name              string `json:"name"`
	MintX             string `json:"mint_x"`
	MintY             string `json:"mint_y"`
	BinStep           int    `json:"bin_step"`
	BaseFeePercentage string `json:"base_fee_percentage"`
}

// PairService fetches pool metadata. Pair parameters never change after
// deployment, so results are cached for the process lifetime and the cache
// can be seeded from a prior snapshot.
type PairService struct {
	baseURL string
	client  *http.Client
	cache   *throttle.Cached[*domain.Pair]
	logger  *zap.Logger
}

func NewPairService(baseURL string, client *http.Client, logger *zap.Logger) *PairService {
	if baseURL == "" {
		baseURL = DefaultPairAPI
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &PairService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		cache:   throttle.NewCached[*domain.Pair](throttle.New(pairMaxConcurrent, pairInterval)),
		logger:  logger,
	}
}

// Seed primes the cache, typically from a bundled pair list.
func (s *PairService) Seed(pairs []domain.Pair) {
	for _, pair := range pairs {
		p := pair
		s.cache.Seed(p.Address, &p)
	}
}

// GetPair returns metadata for one pool.
func (s *PairService) GetPair(ctx context.Context, address string) (*domain.Pair, error) {
	return s.cache.Do(ctx, address, func() (*domain.Pair, error) {
		var detail pairDetail
		url := s.baseURL + "/pair/" + address
		if err := fetchJSON(ctx, s.client, url, &detail); err != nil {
			return nil, fmt.Errorf("fetch pair %s: %w", address, err)
		}
		return pairFromDetail(detail)
	})
}

// GetAllPairs returns metadata for every known pool in one request.
func (s *PairService) GetAllPairs(ctx context.Context) ([]domain.Pair, error) {
	var details []pairDetail
	if err := fetchJSON(ctx, s.client, s.baseURL+"/pair/all", &details); err != nil {
		return nil, fmt.Errorf("fetch all pairs: %w", err)
	}
	pairs := make([]domain.Pair, 0, len(details))
	for _, detail := range details {
		pair, err := pairFromDetail(detail)
		if err != nil {
			s.logger.Warn("skipping malformed pair",
				zap.String("pair", detail.Address),
				zap.Error(err))
			continue
		}
		pairs = append(pairs, *pair)
	}
	return pairs, nil
}

func pairFromDetail(detail pairDetail) (*domain.Pair, error) {
	feePct, err := strconv.ParseFloat(detail.BaseFeePercentage, 64)
	if err != nil {
		return nil, fmt.Errorf("parse base fee %q: %w", detail.BaseFeePercentage, err)
	}
	return &domain.Pair{
		Address:    detail.Address,
		Name:       detail.Name,
		MintX:      detail.MintX,
		MintY:      detail.MintY,
		BinStep:    detail.BinStep,
		BaseFeeBps: int(feePct * 100),
	}, nil
}
