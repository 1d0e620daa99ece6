package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"dlmm-ledger/internal/domain"
	"dlmm-ledger/internal/downloader"
	"dlmm-ledger/internal/ledger"
	"dlmm-ledger/internal/ledger/blob"
	"dlmm-ledger/internal/logging"
	"dlmm-ledger/internal/metadata"
	"dlmm-ledger/internal/observability"
	"dlmm-ledger/internal/solana"
	"dlmm-ledger/internal/throttle"
)

type config struct {
	accounts         []string
	rpcEndpoint      string
	dbPath           string
	snapshotPath     string
	pairAPI          string
	tokenAPI         string
	pairSeed         string
	tokenSeed        string
	rpcConcurrency   int
	rpcInterval      time.Duration
	progressInterval time.Duration
	metricsAddr      string
}

func main() {
	// Parse flags
	accounts := flag.String("accounts", "", "Comma-separated wallet addresses or transaction signatures to download")
	rpcEndpoint := flag.String("rpc-endpoint", "", "Solana RPC HTTP endpoint (defaults to SOLANA_RPC_URL)")
	dbPath := flag.String("db", "dlmm.duckdb", "Database file path")
	snapshotPath := flag.String("snapshot", "", "Snapshot file for durable persistence (empty to disable)")
	pairAPI := flag.String("pair-api", metadata.DefaultPairAPI, "Meteora DLMM API base URL")
	tokenAPI := flag.String("token-api", metadata.DefaultTokenAPI, "Jupiter token list API base URL")
	pairSeed := flag.String("pair-seed", "", "JSON file of pairs to pre-seed the pair cache")
	tokenSeed := flag.String("token-seed", "", "JSON file of tokens to pre-seed the token cache")
	rpcConcurrency := flag.Int("rpc-concurrency", 8, "Maximum concurrent RPC requests")
	rpcInterval := flag.Duration("rpc-interval", time.Second, "Minimum delay between RPC request slots")
	progressInterval := flag.Duration("progress-interval", 10*time.Second, "Progress logging interval")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (empty to disable)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logDev := flag.Bool("log-dev", false, "Human-readable console logging")

	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	logger, err := logging.New(*logLevel, *logDev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	endpoint := *rpcEndpoint
	if endpoint == "" {
		endpoint = os.Getenv("SOLANA_RPC_URL")
	}

	cfg := config{
		accounts:         splitList(*accounts),
		rpcEndpoint:      endpoint,
		dbPath:           *dbPath,
		snapshotPath:     *snapshotPath,
		pairAPI:          *pairAPI,
		tokenAPI:         *tokenAPI,
		pairSeed:         *pairSeed,
		tokenSeed:        *tokenSeed,
		rpcConcurrency:   *rpcConcurrency,
		rpcInterval:      *rpcInterval,
		progressInterval: *progressInterval,
		metricsAddr:      *metricsAddr,
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("download failed", zap.Error(err))
	}
}

func run(cfg config, logger *zap.Logger) error {
	if len(cfg.accounts) == 0 {
		return errors.New("no accounts specified, use --accounts")
	}
	if cfg.rpcEndpoint == "" {
		return errors.New("no RPC endpoint, use --rpc-endpoint or set SOLANA_RPC_URL")
	}

	// Start metrics server if enabled
	if cfg.metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Info("starting metrics server", zap.String("addr", cfg.metricsAddr))
			if err := http.ListenAndServe(cfg.metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	var bs blob.Store
	if cfg.snapshotPath != "" {
		bs = blob.NewFileStore(cfg.snapshotPath)
	}

	store, err := ledger.Open(cfg.dbPath, bs, logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	rpc := solana.NewHTTPClient(cfg.rpcEndpoint)
	httpClient := &http.Client{Timeout: 30 * time.Second}

	pairs := metadata.NewPairService(cfg.pairAPI, httpClient, logger)
	tokens := metadata.NewTokenService(cfg.tokenAPI, httpClient, rpc, logger)
	if cfg.pairSeed != "" {
		var seed []domain.Pair
		if err := loadSeed(cfg.pairSeed, &seed); err != nil {
			return err
		}
		pairs.Seed(seed)
	}
	if cfg.tokenSeed != "" {
		var seed []domain.Token
		if err := loadSeed(cfg.tokenSeed, &seed); err != nil {
			return err
		}
		tokens.Seed(seed)
	}

	manager := downloader.NewManager(downloader.Deps{
		Store:    store,
		RPC:      rpc,
		Pairs:    pairs,
		Tokens:   tokens,
		Usd:      metadata.NewUsdService(cfg.pairAPI, httpClient),
		Throttle: throttle.New(cfg.rpcConcurrency, cfg.rpcInterval),
		Logger:   logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, cancelling downloads", zap.Stringer("signal", sig))
			for _, account := range cfg.accounts {
				if err := manager.CancelDownload(account); err != nil {
					logger.Error("cancel download", zap.String("account", account), zap.Error(err))
				}
			}
			cancel()

			select {
			case sig := <-sigCh:
				logger.Warn("received second signal, forcing exit", zap.Stringer("signal", sig))
				os.Exit(1)
			case <-time.After(30 * time.Second):
				logger.Warn("graceful shutdown timed out after 30s, forcing exit")
				os.Exit(1)
			case <-done:
			}
		case <-done:
		}
	}()

	metrics := observability.DefaultMetrics

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		runErrs []error
	)
	for _, account := range cfg.accounts {
		wg.Add(1)
		metrics.DownloadsRunning.Inc()
		manager.Download(ctx, account, func(err error) {
			defer wg.Done()
			metrics.DownloadsRunning.Dec()
			switch {
			case errors.Is(err, context.Canceled):
				metrics.DownloadsCancelled.Inc()
			case err != nil:
				metrics.DownloadErrors.Inc()
				mu.Lock()
				runErrs = append(runErrs, err)
				mu.Unlock()
			default:
				metrics.DownloadsCompleted.Inc()
			}
		})
	}

	// Progress reporting until every download has finished
	go func() {
		ticker := time.NewTicker(cfg.progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				for _, account := range cfg.accounts {
					if d, ok := manager.Get(account); ok {
						st, err := d.Stats(context.Background())
						if err != nil {
							logger.Warn("stats query failed", zap.Error(err))
							continue
						}
						reportProgress(logger, account, st)
					}
				}
			case <-done:
				return
			}
		}
	}()

	wg.Wait()
	close(done)

	if len(runErrs) > 0 {
		return errors.Join(runErrs...)
	}
	logger.Info("all downloads finished", zap.Int("accounts", len(cfg.accounts)))
	return nil
}

func reportProgress(logger *zap.Logger, account string, st downloader.Stats) {
	m := observability.DefaultMetrics
	m.SignaturesFetched.WithLabelValues(account).Set(float64(st.AccountSignatureCount))
	m.PositionsSeen.WithLabelValues(account).Set(float64(st.PositionCount))
	m.PositionTransactions.WithLabelValues(account).Set(float64(st.PositionTransactionCount))
	m.UsdPositionsLoaded.WithLabelValues(account).Set(float64(st.UsdPositionCount))
	m.DownloadSeconds.WithLabelValues(account).Set(st.SecondsElapsed)

	logger.Info("download progress",
		zap.String("account", account),
		zap.Int("signatures", st.AccountSignatureCount),
		zap.Int("positions", st.PositionCount),
		zap.Int("transactions", st.PositionTransactionCount),
		zap.Int("usd_positions", st.UsdPositionCount),
		zap.Int("missing_usd", st.MissingUsd),
		zap.Bool("complete", st.DownloadingComplete),
		zap.Float64("elapsed_seconds", st.SecondsElapsed))
}

func loadSeed(path string, into interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return nil
}

// splitList splits a comma-separated flag value, dropping empties.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
