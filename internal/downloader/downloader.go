// Package downloader orchestrates a full position-history download for one
// account: signature pagination, instruction classification, metadata
// catch-up and USD pricing, all landing in the ledger.
package downloader

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"dlmm-ledger/internal/dlmm"
	"dlmm-ledger/internal/ledger"
	"dlmm-ledger/internal/metadata"
	"dlmm-ledger/internal/solana"
	"dlmm-ledger/internal/stream"
	"dlmm-ledger/internal/throttle"
)

// Stats is a point-in-time snapshot of download progress.
type Stats struct {
	DownloadingComplete          bool
	PositionsComplete            bool
	TransactionDownloadCancelled bool
	FullyCancelled               bool
	SecondsElapsed               float64
	AccountSignatureCount        int
	PositionCount                int
	PositionTransactionCount     int
	UsdPositionCount             int
	MissingUsd                   int
	OldestTransactionDate        time.Time
}

// Deps bundles the collaborators a Downloader needs.
type Deps struct {
	Store    *ledger.Store
	RPC      solana.RPCClient
	Pairs    *metadata.PairService
	Tokens   *metadata.TokenService
	Usd      *metadata.UsdService
	Throttle *throttle.Limiter
	Logger   *zap.Logger
}

// Downloader walks one account's history backward and keeps the ledger's
// derived data converging while transactions stream in. Cancellation is two
// phase: the first Cancel stops signature paging and lets USD resolution
// drain, a second Cancel abandons the drain. Completion is never recorded
// for a cancelled run.
type Downloader struct {
	deps    Deps
	account string

	stream        *stream.Stream
	streamMu      sync.Mutex
	softCancelled atomic.Bool
	hardCancelled atomic.Bool
	isDone        atomic.Bool
	finished      atomic.Bool
	startTime     time.Time

	fetchingPairs  atomic.Bool
	fetchingTokens atomic.Bool
	fetchingUsd    atomic.Bool

	oldestBlockTime atomic.Int64

	// catchUpMu serializes the pairs->tokens->usd chain; incremental runs
	// skip when one is in flight, the final run waits.
	catchUpMu sync.Mutex

	signatureCount atomic.Int64
	positions      *xsync.Map[string, struct{}]
	transactionIDs *xsync.Map[string, struct{}]
	usdPositions   *xsync.Map[string, struct{}]
}

func New(deps Deps, account string) *Downloader {
	return &Downloader{
		deps:           deps,
		account:        account,
		startTime:      time.Now(),
		positions:      xsync.NewMap[string, struct{}](),
		transactionIDs: xsync.NewMap[string, struct{}](),
		usdPositions:   xsync.NewMap[string, struct{}](),
	}
}

// Cancel requests a cooperative stop. The first call stops signature paging
// while USD resolution keeps draining; a second call aborts that too.
func (d *Downloader) Cancel() {
	if d.softCancelled.Swap(true) {
		d.hardCancelled.Store(true)
		return
	}
	d.streamMu.Lock()
	if d.stream != nil {
		d.stream.Cancel()
	}
	d.streamMu.Unlock()
}

// Cancelled reports whether Cancel has been called.
func (d *Downloader) Cancelled() bool {
	return d.softCancelled.Load()
}

// Stats returns current progress counters and state flags.
func (d *Downloader) Stats(ctx context.Context) (Stats, error) {
	missingUsd, err := d.deps.Store.GetMissingUsd(ctx)
	if err != nil {
		return Stats{}, err
	}
	positionsComplete := d.isDone.Load() && !d.fetchingPairs.Load() && !d.fetchingTokens.Load()
	stats := Stats{
		DownloadingComplete:          positionsComplete && !d.fetchingUsd.Load(),
		PositionsComplete:            positionsComplete,
		TransactionDownloadCancelled: d.softCancelled.Load(),
		FullyCancelled:               d.hardCancelled.Load(),
		SecondsElapsed:               time.Since(d.startTime).Seconds(),
		AccountSignatureCount:        int(d.signatureCount.Load()),
		PositionCount:                d.positions.Size(),
		PositionTransactionCount:     d.transactionIDs.Size(),
		UsdPositionCount:             d.usdPositions.Size(),
		MissingUsd:                   len(missingUsd),
	}
	if blockTime := d.oldestBlockTime.Load(); blockTime > 0 {
		stats.OldestTransactionDate = time.Unix(blockTime, 0).UTC()
	}
	return stats, nil
}

var trailingWord = regexp.MustCompile(`\w+$`)

// resolveTarget turns the configured target into a position account. Base58
// account ids are 43 or 44 characters and pass through; anything else is
// treated as a transaction signature whose first DLMM instruction names the
// position.
func (d *Downloader) resolveTarget(ctx context.Context) error {
	if l := len(d.account); l == 43 || l == 44 {
		return nil
	}
	signature := trailingWord.FindString(d.account)
	if signature == "" {
		return fmt.Errorf("%s is not a valid account or transaction signature", d.account)
	}
	tx, err := d.deps.RPC.GetParsedTransaction(ctx, signature)
	if err != nil {
		return fmt.Errorf("resolve target %s: %w", signature, err)
	}
	instructions, err := dlmm.Classify(tx)
	if err != nil {
		return err
	}
	if len(instructions) == 0 {
		return fmt.Errorf("%s is not a DLMM transaction", signature)
	}
	d.account = instructions[0].Accounts.Position
	return nil
}

// Run performs the download. It returns nil both on completion and on
// cancellation; completion is only recorded in the ledger on the former.
func (d *Downloader) Run(ctx context.Context) error {
	if err := d.resolveTarget(ctx); err != nil {
		return err
	}
	store := d.deps.Store

	complete, err := store.IsComplete(ctx, d.account)
	if err != nil {
		return err
	}
	mostRecent, err := store.GetMostRecentSignature(ctx, d.account)
	if err != nil {
		return err
	}
	oldest := ""
	if !complete {
		oldest, err = store.GetOldestSignature(ctx, d.account)
		if err != nil {
			return err
		}
	}

	// One snapshot at the end instead of one per write batch.
	store.SetDelaySave(true)
	defer store.SetDelaySave(false)

	s := stream.New(d.deps.RPC, d.account, d.deps.Logger, stream.Options{
		MostRecentSignature: mostRecent,
		OldestSignature:     oldest,
		Throttle:            d.deps.Throttle,
		OnSignatures:        d.onSignatures,
		OnTransactions:      d.onTransactions,
	})
	d.streamMu.Lock()
	d.stream = s
	alreadyCancelled := d.softCancelled.Load()
	d.streamMu.Unlock()
	if alreadyCancelled {
		return d.drainAfterCancel(ctx)
	}

	if err := s.Run(ctx); err != nil {
		return fmt.Errorf("stream %s: %w", d.account, err)
	}
	if d.softCancelled.Load() {
		return d.drainAfterCancel(ctx)
	}

	d.isDone.Store(true)
	if err := d.catchUp(ctx); err != nil {
		return err
	}
	if d.softCancelled.Load() {
		return nil
	}

	if err := store.MarkComplete(ctx, d.account); err != nil {
		return err
	}
	d.finished.Store(true)
	store.SetDelaySave(false)
	if err := store.Save(); err != nil {
		d.deps.Logger.Error("snapshot save failed", zap.Error(err))
	}
	d.deps.Logger.Info("download complete",
		zap.String("account", d.account),
		zap.Int("signatures", int(d.signatureCount.Load())),
		zap.Int("positions", d.positions.Size()))
	return nil
}

func (d *Downloader) onSignatures(ctx context.Context, signatures []solana.SignatureInfo) error {
	d.signatureCount.Add(int64(len(signatures)))
	oldest := signatures[len(signatures)-1]
	d.deps.Logger.Info("signature page received",
		zap.String("account", d.account),
		zap.Int("count", len(signatures)),
		zap.String("oldest", oldest.Signature))
	if oldest.BlockTime == nil {
		return nil
	}
	d.oldestBlockTime.Store(*oldest.BlockTime)
	// Persist the cursor so an interrupted run resumes from here.
	return d.deps.Store.SetOldestSignature(ctx, d.account, *oldest.BlockTime, oldest.Signature)
}

func (d *Downloader) onTransactions(ctx context.Context, transactions []*solana.ParsedTransaction) error {
	if d.softCancelled.Load() {
		return nil
	}
	start := time.Now()
	count := 0
	for _, tx := range transactions {
		if tx == nil {
			continue
		}
		instructions, err := dlmm.Classify(tx)
		if err != nil {
			return fmt.Errorf("classify: %w", err)
		}
		for _, ix := range instructions {
			if d.softCancelled.Load() {
				return nil
			}
			if err := d.deps.Store.AddInstruction(ctx, ix); err != nil {
				return err
			}
			count++
			d.positions.Store(ix.Accounts.Position, struct{}{})
			d.transactionIDs.Store(ix.Signature, struct{}{})
		}
	}
	d.deps.Logger.Debug("instructions added",
		zap.Int("count", count),
		zap.Duration("elapsed", time.Since(start)))

	// Kick metadata catch-up in the background; skipped when one is already
	// running, the final pass after the stream drains picks up the rest.
	go func() {
		if !d.catchUpMu.TryLock() {
			return
		}
		defer d.catchUpMu.Unlock()
		if err := d.catchUpLocked(ctx); err != nil && !d.softCancelled.Load() {
			d.deps.Logger.Warn("metadata catch-up failed", zap.Error(err))
		}
	}()
	return nil
}

func (d *Downloader) catchUp(ctx context.Context) error {
	d.catchUpMu.Lock()
	defer d.catchUpMu.Unlock()
	return d.catchUpLocked(ctx)
}

// catchUpLocked resolves missing pairs, then tokens, then USD amounts.
// Each stage re-queries after every pass because new instructions may have
// landed meanwhile. A soft cancel skips straight to the USD drain.
func (d *Downloader) catchUpLocked(ctx context.Context) error {
	if d.hardCancelled.Load() {
		return nil
	}
	if !d.softCancelled.Load() {
		if err := d.deps.Store.BackfillPairAddresses(ctx); err != nil {
			return err
		}
		if err := d.fetchMissingPairs(ctx); err != nil {
			return err
		}
		if err := d.fetchMissingTokens(ctx); err != nil {
			return err
		}
	}
	return d.fetchMissingUsd(ctx)
}

// drainAfterCancel finishes pending USD resolution after a soft cancel.
func (d *Downloader) drainAfterCancel(ctx context.Context) error {
	if d.hardCancelled.Load() {
		return nil
	}
	d.catchUpMu.Lock()
	defer d.catchUpMu.Unlock()
	return d.fetchMissingUsd(ctx)
}

func (d *Downloader) fetchMissingPairs(ctx context.Context) error {
	d.fetchingPairs.Store(true)
	defer d.fetchingPairs.Store(false)
	failed := make(map[string]struct{})
	for {
		missing, err := d.deps.Store.GetMissingPairs(ctx)
		if err != nil {
			return err
		}
		pending := make([]string, 0, len(missing))
		for _, address := range missing {
			if _, skip := failed[address]; !skip {
				pending = append(pending, address)
			}
		}
		if len(pending) == 0 {
			return nil
		}
		for _, address := range pending {
			if d.softCancelled.Load() {
				return nil
			}
			pair, err := d.deps.Pairs.GetPair(ctx, address)
			if err != nil {
				failed[address] = struct{}{}
				d.deps.Logger.Error("unable to obtain pair data",
					zap.String("address", address), zap.Error(err))
				continue
			}
			if d.softCancelled.Load() {
				return nil
			}
			if err := d.deps.Store.AddPair(ctx, *pair); err != nil {
				return err
			}
			d.deps.Logger.Info("added missing pair", zap.String("name", pair.Name))
		}
	}
}

func (d *Downloader) fetchMissingTokens(ctx context.Context) error {
	d.fetchingTokens.Store(true)
	defer d.fetchingTokens.Store(false)
	for {
		missing, err := d.deps.Store.GetMissingTokens(ctx)
		if err != nil {
			return err
		}
		if len(missing) == 0 {
			return nil
		}
		for _, mint := range missing {
			if d.softCancelled.Load() {
				return nil
			}
			token, err := d.deps.Tokens.GetToken(ctx, mint)
			if err != nil {
				return fmt.Errorf("fetch token %s: %w", mint, err)
			}
			if d.softCancelled.Load() {
				return nil
			}
			if err := d.deps.Store.AddToken(ctx, *token); err != nil {
				return err
			}
		}
	}
}

// fetchMissingUsd keeps going through a soft cancel; only a full cancel
// aborts it.
func (d *Downloader) fetchMissingUsd(ctx context.Context) error {
	d.fetchingUsd.Store(true)
	defer d.fetchingUsd.Store(false)
	for {
		if d.hardCancelled.Load() {
			return nil
		}
		missing, err := d.deps.Store.GetMissingUsd(ctx)
		if err != nil {
			return err
		}
		if len(missing) == 0 {
			return nil
		}
		for _, position := range missing {
			if d.hardCancelled.Load() {
				return nil
			}
			d.usdPositions.Store(position, struct{}{})
			usd, err := d.deps.Usd.GetPositionTransactions(ctx, position)
			if err != nil {
				return fmt.Errorf("fetch usd %s: %w", position, err)
			}
			if d.hardCancelled.Load() {
				return nil
			}
			if err := d.deps.Store.AddUsdTransactions(ctx, position, usd); err != nil {
				return err
			}
		}
	}
}
