// Package stream walks an account's transaction signature history backward
// in pages and resolves full transaction bodies in bounded chunks.
package stream

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"dlmm-ledger/internal/solana"
	"dlmm-ledger/internal/throttle"
)

const (
	// DefaultChunkSize bounds how many transaction bodies are resolved per
	// fetch round.
	DefaultChunkSize = 250

	defaultFetchWorkers = 8
)

// DefaultOldestDate is the pagination floor when no checkpoint exists:
// nothing tracked happened before the program launched.
var DefaultOldestDate = time.Date(2023, 11, 6, 0, 0, 0, 0, time.UTC)

// Options configures a Stream.
type Options struct {
	// ChunkSize caps signatures per body-resolution round. Defaults to
	// DefaultChunkSize.
	ChunkSize int

	// MostRecentSignature stops the walk once this signature is seen: only
	// strictly newer signatures are delivered.
	MostRecentSignature string

	// OldestSignature resumes an interrupted backward walk from this cursor.
	OldestSignature string

	// OldestDate excludes signatures older than the floor and halts
	// pagination when one is seen. Defaults to DefaultOldestDate.
	OldestDate time.Time

	// FetchWorkers bounds concurrent body fetches within a chunk.
	FetchWorkers int

	// Throttle paces RPC calls. Required.
	Throttle *throttle.Limiter

	// OnSignatures is invoked with each raw signature page, newest first.
	OnSignatures func(ctx context.Context, signatures []solana.SignatureInfo) error

	// OnTransactions is invoked with each chunk of resolved bodies.
	OnTransactions func(ctx context.Context, transactions []*solana.ParsedTransaction) error

	// OnDone fires exactly once after the final chunk, on the non-cancelled
	// path only.
	OnDone func()
}

// Stream pages backward through getSignaturesForAddress with a before
// cursor. Cancellation is cooperative: the flag is polled at every page and
// chunk boundary, in-flight calls complete but their results are discarded.
type Stream struct {
	rpc       solana.RPCClient
	account   string
	opts      Options
	pool      pond.Pool
	logger    *zap.Logger
	cancelled atomic.Bool
}

// New creates a Stream for one account.
func New(rpc solana.RPCClient, account string, logger *zap.Logger, opts Options) *Stream {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.FetchWorkers <= 0 {
		opts.FetchWorkers = defaultFetchWorkers
	}
	if opts.OldestDate.IsZero() {
		opts.OldestDate = DefaultOldestDate
	}
	return &Stream{
		rpc:     rpc,
		account: account,
		opts:    opts,
		pool:    pond.NewPool(opts.FetchWorkers),
		logger:  logger,
	}
}

// Cancel requests a cooperative stop.
func (s *Stream) Cancel() {
	s.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (s *Stream) Cancelled() bool {
	return s.cancelled.Load()
}

// Run walks the history until a stop condition or cancellation.
func (s *Stream) Run(ctx context.Context) error {
	defer s.pool.StopAndWait()

	before := ""
	if s.opts.MostRecentSignature == "" {
		before = s.opts.OldestSignature
	}

	var pending []solana.SignatureInfo
	for {
		page, err := s.fetchSignatures(ctx, before)
		if err != nil {
			return fmt.Errorf("fetch signatures: %w", err)
		}

		if len(page) > 0 {
			valid := s.filterSignatures(page)
			if s.opts.OnSignatures != nil && !s.cancelled.Load() {
				if err := s.opts.OnSignatures(ctx, page); err != nil {
					return err
				}
			}
			pending = append(pending, valid...)
			if len(pending) >= s.opts.ChunkSize && !s.cancelled.Load() {
				if err := s.sendTransactions(ctx, pending); err != nil {
					return err
				}
				pending = nil
			}
			before = s.nextBefore(page)
		}

		if !s.shouldContinue(page) {
			break
		}
	}

	if s.cancelled.Load() {
		return nil
	}
	if err := s.sendTransactions(ctx, pending); err != nil {
		return err
	}
	if s.opts.OnDone != nil {
		s.opts.OnDone()
	}
	return nil
}

func (s *Stream) fetchSignatures(ctx context.Context, before string) ([]solana.SignatureInfo, error) {
	v, err := s.opts.Throttle.Do(ctx, "signatures:"+s.account+":"+before, func() (interface{}, error) {
		return s.rpc.GetSignaturesForAddress(ctx, s.account, &solana.SignaturesOpts{Before: before})
	})
	if err != nil {
		return nil, err
	}
	return v.([]solana.SignatureInfo), nil
}

// filterSignatures drops errored signatures and applies the stop boundaries:
// everything at or past the known most recent signature, and everything
// older than the date floor.
func (s *Stream) filterSignatures(page []solana.SignatureInfo) []solana.SignatureInfo {
	if i := s.mostRecentIndex(page); i >= 0 {
		page = page[:i]
	} else if s.crossesOldestDate(page) {
		valid := make([]solana.SignatureInfo, 0, len(page))
		for _, sig := range page {
			if sig.Err == nil && !s.olderThanFloor(sig) {
				valid = append(valid, sig)
			}
		}
		return valid
	}

	valid := make([]solana.SignatureInfo, 0, len(page))
	for _, sig := range page {
		if sig.Err == nil {
			valid = append(valid, sig)
		}
	}
	return valid
}

func (s *Stream) mostRecentIndex(page []solana.SignatureInfo) int {
	if s.opts.MostRecentSignature == "" {
		return -1
	}
	for i, sig := range page {
		if sig.Signature == s.opts.MostRecentSignature {
			return i
		}
	}
	return -1
}

func (s *Stream) crossesOldestDate(page []solana.SignatureInfo) bool {
	for _, sig := range page {
		if s.olderThanFloor(sig) {
			return true
		}
	}
	return false
}

func (s *Stream) olderThanFloor(sig solana.SignatureInfo) bool {
	return sig.BlockTime != nil && time.Unix(*sig.BlockTime, 0).Before(s.opts.OldestDate)
}

func (s *Stream) shouldContinue(page []solana.SignatureInfo) bool {
	if len(page) == 0 || s.cancelled.Load() || s.crossesOldestDate(page) {
		return false
	}
	// Found the prior checkpoint and there is no older gap to resume into.
	if s.mostRecentIndex(page) >= 0 && s.opts.OldestSignature == "" {
		return false
	}
	return true
}

func (s *Stream) nextBefore(page []solana.SignatureInfo) string {
	// Caught up to the prior checkpoint; jump back to the unfinished older
	// walk, if any.
	if s.mostRecentIndex(page) >= 0 {
		return s.opts.OldestSignature
	}
	return page[len(page)-1].Signature
}

func (s *Stream) sendTransactions(ctx context.Context, signatures []solana.SignatureInfo) error {
	if s.cancelled.Load() {
		return nil
	}
	for start := 0; start < len(signatures); start += s.opts.ChunkSize {
		end := min(start+s.opts.ChunkSize, len(signatures))
		chunk := signatures[start:end]

		transactions, err := s.fetchChunk(ctx, chunk)
		if err != nil {
			return err
		}
		if s.cancelled.Load() {
			return nil
		}
		if s.opts.OnTransactions != nil {
			if err := s.opts.OnTransactions(ctx, transactions); err != nil {
				return err
			}
		}
	}
	return nil
}

// fetchChunk resolves a chunk's transaction bodies concurrently, preserving
// signature order.
func (s *Stream) fetchChunk(ctx context.Context, chunk []solana.SignatureInfo) ([]*solana.ParsedTransaction, error) {
	transactions := make([]*solana.ParsedTransaction, len(chunk))
	group := s.pool.NewGroupContext(ctx)
	for i, sig := range chunk {
		i, signature := i, sig.Signature
		group.Submit(func() {
			v, err := s.opts.Throttle.Do(ctx, "transaction:"+signature, func() (interface{}, error) {
				return s.rpc.GetParsedTransaction(ctx, signature)
			})
			if err != nil {
				s.logger.Warn("transaction fetch failed",
					zap.String("signature", signature),
					zap.Error(err))
				return
			}
			transactions[i] = v.(*solana.ParsedTransaction)
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("resolve transactions: %w", err)
	}
	return transactions, nil
}
