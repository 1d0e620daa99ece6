package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dlmm-ledger/internal/solana"
	"dlmm-ledger/internal/throttle"
)

type fakeRPC struct {
	mu           sync.Mutex
	pages        map[string][]solana.SignatureInfo
	sigCalls     []string
	txCalls      []string
	transactions map[string]*solana.ParsedTransaction
	onSignatures func(before string)
}

func (f *fakeRPC) GetSignaturesForAddress(_ context.Context, _ string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	f.mu.Lock()
	before := ""
	if opts != nil {
		before = opts.Before
	}
	f.sigCalls = append(f.sigCalls, before)
	page := f.pages[before]
	cb := f.onSignatures
	f.mu.Unlock()
	if cb != nil {
		cb(before)
	}
	return page, nil
}

func (f *fakeRPC) GetParsedTransaction(_ context.Context, signature string) (*solana.ParsedTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCalls = append(f.txCalls, signature)
	if tx, ok := f.transactions[signature]; ok {
		return tx, nil
	}
	blockTime := int64(1700000000)
	return &solana.ParsedTransaction{BlockTime: &blockTime}, nil
}

func (f *fakeRPC) GetAccountInfo(context.Context, string) (*solana.AccountInfo, error) {
	return nil, nil
}

func sig(signature string, blockTime int64) solana.SignatureInfo {
	return solana.SignatureInfo{Signature: signature, BlockTime: &blockTime}
}

func errSig(signature string, blockTime int64) solana.SignatureInfo {
	return solana.SignatureInfo{
		Signature: signature,
		BlockTime: &blockTime,
		Err:       json.RawMessage(`{"InstructionError":[0,"Custom"]}`),
	}
}

func newTestStream(rpc solana.RPCClient, opts Options) *Stream {
	opts.Throttle = throttle.New(0, 0)
	// Single fetch worker keeps the recorded call order deterministic.
	opts.FetchWorkers = 1
	return New(rpc, "account", zap.NewNop(), opts)
}

func TestRun_WalksBackwardUntilEmptyPage(t *testing.T) {
	rpc := &fakeRPC{pages: map[string][]solana.SignatureInfo{
		"":   {sig("s1", 1730000300), sig("s2", 1730000200)},
		"s2": {sig("s3", 1730000100)},
		"s3": nil,
	}}

	var got []string
	var doneCount int
	s := newTestStream(rpc, Options{
		OnTransactions: func(_ context.Context, txs []*solana.ParsedTransaction) error {
			got = append(got, fmt.Sprint(len(txs)))
			return nil
		},
		OnDone: func() { doneCount++ },
	})

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"", "s2", "s3"}, rpc.sigCalls)
	assert.Equal(t, []string{"s1", "s2", "s3"}, rpc.txCalls)
	assert.Equal(t, 1, doneCount)
}

func TestRun_FiltersErroredSignatures(t *testing.T) {
	rpc := &fakeRPC{pages: map[string][]solana.SignatureInfo{
		"":   {sig("s1", 1730000300), errSig("s2", 1730000200), sig("s3", 1730000100)},
		"s3": nil,
	}}

	s := newTestStream(rpc, Options{})
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"s1", "s3"}, rpc.txCalls)
}

func TestRun_StopsAtMostRecentSignature(t *testing.T) {
	rpc := &fakeRPC{pages: map[string][]solana.SignatureInfo{
		"": {sig("s1", 1730000300), sig("s2", 1730000200), sig("s3", 1730000100)},
	}}

	var done bool
	s := newTestStream(rpc, Options{
		MostRecentSignature: "s2",
		OnDone:              func() { done = true },
	})

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{""}, rpc.sigCalls)
	assert.Equal(t, []string{"s1"}, rpc.txCalls)
	assert.True(t, done)
}

func TestRun_ResumesPastMostRecentSignature(t *testing.T) {
	// Interrupted walk: s2 is the newest stored signature, s9 the oldest.
	// New signatures above s2 are collected first, then the walk jumps back
	// to the s9 cursor to finish the older gap.
	rpc := &fakeRPC{pages: map[string][]solana.SignatureInfo{
		"":    {sig("s1", 1730000500), sig("s2", 1730000400), sig("s3", 1730000300)},
		"s9":  {sig("s10", 1730000100)},
		"s10": nil,
	}}

	s := newTestStream(rpc, Options{
		MostRecentSignature: "s2",
		OldestSignature:     "s9",
	})

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"", "s9", "s10"}, rpc.sigCalls)
	assert.Equal(t, []string{"s1", "s10"}, rpc.txCalls)
}

func TestRun_ResumesFromOldestSignatureWithoutMostRecent(t *testing.T) {
	rpc := &fakeRPC{pages: map[string][]solana.SignatureInfo{
		"s9":  {sig("s10", 1730000100)},
		"s10": nil,
	}}

	s := newTestStream(rpc, Options{OldestSignature: "s9"})
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"s9", "s10"}, rpc.sigCalls)
}

func TestRun_StopsAtOldestDate(t *testing.T) {
	floor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	after := floor.Add(time.Hour).Unix()
	beforeFloor := floor.Add(-time.Hour).Unix()

	rpc := &fakeRPC{pages: map[string][]solana.SignatureInfo{
		"": {sig("s1", after), sig("s2", beforeFloor), sig("s3", beforeFloor)},
	}}

	s := newTestStream(rpc, Options{OldestDate: floor})
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{""}, rpc.sigCalls)
	assert.Equal(t, []string{"s1"}, rpc.txCalls)
}

func TestRun_ChunksTransactionFetches(t *testing.T) {
	page := make([]solana.SignatureInfo, 5)
	for i := range page {
		page[i] = sig(fmt.Sprintf("s%d", i+1), 1730000500-int64(i))
	}
	rpc := &fakeRPC{pages: map[string][]solana.SignatureInfo{
		"":   page,
		"s5": nil,
	}}

	var chunkSizes []int
	s := newTestStream(rpc, Options{
		ChunkSize: 2,
		OnTransactions: func(_ context.Context, txs []*solana.ParsedTransaction) error {
			chunkSizes = append(chunkSizes, len(txs))
			return nil
		},
	})

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []int{2, 2, 1}, chunkSizes)
}

func TestRun_CancelSuppressesDoneAndBodies(t *testing.T) {
	rpc := &fakeRPC{pages: map[string][]solana.SignatureInfo{
		"":   {sig("s1", 1730000300)},
		"s1": {sig("s2", 1730000200)},
	}}

	var done bool
	var s *Stream
	s = newTestStream(rpc, Options{OnDone: func() { done = true }})
	rpc.onSignatures = func(string) { s.Cancel() }

	require.NoError(t, s.Run(context.Background()))
	assert.True(t, s.Cancelled())
	assert.False(t, done)
	assert.Empty(t, rpc.txCalls)
	assert.Equal(t, []string{""}, rpc.sigCalls)
}

func TestRun_SignatureCallbackSeesRawPage(t *testing.T) {
	rpc := &fakeRPC{pages: map[string][]solana.SignatureInfo{
		"":   {sig("s1", 1730000300), errSig("s2", 1730000200)},
		"s2": nil,
	}}

	var seen []string
	s := newTestStream(rpc, Options{
		OnSignatures: func(_ context.Context, sigs []solana.SignatureInfo) error {
			for _, s := range sigs {
				seen = append(seen, s.Signature)
			}
			return nil
		},
	})

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"s1", "s2"}, seen)
}
