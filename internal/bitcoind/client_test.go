package bitcoind

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sigserver/internal/feerate"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/shopspring/decimal"
)

type fakeEstimator struct {
	result *btcjson.EstimateSmartFeeResult
	err    error
	block  chan struct{}

	target int64
	mode   btcjson.EstimateSmartFeeMode
}

func (f *fakeEstimator) EstimateSmartFee(confTarget int64, mode *btcjson.EstimateSmartFeeMode) (*btcjson.EstimateSmartFeeResult, error) {
	if f.block != nil {
		<-f.block
	}
	f.target = confTarget
	if mode != nil {
		f.mode = *mode
	}
	return f.result, f.err
}

func TestEstimateFeerate(t *testing.T) {
	rate := 0.00021
	estimator := &fakeEstimator{result: &btcjson.EstimateSmartFeeResult{FeeRate: &rate, Blocks: 2}}
	client := newClient(estimator)

	got, err := client.EstimateFeerate(context.Background(), 2, feerate.ModeConservative)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("0.00021")) {
		t.Fatalf("expected 0.00021, got %s", got)
	}
	if estimator.target != 2 || estimator.mode != btcjson.EstimateModeConservative {
		t.Fatalf("unexpected request target=%d mode=%s", estimator.target, estimator.mode)
	}
}

func TestEstimateFeerateMissingRate(t *testing.T) {
	estimator := &fakeEstimator{result: &btcjson.EstimateSmartFeeResult{Errors: []string{"Insufficient data or no feerate found"}}}
	client := newClient(estimator)

	_, err := client.EstimateFeerate(context.Background(), 3, feerate.ModeConservative)
	if !errors.Is(err, feerate.ErrNoEstimate) {
		t.Fatalf("expected ErrNoEstimate, got %v", err)
	}
}

func TestEstimateFeerateRPCError(t *testing.T) {
	client := newClient(&fakeEstimator{err: errors.New("401 unauthorized")})

	if _, err := client.EstimateFeerate(context.Background(), 3, feerate.ModeConservative); err == nil {
		t.Fatalf("expected rpc error")
	}
}

func TestEstimateFeerateContextCancelled(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	client := newClient(&fakeEstimator{block: block})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.EstimateFeerate(ctx, 2, feerate.ModeConservative); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

type slowEstimator struct {
	delay       time.Duration
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	calls       atomic.Int32
}

func (s *slowEstimator) EstimateSmartFee(confTarget int64, mode *btcjson.EstimateSmartFeeMode) (*btcjson.EstimateSmartFeeResult, error) {
	s.calls.Add(1)
	current := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		seen := s.maxInFlight.Load()
		if current <= seen || s.maxInFlight.CompareAndSwap(seen, current) {
			break
		}
	}
	time.Sleep(s.delay)
	rate := 0.0001
	return &btcjson.EstimateSmartFeeResult{FeeRate: &rate}, nil
}

func TestAbandonedCallStillBlocksNextCall(t *testing.T) {
	estimator := &slowEstimator{delay: 200 * time.Millisecond}
	cache := feerate.NewCache(feerate.CacheOptions{Oracle: newClient(estimator)})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := cache.Get(ctx, feerate.TxSpend, "first"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	if _, err := cache.Get(context.Background(), feerate.TxSpend, "second"); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if got := estimator.maxInFlight.Load(); got != 1 {
		t.Fatalf("expected at most one estimatesmartfee in flight, saw %d", got)
	}
	if got := estimator.calls.Load(); got != 2 {
		t.Fatalf("expected 2 rpc calls, got %d", got)
	}
}

func TestConcurrentCallsAreSerialized(t *testing.T) {
	estimator := &slowEstimator{delay: 10 * time.Millisecond}
	client := newClient(estimator)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.EstimateFeerate(context.Background(), 3, feerate.ModeConservative); err != nil {
				t.Errorf("estimate: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := estimator.maxInFlight.Load(); got != 1 {
		t.Fatalf("expected serialized calls, saw %d in flight", got)
	}
}

func TestCancelledCallerSkipsQueuedRPC(t *testing.T) {
	estimator := &slowEstimator{delay: 100 * time.Millisecond}
	client := newClient(estimator)

	go func() {
		_, _ = client.EstimateFeerate(context.Background(), 3, feerate.ModeConservative)
	}()
	deadline := time.Now().Add(time.Second)
	for estimator.inFlight.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("first call never started")
		}
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := client.EstimateFeerate(ctx, 3, feerate.ModeConservative); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	if got := estimator.calls.Load(); got != 1 {
		t.Fatalf("expected the cancelled call to skip the rpc, got %d calls", got)
	}
}
