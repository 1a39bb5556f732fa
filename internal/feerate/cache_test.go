package feerate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"sigserver/internal/metrics"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) EstimateFeerate(ctx context.Context, target int, mode EstimateMode) (decimal.Decimal, error) {
	args := m.Called(target, mode)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func newTestCache(oracle Oracle) *Cache {
	return NewCache(CacheOptions{Oracle: oracle, Registry: &metrics.Registry{}})
}

func TestGetMemoizesPerTxid(t *testing.T) {
	oracle := &mockOracle{}
	oracle.On("EstimateFeerate", 3, ModeConservative).Return(decimal.RequireFromString("0.0001"), nil).Once()
	cache := newTestCache(oracle)

	first, err := cache.Get(context.Background(), TxSpend, "txid")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	second, err := cache.Get(context.Background(), TxSpend, "txid")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if !first.Equal(second) {
		t.Fatalf("expected identical rates, got %s and %s", first, second)
	}
	oracle.AssertNumberOfCalls(t, "EstimateFeerate", 1)
}

func TestGetIgnoresTxTypeOnceCached(t *testing.T) {
	oracle := &mockOracle{}
	oracle.On("EstimateFeerate", 3, ModeConservative).Return(decimal.RequireFromString("0.0002"), nil).Once()
	cache := newTestCache(oracle)

	spend, err := cache.Get(context.Background(), TxSpend, "txid")
	if err != nil {
		t.Fatalf("get spend: %v", err)
	}
	emergency, err := cache.Get(context.Background(), TxEmergency, "txid")
	if err != nil {
		t.Fatalf("get emergency: %v", err)
	}
	if !spend.Equal(emergency) {
		t.Fatalf("expected cached rate %s, got %s", spend, emergency)
	}
	oracle.AssertExpectations(t)
}

func TestGetPolicyByTxType(t *testing.T) {
	base := decimal.RequireFromString("0.00012")
	slow := decimal.RequireFromString("0.00007")

	tests := []struct {
		name   string
		txType TxType
		want   decimal.Decimal
	}{
		{name: "emergency", txType: TxEmergency, want: base.Mul(decimal.NewFromInt(10))},
		{name: "cancel", txType: TxCancel, want: base.Mul(decimal.NewFromInt(5))},
		{name: "spend", txType: TxSpend, want: slow},
		{name: "unvault", txType: TxUnvault, want: slow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := &mockOracle{}
			oracle.On("EstimateFeerate", 2, ModeConservative).Return(base, nil).Maybe()
			oracle.On("EstimateFeerate", 3, ModeConservative).Return(slow, nil).Maybe()
			cache := newTestCache(oracle)

			got, err := cache.Get(context.Background(), tt.txType, "txid-"+tt.name)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
			oracle.AssertNumberOfCalls(t, "EstimateFeerate", 1)
		})
	}
}

func TestGetRejectsUnknownTxType(t *testing.T) {
	oracle := &mockOracle{}
	cache := newTestCache(oracle)

	for _, value := range []TxType{"", "funding", "SPEND "} {
		if _, err := cache.Get(context.Background(), value, "txid"); !errors.Is(err, ErrInvalidTxType) {
			t.Fatalf("tx type %q: expected ErrInvalidTxType, got %v", value, err)
		}
	}
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache, got %d entries", cache.Len())
	}
	oracle.AssertNotCalled(t, "EstimateFeerate", mock.Anything, mock.Anything)
}

func TestGetOracleFailureIsNotCached(t *testing.T) {
	oracle := &mockOracle{}
	oracle.On("EstimateFeerate", 2, ModeConservative).Return(decimal.Zero, errors.New("connection refused")).Once()
	oracle.On("EstimateFeerate", 2, ModeConservative).Return(decimal.RequireFromString("0.0003"), nil).Once()
	cache := newTestCache(oracle)

	if _, err := cache.Get(context.Background(), TxCancel, "txid"); !errors.Is(err, ErrOracle) {
		t.Fatalf("expected ErrOracle, got %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("expected failed estimate to leave no entry")
	}

	rate, err := cache.Get(context.Background(), TxCancel, "txid")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if want := decimal.RequireFromString("0.0015"); !rate.Equal(want) {
		t.Fatalf("expected %s, got %s", want, rate)
	}
	oracle.AssertExpectations(t)
}

func TestGetMalformedEstimate(t *testing.T) {
	oracle := &mockOracle{}
	oracle.On("EstimateFeerate", 3, ModeConservative).Return(decimal.Zero, nil).Once()
	cache := newTestCache(oracle)

	_, err := cache.Get(context.Background(), TxUnvault, "txid")
	if !errors.Is(err, ErrOracle) || !errors.Is(err, ErrNoEstimate) {
		t.Fatalf("expected ErrOracle wrapping ErrNoEstimate, got %v", err)
	}
}

func TestMockBypassesOracle(t *testing.T) {
	oracle := &mockOracle{}
	cache := newTestCache(oracle)
	rate := decimal.RequireFromString("0.005")
	cache.SetMock(&rate)

	for _, txType := range []TxType{TxEmergency, TxCancel, TxSpend, TxUnvault} {
		got, err := cache.Get(context.Background(), txType, "txid-"+string(txType))
		if err != nil {
			t.Fatalf("get %s: %v", txType, err)
		}
		if !got.Equal(rate) {
			t.Fatalf("%s: expected mock rate %s verbatim, got %s", txType, rate, got)
		}
	}
	oracle.AssertNotCalled(t, "EstimateFeerate", mock.Anything, mock.Anything)

	cache.SetMock(nil)
	if _, ok := cache.Mock(); ok {
		t.Fatalf("expected mock cleared")
	}
	oracle.On("EstimateFeerate", 3, ModeConservative).Return(decimal.RequireFromString("0.0001"), nil).Once()
	cached, err := cache.Get(context.Background(), TxSpend, "txid-spend")
	if err != nil {
		t.Fatalf("get after clear: %v", err)
	}
	if !cached.Equal(rate) {
		t.Fatalf("expected entry computed under mock to stay cached, got %s", cached)
	}
	if _, err := cache.Get(context.Background(), TxSpend, "fresh"); err != nil {
		t.Fatalf("get fresh: %v", err)
	}
	oracle.AssertExpectations(t)
}

func TestNilOracleOnlyServesMock(t *testing.T) {
	cache := NewCache(CacheOptions{Registry: &metrics.Registry{}})

	if _, err := cache.Get(context.Background(), TxSpend, "txid"); !errors.Is(err, ErrOracle) {
		t.Fatalf("expected ErrOracle without backend, got %v", err)
	}
	rate := decimal.NewFromInt(1)
	cache.SetMock(&rate)
	if _, err := cache.Get(context.Background(), TxSpend, "txid"); err != nil {
		t.Fatalf("expected mock to be served, got %v", err)
	}
}

// blockingOracle sleeps inside every estimate and records the peak number of
// concurrent calls.
type blockingOracle struct {
	delay time.Duration

	mu          sync.Mutex
	calls       int
	inFlight    int
	maxInFlight int
}

func (o *blockingOracle) EstimateFeerate(ctx context.Context, target int, mode EstimateMode) (decimal.Decimal, error) {
	o.mu.Lock()
	o.calls++
	o.inFlight++
	if o.inFlight > o.maxInFlight {
		o.maxInFlight = o.inFlight
	}
	o.mu.Unlock()

	time.Sleep(o.delay)

	o.mu.Lock()
	o.inFlight--
	o.mu.Unlock()
	return decimal.NewFromInt(int64(target)), nil
}

func TestConcurrentMissesSameTxidCallOracleOnce(t *testing.T) {
	oracle := &blockingOracle{delay: 20 * time.Millisecond}
	cache := newTestCache(oracle)

	var wg sync.WaitGroup
	results := make([]decimal.Decimal, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rate, err := cache.Get(context.Background(), TxSpend, "shared")
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}
			results[i] = rate
		}(i)
	}
	wg.Wait()

	for _, rate := range results {
		if !rate.Equal(results[0]) {
			t.Fatalf("expected every caller to see %s, got %s", results[0], rate)
		}
	}
	if oracle.calls != 1 {
		t.Fatalf("expected a single oracle call, got %d", oracle.calls)
	}
}

func TestOracleCallsSerializedAcrossTxids(t *testing.T) {
	oracle := &blockingOracle{delay: 5 * time.Millisecond}
	cache := newTestCache(oracle)

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := cache.Get(context.Background(), TxCancel, fmt.Sprintf("tx-%d", i)); err != nil {
				t.Errorf("get tx-%d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if oracle.calls != workers {
		t.Fatalf("expected %d oracle calls, got %d", workers, oracle.calls)
	}
	if oracle.maxInFlight != 1 {
		t.Fatalf("expected one oracle call in flight at a time, saw %d", oracle.maxInFlight)
	}
	if cache.Len() != workers {
		t.Fatalf("expected %d cached rates, got %d", workers, cache.Len())
	}
}

func TestParseTxType(t *testing.T) {
	for _, value := range []string{"unvault", "cancel", "spend", "emergency"} {
		got, err := ParseTxType(value)
		if err != nil {
			t.Fatalf("parse %q: %v", value, err)
		}
		if string(got) != value {
			t.Fatalf("parse %q returned %q", value, got)
		}
	}
	for _, value := range []string{"deposit", "", "SPEND", "Emergency", " spend ", "spend\n"} {
		if _, err := ParseTxType(value); !errors.Is(err, ErrInvalidTxType) {
			t.Fatalf("parse %q: expected ErrInvalidTxType, got %v", value, err)
		}
	}
}
