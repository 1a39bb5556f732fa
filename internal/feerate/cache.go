package feerate

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"sigserver/internal/logging"
	"sigserver/internal/metrics"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type CacheOptions struct {
	Oracle   Oracle
	Logger   *logging.Logger
	Registry *metrics.Registry
}

// Cache memoizes one fee rate per txid so every stakeholder is handed the
// same value. Entries are never replaced once stored.
type Cache struct {
	mu    sync.RWMutex
	rates map[string]decimal.Decimal
	mock  *decimal.Decimal

	// fetchMu serializes oracle calls across the whole cache; the backend is a
	// single connection that cannot serve concurrent requests.
	fetchMu sync.Mutex

	oracle   Oracle
	logger   *logging.Logger
	registry *metrics.Registry
	tracer   trace.Tracer
}

func NewCache(opts CacheOptions) *Cache {
	oracle := opts.Oracle
	if oracle == nil {
		oracle = UnavailableOracle{}
	}
	registry := opts.Registry
	if registry == nil {
		registry = metrics.Default
	}
	return &Cache{
		rates:    make(map[string]decimal.Decimal),
		oracle:   oracle,
		logger:   opts.Logger,
		registry: registry,
		tracer:   otel.Tracer("sigserver/feerate"),
	}
}

// Get returns the fee rate for txid, computing and storing it on first use.
func (c *Cache) Get(ctx context.Context, txType TxType, txid string) (decimal.Decimal, error) {
	if !txType.Valid() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidTxType, string(txType))
	}

	c.mu.RLock()
	rate, ok := c.rates[txid]
	mock := c.mock
	c.mu.RUnlock()
	if ok {
		c.registry.IncFeerateHit()
		return rate, nil
	}
	c.registry.IncFeerateMiss()

	if mock != nil {
		return c.store(txid, *mock), nil
	}

	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	// Another caller may have filled the entry while we waited.
	if rate, ok := c.lookup(txid); ok {
		return rate, nil
	}

	rate, err := c.estimate(ctx, txType, txid)
	if err != nil {
		return decimal.Zero, err
	}
	return c.store(txid, rate), nil
}

// SetMock installs a fixed rate used instead of the oracle. A nil rate
// restores oracle estimation. Already cached entries are kept.
func (c *Cache) SetMock(rate *decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rate == nil {
		c.mock = nil
		return
	}
	value := *rate
	c.mock = &value
}

func (c *Cache) Mock() (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.mock == nil {
		return decimal.Zero, false
	}
	return *c.mock, true
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rates)
}

func (c *Cache) lookup(txid string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rate, ok := c.rates[txid]
	return rate, ok
}

// store keeps the first rate recorded for txid and returns the stored value.
func (c *Cache) store(txid string, rate decimal.Decimal) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.rates[txid]; ok {
		return existing
	}
	c.rates[txid] = rate
	return rate
}

func (c *Cache) estimate(ctx context.Context, txType TxType, txid string) (decimal.Decimal, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	policy := PolicyFor(txType)

	ctx, span := c.tracer.Start(ctx, "feerate.estimate", trace.WithAttributes(
		attribute.String("feerate.tx_type", string(txType)),
		attribute.Int("feerate.target", policy.Target),
		attribute.String("feerate.mode", string(policy.Mode)),
	))
	defer span.End()

	start := time.Now()
	raw, err := c.oracle.EstimateFeerate(ctx, policy.Target, policy.Mode)
	if err == nil && !raw.IsPositive() {
		err = fmt.Errorf("%w: non-positive rate %s", ErrNoEstimate, raw.String())
	}
	c.registry.RecordOracleCall(time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "estimate failed")
		c.logger.Warn("feerate oracle failed", map[string]string{
			"sigserver.category": "feerate",
			"txid":               txid,
			"tx_type":            string(txType),
			"target":             strconv.Itoa(policy.Target),
			"error":              err.Error(),
		})
		return decimal.Zero, fmt.Errorf("%w: %w", ErrOracle, err)
	}

	rate := raw.Mul(policy.Multiplier)
	c.logger.Debug("feerate estimated", map[string]string{
		"sigserver.category": "feerate",
		"txid":               txid,
		"tx_type":            string(txType),
		"estimate":           raw.String(),
		"feerate":            rate.String(),
	})
	return rate, nil
}
