package bitcoind

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"sigserver/internal/feerate"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/shopspring/decimal"
)

// smartFeeEstimator is the part of *rpcclient.Client the oracle uses.
type smartFeeEstimator interface {
	EstimateSmartFee(confTarget int64, mode *btcjson.EstimateSmartFeeMode) (*btcjson.EstimateSmartFeeResult, error)
}

// Client answers fee estimates through bitcoind's estimatesmartfee.
type Client struct {
	// callMu keeps one estimatesmartfee in flight on the connection, including
	// calls whose caller stopped waiting.
	callMu   sync.Mutex
	rpc      smartFeeEstimator
	shutdown func()
}

var _ feerate.Oracle = (*Client)(nil)

// Dial opens an HTTP POST mode JSON-RPC connection to bitcoind.
func Dial(info ConnInfo) (*Client, error) {
	rpc, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         info.Host,
		User:         info.User,
		Pass:         info.Pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("bitcoind rpc client: %w", err)
	}
	return &Client{rpc: rpc, shutdown: rpc.Shutdown}, nil
}

func newClient(rpc smartFeeEstimator) *Client {
	return &Client{rpc: rpc}
}

// EstimateFeerate returns the estimated rate in BTC/kvB. The RPC call is not
// cancellable; a cancelled ctx only stops the wait for its result, and the
// next call waits until the abandoned one has finished.
func (c *Client) EstimateFeerate(ctx context.Context, target int, mode feerate.EstimateMode) (decimal.Decimal, error) {
	type result struct {
		estimate *btcjson.EstimateSmartFeeResult
		err      error
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rpcMode := btcjson.EstimateSmartFeeMode(mode)
	done := make(chan result, 1)
	go func() {
		c.callMu.Lock()
		defer c.callMu.Unlock()
		if ctx.Err() != nil {
			done <- result{err: ctx.Err()}
			return
		}
		estimate, err := c.rpc.EstimateSmartFee(int64(target), &rpcMode)
		done <- result{estimate: estimate, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	}
	if res.err != nil {
		return decimal.Zero, fmt.Errorf("estimatesmartfee: %w", res.err)
	}
	if res.estimate == nil || res.estimate.FeeRate == nil {
		reason := ""
		if res.estimate != nil && len(res.estimate.Errors) > 0 {
			reason = ": " + strings.Join(res.estimate.Errors, "; ")
		}
		return decimal.Zero, fmt.Errorf("%w%s", feerate.ErrNoEstimate, reason)
	}
	return decimal.NewFromFloat(*res.estimate.FeeRate), nil
}

func (c *Client) Close() {
	if c == nil || c.shutdown == nil {
		return
	}
	c.shutdown()
}
