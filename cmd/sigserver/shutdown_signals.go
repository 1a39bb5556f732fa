package main

import (
	"context"
	"os"
	"sync/atomic"

	"sigserver/internal/logging"
)

// watchShutdownSignals cancels shutdown on the first signal and logs later
// ones once. The returned func stops the watcher.
func watchShutdownSignals(logger *logging.Logger, shutdown context.CancelFunc, signalCh <-chan os.Signal) func() {
	if signalCh == nil {
		return func() {}
	}

	done := make(chan struct{})
	var started atomic.Bool
	var repeated atomic.Bool

	go func() {
		for {
			select {
			case <-done:
				return
			case sig, ok := <-signalCh:
				if !ok {
					return
				}
				fields := map[string]string{}
				if sig != nil {
					fields["signal"] = sig.String()
				}
				if started.CompareAndSwap(false, true) {
					logger.Info("shutdown signal received", fields)
					if shutdown != nil {
						shutdown()
					}
					continue
				}
				if repeated.CompareAndSwap(false, true) {
					logger.Info("shutdown already in progress; ignoring signal", fields)
				}
			}
		}
	}()

	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			close(done)
		}
	}
}
