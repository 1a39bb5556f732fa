package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"sigserver/internal/logging"
)

// ManagedServer is a blocking Serve paired with the Shutdown that ends it.
type ManagedServer struct {
	Name     string
	Serve    func() error
	Shutdown func(context.Context) error
}

type ServerRunner struct {
	Logger          *logging.Logger
	ShutdownTimeout time.Duration
}

type serverError struct {
	name string
	err  error
}

// Run serves until stop is done or any server returns, then shuts every
// server down. It returns the first server error, if any.
func (runner *ServerRunner) Run(stop context.Context, servers ...ManagedServer) *serverError {
	results := make(chan serverError, len(servers))
	running := 0
	for _, server := range servers {
		if server.Serve == nil {
			continue
		}
		running++
		go func(server ManagedServer) {
			results <- serverError{name: server.Name, err: server.Serve()}
		}(server)
	}
	if running == 0 {
		return nil
	}

	var first *serverError
	select {
	case result := <-results:
		first = &result
		running--
		runner.logServerError(first)
	case <-stop.Done():
	}

	timeout := runner.ShutdownTimeout
	if timeout <= 0 {
		timeout = httpServerShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, server := range servers {
		if server.Shutdown == nil {
			continue
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			runner.Logger.Warn("server shutdown failed", map[string]string{
				"server": server.Name,
				"error":  err.Error(),
			})
		}
	}

	for ; running > 0; running-- {
		select {
		case result := <-results:
			runner.logServerError(&result)
		case <-shutdownCtx.Done():
			return first
		}
	}
	return first
}

func (runner *ServerRunner) logServerError(serverErr *serverError) {
	if serverErr == nil || serverErr.err == nil || errors.Is(serverErr.err, http.ErrServerClosed) {
		return
	}
	runner.Logger.Error("http server stopped", map[string]string{
		"server": serverErr.name,
		"error":  serverErr.err.Error(),
	})
}
