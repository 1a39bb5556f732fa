package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"sigserver/internal/logging"
	"sigserver/internal/metrics"
	"sigserver/internal/otel"
	"sigserver/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(args, os.Getenv)
	if err != nil {
		fmt.Fprintf(stderr, "sigserver: %v\n", err)
		return 2
	}
	if cfg.ShowHelp {
		printHelp(stdout)
		return 0
	}
	if cfg.ShowVersion {
		fmt.Fprintln(stdout, version.GetVersionInfo().String())
		return 0
	}

	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(logging.DefaultBufferSize), cfg.Settings.Level(), stderr)
	logStartupConfig(logger, cfg)

	stopCtx, stopCancel := context.WithCancel(context.Background())
	defer stopCancel()

	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)
	stopWatching := watchShutdownSignals(logger, stopCancel, signalCh)
	defer stopWatching()

	shutdownTracing, err := otel.SetupTracing(stopCtx, otel.TracingOptions{
		Endpoint:           cfg.Settings.Tracing.OTLPEndpoint,
		ServiceName:        cfg.Settings.Tracing.ServiceName,
		ServiceVersion:     version.Version,
		ResourceAttributes: otel.ParseResourceAttributes(cfg.Settings.Tracing.ResourceAttributes),
	})
	if err != nil {
		logger.Warn("trace export unavailable", map[string]string{
			"error": err.Error(),
		})
	} else {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), httpServerShutdownTimeout)
			defer cancel()
			_ = shutdownTracing(flushCtx)
		}()
	}

	if err := runServer(stopCtx, cfg, logger, metrics.Default); err != nil {
		logger.Error("sigserver stopped", map[string]string{
			"error": err.Error(),
		})
		return 1
	}
	return 0
}

func logStartupConfig(logger *logging.Logger, cfg Config) {
	fields := map[string]string{
		"version": version.GetVersionInfo().String(),
	}
	if cfg.ConfigPath != "" {
		fields["config"] = cfg.ConfigPath
	}
	for key, source := range cfg.Sources {
		if source != sourceDefault {
			fields["source."+key] = string(source)
		}
	}
	logger.Info("sigserver starting", fields)
}
