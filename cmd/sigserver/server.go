package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"sigserver/internal/api"
	"sigserver/internal/bitcoind"
	"sigserver/internal/config"
	"sigserver/internal/event"
	"sigserver/internal/feerate"
	"sigserver/internal/logging"
	"sigserver/internal/metrics"
	"sigserver/internal/signature"
	"sigserver/internal/spend"
)

const (
	httpServerShutdownTimeout = 5 * time.Second
	spendEventHistory         = 256
)

type app struct {
	handler http.Handler
	feerate *feerate.Cache
	close   func()
}

func buildApp(ctx context.Context, settings config.Settings, logger *logging.Logger, registry *metrics.Registry) (*app, error) {
	network, err := bitcoind.ParseNetwork(settings.Bitcoind.Network)
	if err != nil {
		return nil, err
	}

	info, err := resolveConnInfo(settings.Bitcoind, network)
	if err != nil {
		return nil, err
	}
	var oracle feerate.Oracle = feerate.UnavailableOracle{}
	closeOracle := func() {}
	if settings.Bitcoind.Disabled {
		logger.Warn("bitcoind disabled; feerates are served from the mock only", nil)
	} else if oracle, closeOracle, err = newOracle(info, logger); err != nil {
		return nil, err
	}

	cache := feerate.NewCache(feerate.CacheOptions{
		Oracle:   oracle,
		Logger:   logger.With(map[string]string{"sigserver.category": "feerate"}),
		Registry: registry,
	})
	mock, err := settings.MockFeerate()
	if err != nil {
		closeOracle()
		return nil, err
	}
	cache.SetMock(mock)

	spendEvents := event.NewBus[spend.Event](ctx, event.BusOptions{
		Name:        "spends",
		HistorySize: spendEventHistory,
		Registry:    registry,
		Logger:      logger,
	})
	spends := spend.NewCoordinator(spend.CoordinatorOptions{
		Logger:    logger,
		Registry:  registry,
		Publisher: spendEvents,
	})

	options := api.Options{
		Signatures:     signature.NewStore(),
		Feerates:       cache,
		Spends:         spends,
		SpendEvents:    spendEvents,
		Logger:         logger,
		Registry:       registry,
		AuthToken:      settings.Token,
		AllowedOrigins: settings.AllowedOrigins,
	}
	if settings.Spend.ValidateAddresses {
		options.AddressParams = info.Network.Params()
	}
	mux := http.NewServeMux()
	api.RegisterRoutes(mux, options)

	return &app{
		handler: mux,
		feerate: cache,
		close: func() {
			spendEvents.Close()
			closeOracle()
		},
	}, nil
}

// resolveConnInfo merges bitcoin.conf with the explicit settings. A conf file
// decides the chain, since it describes the node; otherwise network is used.
// The result's Network is the one every component runs against.
func resolveConnInfo(settings config.BitcoindSettings, network bitcoind.Network) (bitcoind.ConnInfo, error) {
	info := bitcoind.ConnInfo{Network: network}
	if settings.Disabled {
		return info, nil
	}
	if path := strings.TrimSpace(settings.ConfPath); path != "" {
		parsed, err := bitcoind.ReadConf(path)
		if err != nil {
			return bitcoind.ConnInfo{}, err
		}
		info = parsed
	}
	if settings.Host != "" {
		info.Host = settings.Host
	}
	if settings.User != "" {
		info.User = settings.User
	}
	if settings.Pass != "" {
		info.Pass = settings.Pass
	}
	if info.Network == "" {
		info.Network = network
	}
	if info.Host == "" {
		info.Host = "127.0.0.1"
	}
	if _, _, err := net.SplitHostPort(info.Host); err != nil {
		info.Host = net.JoinHostPort(info.Host, info.Network.DefaultRPCPort())
	}
	return info, nil
}

// newOracle connects the fee oracle to bitcoind. Without credentials every
// uncached, non-mock feerate query fails.
func newOracle(info bitcoind.ConnInfo, logger *logging.Logger) (feerate.Oracle, func(), error) {
	if info.User == "" || info.Pass == "" {
		logger.Warn("bitcoind credentials not configured; feerates are served from the mock only", map[string]string{
			"host": info.Host,
		})
		return feerate.UnavailableOracle{}, func() {}, nil
	}

	client, err := bitcoind.Dial(info)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("bitcoind fee oracle configured", map[string]string{
		"host":    info.Host,
		"network": string(info.Network),
	})
	return client, client.Close, nil
}

// applyReload hot-swaps the settings that can change without a restart.
func applyReload(settings config.Settings, cache *feerate.Cache, logger *logging.Logger) {
	mock, err := settings.MockFeerate()
	if err != nil {
		logger.Warn("ignoring reloaded feerate mock", map[string]string{
			"error": err.Error(),
		})
	} else {
		cache.SetMock(mock)
	}
	if level := settings.Level(); level != logger.Level() {
		logger.SetLevel(level)
		logger.Info("log level changed", map[string]string{
			"level": string(level),
		})
	}
}

func runServer(stop context.Context, cfg Config, logger *logging.Logger, registry *metrics.Registry) error {
	ctx, cancel := context.WithCancel(stop)
	defer cancel()

	application, err := buildApp(ctx, cfg.Settings, logger, registry)
	if err != nil {
		return err
	}
	defer application.close()

	if cfg.ConfigPath != "" {
		err := config.Watch(ctx, config.WatchOptions{
			Path:   cfg.ConfigPath,
			Logger: logger,
			OnChange: func(settings config.Settings) {
				applyReload(settings, application.feerate, logger)
			},
		})
		if err != nil {
			logger.Warn("config watch unavailable", map[string]string{
				"path":  cfg.ConfigPath,
				"error": err.Error(),
			})
		}
	}

	listener, err := net.Listen("tcp", cfg.Settings.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Settings.Listen, err)
	}
	server := &http.Server{
		Handler:           application.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("sigserver listening", map[string]string{
		"addr": listener.Addr().String(),
	})

	runner := &ServerRunner{
		Logger:          logger,
		ShutdownTimeout: httpServerShutdownTimeout,
	}
	if serverErr := runner.Run(stop, ManagedServer{
		Name: "api",
		Serve: func() error {
			return server.Serve(listener)
		},
		Shutdown: server.Shutdown,
	}); serverErr != nil && serverErr.err != nil && !errors.Is(serverErr.err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", serverErr.name, serverErr.err)
	}
	return nil
}
