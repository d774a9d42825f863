package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/api"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/chain"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/common"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/config"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/orchestrator"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/retry"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/settlement"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/ws"
)

func initServer(server *http.Server, done chan bool, logger zerolog.Logger) {
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Str("addr", server.Addr).Msg("server error")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Str("addr", server.Addr).Msg("server forced to shut down")
	}

	done <- true
}

func adapterFactory(chainID common.ChainID, entry config.ChainEntry, logger zerolog.Logger) chain.Factory {
	return func() (chain.Adapter, error) {
		var adapter chain.Adapter
		switch chainID {
		case common.Sui:
			adapter = chain.NewMoveAdapter(chainID, logger)
		case common.Tezos:
			adapter = chain.NewTezosAdapter(chainID, logger)
		default:
			adapter = chain.NewEVMAdapter(chainID, logger)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := adapter.Connect(ctx, entry.AdapterConfig()); err != nil {
			return nil, err
		}
		return adapter, nil
	}
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	chains := config.MustLoadChains(cfg.ChainsConfigPath)

	registry := chain.NewRegistry(logger)
	for chainID, entry := range chains.Chains {
		registry.RegisterAdapter(chainID, adapterFactory(chainID, entry, logger))
	}

	// connect eagerly so misconfigured chains surface at startup, not on the
	// first order that routes through them
	for _, chainID := range registry.SupportedChains() {
		if _, err := registry.CreateAdapter(chainID); err != nil {
			logger.Warn().Err(err).Str("chain", string(chainID)).Msg("chain unavailable, skipping")
		}
	}

	svc := settlement.NewClient(cfg.SettlementURL, cfg.SettlementAPIKey, logger)
	broadcaster := common.NewBroadcaster()

	o := orchestrator.New(registry, svc, broadcaster, orchestrator.Options{
		RetryPolicy: retry.Policy{
			MaxAttempts:  cfg.MaxRetries,
			InitialDelay: cfg.RetryInitialWait,
		},
		PollInterval: cfg.PollInterval,
	}, logger)

	apiServer := api.NewAPIServer(o, logger)
	wsServer := ws.NewWSServer(broadcaster, logger)

	apiDone := make(chan bool, 1)
	wsDone := make(chan bool, 1)

	go initServer(apiServer, apiDone, logger)
	go initServer(wsServer, wsDone, logger)

	logger.Info().
		Str("api", apiServer.Addr).
		Str("ws", wsServer.Addr).
		Msg("orchestrator up")

	<-apiDone
	<-wsDone

	o.Cleanup()
	broadcaster.Close()
	logger.Info().Msg("graceful shutdown complete")
}
