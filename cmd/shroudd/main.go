// main.go - The shroud client daemon.
//
// Wires the account store, ledger client, relay, proving key source and the
// local proving engine into the pool pipelines, then serves the HTTP surface
// for the UI layer.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"shroud/internal/ledger"
	"shroud/internal/pool"
	"shroud/internal/prover"
	"shroud/internal/wallet"
)

const version = "0.1.0"

// endpointProbe reports whether an HTTP endpoint is reachable. The response
// status does not matter; only a transport failure marks the component down.
func endpointProbe(client *http.Client, url string) func() error {
	return func() error {
		resp, err := client.Head(url)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}
}

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "shroudd",
		Short: "Shroud privacy pool client daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "shroudd.json", "path to the daemon config file")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	config, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}
	log := NewLogger(config.LogLevel)

	store, err := wallet.Open(config.WalletPath, config.PackageID, log)
	if err != nil {
		return err
	}
	defer store.Close()

	ledgerClient := ledger.NewClient(config.LedgerRPC, config.PackageID,
		ledger.WithLogger(log),
		ledger.WithConfirmationPolling(time.Duration(config.ConfirmPollMillis)*time.Millisecond, config.ConfirmPollAttempts),
	)
	relay := ledger.NewRelay(config.RelayEndpoint, log)
	keys := prover.NewHTTPKeySource(config.ProvingKeyURL)
	proverClient := prover.NewClient(prover.NewLocalEngine(log), log)
	defer proverClient.Close()

	p := pool.New(config.CoreID, store, ledgerClient, relay, keys, proverClient, log)

	health := NewHealthChecker(version)
	probeClient := &http.Client{Timeout: 5 * time.Second}
	health.RegisterComponent("wallet-store", func() error {
		_, err := store.Accounts()
		return err
	})
	health.RegisterComponent("ledger-rpc", endpointProbe(probeClient, config.LedgerRPC))
	health.RegisterComponent("relay", endpointProbe(probeClient, config.RelayEndpoint))
	health.RegisterComponent("proving-key", endpointProbe(probeClient, config.ProvingKeyURL))

	limiter := NewAccountRateLimiter(config.RateLimitBurst, 1, time.Duration(config.RateLimitRefillSecs)*time.Second)
	stats := NewStatsCollector()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := NewServer(p, health, limiter, stats, log)
	srv := &http.Server{
		Addr:    config.ListenAddr,
		Handler: server.Router(),
	}

	go func() {
		log.Info().Str("addr", config.ListenAddr).Msg("daemon listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	// tear down the prover first so a pending computation resolves with a
	// cancellation error instead of holding the shutdown open
	proverClient.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
