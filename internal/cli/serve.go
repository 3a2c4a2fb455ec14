package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quietfold/retain/internal/classify"
	"github.com/quietfold/retain/internal/engine"
	"github.com/quietfold/retain/internal/metrics"
	"github.com/quietfold/retain/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server with periodic maintenance",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	m := metrics.New()

	// The classification gateway is optional: without an oracle endpoint,
	// new items get the configured default importance.
	var gw *classify.Gateway
	if cfg.Classify.OracleURL != "" {
		oracle := classify.NewHTTPOracle(cfg.Classify.OracleURL, cfg.Classify.Model)
		gw = classify.NewGateway(oracle, cfg.Classify, m)
		fmt.Fprintf(os.Stderr, "  oracle: %s (%s)\n", cfg.Classify.OracleURL, cfg.Classify.Model)
	} else {
		fmt.Fprintf(os.Stderr, "  oracle: none configured, using default importance\n")
	}

	eng := engine.New(db, gw, m, cfg)
	eng.StartMaintenanceTimer()
	defer eng.Stop()

	srv := server.New(db, eng, m, cfg, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "retain serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", db.Path)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
