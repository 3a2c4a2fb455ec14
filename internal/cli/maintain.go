package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quietfold/retain/internal/engine"
	"github.com/quietfold/retain/internal/metrics"
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run one maintenance pass and print the summary",
	RunE:  runMaintain,
}

func runMaintain(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	eng := engine.New(db, nil, metrics.New(), cfg)
	run, err := eng.RunMaintenance(context.Background())
	if err != nil {
		if run != nil {
			fmt.Printf("run %s: %s\n", run.ID, run.Status)
		}
		return err
	}

	fmt.Printf("run %s: %s\n", run.ID, run.Status)
	fmt.Printf("  processed: %d\n", run.ItemsProcessed)
	fmt.Printf("  failed:    %d\n", run.ItemsFailed)
	if run.ItemsDeferred > 0 {
		fmt.Printf("  deferred:  %d\n", run.ItemsDeferred)
	}
	fmt.Printf("  duration:  %s\n", run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond))
	return nil
}
