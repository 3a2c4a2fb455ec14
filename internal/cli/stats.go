package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print aggregate item statistics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	snap, err := db.AggregateSnapshot()
	if err != nil {
		return fmt.Errorf("aggregate snapshot: %w", err)
	}

	fmt.Printf("items: %d (excluding purged)\n", snap.Total)
	fmt.Printf("  avg decay:      %.3f\n", snap.AvgDecay)
	fmt.Printf("  avg importance: %.3f\n", snap.AvgImportance)
	fmt.Printf("  avg stability:  %.3f\n", snap.AvgStability)
	if len(snap.StateCounts) > 0 {
		fmt.Println("by state:")
		for _, sc := range snap.StateCounts {
			fmt.Printf("  %-9s %-12s %d\n", sc.State, sc.Category, sc.Count)
		}
	}
	return nil
}
