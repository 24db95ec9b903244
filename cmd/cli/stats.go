package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/axellelanca/locashare/cmd"
	customerrors "github.com/axellelanca/locashare/internal/errors"
)

// StatsCmd prints the statistics of a short link.
var StatsCmd = &cobra.Command{
	Use:   "stats [short-code]",
	Short: "Get statistics for a short URL",
	Long:  `Prints the target, click count, expiry and most recent clicks of a short code.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	cmd.RootCmd.AddCommand(StatsCmd)
}

func runStats(c *cobra.Command, args []string) error {
	shortCode := args[0]
	ctx := c.Context()

	stores, err := cmd.OpenStores(ctx, cmd.Cfg, cmd.Logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	stats, err := cmd.NewLinkService(cmd.Cfg, stores, nil, cmd.Logger).Stats(ctx, shortCode)
	if errors.Is(err, customerrors.ErrNotFound) {
		return fmt.Errorf("short code %q not found", shortCode)
	}
	if err != nil {
		return fmt.Errorf("retrieve statistics: %w", err)
	}

	status := "active"
	if !stats.Active {
		status = "expired"
	}
	fmt.Printf("Statistics for short code: %s\n", stats.Code)
	fmt.Printf("Original URL:  %s\n", stats.OriginalURL)
	fmt.Printf("Total clicks:  %d\n", stats.Clicks)
	fmt.Printf("Created:       %s\n", stats.CreatedAt.Format("2006-01-02 15:04:05"))
	if stats.ExpiresAt != nil {
		fmt.Printf("Expires:       %s (%s)\n", stats.ExpiresAt.Format("2006-01-02 15:04:05"), status)
	}
	for i, t := range stats.RecentClicks {
		if i == 10 {
			fmt.Printf("  ... %d more\n", len(stats.RecentClicks)-i)
			break
		}
		fmt.Printf("  click at %s\n", t.Format("2006-01-02 15:04:05"))
	}
	return nil
}
