package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/axellelanca/locashare/cmd"
	"github.com/axellelanca/locashare/internal/services"
)

// SampleLocations are points of interest around Seoul used by seed.
var SampleLocations = []services.LocationInput{
	{Name: "Seoul Station Restaurant", Description: "Traditional Korean food", Latitude: 37.5535, Longitude: 126.9696,
		Category: "restaurant", Address: "Namdaemun-ro, Jung-gu, Seoul", Phone: "02-1234-5678", Rating: 4.3},
	{Name: "Gangnam Cafe Street", Description: "Cafes with a relaxed atmosphere", Latitude: 37.5172, Longitude: 127.0473,
		Category: "cafe", Address: "Gangnam-daero, Gangnam-gu, Seoul", Phone: "02-9876-5432", Rating: 4.1},
	{Name: "COEX Mall", Description: "Shopping and entertainment complex", Latitude: 37.5130, Longitude: 127.0584,
		Category: "shopping", Address: "Yeongdong-daero, Gangnam-gu, Seoul", Phone: "02-6002-5300", Rating: 4.5},
	{Name: "Bongeunsa Temple", Description: "Historic Buddhist temple", Latitude: 37.5140, Longitude: 127.0535,
		Category: "temple", Address: "Bongeunsa-ro, Gangnam-gu, Seoul", Phone: "02-511-6070", Rating: 4.7},
	{Name: "Suseo Station", Description: "SRT departure station", Latitude: 37.4919, Longitude: 127.1063,
		Category: "transportation", Address: "Heolleung-ro, Gangnam-gu, Seoul", Phone: "1544-7788", Rating: 4.0},
}

var seedForce bool

// SeedCmd loads the sample locations into an empty index.
var SeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load sample locations",
	Long:  `Inserts a handful of sample points of interest. Skipped when locations already exist unless --force is given.`,
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		stores, err := cmd.OpenStores(ctx, cmd.Cfg, cmd.Logger)
		if err != nil {
			return err
		}
		defer stores.Close()

		svc := cmd.NewLocationService(cmd.Cfg, stores, cmd.Logger)
		n, err := svc.Count(ctx)
		if err != nil {
			return err
		}
		if n > 0 && !seedForce {
			fmt.Printf("%d locations already stored, nothing to do (use --force to add samples anyway).\n", n)
			return nil
		}
		for _, in := range SampleLocations {
			if _, err := svc.CreateLocation(ctx, in); err != nil {
				return fmt.Errorf("seed %q: %w", in.Name, err)
			}
		}
		fmt.Printf("Seeded %d sample locations.\n", len(SampleLocations))
		return nil
	},
}

func init() {
	SeedCmd.Flags().BoolVar(&seedForce, "force", false, "Insert samples even when locations exist")
	cmd.RootCmd.AddCommand(SeedCmd)
}
