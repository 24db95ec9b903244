package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/axellelanca/locashare/cmd"
	"github.com/axellelanca/locashare/internal/services"
)

var (
	longURLFlag    string
	customCodeFlag string
	ttlDaysFlag    int
)

// CreateCmd shortens a URL from the command line.
var CreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a short URL from a long URL",
	Long: `Shortens the given URL and prints the short code and full short URL.

Example:
  locashare create --url="https://www.google.com/search?q=go+lang" --ttl-days=30`,
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		stores, err := cmd.OpenStores(ctx, cmd.Cfg, cmd.Logger)
		if err != nil {
			return err
		}
		defer stores.Close()

		in := services.CreateLinkInput{URL: longURLFlag, CustomCode: customCodeFlag}
		if c.Flags().Changed("ttl-days") {
			in.TTLDays = &ttlDaysFlag
		}
		link, err := cmd.NewLinkService(cmd.Cfg, stores, nil, cmd.Logger).CreateLink(ctx, in)
		if err != nil {
			return fmt.Errorf("create short link: %w", err)
		}

		fmt.Println("Short URL created:")
		fmt.Printf("Code:      %s\n", link.ShortCode)
		fmt.Printf("Short URL: %s/s/%s\n", cmd.Cfg.Server.BaseURL, link.ShortCode)
		if link.ExpiresAt != nil {
			fmt.Printf("Expires:   %s\n", link.ExpiresAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	CreateCmd.Flags().StringVar(&longURLFlag, "url", "", "The long URL to shorten")
	CreateCmd.Flags().StringVar(&customCodeFlag, "code", "", "Custom short code (3 to 32 letters or digits)")
	CreateCmd.Flags().IntVar(&ttlDaysFlag, "ttl-days", 0, "Days until the link expires (never when omitted)")
	CreateCmd.MarkFlagRequired("url")
	cmd.RootCmd.AddCommand(CreateCmd)
}
