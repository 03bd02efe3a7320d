package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var dumpFormat string

// configCmd groups configuration helpers
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration as seedkeeper sees it, with defaults and
environment overrides applied. Passwords are masked.`,
	RunE: runConfigShow,
}

var configTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Validate the configuration and test the qBittorrent connection",
	RunE:  runConfigTest,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configTestCmd)

	configShowCmd.Flags().StringVar(&dumpFormat, "format", "yaml", "output format (yaml or toml)")
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	out, err := cfg.Dump(dumpFormat)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "# %s\n", cfg.Path())
	_, err = os.Stdout.Write(out)
	return err
}

func runConfigTest(cmd *cobra.Command, _ []string) error {
	fmt.Printf("Configuration %s is valid.\n", cfg.Path())
	fmt.Printf("Testing connection to qBittorrent at %s...\n", cfg.QBittorrent.URL)

	ctx := cmd.Context()
	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Println("✓ Connection successful!")

	torrents, err := client.GetAllTorrents(ctx)
	if err != nil {
		return fmt.Errorf("failed to get torrents: %w", err)
	}

	fmt.Printf("\nqBittorrent:\n")
	fmt.Printf("- Version: %s (Web API %s)\n", client.Version(), client.WebAPIVersion())
	fmt.Printf("- Total torrents: %d\n", len(torrents))
	fmt.Printf("- Share limit groups: %d\n", len(cfg.ShareLimits))
	fmt.Printf("- Dry run: %s\n", boolToStatus(cfg.Settings.DryRun))
	return nil
}

func boolToStatus(b bool) string {
	if b {
		return "Enabled"
	}
	return "Disabled"
}
