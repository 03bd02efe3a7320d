package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/s0up4200/seedkeeper/filter"
	"github.com/s0up4200/seedkeeper/qbittorrent"
)

var filterExpr string

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List torrents matching a filter expression",
	Long: `List the torrents in qBittorrent that match a filter expression.

The expression uses the same language as the filter option of share
limit groups, so it can be used to preview which torrents a group picks up.`,
	Example: `  seedkeeper list --filter 'Ratio > 2 && hasTag("movies")'
  seedkeeper list --filter 'SeedingDays > 30 && TrackerHost == "tracker.example.org"'`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&filterExpr, "filter", "f", "true", "filter expression")
}

func runList(cmd *cobra.Command, _ []string) error {
	logger.Info().Str("filter", filterExpr).Msg("Searching torrents")

	f, err := filter.CompileFilter(filterExpr)
	if err != nil {
		return fmt.Errorf("invalid filter expression: %w", err)
	}

	ctx := cmd.Context()
	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}

	torrents, err := client.GetAllTorrents(ctx)
	if err != nil {
		return err
	}

	matched := filter.Select(f, torrents, logger)
	if len(matched) == 0 {
		fmt.Println("No torrents found matching the filter criteria.")
		return nil
	}

	fmt.Printf("\nFound %d of %d torrents:\n", len(matched), len(torrents))
	fmt.Println(renderTorrents(matched))
	return nil
}

func renderTorrents(torrents []*qbittorrent.TorrentInfo) string {
	var total int64
	rows := make([][]string, 0, len(torrents)+1)
	for _, t := range torrents {
		total += t.Size
		rows = append(rows, []string{
			truncate(t.Name, 60),
			t.Category,
			t.State,
			humanize.IBytes(uint64(max(t.Size, 0))),
			fmt.Sprintf("%.2f", t.Ratio),
			formatSeedingTime(t.SeedingTime),
			strings.Join(t.Tags, ", "),
		})
	}
	rows = append(rows, []string{"", "", "", humanize.IBytes(uint64(max(total, 0))), "", "", ""})

	return renderTable(
		[]string{"NAME", "CATEGORY", "STATE", "SIZE", "RATIO", "SEEDING", "TAGS"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	)
}

func formatSeedingTime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, hours)
	}
	return fmt.Sprintf("%dh %dm", hours, int(d.Minutes())%60)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
