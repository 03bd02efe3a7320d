package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/s0up4200/seedkeeper/config"
	"github.com/s0up4200/seedkeeper/engine"
	"github.com/s0up4200/seedkeeper/history"
)

var historyLimit int

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded passes",
	Long:  `List the passes recorded in the history database, newest first.`,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of passes to show (0 for all)")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled, set history.enabled in the config file")
	}

	store, err := history.Open(historyPath(cfg))
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No passes recorded yet.")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		s := e.Summary
		status := "ok"
		if e.Failure != "" {
			status = "failed: " + e.Failure
		} else if len(s.Errors) > 0 {
			status = fmt.Sprintf("%d errors", len(s.Errors))
		}
		mode := "live"
		if s.DryRun {
			mode = "dry run"
		}
		rows = append(rows, []string{
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.Source,
			strings.Join(s.Commands, ","),
			mode,
			strconv.Itoa(s.Torrents),
			formatActions(s),
			status,
		})
	}

	fmt.Println(renderTable(
		[]string{"STARTED", "SOURCE", "COMMANDS", "MODE", "TORRENTS", "ACTIONS", "STATUS"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
	return nil
}

func formatActions(s *engine.Summary) string {
	actions := s.Actions()
	if len(actions) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(actions))
	for name, n := range actions {
		parts = append(parts, fmt.Sprintf("%s=%d", name, n))
	}
	slices.Sort(parts)
	return strings.Join(parts, " ")
}

// historyPath defaults to seedkeeper.db next to the config file
func historyPath(c *config.Config) string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(filepath.Dir(c.Path()), "seedkeeper.db")
}

// prunedStore records passes and trims the store to the configured size
type prunedStore struct {
	*history.Store
	keep int
}

func openHistory(c *config.Config) (*prunedStore, error) {
	store, err := history.Open(historyPath(c))
	if err != nil {
		return nil, err
	}
	return &prunedStore{Store: store, keep: c.History.Keep}, nil
}

func (s *prunedStore) Record(ctx context.Context, source string, summary *engine.Summary, runErr error) error {
	if err := s.Store.Record(ctx, source, summary, runErr); err != nil {
		return err
	}
	if s.keep <= 0 {
		return nil
	}
	removed, err := s.Prune(ctx, s.keep)
	if err != nil {
		return err
	}
	if removed > 0 {
		logger.Debug().Int64("removed", removed).Msg("Pruned pass history")
	}
	return nil
}
