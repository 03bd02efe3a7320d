package cmd

import (
	"context"
	"fmt"
	"maps"
	"os/signal"
	"slices"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/s0up4200/seedkeeper/engine"
	"github.com/s0up4200/seedkeeper/server"
)

var (
	runCommands    []string
	runHashes      []string
	runSkipCleanup bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one pass and exit",
	Long: `Run one pass over the torrents in qBittorrent.

Commands default to the commands list of the config file. They always
execute in a fixed order, whatever order they are given in:
cat_update, tag_update, rem_unregistered, tag_tracker_error, recheck,
tag_nohardlinks, share_limits, rem_orphaned.`,
	Example: `  seedkeeper run --commands share_limits,rem_orphaned --dry-run
  seedkeeper run --commands recheck --hashes 8c212779b4abde7c6bc608063a0d008b7e40ce32`,
	RunE: runPass,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceVarP(&runCommands, "commands", "c", nil, "commands to run (default from config)")
	runCmd.Flags().StringSliceVar(&runHashes, "hashes", nil, "limit torrent commands to these info hashes")
	runCmd.Flags().BoolVar(&runSkipCleanup, "skip-cleanup", false, "do not empty the recycle bin and orphaned directory")
}

func runPass(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	commands := runCommands
	if len(commands) == 0 {
		commands = cfg.Commands
	}
	req, err := engine.ParseRequest(commands, runHashes, nil)
	if err != nil {
		return err
	}
	if runSkipCleanup {
		req.SkipCleanup = true
	}
	if len(req.Commands) == 0 {
		return fmt.Errorf("%w: pass --commands or set commands in the config file", engine.ErrNoCommands)
	}

	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}

	var recorder server.Recorder
	if cfg.History.Enabled {
		store, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		recorder = store
	}

	summary, err := engine.New(cfg, client, logger).Run(ctx, req)
	if recorder != nil && summary != nil {
		if rerr := recorder.Record(context.WithoutCancel(ctx), server.SourceCLI, summary, err); rerr != nil {
			logger.Warn().Err(rerr).Msg("Failed to record pass")
		}
	}
	if err != nil {
		return err
	}

	printSummary(summary)
	return nil
}

// printSummary writes the actions of a pass as a table
func printSummary(s *engine.Summary) {
	mode := ""
	if s.DryRun {
		mode = " [DRY RUN]"
	}
	fmt.Printf("\nPass %s%s finished in %s (%d torrents)\n", s.RunID, mode, s.Duration().Round(time.Millisecond), s.Torrents)

	actions := s.Actions()
	if len(actions) == 0 {
		fmt.Println("Nothing to do.")
	} else {
		rows := make([][]string, 0, len(actions))
		for _, name := range slices.Sorted(maps.Keys(actions)) {
			rows = append(rows, []string{name, strconv.Itoa(actions[name])})
		}
		fmt.Println(renderTable([]string{"ACTION", "COUNT"}, rows, []columnAlignment{alignLeft, alignRight}))
	}

	if len(s.Decisions) > 0 {
		rows := make([][]string, 0, len(s.Decisions))
		for _, kind := range slices.Sorted(maps.Keys(s.Decisions)) {
			rows = append(rows, []string{kind, strconv.Itoa(s.Decisions[kind])})
		}
		fmt.Println(renderTable([]string{"SHARE LIMIT DECISION", "TORRENTS"}, rows, []columnAlignment{alignLeft, alignRight}))
	}

	if len(s.Errors) > 0 {
		fmt.Printf("\n%d errors:\n", len(s.Errors))
		for _, e := range s.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
}
