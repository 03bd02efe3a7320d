package cmd

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/s0up4200/seedkeeper/hardlink"
	"github.com/s0up4200/seedkeeper/qbittorrent"
)

var hardlinkCategories []string

// hardlinkCmd represents the hardlink command
var hardlinkCmd = &cobra.Command{
	Use:   "hardlink",
	Short: "Report completed torrents whose content is not hardlinked",
	Long: `Scan completed torrents for content that has no hardlink outside the
torrent client, such as a media library import.

This is a read-only report. Use "seedkeeper run --commands tag_nohardlinks"
to tag the torrents it finds.`,
	RunE: runHardlink,
}

func init() {
	rootCmd.AddCommand(hardlinkCmd)

	hardlinkCmd.Flags().StringSliceVar(&hardlinkCategories, "category", nil, "categories to scan (default: the nohardlinks categories of the config)")
}

func runHardlink(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	categories := hardlinkCategories
	if len(categories) == 0 {
		for name := range cfg.NoHardlinks {
			categories = append(categories, name)
		}
	}
	if len(categories) == 0 {
		return fmt.Errorf("no categories to scan, pass --category or configure nohardlinks")
	}

	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}
	all, err := client.GetAllTorrents(ctx)
	if err != nil {
		return err
	}

	var torrents []*qbittorrent.TorrentInfo
	for _, t := range all {
		if t.IsComplete() && slices.Contains(categories, t.Category) {
			torrents = append(torrents, t)
		}
	}

	logger.Info().Strs("categories", categories).Int("torrents", len(torrents)).Msg("Scanning for non-hardlinked torrents...")
	for hash, err := range client.LoadFiles(ctx, torrents, cfg.Settings.Workers) {
		logger.Warn().Err(err).Str("hash", hash).Msg("Failed to load torrent files")
	}

	mapper := qbittorrent.NewPathMapper(cfg.Directory.RootDir, cfg.Directory.RemoteDir)
	localRoot := cfg.Directory.RemoteDir
	inspector := hardlink.NewInspector(hardlink.NewTreeResolver(localRoot, 0, logger), logger)

	var (
		rows  [][]string
		total int64
	)
	for _, t := range torrents {
		if len(t.Files) == 0 {
			continue
		}
		files := make([]hardlink.File, 0, len(t.Files))
		for _, f := range t.Files {
			files = append(files, hardlink.File{
				Path: mapper.ToLocal(filepath.Join(t.SavePath, f.Name)),
				Size: f.Size,
			})
		}

		ignoreRootDir := cfg.NoHardlinks[t.Category].IgnoreRootDir
		if inspector.HasExternalHardlink(files, localRoot, ignoreRootDir) {
			continue
		}
		total += t.Size
		rows = append(rows, []string{
			truncate(t.Name, 60),
			t.Category,
			humanize.IBytes(uint64(max(t.Size, 0))),
			fmt.Sprintf("%.2f", t.Ratio),
			formatSeedingTime(t.SeedingTime),
		})
	}

	if len(rows) == 0 {
		fmt.Println("✓ All torrents are hardlinked!")
		return nil
	}

	fmt.Printf("Found %d non-hardlinked torrents using %s:\n", len(rows), humanize.IBytes(uint64(total)))
	fmt.Println(renderTable(
		[]string{"NAME", "CATEGORY", "SIZE", "RATIO", "SEEDING"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
	))
	return nil
}
