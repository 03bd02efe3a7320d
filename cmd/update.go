package cmd

import (
	"fmt"
	"runtime"

	"github.com/blang/semver"
	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

const repository = "s0up4200/seedkeeper"

var (
	version   = "dev"
	buildTime = "unknown"
)

// SetVersion sets the build information reported by the binary
func SetVersion(v, b string) {
	version = v
	buildTime = b
	rootCmd.Version = v
}

// skipInit replaces initializeApp for commands that need no config
func skipInit(*cobra.Command, []string) error { return nil }

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print version information",
	PersistentPreRunE: skipInit,
	Run: func(*cobra.Command, []string) {
		fmt.Printf("seedkeeper %s (built %s, %s/%s, %s)\n", version, buildTime, runtime.GOOS, runtime.GOARCH, runtime.Version())
	},
}

var updateCmd = &cobra.Command{
	Use:               "update",
	Short:             "Update seedkeeper to the latest release",
	PersistentPreRunE: skipInit,
	RunE:              runUpdate,
}

func init() {
	rootCmd.AddCommand(versionCmd, updateCmd)
}

func runUpdate(cmd *cobra.Command, _ []string) error {
	current, err := semver.ParseTolerant(version)
	if err != nil {
		return fmt.Errorf("could not parse version %q, development builds cannot self-update: %w", version, err)
	}

	ctx := cmd.Context()
	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(repository))
	if err != nil {
		return fmt.Errorf("error occurred while detecting version: %w", err)
	}
	if !found {
		return fmt.Errorf("no release found for %s on %s/%s", repository, runtime.GOOS, runtime.GOARCH)
	}

	if latest.LessOrEqual(current.String()) {
		fmt.Printf("Current binary is the latest version: %s\n", current)
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}

	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("error occurred while updating binary: %w", err)
	}

	fmt.Printf("Successfully updated to version: %s\n", latest.Version())
	return nil
}
