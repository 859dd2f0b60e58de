// Package cli defines the cobra command tree for the irs CLI.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/scbrown/irs/internal/config"
	"github.com/scbrown/irs/internal/store"
)

var (
	storeRoot  string
	jsonOutput bool
)

func defaultStoreRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".irs"
	}
	return filepath.Join(home, ".irs")
}

// rootCmd is the top-level irs command.
var rootCmd = &cobra.Command{
	Use:   "irs",
	Short: "IRS - an embedded, query-first store of command invocations",
	Long: `irs records shell-command invocations (attempt, outcome, output,
diagnostic events) and serves analytical queries over the recorded archive.

Invocations are stored under a store root (~/.irs by default, configurable
via --store-root or irs config store_root). The store runs in either
single-writer mode (one embedded SQLite database) or multi-writer mode
(append-only shard files with no inter-process locking), selected via
irs config mode. All output commands support --json for machine-readable
output.`,
	Example: `  # Record one command's invocation from a hook script
  id=$(irs open --cmd "go test ./..." --session-id $SESSION)
  output=$(go test ./... 2>&1)
  status=$?
  echo "$output" | irs append --attempt "$id" --stream stdout
  irs close --attempt "$id" --exit-code $status

  # Query recent invocations
  irs list --since 2026-08-01
  irs stats --json

  # Run lifecycle maintenance
  irs recover
  irs compact --relation attempts --date 2026-08-01 --session s1
  irs archive --relation attempts
  irs gc

  # Serve the store over HTTP and sync with a peer
  irs serve --addr :7273
  irs sync push --remote-url http://peer:7273`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFrom(configPath)
		if err != nil {
			return nil
		}
		if cfg.StoreRoot != "" && !cmd.Flags().Changed("store-root") {
			storeRoot = cfg.StoreRoot
		}
		if cfg.DefaultFormat == "json" && !cmd.Flags().Changed("json") {
			jsonOutput = true
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeRoot, "store-root", defaultStoreRoot(), "path to the store root directory")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
}

// openStore opens the store rooted at storeRoot, applying the saved
// configuration on top of whatever flags the caller set.
func openStore() (*store.Store, error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	root := storeRoot
	if cfg.StoreRoot != "" && root == defaultStoreRoot() {
		root = cfg.StoreRoot
	}
	return store.Open(root, *cfg)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
