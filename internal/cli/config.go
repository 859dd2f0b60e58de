package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/scbrown/irs/internal/analyze"
	"github.com/scbrown/irs/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Show or modify configuration",
	Long: `View or change irs configuration stored in ~/.irs/config.toml.

With no arguments, shows all configuration settings.
With one argument, shows the value of that key.
With two arguments, sets the key to the given value.

Settings:
  store_root              Path to the store root directory
  mode                    "single-writer" or "multi-writer"
  inline_threshold_bytes  Outputs shorter than this many bytes are stored inline instead of as a blob
  hot_days                Days a shard partition stays in the recent tier before archival
  grace_period_days       Days an unreferenced blob is kept before gc reclaims it
  compaction_threshold    Shard count per partition that triggers compaction
  max_age_hours           Age after which a pending attempt is recovered as orphaned
  blob_compression        "none", "gzip" or "zstd"
  remote_url              Peer URL for irs sync push/pull
  known_runner_schemes    Comma-separated runner-id schemes the recovery coordinator probes
  default_format          Default output format: "table" or "json"`,
	Example: `  irs config
  irs config store_root
  irs config store_root /custom/path/store
  irs config mode multi-writer
  irs config remote_url http://peer:7273
  irs config default_format json`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFrom(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		switch len(args) {
		case 0:
			return showConfig(cfg)
		case 1:
			return getConfig(cfg, args[0])
		default:
			return setConfig(cfg, args[0], args[1])
		}
	},
}

// configPath is the path to the config file, settable for testing.
var configPath = config.Path()

func init() {
	rootCmd.AddCommand(configCmd)
}

func showConfig(cfg *config.Config) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE")
	for _, key := range config.ValidKeys() {
		val, _ := cfg.Get(key)
		if val == "" {
			val = "(not set)"
		}
		fmt.Fprintf(w, "%s\t%s\n", key, val)
	}
	return w.Flush()
}

func getConfig(cfg *config.Config, key string) error {
	val, err := cfg.Get(key)
	if err != nil {
		return withKeyHint(err, key)
	}
	if val == "" {
		return nil
	}
	fmt.Println(val)
	return nil
}

func setConfig(cfg *config.Config, key, value string) error {
	if err := cfg.Set(key, value); err != nil {
		return withKeyHint(err, key)
	}
	if err := cfg.SaveTo(configPath); err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", key, value)
	return nil
}

// withKeyHint appends a "did you mean" suggestion to an unknown-key
// error, if the key is close enough to one of the valid ones.
func withKeyHint(err error, key string) error {
	if !strings.Contains(err.Error(), "unknown config key") {
		return err
	}
	hint := analyze.Hint(analyze.Suggest(key, config.ValidKeys()))
	if hint == "" {
		return err
	}
	return fmt.Errorf("%w%s", err, hint)
}
