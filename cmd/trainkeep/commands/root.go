// Package commands implements the trainkeep subcommands.
package commands

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/trainkeep/pkg/trainkeep/checkpoint"
	"github.com/randalmurphal/trainkeep/pkg/trainkeep/config"
)

const (
	configSection = "checkpoint"

	dirFlag      = "dir"
	dirShort     = "d"
	prefixFlag   = "prefix"
	prefixShort  = "p"
	catalogFlag  = "catalog"
	noColorFlag  = "no-color"
	configFlag   = "config"
	verboseFlag  = "verbose"
	verboseShort = "v"
)

// GlobalOptions are the persistent flags shared by every subcommand.
type GlobalOptions struct {
	ConfigPath string
	Verbose    bool
	NoColor    bool
}

// NewRootCommand builds the trainkeep command tree.
func NewRootCommand() *cobra.Command {
	opts := &GlobalOptions{}

	root := &cobra.Command{
		Use:   "trainkeep",
		Short: "Inspect training checkpoint and recovery directories",
		Long: `trainkeep reads the directories a training run writes checkpoints to.

Commands:
  list      Retained checkpoints, best first
  best      The best checkpoint copy
  recovery  The recovery snapshot a resumed run would load
  show      One checkpoint file, header and state`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if opts.NoColor {
				color.NoColor = true //nolint:reassign // library global
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, configFlag, "", "yaml or json file with checkpoint defaults")
	flags.BoolVarP(&opts.Verbose, verboseFlag, verboseShort, false, "debug logging")
	flags.BoolVar(&opts.NoColor, noColorFlag, false, "disable colored output")

	root.AddCommand(NewListCommand(opts))
	root.AddCommand(NewBestCommand(opts))
	root.AddCommand(NewRecoveryCommand(opts))
	root.AddCommand(NewShowCommand(opts))

	return root
}

// layout resolves the checkpoint layout. Later sources win: config file,
// then TRAINKEEP_* environment variables, then command flags.
func (o *GlobalOptions) layout() (checkpoint.Config, error) {
	cfg := config.New(nil)
	if o.ConfigPath != "" {
		file, err := config.FromFile(o.ConfigPath)
		if err != nil {
			return checkpoint.Config{}, fmt.Errorf("load config: %w", err)
		}
		cfg = file
		if file.Has(configSection) {
			cfg = file.Section(configSection)
		}
	}

	cfg = cfg.Merge(config.FromEnv(checkpoint.EnvPrefix, checkpoint.ConfigKeys...))
	return checkpoint.ConfigFrom(cfg), nil
}

func (o *GlobalOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// dirFlags binds --dir and --prefix; values override the config file when set.
type dirFlags struct {
	dir    string
	prefix string
}

func (d *dirFlags) bind(cmd *cobra.Command, dirUsage string) {
	cmd.Flags().StringVarP(&d.dir, dirFlag, dirShort, "", dirUsage)
	cmd.Flags().StringVarP(&d.prefix, prefixFlag, prefixShort, "", "file name prefix")
}

func (d *dirFlags) apply(dir, prefix *string) {
	if d.dir != "" {
		*dir = d.dir
	}
	if d.prefix != "" {
		*prefix = d.prefix
	}
}
