package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/trainkeep/pkg/trainkeep/checkpoint"
)

const (
	bestCmdShort     = "Show the best checkpoint copy"
	recoveryCmdShort = "Print the recovery snapshot a resumed run would load"
	showCmdUse       = "show <path>"
	showCmdShort     = "Print a checkpoint file's header and state as JSON"
)

// NewBestCommand creates the best subcommand.
func NewBestCommand(opts *GlobalOptions) *cobra.Command {
	var dirs dirFlags

	cmd := &cobra.Command{
		Use:   "best",
		Short: bestCmdShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			layout, err := opts.layout()
			if err != nil {
				return err
			}
			dirs.apply(&layout.CheckpointDir, &layout.CheckpointPrefix)

			path := bestPath(layout)
			opts.logger(cmd.ErrOrStderr()).Debug("loading best checkpoint", slog.String("path", path))

			cp, err := checkpoint.Load(checkpoint.NewDiskStore(), path)
			if err != nil {
				return err
			}
			return renderSummary(cmd.OutOrStdout(), path, cp)
		},
	}

	dirs.bind(cmd, "checkpoint directory")
	return cmd
}

// NewRecoveryCommand creates the recovery subcommand.
func NewRecoveryCommand(opts *GlobalOptions) *cobra.Command {
	var dirs dirFlags

	cmd := &cobra.Command{
		Use:   "recovery",
		Short: recoveryCmdShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			layout, err := opts.layout()
			if err != nil {
				return err
			}
			dirs.apply(&layout.RecoveryDir, &layout.RecoveryPrefix)

			store := checkpoint.NewDiskStore()
			path, err := checkpoint.FindRecovery(store, layout.RecoveryDir, layout.RecoveryPrefix)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if path == "" {
				_, err := fmt.Fprintln(out, "no recovery snapshot")
				return err
			}

			cp, err := checkpoint.Load(store, path)
			if err != nil {
				return err
			}
			return renderSummary(out, path, cp)
		},
	}

	dirs.bind(cmd, "recovery directory")
	return cmd
}

// NewShowCommand creates the show subcommand.
func NewShowCommand(_ *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   showCmdUse,
		Short: showCmdShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cp, err := checkpoint.Load(checkpoint.NewDiskStore(), args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cp)
		},
	}
}

func bestPath(layout checkpoint.Config) string {
	return filepath.Join(layout.CheckpointDir, checkpoint.BestName+checkpoint.Extension)
}

func renderSummary(out io.Writer, path string, cp *checkpoint.Checkpoint) error {
	color.New(color.FgCyan).Fprintln(out, path)
	fmt.Fprintf(out, "  kind:   %s\n", cp.Kind)
	fmt.Fprintf(out, "  run:    %s\n", cp.RunID)
	fmt.Fprintf(out, "  epoch:  %d\n", cp.Epoch)
	if cp.BatchIndex != nil {
		fmt.Fprintf(out, "  batch:  %d\n", *cp.BatchIndex)
	}
	fmt.Fprintf(out, "  metric: %s\n", formatMetric(cp.Metric))
	_, err := fmt.Fprintf(out, "  saved:  %s (%s)\n", cp.Timestamp.Format("2006-01-02 15:04:05Z07:00"), humanize.Time(cp.Timestamp))
	return err
}
