package commands

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/trainkeep/pkg/trainkeep/checkpoint"
)

const (
	listCmdUse   = "list"
	listCmdShort = "List retained checkpoints, best first"
)

// checkpointRow is one line of list output.
type checkpointRow struct {
	path   string
	epoch  int
	metric *float64
	size   uint64
	saved  time.Time
}

// NewListCommand creates the list subcommand.
func NewListCommand(opts *GlobalOptions) *cobra.Command {
	var (
		dirs        dirFlags
		catalogPath string
	)

	cmd := &cobra.Command{
		Use:   listCmdUse,
		Short: listCmdShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			layout, err := opts.layout()
			if err != nil {
				return err
			}
			dirs.apply(&layout.CheckpointDir, &layout.CheckpointPrefix)
			logger := opts.logger(cmd.ErrOrStderr())

			var rows []checkpointRow
			if catalogPath != "" {
				rows, err = catalogRows(logger, catalogPath, layout)
			} else {
				rows, err = scanRows(logger, checkpoint.NewDiskStore(), layout)
			}
			if err != nil {
				return err
			}
			return renderRows(cmd.OutOrStdout(), rows)
		},
	}

	dirs.bind(cmd, "checkpoint directory")
	cmd.Flags().StringVar(&catalogPath, catalogFlag, "", "read the retention set from this SQLite catalog instead of scanning files")

	return cmd
}

// scanRows decodes every checkpoint file matching the layout.
// Files that fail to decode are skipped with a warning.
func scanRows(logger *slog.Logger, store checkpoint.FileStore, layout checkpoint.Config) ([]checkpointRow, error) {
	pattern := checkpoint.GlobEscape(filepath.Join(layout.CheckpointDir, layout.CheckpointPrefix)) + "-*" + checkpoint.Extension
	paths, err := store.Glob(pattern)
	if err != nil {
		return nil, err
	}

	rows := make([]checkpointRow, 0, len(paths))
	for _, path := range paths {
		data, err := store.Read(path)
		if err != nil {
			return nil, err
		}
		cp, err := checkpoint.Unmarshal(data)
		if err != nil {
			logger.Warn("skipping unreadable checkpoint", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("decoded checkpoint", slog.String("path", path), slog.Int("epoch", cp.Epoch))
		rows = append(rows, checkpointRow{
			path:   path,
			epoch:  cp.Epoch,
			metric: cp.Metric,
			size:   uint64(len(data)),
			saved:  cp.Timestamp,
		})
	}

	sortRows(rows)
	return rows, nil
}

// catalogRows reads the retention set a Saver mirrored into a SQLite catalog.
func catalogRows(logger *slog.Logger, dbPath string, layout checkpoint.Config) ([]checkpointRow, error) {
	catalog, err := checkpoint.NewSQLiteCatalog(dbPath)
	if err != nil {
		return nil, err
	}
	defer catalog.Close()

	ns := filepath.Join(layout.CheckpointDir, layout.CheckpointPrefix)
	recs, err := catalog.Records(ns)
	if err != nil {
		return nil, err
	}
	logger.Debug("read catalog", slog.String("namespace", ns), slog.Int("records", len(recs)))

	rows := make([]checkpointRow, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, checkpointRow{
			path:   rec.Path,
			epoch:  rec.Epoch,
			metric: rec.Metric,
			saved:  rec.Saved,
		})
	}

	sortRows(rows)
	return rows, nil
}

// sortRows orders rows the way the retention set is ordered: ascending
// metric, unranked rows last, epoch breaking ties.
func sortRows(rows []checkpointRow) {
	slices.SortStableFunc(rows, func(a, b checkpointRow) int {
		switch {
		case a.metric == nil && b.metric != nil:
			return 1
		case a.metric != nil && b.metric == nil:
			return -1
		case a.metric != nil && *a.metric != *b.metric:
			if *a.metric < *b.metric {
				return -1
			}
			return 1
		}
		return a.epoch - b.epoch
	})
}

func renderRows(out io.Writer, rows []checkpointRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(out, "no checkpoints")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EPOCH\tMETRIC\tSIZE\tSAVED\tPATH")
	for _, row := range rows {
		size := "-"
		if row.size > 0 {
			size = humanize.Bytes(row.size)
		}
		saved := "-"
		if !row.saved.IsZero() {
			saved = humanize.Time(row.saved)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", row.epoch, formatMetric(row.metric), size, saved, row.path)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if top := rows[0]; top.metric != nil {
		color.New(color.FgGreen).Fprintf(out, "best retained: epoch %d (metric %s)\n", top.epoch, formatMetric(top.metric))
	}
	return nil
}

func formatMetric(m *float64) string {
	if m == nil {
		return "none"
	}
	return strconv.FormatFloat(*m, 'g', -1, 64)
}
