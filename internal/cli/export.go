package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"budgetsync/internal/config"
	"budgetsync/internal/core"
	"budgetsync/internal/export"
	"budgetsync/internal/log"
	"budgetsync/internal/syncengine"
)

// openSink builds the named export sink. The returned close func is never nil.
func openSink(ctx context.Context, name, dir string, format export.Format, cfg *config.Config) (export.Sink, func() error, error) {
	noop := func() error { return nil }
	switch name {
	case "file":
		return export.NewFileSink(dir, format), noop, nil
	case "gcs":
		s, err := export.NewGCSSink(ctx, cfg.ExportBucket, "exports", format)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case "bigquery":
		s, err := export.NewBigQuerySink(ctx, cfg.BigQueryProject, cfg.BigQueryDataset, cfg.BigQueryTable)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case "sheets":
		s, err := export.NewSheetsSink(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, cfg.GoogleCredentials)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown sink %q: want file, gcs, bigquery or sheets", name)
	}
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var format, sinkName, dir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the cached data to a file or a cloud sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			cached, err := s.engine.LocalData(ctx)
			if err != nil {
				return err
			}
			if cached == nil {
				return fmt.Errorf("nothing cached for %s: run pull or sync first", s.uid)
			}

			sink, closeSink, err := openSink(ctx, sinkName, dir, f, s.cfg)
			if err != nil {
				return err
			}
			defer closeSink()

			if err := sink.Export(ctx, s.uid, *cached); err != nil {
				return fmt.Errorf("export to %s: %w", sink.Name(), err)
			}
			if fs, ok := sink.(*export.FileSink); ok {
				fmt.Fprintln(cmd.OutOrStdout(), fs.Path())
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d transaction(s) to %s\n", len(cached.Transactions), sink.Name())
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&format, "format", string(export.CSV), "csv or json")
	f.StringVar(&sinkName, "sink", "file", "file, gcs, bigquery or sheets")
	f.StringVar(&dir, "dir", ".", "output directory for the file sink")
	return cmd
}

// mergeImport folds imported data into the cache, last writer wins. The
// imported copy plays the remote side so ties go to it.
func mergeImport(ctx context.Context, engine *syncengine.Engine, uid string, imported core.LocalData) (int, error) {
	if imported.User.ID != "" && imported.User.ID != uid {
		return 0, fmt.Errorf("%w: export belongs to user %s", export.ErrInvalidImport, imported.User.ID)
	}
	count := 0
	err := engine.UpdateLocal(ctx, func(cur *core.LocalData) *core.LocalData {
		var merged core.LocalData
		if cur == nil {
			merged = imported.Clone()
		} else {
			merged = syncengine.Merge(*cur, imported)
		}
		count = len(merged.Transactions)
		return &merged
	})
	return count, err
}

func importFile(ctx context.Context, engine *syncengine.Engine, uid, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	data, err := export.Import(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return mergeImport(ctx, engine, uid, data)
}

func newImportCommand(opts *rootOptions) *cobra.Command {
	var file, watchDir string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Merge a JSON export into the local cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" && watchDir != "" {
				return fmt.Errorf("pass only one of --file or --watch")
			}
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			if file == "" && watchDir == "" {
				watchDir = s.cfg.ImportWatchDir
			}
			if file == "" && watchDir == "" {
				return fmt.Errorf("pass --file or --watch")
			}

			if file != "" {
				n, err := importFile(cmd.Context(), s.engine, s.uid, file)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %s, %d transaction(s) cached\n", file, n)
				return nil
			}

			ctx, cancel := SignalContext(cmd.Context(), s.logger)
			defer cancel()
			w := export.NewWatcher(watchDir, 500*time.Millisecond, func(ctx context.Context, path string, d core.LocalData) error {
				n, err := mergeImport(ctx, s.engine, s.uid, d)
				if err != nil {
					return err
				}
				s.logger.InfoContext(ctx, "Import merged", "path", path, log.FieldCount, n)
				return nil
			}, s.logger)
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON export to import")
	cmd.Flags().StringVar(&watchDir, "watch", "", "directory to watch for exports (default $IMPORT_WATCH_DIR)")
	return cmd
}
