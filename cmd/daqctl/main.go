// daqctl inspects and maintains the measurement run catalogue: filtered run
// selection, device aggregation, schema bootstrap, manual re-insertion of
// orphan run files, and uploads to the object-store mirror.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/WashU-Astroparticle-Lab/daq/catalog"
	catpg "github.com/WashU-Astroparticle-Lab/daq/catalog/postgres"
	"github.com/WashU-Astroparticle-Lab/daq/domain"
	"github.com/WashU-Astroparticle-Lab/daq/internal/config"
	"github.com/WashU-Astroparticle-Lab/daq/internal/platform/postgres"
	"github.com/WashU-Astroparticle-Lab/daq/objectstore"
	"github.com/WashU-Astroparticle-Lab/daq/query"
	"github.com/WashU-Astroparticle-Lab/daq/runfile"
	"github.com/spf13/cobra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := newRootCmd().Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

type app struct {
	configPath string
}

func (a *app) loadConfig() (config.Config, error) {
	return config.Load(a.configPath)
}

// open connects to the catalogue and returns a context bounded by the
// configured operation timeout.
func (a *app) open(parent context.Context) (context.Context, context.CancelFunc, *sql.DB, *catpg.Store, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	pgCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	db, err := postgres.Open(parent, pgCfg)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("connect catalogue: %w", err)
	}
	ctx, cancel := context.WithTimeout(parent, cfg.CatalogTimeout)
	return ctx, cancel, db, catpg.NewStore(db), nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "daqctl",
		Short:         "Inspect and maintain the measurement run catalogue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("DAQ_CONFIG"), "path to a YAML config file")
	root.AddCommand(newInitCmd(a), newRunsCmd(a), newDevicesCmd(a), newNextNumberCmd(a), newRegisterCmd(a), newArchiveCmd())
	return root
}

// openArchive builds the object-store client from the DAQ_MINIO_* environment
// and makes sure the archive bucket exists.
func openArchive(ctx context.Context) (*objectstore.Store, error) {
	cfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	store, err := objectstore.NewStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx, cfg.Region); err != nil {
		return nil, err
	}
	return store, nil
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the catalogue table and indexes if absent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, db, store, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()
			defer db.Close()
			return store.EnsureSchema(ctx)
		},
	}
}

func newRunsCmd(a *app) *cobra.Command {
	var (
		runType string
		device  string
		match   string
		start   string
		end     string
		limit   int
		where   []string
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Select runs from the catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			equals, err := parseWhere(where)
			if err != nil {
				return err
			}
			req := query.Request{
				Type:        runType,
				Device:      device,
				Equals:      equals,
				StringMatch: match,
				Limit:       limit,
			}
			if start != "" {
				req.Start = start
			}
			if end != "" {
				req.End = end
			}

			ctx, cancel, db, store, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()
			defer db.Close()

			table, err := query.New(store).SelectRuns(ctx, req)
			if err != nil {
				return err
			}
			return printTable(cmd.OutOrStdout(), table)
		},
	}
	cmd.Flags().StringVar(&runType, "type", "", "measurement type tag (sweep, timestream, ...)")
	cmd.Flags().StringVar(&device, "device", "", "device name")
	cmd.Flags().StringVar(&match, "match", "exact", "string matching mode: exact or regex")
	cmd.Flags().StringVar(&start, "start", "", "inclusive ISO-8601 lower bound on utc_time")
	cmd.Flags().StringVar(&end, "end", "", "inclusive ISO-8601 upper bound on utc_time")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of rows (0 = no limit)")
	cmd.Flags().StringArrayVar(&where, "where", nil, "extra field=value condition, repeatable")
	return cmd
}

func newDevicesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List devices with run counts, busiest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, db, store, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()
			defer db.Close()

			table, err := query.New(store).ListDevices(ctx)
			if err != nil {
				return err
			}
			return printTable(cmd.OutOrStdout(), table)
		},
	}
}

func newNextNumberCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "next-number",
		Short: "Show the run number the next save would allocate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, db, store, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()
			defer db.Close()

			number, degraded := catalog.NextNumber(ctx, store)
			if degraded {
				slog.Warn("catalogue unreachable, showing degraded sequence start")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), number)
			return err
		},
	}
}

func newRegisterCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "register <run-file>",
		Short: "Insert a catalogue document for an orphan run file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			doc, err := documentFromFile(args[0])
			if err != nil {
				return err
			}

			ctx, cancel, db, store, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()
			defer db.Close()

			id, err := store.InsertRun(ctx, doc)
			if err != nil {
				return err
			}
			slog.Info("orphan run registered", "id", id, "number", doc["number"], "file", doc["file"])

			// Registration mirrors the save-time archive phase: upload
			// failures are warnings, the catalogue row already exists.
			if cfg.ArchiveEnabled {
				path, _ := doc["file"].(string)
				arch, err := openArchive(cmd.Context())
				if err != nil {
					slog.Warn("archive mirror unavailable", "file", path, "error", err)
					return nil
				}
				if err := arch.ArchiveFile(cmd.Context(), path); err != nil {
					slog.Warn("archive upload failed", "file", path, "error", err)
				}
			}
			return nil
		},
	}
}

func newArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <run-file>",
		Short: "Upload a run file to the object-store mirror",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			store, err := openArchive(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.ArchiveFile(cmd.Context(), abs); err != nil {
				return err
			}
			slog.Info("run file archived", "file", abs)
			return nil
		},
	}
}

// documentFromFile rebuilds the catalogue document an orphan run file would
// have produced at save time. The run number comes from the canonical
// filename; utc_time is assigned now, at insert.
func documentFromFile(path string) (catalog.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	attrs, arrays, err := runfile.Read(abs)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(abs)
	number, _, ok := strings.Cut(base, "-")
	if !ok {
		return nil, fmt.Errorf("%s: not a canonical run filename", base)
	}
	if _, err := catalog.ParseNumber(number); err != nil {
		return nil, err
	}

	doc := make(catalog.Document, len(attrs)+len(arrays)+3)
	for name, value := range attrs {
		doc[name] = value
	}
	for name, arr := range arrays {
		if domain.IsBulkDataField(name) {
			continue
		}
		switch arr.Kind {
		case runfile.KindFloat64Array:
			doc[name] = arr.Float64s
		case runfile.KindInt64Array:
			doc[name] = arr.Int64s
		}
	}
	doc["number"] = number
	doc["file"] = abs
	doc["utc_time"] = time.Now().UTC().Format(time.RFC3339Nano)
	return doc, nil
}

func parseWhere(conditions []string) (map[string]any, error) {
	if len(conditions) == 0 {
		return nil, nil
	}
	equals := make(map[string]any, len(conditions))
	for _, cond := range conditions {
		name, raw, ok := strings.Cut(cond, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("condition %q: want field=value", cond)
		}
		equals[name] = parseLiteral(raw)
	}
	return equals, nil
}

// parseLiteral keeps catalogue-side typed matching working from the shell:
// integers and floats stay numeric, booleans stay boolean, the rest matches
// as strings.
func parseLiteral(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

func printTable(w io.Writer, table query.Table) error {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	if len(table.Columns) > 0 {
		fmt.Fprintln(tw, strings.Join(table.Columns, "\t"))
	}
	for _, row := range table.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case []any:
		return fmt.Sprintf("[%d values]", len(t))
	default:
		return fmt.Sprint(v)
	}
}
