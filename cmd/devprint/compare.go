package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nao1215/devprint/internal/compare"
	"github.com/nao1215/devprint/internal/config"
	"github.com/nao1215/devprint/internal/database"
	"github.com/nao1215/devprint/internal/model"
	"github.com/nao1215/devprint/internal/report"
	"github.com/spf13/cobra"
)

// errNotEnoughRecords is returned when the store holds fewer than two
// records to compare.
var errNotEnoughRecords = errors.New("at least two records are needed for a comparison")

// NewCompareCmd creates the compare command.
// This command compares two fingerprint records, read from files or from
// the record store.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [before.json after.json]",
		Short: "Compare two fingerprint records",
		Long: `Compare shows how two fingerprint records differ.

It reports:
- Whether both records use the same algorithm and fingerprint
- Which probe hashes match, which shows what made a fingerprint change
- Every category that was added, removed or changed

Records are read from two JSON reports written by 'devprint collect --json',
or from the record store filled by 'devprint collect --save'.

Examples:
  # Compare the latest two stored records
  devprint compare

  # Compare the latest two records of one device
  devprint compare --fingerprint 4f3a...

  # Compare two JSON reports
  devprint compare before.json after.json

  # List all devices in the record store
  devprint compare --list-devices

  # List the visit history of a device
  devprint compare --list 3

  # Compare a stored record with the latest one
  devprint compare --with-record-id 5

  # Output comparison in JSON format
  devprint compare --json`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected 0 or 2 record files, got %d", len(args))
			}
			return nil
		},
		RunE: runCompareCmd,
	}

	// History listing flags
	cmd.Flags().Int64P("list", "l", 0,
		"List the visit history of the device with this ID")
	cmd.Flags().BoolP("list-devices", "L", false,
		"List all devices in the record store")

	// Comparison target flags
	cmd.Flags().String("fingerprint", "",
		"Only compare records of the device with this fingerprint")
	cmd.Flags().Int64P("with-record-id", "i", 0,
		"Compare the latest record with a specific record by ID (use --list to see available IDs)")

	// Storage flags
	cmd.Flags().String("db-dsn", "",
		"PostgreSQL connection string (default: SQLite in the XDG data directory)")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the SQLite record store")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")

	return cmd
}

// compareOptions holds the parsed compare flags.
type compareOptions struct {
	listDevices  bool
	listDevice   int64
	fingerprint  string
	withRecordID int64
	dbDSN        string
	dbDir        string
	json         bool
	markdown     bool
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseCompareFlags(cmd)
	if err != nil {
		return err
	}
	if opts.json && opts.markdown {
		return config.ErrConflictingReportFormats
	}

	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Two files need no record store
	if len(args) == 2 {
		before, err := readRecordFile(args[0])
		if err != nil {
			return err
		}
		after, err := readRecordFile(args[1])
		if err != nil {
			return err
		}
		return writeComparison(out, opts, before, after)
	}

	db, err := openCompareStore(ctx, opts)
	if err != nil {
		return err
	}
	defer db.Close()

	if opts.listDevices {
		return listDevices(ctx, out, db)
	}
	if opts.listDevice != 0 {
		return listHistory(ctx, out, db, opts.listDevice)
	}

	before, after, err := selectRecords(ctx, db, opts)
	if err != nil {
		return err
	}
	return writeComparison(out, opts, before, after)
}

func parseCompareFlags(cmd *cobra.Command) (compareOptions, error) {
	var (
		opts compareOptions
		err  error
	)
	flags := cmd.Flags()
	if opts.listDevices, err = flags.GetBool("list-devices"); err != nil {
		return opts, err
	}
	if opts.listDevice, err = flags.GetInt64("list"); err != nil {
		return opts, err
	}
	if opts.fingerprint, err = flags.GetString("fingerprint"); err != nil {
		return opts, err
	}
	if opts.withRecordID, err = flags.GetInt64("with-record-id"); err != nil {
		return opts, err
	}
	if opts.dbDSN, err = flags.GetString("db-dsn"); err != nil {
		return opts, err
	}
	if opts.dbDir, err = flags.GetString("db-dir"); err != nil {
		return opts, err
	}
	if opts.json, err = flags.GetBool("json"); err != nil {
		return opts, err
	}
	if opts.markdown, err = flags.GetBool("markdown"); err != nil {
		return opts, err
	}

	if v := os.Getenv(config.EnvDBDSN); v != "" && !flags.Changed("db-dsn") {
		opts.dbDSN = v
	}
	return opts, nil
}

func openCompareStore(ctx context.Context, opts compareOptions) (*database.RecordDB, error) {
	cfg := config.NewConfig()
	cfg.DBDSN = opts.dbDSN
	cfg.DBDir = opts.dbDir
	return openStore(ctx, cfg)
}

func readRecordFile(path string) (*model.FingerprintRecord, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided record path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open record: %w", err)
	}
	defer f.Close()

	record, err := report.ReadRecord(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", path, err)
	}
	return record, nil
}

// selectRecords picks the records to compare from the store: the latest two,
// or a specific record and the latest one.
func selectRecords(ctx context.Context, db *database.RecordDB, opts compareOptions) (before, after *model.FingerprintRecord, err error) {
	if opts.withRecordID != 0 {
		before, err = db.GetRecordByID(ctx, opts.withRecordID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get record: %w", err)
		}
		if before == nil {
			return nil, nil, fmt.Errorf("record %d not found", opts.withRecordID)
		}

		latest, err := db.GetLatestRecords(ctx, opts.fingerprint, 1)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get latest record: %w", err)
		}
		if len(latest) == 0 {
			return nil, nil, errNotEnoughRecords
		}
		return before, latest[0], nil
	}

	latest, err := db.GetLatestRecords(ctx, opts.fingerprint, 2)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get latest records: %w", err)
	}
	if len(latest) < 2 {
		return nil, nil, fmt.Errorf("%w (found %d; use 'devprint collect --save' to store more)",
			errNotEnoughRecords, len(latest))
	}
	// Newest first
	return latest[1], latest[0], nil
}

func writeComparison(out io.Writer, opts compareOptions, before, after *model.FingerprintRecord) error {
	result, err := compare.Records(before, after)
	if err != nil {
		return err
	}

	var w report.Writer
	switch {
	case opts.json:
		w = report.NewJSONWriter(out, report.WithPrettyPrint())
	case opts.markdown:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out)
	}
	_, err = w.WriteComparison(result)
	return err
}

// listDevices lists every device in the record store.
func listDevices(ctx context.Context, out io.Writer, db *database.RecordDB) error {
	devices, err := db.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices found in the record store.")
		fmt.Fprintln(out, "\nUse 'devprint collect --save' to record this device.")
		return nil
	}

	fmt.Fprintf(out, "Devices (%d):\n\n", len(devices))
	fmt.Fprintf(out, "  %-6s  %-14s  %-6s  %-20s  %s\n", "ID", "Fingerprint", "Visits", "Last Seen", "Algorithm")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 70))
	for _, d := range devices {
		fmt.Fprintf(out, "  %-6d  %-14s  %-6d  %-20s  %s\n",
			d.ID,
			shortFingerprint(d.Fingerprint),
			d.Visits,
			d.LastSeen.Local().Format("2006-01-02 15:04:05"),
			d.Algorithm,
		)
	}
	fmt.Fprintln(out, "\nUse 'devprint compare --list <id>' to see the visit history of a device.")

	return nil
}

// listHistory lists the stored records of one device.
func listHistory(ctx context.Context, out io.Writer, db *database.RecordDB, deviceID int64) error {
	history, err := db.GetHistory(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}

	if len(history) == 0 {
		fmt.Fprintf(out, "No records found for device %d\n", deviceID)
		fmt.Fprintln(out, "\nUse 'devprint compare --list-devices' to see available devices.")
		return nil
	}

	fmt.Fprintf(out, "History of device %d (%d records):\n\n", deviceID, len(history))
	fmt.Fprintf(out, "  %-6s  %-20s  %-36s  %s\n", "ID", "Date", "Run", "Status")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 80))
	for _, meta := range history {
		status := "complete"
		if meta.PartialFailure {
			status = "partial failure"
		}
		fmt.Fprintf(out, "  %-6d  %-20s  %-36s  %s\n",
			meta.ID,
			meta.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			meta.RunID,
			status,
		)
	}

	fmt.Fprintln(out, "\nUse 'devprint compare --with-record-id <id>' to compare a record with the latest one.")
	return nil
}

func shortFingerprint(fp string) string {
	if len(fp) <= 12 {
		return fp
	}
	return fp[:12]
}
