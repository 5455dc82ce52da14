package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"   // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/devprint/internal/model"
)

// FileName is the name of the SQLite database file inside the data directory.
const FileName = "devprint.db"

// ErrNilRecord is returned when SaveRecord is called without a record.
var ErrNilRecord = errors.New("record is nil")

// dialect captures the differences between the supported SQL backends.
type dialect struct {
	name   string
	schema string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
}

var sqliteDialect = dialect{
	name: "sqlite",
	schema: `
	CREATE TABLE IF NOT EXISTS devices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fingerprint TEXT NOT NULL UNIQUE,
		algorithm TEXT NOT NULL,
		first_seen TEXT NOT NULL,
		last_seen TEXT NOT NULL,
		visits INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id INTEGER NOT NULL REFERENCES devices(id),
		run_id TEXT NOT NULL UNIQUE,
		fingerprint TEXT NOT NULL,
		algorithm TEXT NOT NULL,
		partial_failure INTEGER NOT NULL DEFAULT 0,
		record_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_device ON records(device_id);
	CREATE INDEX IF NOT EXISTS idx_records_created ON records(created_at);
	`,
}

var postgresDialect = dialect{
	name:     "postgres",
	numbered: true,
	schema: `
	CREATE TABLE IF NOT EXISTS devices (
		id BIGSERIAL PRIMARY KEY,
		fingerprint TEXT NOT NULL UNIQUE,
		algorithm TEXT NOT NULL,
		first_seen TEXT NOT NULL,
		last_seen TEXT NOT NULL,
		visits INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS records (
		id BIGSERIAL PRIMARY KEY,
		device_id BIGINT NOT NULL REFERENCES devices(id),
		run_id TEXT NOT NULL UNIQUE,
		fingerprint TEXT NOT NULL,
		algorithm TEXT NOT NULL,
		partial_failure INTEGER NOT NULL DEFAULT 0,
		record_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_device ON records(device_id);
	CREATE INDEX IF NOT EXISTS idx_records_created ON records(created_at);
	`,
}

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// RecordDB stores fingerprint records and the devices they identify.
// A device is one distinct fingerprint; every stored record is a visit of
// that device.
type RecordDB struct {
	db      *sql.DB
	dialect dialect

	// dbPath is the SQLite file path, empty for PostgreSQL.
	dbPath string
}

// Options configures the SQLite backend.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Device is a distinct fingerprint seen at least once.
type Device struct {
	ID          int64     `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Algorithm   string    `json:"algorithm"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Visits      int       `json:"visits"`
}

// RecordMetadata describes a stored record without its signals.
type RecordMetadata struct {
	ID             int64     `json:"id"`
	DeviceID       int64     `json:"device_id"`
	RunID          string    `json:"run_id"`
	Fingerprint    string    `json:"fingerprint"`
	Algorithm      string    `json:"algorithm"`
	PartialFailure bool      `json:"partial_failure"`
	CreatedAt      time.Time `json:"created_at"`
}

// Visit is the bookkeeping result of saving a record.
type Visit struct {
	// DeviceID identifies the device the record was attributed to.
	DeviceID int64 `json:"device_id"`

	// RecordID is the id of the stored record.
	RecordID int64 `json:"record_id"`

	// Log is the zero-based visit number of the device.
	Log int `json:"log"`

	// Returning is true when the fingerprint had been seen before.
	Returning bool `json:"returning"`
}

// OpenSQLite opens or creates a RecordDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func OpenSQLite(dbDir string, opts Options) (*RecordDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw prevents modernc.org/sqlite from creating a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RecordDB{
		db:      db,
		dialect: sqliteDialect,
		dbPath:  dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return rdb, nil
}

// OpenPostgres connects to a PostgreSQL database and creates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*RecordDB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	rdb := &RecordDB{db: db, dialect: postgresDialect}
	if err := rdb.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return rdb, nil
}

// Close closes the database connection.
func (rdb *RecordDB) Close() error {
	return rdb.db.Close()
}

// Path returns the SQLite file path, or an empty string for PostgreSQL.
func (rdb *RecordDB) Path() string {
	return rdb.dbPath
}

// Dialect returns the backend name, "sqlite" or "postgres".
func (rdb *RecordDB) Dialect() string {
	return rdb.dialect.name
}

// createTables creates the schema if it doesn't exist. Both drivers accept
// several statements in one parameterless Exec.
func (rdb *RecordDB) createTables(ctx context.Context) error {
	_, err := rdb.db.ExecContext(ctx, rdb.dialect.schema)
	return err
}

// SaveRecord stores record and attributes it to the device with the same
// fingerprint, creating the device on its first visit.
func (rdb *RecordDB) SaveRecord(ctx context.Context, record *model.FingerprintRecord) (*Visit, error) {
	if record == nil {
		return nil, ErrNilRecord
	}

	recordJSON, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	seen := formatTimestamp(record.CollectedAt)

	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	upsert := rdb.dialect.rebind(`
	INSERT INTO devices (fingerprint, algorithm, first_seen, last_seen, visits)
	VALUES (?, ?, ?, ?, 1)
	ON CONFLICT(fingerprint) DO UPDATE SET
		last_seen = excluded.last_seen,
		visits = devices.visits + 1
	RETURNING id, visits
	`)

	var visit Visit
	var visits int
	if err := tx.QueryRowContext(ctx, upsert,
		record.Fingerprint, record.Algorithm, seen, seen,
	).Scan(&visit.DeviceID, &visits); err != nil {
		return nil, fmt.Errorf("failed to save device: %w", err)
	}
	visit.Log = visits - 1
	visit.Returning = visits > 1

	insert := rdb.dialect.rebind(`
	INSERT INTO records (device_id, run_id, fingerprint, algorithm, partial_failure, record_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	RETURNING id
	`)
	if err := tx.QueryRowContext(ctx, insert,
		visit.DeviceID,
		record.RunID,
		record.Fingerprint,
		record.Algorithm,
		boolToInt(record.PartialFailure),
		string(recordJSON),
		seen,
	).Scan(&visit.RecordID); err != nil {
		return nil, fmt.Errorf("failed to save record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit record: %w", err)
	}
	return &visit, nil
}

// GetDevice returns the device identified by fingerprint.
// Returns nil, nil if the fingerprint was never seen.
func (rdb *RecordDB) GetDevice(ctx context.Context, fingerprint string) (*Device, error) {
	query := rdb.dialect.rebind(`
	SELECT id, fingerprint, algorithm, first_seen, last_seen, visits
	FROM devices WHERE fingerprint = ?
	`)

	device, err := scanDevice(rdb.db.QueryRowContext(ctx, query, fingerprint))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return device, nil
}

// ListDevices returns every device, most recently seen first.
func (rdb *RecordDB) ListDevices(ctx context.Context) ([]Device, error) {
	query := `
	SELECT id, fingerprint, algorithm, first_seen, last_seen, visits
	FROM devices ORDER BY last_seen DESC, id DESC
	`

	rows, err := rdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, *device)
	}
	return devices, rows.Err()
}

// GetHistory returns the metadata of every record of a device, newest first.
func (rdb *RecordDB) GetHistory(ctx context.Context, deviceID int64) ([]RecordMetadata, error) {
	query := rdb.dialect.rebind(`
	SELECT id, device_id, run_id, fingerprint, algorithm, partial_failure, created_at
	FROM records WHERE device_id = ?
	ORDER BY created_at DESC, id DESC
	`)

	rows, err := rdb.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var history []RecordMetadata
	for rows.Next() {
		var m RecordMetadata
		var partial int
		var createdAt string
		if err := rows.Scan(&m.ID, &m.DeviceID, &m.RunID, &m.Fingerprint, &m.Algorithm, &partial, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		m.PartialFailure = partial != 0
		m.CreatedAt = parseTimestamp(createdAt)
		history = append(history, m)
	}
	return history, rows.Err()
}

// GetRecordByID returns the stored record with id.
// Returns nil, nil if no such record exists.
func (rdb *RecordDB) GetRecordByID(ctx context.Context, id int64) (*model.FingerprintRecord, error) {
	query := rdb.dialect.rebind(`SELECT record_json FROM records WHERE id = ?`)

	var recordJSON string
	err := rdb.db.QueryRowContext(ctx, query, id).Scan(&recordJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return decodeRecord(recordJSON)
}

// GetLatestRecords returns up to n records, newest first. When fingerprint
// is not empty only records of that device are returned.
func (rdb *RecordDB) GetLatestRecords(ctx context.Context, fingerprint string, n int) ([]*model.FingerprintRecord, error) {
	if n <= 0 {
		return nil, nil
	}

	query := `SELECT record_json FROM records`
	args := []any{}
	if fingerprint != "" {
		query += ` WHERE fingerprint = ?`
		args = append(args, fingerprint)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, n)

	rows, err := rdb.db.QueryContext(ctx, rdb.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest records: %w", err)
	}
	defer rows.Close()

	var records []*model.FingerprintRecord
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		record, err := decodeRecord(recordJSON)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var d Device
	var firstSeen, lastSeen string
	if err := row.Scan(&d.ID, &d.Fingerprint, &d.Algorithm, &firstSeen, &lastSeen, &d.Visits); err != nil {
		return nil, err
	}
	d.FirstSeen = parseTimestamp(firstSeen)
	d.LastSeen = parseTimestamp(lastSeen)
	return &d, nil
}

func decodeRecord(recordJSON string) (*model.FingerprintRecord, error) {
	var record model.FingerprintRecord
	if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	return &record, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Timestamps are stored as fixed-width UTC text so that both backends sort
// them the same way.
const storedTimestampFormat = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(storedTimestampFormat)
}

// timestampFormats contains the layouts parseTimestamp accepts.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	storedTimestampFormat,
	"2006-01-02 15:04:05",  // SQLite default datetime format
	"2006-01-02T15:04:05Z", // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",  // ISO 8601 without timezone
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
