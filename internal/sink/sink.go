package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/devprint/internal/database"
	"github.com/nao1215/devprint/internal/model"
	"github.com/nao1215/devprint/internal/report"
)

// ErrNilRecord is returned when a sink is handed no record.
var ErrNilRecord = errors.New("record is nil")

// Sink receives finished fingerprint records.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Deliver hands over record. The record must not be modified.
	Deliver(ctx context.Context, record *model.FingerprintRecord) error
}

// WriterSink renders records with a report.Writer.
type WriterSink struct {
	name   string
	writer report.Writer
}

// NewWriterSink creates a sink that renders every record with w.
func NewWriterSink(name string, w report.Writer) *WriterSink {
	return &WriterSink{name: name, writer: w}
}

// Name implements Sink.
func (s *WriterSink) Name() string {
	return s.name
}

// Deliver implements Sink.
func (s *WriterSink) Deliver(ctx context.Context, record *model.FingerprintRecord) error {
	if record == nil {
		return ErrNilRecord
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// RecordStore persists records. database.RecordDB implements it.
type RecordStore interface {
	SaveRecord(ctx context.Context, record *model.FingerprintRecord) (*database.Visit, error)
}

// StoreSink persists records and reports whether the device is returning.
type StoreSink struct {
	store   RecordStore
	logger  *slog.Logger
	onVisit func(*model.FingerprintRecord, *database.Visit)
}

// StoreSinkOption configures a StoreSink.
type StoreSinkOption func(*StoreSink)

// WithStoreLogger sets a custom logger.
func WithStoreLogger(logger *slog.Logger) StoreSinkOption {
	return func(s *StoreSink) {
		s.logger = logger
	}
}

// WithVisitHandler registers fn to be called after every saved record.
func WithVisitHandler(fn func(*model.FingerprintRecord, *database.Visit)) StoreSinkOption {
	return func(s *StoreSink) {
		s.onVisit = fn
	}
}

// NewStoreSink creates a sink that saves records to store.
func NewStoreSink(store RecordStore, opts ...StoreSinkOption) *StoreSink {
	s := &StoreSink{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Sink.
func (s *StoreSink) Name() string {
	return "store"
}

// Deliver implements Sink.
func (s *StoreSink) Deliver(ctx context.Context, record *model.FingerprintRecord) error {
	if record == nil {
		return ErrNilRecord
	}
	visit, err := s.store.SaveRecord(ctx, record)
	if err != nil {
		return err
	}

	if visit.Returning {
		s.logger.Info("returning device",
			"device_id", visit.DeviceID,
			"log", visit.Log,
			"fingerprint", record.Fingerprint,
		)
	} else {
		s.logger.Info("new device",
			"device_id", visit.DeviceID,
			"fingerprint", record.Fingerprint,
		)
	}
	if s.onVisit != nil {
		s.onVisit(record, visit)
	}
	return nil
}

// ErrorObserver is notified when a sink fails. metrics.Recorder implements it.
type ErrorObserver interface {
	ObserveSinkError(sink string)
}

// Multi delivers every record to several sinks.
type Multi struct {
	sinks    []Sink
	logger   *slog.Logger
	observer ErrorObserver
}

// MultiOption configures a Multi.
type MultiOption func(*Multi)

// WithMultiLogger sets a custom logger.
func WithMultiLogger(logger *slog.Logger) MultiOption {
	return func(m *Multi) {
		m.logger = logger
	}
}

// WithErrorObserver reports sink failures to o.
func WithErrorObserver(o ErrorObserver) MultiOption {
	return func(m *Multi) {
		m.observer = o
	}
}

// NewMulti creates a sink that delivers to sinks in order.
func NewMulti(sinks []Sink, opts ...MultiOption) *Multi {
	m := &Multi{
		sinks:  sinks,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements Sink.
func (m *Multi) Name() string {
	return "multi"
}

// Len returns the number of sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Deliver hands record to every sink. A failing sink does not stop the
// others; all failures are returned joined.
func (m *Multi) Deliver(ctx context.Context, record *model.FingerprintRecord) error {
	if record == nil {
		return ErrNilRecord
	}

	var errs []error
	for _, s := range m.sinks {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.Deliver(ctx, record); err != nil {
			m.logger.Warn("sink failed", "sink", s.Name(), "error", err)
			if m.observer != nil {
				m.observer.ObserveSinkError(s.Name())
			}
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		m.logger.Debug("record delivered", "sink", s.Name(), "run_id", record.RunID)
	}
	return errors.Join(errs...)
}
