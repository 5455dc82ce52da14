package sink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/devprint/internal/database"
	"github.com/nao1215/devprint/internal/model"
	"github.com/nao1215/devprint/internal/report"
)

func testRecord() *model.FingerprintRecord {
	return &model.FingerprintRecord{
		RunID:       "run-1",
		CollectedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		Algorithm:   "sha256",
		Fingerprint: "abcdef",
		Signals: map[string]model.Signal{
			"OS": {Category: "OS", Value: model.String("Linux"), Source: "host"},
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSink struct {
	name string
	err  error

	mu       sync.Mutex
	received []*model.FingerprintRecord
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Deliver(_ context.Context, record *model.FingerprintRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, record)
	return f.err
}

type fakeStore struct {
	visits map[string]int
	err    error
}

func (f *fakeStore) SaveRecord(_ context.Context, record *model.FingerprintRecord) (*database.Visit, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.visits == nil {
		f.visits = make(map[string]int)
	}
	f.visits[record.Fingerprint]++
	n := f.visits[record.Fingerprint]
	return &database.Visit{DeviceID: 7, RecordID: int64(n), Log: n - 1, Returning: n > 1}, nil
}

type countingObserver struct {
	failed []string
}

func (c *countingObserver) ObserveSinkError(sink string) {
	c.failed = append(c.failed, sink)
}

func TestWriterSink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := NewWriterSink("json", report.NewJSONWriter(&buf))
	if s.Name() != "json" {
		t.Errorf("Name() = %q", s.Name())
	}

	if err := s.Deliver(context.Background(), testRecord()); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"fingerprint":"abcdef"`) {
		t.Errorf("unexpected output: %s", buf.String())
	}

	if err := s.Deliver(context.Background(), nil); !errors.Is(err, ErrNilRecord) {
		t.Errorf("Deliver(nil) error = %v, want ErrNilRecord", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Deliver(ctx, testRecord()); !errors.Is(err, context.Canceled) {
		t.Errorf("Deliver() on canceled context error = %v", err)
	}
}

func TestStoreSink(t *testing.T) {
	t.Parallel()

	t.Run("reports returning devices", func(t *testing.T) {
		t.Parallel()

		var logs bytes.Buffer
		var visits []*database.Visit
		s := NewStoreSink(&fakeStore{},
			WithStoreLogger(slog.New(slog.NewTextHandler(&logs, nil))),
			WithVisitHandler(func(_ *model.FingerprintRecord, v *database.Visit) {
				visits = append(visits, v)
			}),
		)

		for range 2 {
			if err := s.Deliver(context.Background(), testRecord()); err != nil {
				t.Fatalf("Deliver() error = %v", err)
			}
		}

		if len(visits) != 2 || visits[0].Returning || !visits[1].Returning {
			t.Errorf("visits = %+v", visits)
		}
		if !strings.Contains(logs.String(), "new device") || !strings.Contains(logs.String(), "returning device") {
			t.Errorf("unexpected logs: %s", logs.String())
		}
	})

	t.Run("propagates store errors", func(t *testing.T) {
		t.Parallel()

		want := errors.New("disk full")
		s := NewStoreSink(&fakeStore{err: want}, WithStoreLogger(discardLogger()))
		if err := s.Deliver(context.Background(), testRecord()); !errors.Is(err, want) {
			t.Errorf("Deliver() error = %v, want %v", err, want)
		}
	})

	t.Run("works with the SQLite store", func(t *testing.T) {
		t.Parallel()

		db, err := database.OpenSQLite(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatalf("OpenSQLite() error = %v", err)
		}
		defer db.Close()

		var last *database.Visit
		s := NewStoreSink(db, WithStoreLogger(discardLogger()), WithVisitHandler(func(_ *model.FingerprintRecord, v *database.Visit) {
			last = v
		}))
		first := testRecord()
		second := testRecord()
		second.RunID = "run-2"
		for _, r := range []*model.FingerprintRecord{first, second} {
			if err := s.Deliver(context.Background(), r); err != nil {
				t.Fatalf("Deliver() error = %v", err)
			}
		}
		if last == nil || !last.Returning || last.Log != 1 {
			t.Errorf("last visit = %+v", last)
		}
	})
}

func TestMulti(t *testing.T) {
	t.Parallel()

	t.Run("delivers to every sink", func(t *testing.T) {
		t.Parallel()

		a, b := &fakeSink{name: "a"}, &fakeSink{name: "b"}
		m := NewMulti([]Sink{a, b}, WithMultiLogger(discardLogger()))
		if err := m.Deliver(context.Background(), testRecord()); err != nil {
			t.Fatalf("Deliver() error = %v", err)
		}
		if len(a.received) != 1 || len(b.received) != 1 {
			t.Errorf("received a=%d b=%d", len(a.received), len(b.received))
		}
		if m.Len() != 2 || m.Name() != "multi" {
			t.Errorf("Len() = %d, Name() = %q", m.Len(), m.Name())
		}
	})

	t.Run("failing sink does not stop others", func(t *testing.T) {
		t.Parallel()

		errA := errors.New("a broke")
		errC := errors.New("c broke")
		a := &fakeSink{name: "a", err: errA}
		b := &fakeSink{name: "b"}
		c := &fakeSink{name: "c", err: errC}
		obs := &countingObserver{}

		m := NewMulti([]Sink{a, b, c}, WithMultiLogger(discardLogger()), WithErrorObserver(obs))
		err := m.Deliver(context.Background(), testRecord())
		if !errors.Is(err, errA) || !errors.Is(err, errC) {
			t.Fatalf("Deliver() error = %v, want both failures", err)
		}
		if !strings.Contains(err.Error(), "a: a broke") {
			t.Errorf("error does not name the sink: %v", err)
		}
		if len(b.received) != 1 {
			t.Error("healthy sink did not receive the record")
		}
		if strings.Join(obs.failed, ",") != "a,c" {
			t.Errorf("observed failures = %v", obs.failed)
		}
	})

	t.Run("stops on canceled context", func(t *testing.T) {
		t.Parallel()

		a := &fakeSink{name: "a"}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := NewMulti([]Sink{a}, WithMultiLogger(discardLogger())).Deliver(ctx, testRecord())
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Deliver() error = %v, want context.Canceled", err)
		}
		if len(a.received) != 0 {
			t.Error("sink received a record after cancellation")
		}
	})

	t.Run("rejects nil record", func(t *testing.T) {
		t.Parallel()

		if err := NewMulti(nil).Deliver(context.Background(), nil); !errors.Is(err, ErrNilRecord) {
			t.Errorf("Deliver(nil) error = %v", err)
		}
	})
}
