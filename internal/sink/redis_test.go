package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nao1215/devprint/internal/model"
	"github.com/redis/go-redis/v9"
)

// fakeRedis is an in-memory redis.Cmdable covering the commands RedisSink
// issues. Any other command panics on the nil embedded interface.
type fakeRedis struct {
	redis.Cmdable

	mu      sync.Mutex
	hashes  map[string]map[string]string
	values  map[string]string
	ttls    map[string]time.Duration
	txs     int
	execErr error
	readErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		hashes: make(map[string]map[string]string),
		values: make(map[string]string),
		ttls:   make(map[string]time.Duration),
	}
}

func (f *fakeRedis) hash(key string) map[string]string {
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	return h
}

// TxPipelined applies the queued commands together, or none of them.
func (f *fakeRedis) TxPipelined(_ context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	pipe := &fakePipe{}
	if err := fn(pipe); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		return nil, f.execErr
	}
	f.txs++
	for _, op := range pipe.ops {
		op(f)
	}
	return pipe.cmds, nil
}

func (f *fakeRedis) HGet(ctx context.Context, key, field string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmd := redis.NewStringCmd(ctx, "hget", key, field)
	v, ok := f.hashes[key][field]
	switch {
	case f.readErr != nil:
		cmd.SetErr(f.readErr)
	case !ok:
		cmd.SetErr(redis.Nil)
	default:
		cmd.SetVal(v)
	}
	return cmd
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmd := redis.NewStringCmd(ctx, "get", key)
	v, ok := f.values[key]
	switch {
	case f.readErr != nil:
		cmd.SetErr(f.readErr)
	case !ok:
		cmd.SetErr(redis.Nil)
	default:
		cmd.SetVal(v)
	}
	return cmd
}

// fakePipe queues writes until fakeRedis.TxPipelined executes them.
type fakePipe struct {
	redis.Pipeliner

	ops  []func(*fakeRedis)
	cmds []redis.Cmder
}

func (p *fakePipe) queue(cmd redis.Cmder, op func(*fakeRedis)) {
	p.cmds = append(p.cmds, cmd)
	p.ops = append(p.ops, op)
}

func (p *fakePipe) HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "hincrby", key, field, incr)
	p.queue(cmd, func(f *fakeRedis) {
		h := f.hash(key)
		n, _ := strconv.ParseInt(h[field], 10, 64)
		n += incr
		h[field] = strconv.FormatInt(n, 10)
		cmd.SetVal(n)
	})
	return cmd
}

func (p *fakePipe) HSetNX(ctx context.Context, key, field string, value any) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx, "hsetnx", key, field, value)
	p.queue(cmd, func(f *fakeRedis) {
		h := f.hash(key)
		if _, ok := h[field]; ok {
			cmd.SetVal(false)
			return
		}
		h[field] = redisString(value)
		cmd.SetVal(true)
	})
	return cmd
}

func (p *fakePipe) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, append([]any{"hset", key}, values...)...)
	p.queue(cmd, func(f *fakeRedis) {
		h := f.hash(key)
		var added int64
		for i := 0; i+1 < len(values); i += 2 {
			field := redisString(values[i])
			if _, ok := h[field]; !ok {
				added++
			}
			h[field] = redisString(values[i+1])
		}
		cmd.SetVal(added)
	})
	return cmd
}

func (p *fakePipe) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key, value)
	p.queue(cmd, func(f *fakeRedis) {
		f.values[key] = redisString(value)
		if expiration > 0 {
			f.ttls[key] = expiration
		} else {
			delete(f.ttls, key)
		}
		cmd.SetVal("OK")
	})
	return cmd
}

func redisString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func TestRedisSinkKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		opts       []RedisSinkOption
		wantFP     string
		wantRecord string
	}{
		{"default prefix", nil, "devprint:fp:abc", "devprint:record:run"},
		{"custom prefix", []RedisSinkOption{WithKeyPrefix("test")}, "test:fp:abc", "test:record:run"},
		{"empty prefix is ignored", []RedisSinkOption{WithKeyPrefix("")}, "devprint:fp:abc", "devprint:record:run"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewRedisSink(nil, tt.opts...)
			if got := s.FingerprintKey("abc"); got != tt.wantFP {
				t.Errorf("FingerprintKey() = %q, want %q", got, tt.wantFP)
			}
			if got := s.RecordKey("run"); got != tt.wantRecord {
				t.Errorf("RecordKey() = %q, want %q", got, tt.wantRecord)
			}
		})
	}
}

func TestRedisSinkOptions(t *testing.T) {
	t.Parallel()

	s := NewRedisSink(nil)
	if s.ttl != DefaultRecordTTL || s.Name() != "redis" {
		t.Errorf("defaults: ttl = %v, name = %q", s.ttl, s.Name())
	}
	if s = NewRedisSink(nil, WithRecordTTL(-time.Second)); s.ttl != DefaultRecordTTL {
		t.Errorf("negative TTL was accepted: %v", s.ttl)
	}
	if s = NewRedisSink(nil, WithRecordTTL(0)); s.ttl != 0 {
		t.Errorf("zero TTL = %v, want 0", s.ttl)
	}
}

func TestRedisSinkDeliverLayout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := newFakeRedis()
	s := NewRedisSink(fake, WithKeyPrefix("test"), WithRecordTTL(time.Minute), WithRedisLogger(discardLogger()))

	first := testRecord()
	second := testRecord()
	second.RunID = "run-2"
	second.CollectedAt = first.CollectedAt.Add(time.Hour)

	for _, rec := range []*model.FingerprintRecord{first, second} {
		if err := s.Deliver(ctx, rec); err != nil {
			t.Fatalf("Deliver() error = %v", err)
		}
	}

	if fake.txs != 2 {
		t.Errorf("expected one transaction per delivery, got %d", fake.txs)
	}

	wantHash := map[string]map[string]string{
		"test:fp:abcdef": {
			"visits":     "2",
			"first_seen": "2026-06-01T00:00:00Z",
			"last_seen":  "2026-06-01T01:00:00Z",
			"algorithm":  "sha256",
			"last_run":   "run-2",
		},
	}
	if diff := cmp.Diff(wantHash, fake.hashes); diff != "" {
		t.Errorf("fingerprint hash mismatch (-want +got):\n%s", diff)
	}

	wantTTL := map[string]time.Duration{
		"test:record:run-1": time.Minute,
		"test:record:run-2": time.Minute,
	}
	if diff := cmp.Diff(wantTTL, fake.ttls); diff != "" {
		t.Errorf("record TTL mismatch (-want +got):\n%s", diff)
	}

	visits, err := s.Visits(ctx, first.Fingerprint)
	if err != nil || visits != 2 {
		t.Errorf("Visits() = %d, %v, want 2", visits, err)
	}

	got, err := s.Record(ctx, "run-2")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if got == nil || got.RunID != "run-2" || got.Fingerprint != first.Fingerprint {
		t.Errorf("Record() = %+v", got)
	}
	if sig, ok := got.Get("OS"); !ok || sig.Source != "host" {
		t.Errorf("Record() lost signals: %+v", got.Signals)
	}
}

func TestRedisSinkZeroTTL(t *testing.T) {
	t.Parallel()

	fake := newFakeRedis()
	s := NewRedisSink(fake, WithRecordTTL(0), WithRedisLogger(discardLogger()))
	if err := s.Deliver(context.Background(), testRecord()); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if _, ok := fake.values["devprint:record:run-1"]; !ok {
		t.Error("record payload was not written")
	}
	if len(fake.ttls) != 0 {
		t.Errorf("zero TTL should keep the record forever, got %v", fake.ttls)
	}
}

func TestRedisSinkErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")

	tests := []struct {
		name    string
		setup   func(*fakeRedis)
		run     func(context.Context, *RedisSink) error
		wantErr error
	}{
		{
			name:    "nil record",
			run:     func(ctx context.Context, s *RedisSink) error { return s.Deliver(ctx, nil) },
			wantErr: ErrNilRecord,
		},
		{
			name:    "transaction fails",
			setup:   func(f *fakeRedis) { f.execErr = boom },
			run:     func(ctx context.Context, s *RedisSink) error { return s.Deliver(ctx, testRecord()) },
			wantErr: boom,
		},
		{
			name:  "visits read fails",
			setup: func(f *fakeRedis) { f.readErr = boom },
			run: func(ctx context.Context, s *RedisSink) error {
				_, err := s.Visits(ctx, "abcdef")
				return err
			},
			wantErr: boom,
		},
		{
			name:  "record read fails",
			setup: func(f *fakeRedis) { f.readErr = boom },
			run: func(ctx context.Context, s *RedisSink) error {
				_, err := s.Record(ctx, "run-1")
				return err
			},
			wantErr: boom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fake := newFakeRedis()
			if tt.setup != nil {
				tt.setup(fake)
			}
			s := NewRedisSink(fake, WithRedisLogger(discardLogger()))

			err := tt.run(context.Background(), s)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if fake.txs != 0 {
				t.Errorf("failed call must not commit, got %d transactions", fake.txs)
			}
		})
	}
}

func TestRedisSinkMissingKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := newFakeRedis()
	fake.values["devprint:record:corrupt"] = "{not json"
	s := NewRedisSink(fake, WithRedisLogger(discardLogger()))

	if n, err := s.Visits(ctx, "never-seen"); err != nil || n != 0 {
		t.Errorf("Visits(never-seen) = %d, %v", n, err)
	}
	if rec, err := s.Record(ctx, "nope"); err != nil || rec != nil {
		t.Errorf("Record(missing) = %v, %v", rec, err)
	}
	if _, err := s.Record(ctx, "corrupt"); err == nil {
		t.Error("expected an error for a corrupt payload")
	}
}

// TestRedisSinkDeliver runs against a real server at DEVPRINT_TEST_REDIS_ADDR
// when one is available.
func TestRedisSinkDeliver(t *testing.T) {
	addr := os.Getenv("DEVPRINT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DEVPRINT_TEST_REDIS_ADDR is not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("failed to reach redis: %v", err)
	}

	prefix := "devprint-test-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	s := NewRedisSink(client, WithKeyPrefix(prefix), WithRecordTTL(time.Minute), WithRedisLogger(discardLogger()))
	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			_ = client.Del(ctx, keys...).Err()
		}
	})

	rec := testRecord()
	for range 2 {
		if err := s.Deliver(ctx, rec); err != nil {
			t.Fatalf("Deliver() error = %v", err)
		}
	}

	visits, err := s.Visits(ctx, rec.Fingerprint)
	if err != nil {
		t.Fatalf("Visits() error = %v", err)
	}
	if visits != 2 {
		t.Errorf("Visits() = %d, want 2", visits)
	}

	first, err := client.HGet(ctx, s.FingerprintKey(rec.Fingerprint), "first_seen").Result()
	if err != nil || first != rec.CollectedAt.UTC().Format(time.RFC3339Nano) {
		t.Errorf("first_seen = %q, %v", first, err)
	}

	got, err := s.Record(ctx, rec.RunID)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if got == nil || got.Fingerprint != rec.Fingerprint {
		t.Errorf("Record() = %+v", got)
	}

	ttl, err := client.TTL(ctx, s.RecordKey(rec.RunID)).Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Errorf("record TTL = %v, %v", ttl, err)
	}

	missing, err := s.Record(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("Record(missing) = %v, %v", missing, err)
	}
	if n, err := s.Visits(ctx, "never-seen"); err != nil || n != 0 {
		t.Errorf("Visits(never-seen) = %d, %v", n, err)
	}
}
