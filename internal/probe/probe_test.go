package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/devprint/internal/model"
)

// TestFunc tests the function adapter.
func TestFunc(t *testing.T) {
	t.Parallel()

	p := Func("device", func(_ context.Context) (model.Signals, error) {
		return model.Signals{"OS": model.String("Linux")}, nil
	})

	if p.Name() != "device" {
		t.Errorf("expected name 'device', got %q", p.Name())
	}

	signals, err := p.Collect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, ok := signals["OS"].Str(); !ok || v != "Linux" {
		t.Errorf("unexpected signals: %v", signals)
	}
}

// TestStatic tests that static probes return copies.
func TestStatic(t *testing.T) {
	t.Parallel()

	p := Static("screen", model.Signals{"Touch": model.Unavailable()})

	first, err := p.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	first["Touch"] = model.Bool(true)

	second, err := p.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !second["Touch"].IsUnavailable() {
		t.Error("mutating a result changed the probe's signals")
	}
}

// TestStaticHonorsCancellation tests that a canceled context fails the probe.
func TestStaticHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Static("screen", nil).Collect(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// TestFailing tests failing probes with partial output.
func TestFailing(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	p := Failing("audio", boom, model.Signals{"Sample Rate": model.Int(44000)})

	signals, err := p.Collect(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if len(signals) != 1 {
		t.Errorf("expected partial signals, got %v", signals)
	}
}

// TestWithTimeout tests the timeout override.
func TestWithTimeout(t *testing.T) {
	t.Parallel()

	p := WithTimeout(Static("x", nil), 3*time.Second)
	if p.Timeout() != 3*time.Second {
		t.Errorf("expected 3s, got %v", p.Timeout())
	}
	if p.Name() != "x" {
		t.Errorf("expected name 'x', got %q", p.Name())
	}
}

// TestParseCapture tests decoding of capture files.
func TestParseCapture(t *testing.T) {
	t.Parallel()

	t.Run("yaml capture", func(t *testing.T) {
		t.Parallel()

		data := []byte(`
source: page-collector
probes:
  navigator:
    signals:
      User Agent: Mozilla/5.0
      CPU Core Count: 8
      Device Memory: null
      Languages: [en-US, en]
  screen:
    timeout: 2s
    signals:
      Screen:
        Width: 1920
        Height: 1080
  battery:
    error: getBattery is not supported
`)

		c, err := ParseCapture(data)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Source != "page-collector" {
			t.Errorf("unexpected source %q", c.Source)
		}

		probes := c.ProbeList()
		if got := Names(probes); len(got) != 3 || got[0] != "battery" || got[1] != "navigator" || got[2] != "screen" {
			t.Fatalf("unexpected probe order %v", got)
		}

		if tp, ok := probes[2].(TimeoutProbe); !ok || tp.Timeout() != 2*time.Second {
			t.Error("expected screen probe to carry a 2s timeout")
		}

		signals, err := probes[1].Collect(context.Background())
		if err != nil {
			t.Fatalf("navigator: %v", err)
		}
		if !signals["Device Memory"].IsUnavailable() {
			t.Error("null should replay as Unavailable")
		}
		if n, ok := signals["CPU Core Count"].IntValue(); !ok || n != 8 {
			t.Errorf("unexpected core count %v", signals["CPU Core Count"].Kind())
		}
		if signals["Languages"].Kind() != model.KindList {
			t.Errorf("expected list, got %s", signals["Languages"].Kind())
		}

		if _, err := probes[0].Collect(context.Background()); err == nil {
			t.Error("expected battery to replay its failure")
		}
	})

	t.Run("json capture", func(t *testing.T) {
		t.Parallel()

		c, err := ParseCapture([]byte(`{"probes":{"device":{"signals":{"OS":"Linux","Ratio":1.5}}}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		signals, err := c.ProbeList()[0].Collect(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if f, ok := signals["Ratio"].FloatValue(); !ok || f != 1.5 {
			t.Errorf("unexpected ratio %v", signals["Ratio"].Kind())
		}
	})

	t.Run("unsupported shape fails the probe but keeps other signals", func(t *testing.T) {
		t.Parallel()

		c, err := ParseCapture([]byte(`
probes:
  plugins:
    signals:
      Plugins: [[nested]]
      Count: 2
`))
		if err != nil {
			t.Fatal(err)
		}
		signals, err := c.ProbeList()[0].Collect(context.Background())
		if !errors.Is(err, model.ErrUnsupportedShape) {
			t.Errorf("expected ErrUnsupportedShape, got %v", err)
		}
		if _, ok := signals["Count"]; !ok {
			t.Error("expected valid categories to be kept")
		}
		if _, ok := signals["Plugins"]; ok {
			t.Error("expected invalid category to be dropped")
		}
	})

	t.Run("empty capture", func(t *testing.T) {
		t.Parallel()

		_, err := ParseCapture([]byte(`source: nothing`))
		if !errors.Is(err, ErrEmptyCapture) {
			t.Errorf("expected ErrEmptyCapture, got %v", err)
		}
	})
}

// TestLoadCapture tests reading capture files from disk.
func TestLoadCapture(t *testing.T) {
	t.Parallel()

	t.Run("reads file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "capture.yaml")
		if err := os.WriteFile(path, []byte("probes:\n  device:\n    signals:\n      OS: Linux\n"), 0600); err != nil {
			t.Fatal(err)
		}

		c, err := LoadCapture(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(c.Probes) != 1 {
			t.Errorf("expected 1 probe, got %d", len(c.Probes))
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := LoadCapture(filepath.Join(t.TempDir(), "missing.yaml"))
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected os.ErrNotExist, got %v", err)
		}
	})
}
