package probe

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/nao1215/devprint/internal/model"
	"gopkg.in/yaml.v3"
)

// ErrEmptyCapture is returned when a capture file lists no probes.
var ErrEmptyCapture = errors.New("capture contains no probes")

// Capture is a recording of probe outputs made elsewhere, typically by the
// page-side collector, and replayed locally. JSON is accepted as well since
// it is a subset of YAML.
//
// Example:
//
//	source: page-collector
//	probes:
//	  navigator:
//	    signals:
//	      User Agent: Mozilla/5.0 (X11; Linux x86_64)
//	      Device Memory: null
//	  battery:
//	    error: getBattery is not supported
type Capture struct {
	// Source describes who produced the capture.
	Source string `yaml:"source,omitempty" json:"source,omitempty"`

	// Probes maps probe names to their recorded output.
	Probes map[string]CaptureEntry `yaml:"probes" json:"probes"`
}

// CaptureEntry is the recorded output of one probe.
type CaptureEntry struct {
	// Signals maps categories to raw values. null means Unavailable.
	Signals map[string]any `yaml:"signals,omitempty" json:"signals,omitempty"`

	// Error marks the probe as failed with this reason.
	Error string `yaml:"error,omitempty" json:"error,omitempty"`

	// Timeout overrides the aggregator timeout for this probe.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// LoadCapture reads a capture file.
func LoadCapture(path string) (*Capture, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided capture path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to read capture %s: %w", path, err)
	}

	c, err := ParseCapture(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse capture %s: %w", path, err)
	}
	return c, nil
}

// ParseCapture decodes a capture from YAML or JSON.
func ParseCapture(data []byte) (*Capture, error) {
	var c Capture
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if len(c.Probes) == 0 {
		return nil, ErrEmptyCapture
	}
	return &c, nil
}

// ProbeList returns one probe per recorded entry, ordered by name.
func (c *Capture) ProbeList() []Probe {
	names := slices.Sorted(maps.Keys(c.Probes))
	probes := make([]Probe, 0, len(names))
	for _, name := range names {
		entry := c.Probes[name]
		var p Probe = &captureProbe{name: name, entry: entry}
		if entry.Timeout > 0 {
			p = WithTimeout(p, entry.Timeout)
		}
		probes = append(probes, p)
	}
	return probes
}

type captureProbe struct {
	name  string
	entry CaptureEntry
}

func (p *captureProbe) Name() string {
	return p.name
}

// Collect normalizes the recorded values. Categories whose value has an
// unsupported shape are dropped and reported as a failure.
func (p *captureProbe) Collect(ctx context.Context) (model.Signals, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	signals := make(model.Signals, len(p.entry.Signals))
	var errs []error
	for _, category := range slices.Sorted(maps.Keys(p.entry.Signals)) {
		v, err := model.Normalize(p.entry.Signals[category])
		if err != nil {
			errs = append(errs, fmt.Errorf("category %q: %w", category, err))
			continue
		}
		signals[category] = v
	}

	if p.entry.Error != "" {
		errs = append(errs, errors.New(p.entry.Error))
	}
	return signals, errors.Join(errs...)
}
