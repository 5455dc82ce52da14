package config

import "time"

// ProbeConfig holds settings for a single probe.
type ProbeConfig struct {
	// Timeout overrides the default per-probe timeout. Zero keeps it.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Disabled removes the probe from runs. Nil inherits the defaults, so a
	// per-probe false re-enables a probe the defaults disable.
	Disabled *bool `yaml:"disabled,omitempty"`
}

// IsDisabled reports whether the probe is removed from runs.
func (pc ProbeConfig) IsDisabled() bool {
	return pc.Disabled != nil && *pc.Disabled
}

// File represents the structure of the .devprint configuration file.
type File struct {
	// Sources are the default probe sources.
	Sources []string `yaml:"sources,omitempty"`

	// Algorithm is the default digest algorithm.
	Algorithm string `yaml:"algorithm,omitempty"`

	// Timeout is the default per-probe timeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Concurrency caps how many probes run at once.
	Concurrency int `yaml:"concurrency,omitempty"`

	// Redis is the address of the Redis sink.
	Redis string `yaml:"redis,omitempty"`

	// Chrome is the browser binary for the browser source.
	Chrome string `yaml:"chrome,omitempty"`

	// Defaults applies to every probe unless overridden in Probes.
	Defaults ProbeConfig `yaml:"defaults,omitempty"`

	// Probes maps probe names to their settings.
	Probes map[string]ProbeConfig `yaml:"probes,omitempty"`
}

// GetProbeConfig returns the settings for the named probe, merged over the
// defaults.
func (cf *File) GetProbeConfig(name string) ProbeConfig {
	result := cf.Defaults

	if pc, ok := cf.Probes[name]; ok {
		if pc.Timeout != 0 {
			result.Timeout = pc.Timeout
		}
		if pc.Disabled != nil {
			result.Disabled = pc.Disabled
		}
	}

	return result
}

// DisabledProbes returns which of names the file disables, in the order
// given. Names without their own entry follow the defaults.
func (cf *File) DisabledProbes(names []string) []string {
	var disabled []string
	for _, name := range names {
		if cf.GetProbeConfig(name).IsDisabled() {
			disabled = append(disabled, name)
		}
	}
	return disabled
}

// ApplyFile copies file settings into c. Settings for which changed reports
// true were set on the command line and are kept.
func (c *Config) ApplyFile(f *File, changed func(flag string) bool) {
	if f == nil {
		return
	}
	c.Probes = f

	if len(f.Sources) > 0 && !changed("source") {
		c.Sources = f.Sources
	}
	if f.Algorithm != "" && !changed("hash") {
		c.Algorithm = f.Algorithm
	}
	if f.Timeout > 0 && !changed("timeout") {
		c.ProbeTimeout = f.Timeout
	}
	if f.Concurrency != 0 && !changed("concurrency") {
		c.Concurrency = f.Concurrency
	}
	if f.Redis != "" && !changed("redis") {
		c.RedisAddr = f.Redis
	}
	if f.Chrome != "" && !changed("chrome") {
		c.ChromePath = f.Chrome
	}
}
