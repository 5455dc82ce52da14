// Package host provides probes for signals observable on the local machine.
//
// Categories that have browser counterparts (navigator.hardwareConcurrency,
// navigator.deviceMemory, navigator.language, the Intl time zone) carry a
// "Host" prefix, so a run with both sources keeps the two views side by side.
package host

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/nao1215/devprint/internal/model"
	"github.com/nao1215/devprint/internal/probe"
	"golang.org/x/text/language"
)

// Probe names.
const (
	NameOS       = "host-os"
	NameCPU      = "host-cpu"
	NameMemory   = "host-memory"
	NameLocale   = "host-locale"
	NameTimezone = "host-timezone"
)

// Categories reported by host probes.
const (
	CategoryOS           = "OS"
	CategoryArchitecture = "Architecture"
	CategoryCPUCores     = "Host CPU Core Count"
	CategoryMemory       = "Host Memory"
	CategoryLanguage     = "Host Language"
	CategoryLanguages    = "Host Languages"
	CategoryTimeZone     = "Host Time Zone"
)

// ErrInvalidLocale is returned when a locale environment variable cannot be parsed.
var ErrInvalidLocale = errors.New("invalid locale")

// Env is the view of the machine that host probes read from.
type Env struct {
	GOOS     string
	GOARCH   string
	NumCPU   func() int
	Getenv   func(string) string
	ReadFile func(string) ([]byte, error)
	Readlink func(string) (string, error)
}

// DefaultEnv returns an Env backed by the running process.
func DefaultEnv() Env {
	return Env{
		GOOS:     runtime.GOOS,
		GOARCH:   runtime.GOARCH,
		NumCPU:   runtime.NumCPU,
		Getenv:   os.Getenv,
		ReadFile: os.ReadFile,
		Readlink: os.Readlink,
	}
}

// All returns every host probe bound to env.
func All(env Env) []probe.Probe {
	return []probe.Probe{
		NewOS(env),
		NewCPU(env),
		NewMemory(env),
		NewLocale(env),
		NewTimezone(env),
	}
}

// NewOS reports the operating system family and CPU architecture.
func NewOS(env Env) probe.Probe {
	return probe.Func(NameOS, func(context.Context) (model.Signals, error) {
		return model.Signals{
			CategoryOS:           model.String(env.GOOS),
			CategoryArchitecture: model.String(env.GOARCH),
		}, nil
	})
}

// NewCPU reports the number of logical CPUs.
func NewCPU(env Env) probe.Probe {
	return probe.Func(NameCPU, func(context.Context) (model.Signals, error) {
		if env.NumCPU == nil {
			return model.Signals{CategoryCPUCores: model.Unavailable()}, nil
		}
		return model.Signals{CategoryCPUCores: model.Int(int64(env.NumCPU()))}, nil
	})
}

// NewMemory reports total memory in whole gigabytes from /proc/meminfo.
// Systems without procfs report Unavailable.
func NewMemory(env Env) probe.Probe {
	return probe.Func(NameMemory, func(context.Context) (model.Signals, error) {
		unavailable := model.Signals{CategoryMemory: model.Unavailable()}
		if env.ReadFile == nil {
			return unavailable, nil
		}

		data, err := env.ReadFile("/proc/meminfo")
		if errors.Is(err, fs.ErrNotExist) {
			return unavailable, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read meminfo: %w", err)
		}

		kb, err := parseMemTotal(data)
		if err != nil {
			return nil, err
		}
		if kb == 0 {
			return unavailable, nil
		}
		gb := math.Round(float64(kb) / (1024 * 1024))
		return model.Signals{CategoryMemory: model.Int(int64(gb))}, nil
	})
}

// parseMemTotal returns the MemTotal line of meminfo in kilobytes, or 0
// when the line is absent.
func parseMemTotal(data []byte) (uint64, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		rest, ok := strings.CutPrefix(line, "MemTotal:")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return 0, fmt.Errorf("malformed MemTotal line %q", line)
		}
		kb, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed MemTotal line %q: %w", line, err)
		}
		return kb, nil
	}
	return 0, scanner.Err()
}

// NewLocale reports the preferred language from LC_ALL, LC_MESSAGES or LANG
// and the priority list from LANGUAGE, as BCP 47 tags.
func NewLocale(env Env) probe.Probe {
	return probe.Func(NameLocale, func(context.Context) (model.Signals, error) {
		signals := model.Signals{
			CategoryLanguage:  model.Unavailable(),
			CategoryLanguages: model.Unavailable(),
		}
		if env.Getenv == nil {
			return signals, nil
		}

		for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
			raw := env.Getenv(key)
			if raw == "" {
				continue
			}
			tag, ok, err := ParsePOSIXLocale(raw)
			if err != nil {
				return signals, fmt.Errorf("%s: %w", key, err)
			}
			if ok {
				signals[CategoryLanguage] = model.String(tag)
			}
			break
		}

		if list := env.Getenv("LANGUAGE"); list != "" {
			var tags []string
			for _, part := range strings.Split(list, ":") {
				tag, ok, err := ParsePOSIXLocale(part)
				if err != nil {
					return signals, fmt.Errorf("LANGUAGE: %w", err)
				}
				if ok {
					tags = append(tags, tag)
				}
			}
			if len(tags) > 0 {
				signals[CategoryLanguages] = model.Strings(tags...)
			}
		}
		return signals, nil
	})
}

// ParsePOSIXLocale converts a POSIX locale such as "en_US.UTF-8@euro" into a
// canonical BCP 47 tag such as "en-US". The C and POSIX locales carry no
// language and report ok=false.
func ParsePOSIXLocale(raw string) (tag string, ok bool, err error) {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}
	if s == "" || s == "C" || s == "POSIX" {
		return "", false, nil
	}

	t, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return "", false, fmt.Errorf("%w %q: %w", ErrInvalidLocale, raw, err)
	}
	return t.String(), true, nil
}

// NewTimezone reports the IANA zone name from TZ or the /etc/localtime link.
// The UTC offset is not reported because it changes with daylight saving.
func NewTimezone(env Env) probe.Probe {
	return probe.Func(NameTimezone, func(context.Context) (model.Signals, error) {
		if name := zoneName(env); name != "" {
			return model.Signals{CategoryTimeZone: model.String(name)}, nil
		}
		return model.Signals{CategoryTimeZone: model.Unavailable()}, nil
	})
}

func zoneName(env Env) string {
	if env.Getenv != nil {
		if tz := strings.TrimPrefix(env.Getenv("TZ"), ":"); tz != "" {
			if _, rest, ok := strings.Cut(tz, "zoneinfo/"); ok {
				return rest
			}
			return tz
		}
	}
	if env.Readlink != nil {
		target, err := env.Readlink("/etc/localtime")
		if err == nil {
			if _, rest, ok := strings.Cut(target, "zoneinfo/"); ok {
				return rest
			}
		}
	}
	return ""
}
