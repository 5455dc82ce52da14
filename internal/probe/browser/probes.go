package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/nao1215/devprint/internal/digest"
	"github.com/nao1215/devprint/internal/model"
	"github.com/nao1215/devprint/internal/probe"
	"golang.org/x/text/language"
)

// Probe names.
const (
	NameNavigator   = "navigator"
	NameScreen      = "screen"
	NameWebGL       = "webgl"
	NameStorage     = "storage"
	NameBattery     = "battery"
	NameConnection  = "connection"
	NamePlugins     = "plugins"
	NameMedia       = "media"
	NameFonts       = "fonts"
	NameCanvas      = "canvas"
	NameAudio       = "audio"
	NamePermissions = "permissions"
	NameAdBlock     = "adblock"
	NameHeaders     = "headers"
)

// Categories reported by the headers probe.
const (
	CategoryHTTPUserAgent      = "HTTP User-Agent"
	CategoryHTTPAccept         = "HTTP Accept"
	CategoryHTTPAcceptEncoding = "HTTP Accept-Encoding"
	CategoryHTTPAcceptLanguage = "HTTP Accept-Language"
	CategoryAcceptLanguageTags = "Accept-Language Tags"
)

// ErrMalformedResult is returned when a script result has an unexpected shape.
var ErrMalformedResult = errors.New("malformed script result")

// decoder turns a script's JSON object into signals.
type decoder func(raw map[string]any) (model.Signals, error)

type scriptProbe struct {
	name   string
	page   Page
	script string
	decode decoder
}

func (p *scriptProbe) Name() string {
	return p.name
}

func (p *scriptProbe) Collect(ctx context.Context) (model.Signals, error) {
	var raw map[string]any
	if err := p.page.Evaluate(ctx, p.script, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: script returned no object", ErrMalformedResult)
	}
	return p.decode(raw)
}

// All returns every browser probe bound to page.
func All(page Page) []probe.Probe {
	return []probe.Probe{
		NewNavigator(page),
		NewScreen(page),
		NewWebGL(page),
		NewStorage(page),
		NewBattery(page),
		NewConnection(page),
		NewPlugins(page),
		NewMedia(page),
		NewFonts(page),
		NewCanvas(page),
		NewAudio(page),
		NewPermissions(page),
		NewAdBlock(page),
		NewHeaders(page),
	}
}

// NewNavigator reports user agent, language, hardware and privacy settings
// exposed on navigator, plus the browser name and engine read from the
// user agent.
func NewNavigator(page Page) probe.Probe {
	return &scriptProbe{name: NameNavigator, page: page, script: navigatorScript, decode: decodeNavigator}
}

// NewScreen reports screen dimensions, color depth and touch support.
func NewScreen(page Page) probe.Probe {
	return &scriptProbe{name: NameScreen, page: page, script: screenScript, decode: decodeObject}
}

// NewWebGL reports the WebGL vendor and renderer strings.
func NewWebGL(page Page) probe.Probe {
	return &scriptProbe{name: NameWebGL, page: page, script: webglScript, decode: decodeObject}
}

// NewStorage reports the available storage APIs and the quota in GB.
func NewStorage(page Page) probe.Probe {
	return &scriptProbe{name: NameStorage, page: page, script: storageScript, decode: decodeObject}
}

// NewBattery reports whether the Battery Status API is usable.
func NewBattery(page Page) probe.Probe {
	return &scriptProbe{name: NameBattery, page: page, script: batteryScript, decode: decodeObject}
}

// NewConnection reports the Network Information API connection type.
func NewConnection(page Page) probe.Probe {
	return &scriptProbe{name: NameConnection, page: page, script: connectionScript, decode: decodeObject}
}

// NewPlugins reports installed plugins by name and file name.
func NewPlugins(page Page) probe.Probe {
	return &scriptProbe{name: NamePlugins, page: page, script: pluginsScript, decode: decodeObject}
}

// NewMedia reports how many media devices of each kind are present.
func NewMedia(page Page) probe.Probe {
	return &scriptProbe{name: NameMedia, page: page, script: mediaScript, decode: decodeMedia}
}

// NewFonts reports which of CommonFonts are installed.
func NewFonts(page Page) probe.Probe {
	return &scriptProbe{name: NameFonts, page: page, script: fontsScript, decode: decodeObject}
}

// NewCanvas reports digests of a text and a geometry canvas rendering.
func NewCanvas(page Page) probe.Probe {
	return &scriptProbe{name: NameCanvas, page: page, script: canvasScript, decode: decodeCanvas(digest.New())}
}

// NewAudio reports the summed amplitude of an offline-rendered oscillator.
func NewAudio(page Page) probe.Probe {
	return &scriptProbe{name: NameAudio, page: page, script: audioScript, decode: decodeObject}
}

// NewPermissions reports which of Permissions the browser has granted.
func NewPermissions(page Page) probe.Probe {
	return &scriptProbe{name: NamePermissions, page: page, script: permissionsScript, decode: decodePermissions}
}

// NewAdBlock reports whether a content blocker hides ad-like elements.
func NewAdBlock(page Page) probe.Probe {
	return &scriptProbe{name: NameAdBlock, page: page, script: adBlockScript, decode: decodeObject}
}

type headersProbe struct {
	page Page
}

// NewHeaders reports the request headers the browser sends to a page.
func NewHeaders(page Page) probe.Probe {
	return &headersProbe{page: page}
}

func (p *headersProbe) Name() string {
	return NameHeaders
}

func (p *headersProbe) Collect(ctx context.Context) (model.Signals, error) {
	h, err := p.page.Headers(ctx)
	if err != nil {
		return nil, err
	}
	return HeaderSignals(h)
}

// HeaderSignals converts request headers into signals. A malformed
// Accept-Language header fails the probe but the raw headers are kept.
func HeaderSignals(h http.Header) (model.Signals, error) {
	get := func(key string) model.Value {
		if v := h.Get(key); v != "" {
			return model.String(v)
		}
		return model.Unavailable()
	}

	signals := model.Signals{
		CategoryHTTPUserAgent:      get("User-Agent"),
		CategoryHTTPAccept:         get("Accept"),
		CategoryHTTPAcceptEncoding: get("Accept-Encoding"),
		CategoryHTTPAcceptLanguage: get("Accept-Language"),
		CategoryAcceptLanguageTags: model.Unavailable(),
	}

	raw := h.Get("Accept-Language")
	if raw == "" {
		return signals, nil
	}
	tags, err := AcceptLanguages(raw)
	if err != nil {
		return signals, err
	}
	if len(tags) > 0 {
		signals[CategoryAcceptLanguageTags] = model.Strings(tags...)
	}
	return signals, nil
}

// AcceptLanguages returns the tags of an Accept-Language header ordered by
// preference.
func AcceptLanguages(header string) ([]string, error) {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return nil, fmt.Errorf("invalid Accept-Language %q: %w", header, err)
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.String())
	}
	return out, nil
}

// decodeObject normalizes every field of raw. Fields with an unsupported
// shape fail the probe; the other fields are kept.
func decodeObject(raw map[string]any) (model.Signals, error) {
	signals := make(model.Signals, len(raw))
	var errs []error
	for category, v := range raw {
		value, err := model.Normalize(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", category, err))
			continue
		}
		signals[category] = value
	}
	return signals, errors.Join(errs...)
}

// decodeNavigator adds the browser name and core derived from the user agent.
func decodeNavigator(raw map[string]any) (model.Signals, error) {
	signals, err := decodeObject(raw)
	signals[CategoryBrowserName] = model.Unavailable()
	signals[CategoryBrowserCore] = model.Unavailable()

	if ua, ok := signals["User Agent"].Str(); ok {
		name, core := BrowserFromUserAgent(ua)
		if name != "" {
			signals[CategoryBrowserName] = model.String(name)
		}
		if core != "" {
			signals[CategoryBrowserCore] = model.String(core)
		}
	}
	return signals, err
}

// decodePermissions sorts the granted permissions so the signal does not
// depend on query completion order.
func decodePermissions(raw map[string]any) (model.Signals, error) {
	const category = "Browser Permissions"
	v, ok := raw[category]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedResult, category)
	}
	if v == nil {
		return model.Signals{category: model.Unavailable()}, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T", ErrMalformedResult, category, v)
	}

	granted := make([]string, 0, len(items))
	for _, item := range items {
		name, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: permission is %T", ErrMalformedResult, item)
		}
		granted = append(granted, name)
	}
	slices.Sort(granted)
	return model.Signals{category: model.Strings(slices.Compact(granted)...)}, nil
}

// decodeMedia counts device kinds.
func decodeMedia(raw map[string]any) (model.Signals, error) {
	v, ok := raw["Media Devices"]
	if !ok {
		return nil, fmt.Errorf("%w: missing Media Devices", ErrMalformedResult)
	}
	if v == nil {
		return model.Signals{"Media Devices": model.Unavailable()}, nil
	}
	kinds, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: Media Devices is %T", ErrMalformedResult, v)
	}

	counts := make(map[string]int64)
	for _, k := range kinds {
		kind, ok := k.(string)
		if !ok {
			return nil, fmt.Errorf("%w: device kind is %T", ErrMalformedResult, k)
		}
		counts[kind]++
	}
	fields := make(map[string]model.Value, len(counts))
	for kind, n := range counts {
		fields[kind] = model.Int(n)
	}
	return model.Signals{"Media Devices": model.Map(fields)}, nil
}

// decodeCanvas replaces each canvas data URL with the digest of its image bytes.
func decodeCanvas(h digest.Hasher) decoder {
	return func(raw map[string]any) (model.Signals, error) {
		signals := make(model.Signals, len(raw))
		for category, v := range raw {
			if v == nil {
				signals[category] = model.Unavailable()
				continue
			}
			url, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s is %T", ErrMalformedResult, category, v)
			}
			image, err := decodeDataURL(url)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", category, err)
			}
			signals[category] = model.String(h.Digest(string(image)))
		}
		return signals, nil
	}
}

func decodeDataURL(url string) ([]byte, error) {
	meta, payload, ok := strings.Cut(url, ",")
	if !ok || !strings.HasPrefix(meta, "data:") || !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("%w: not a base64 data URL", ErrMalformedResult)
	}
	image, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResult, err)
	}
	return image, nil
}
