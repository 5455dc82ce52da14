package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"golang.org/x/net/netutil"
)

// ErrNoHeaders is returned when the page server did not see the request of
// a tab, e.g. because the browser served it from a cache.
var ErrNoHeaders = errors.New("page request was not observed")

// Page runs work in a fresh browser tab pointed at the probe page.
type Page interface {
	// Evaluate loads the probe page, runs script and decodes its JSON
	// result into out. Promises are awaited.
	Evaluate(ctx context.Context, script string, out any) error

	// Headers loads the probe page and returns the request headers the
	// browser sent for it.
	Headers(ctx context.Context) (http.Header, error)
}

// page is the document every tab loads. Font detection needs a body.
const page = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>devprint</title></head>
<body></body>
</html>
`

const (
	defaultMaxConnections = 16
	defaultWindowWidth    = 1920
	defaultWindowHeight   = 1080
)

type sessionConfig struct {
	execPath       string
	headless       bool
	maxConnections int
	width, height  int
	logger         *slog.Logger
}

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

// WithExecPath sets the Chrome or Chromium binary. By default chromedp
// searches the usual install locations.
func WithExecPath(path string) SessionOption {
	return func(c *sessionConfig) {
		c.execPath = path
	}
}

// WithHeadless controls whether the browser runs without a window.
// Default is true.
func WithHeadless(headless bool) SessionOption {
	return func(c *sessionConfig) {
		c.headless = headless
	}
}

// WithMaxConnections caps concurrent connections to the page server.
func WithMaxConnections(n int) SessionOption {
	return func(c *sessionConfig) {
		if n > 0 {
			c.maxConnections = n
		}
	}
}

// WithWindowSize sets the browser window size reported by screen probes.
func WithWindowSize(width, height int) SessionOption {
	return func(c *sessionConfig) {
		if width > 0 && height > 0 {
			c.width, c.height = width, height
		}
	}
}

// WithSessionLogger sets a custom logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(c *sessionConfig) {
		c.logger = logger
	}
}

// Session owns a browser and the loopback server that serves the probe page.
// It is safe for concurrent use; every Evaluate and Headers call uses its
// own tab.
type Session struct {
	baseURL string
	server  *http.Server
	logger  *slog.Logger

	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	mu      sync.Mutex
	headers map[string]http.Header
}

// NewSession starts the page server and a browser.
// ctx bounds startup only; the session lives until Close.
func NewSession(ctx context.Context, opts ...SessionOption) (*Session, error) {
	cfg := sessionConfig{
		headless:       true,
		maxConnections: defaultMaxConnections,
		width:          defaultWindowWidth,
		height:         defaultWindowHeight,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	s := &Session{
		logger:  cfg.logger,
		headers: make(map[string]http.Header),
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen for probe page: %w", err)
	}
	s.baseURL = "http://" + ln.Addr().String()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.servePage)
	mux.HandleFunc("GET /h/{id}", s.serveRecordedPage)
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.server.Serve(netutil.LimitListener(ln, cfg.maxConnections)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("probe page server stopped", "error", err)
		}
	}()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(cfg.width, cfg.height),
	)
	if cfg.execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(cfg.execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	s.browserCtx, s.browserCancel, s.allocCancel = browserCtx, browserCancel, allocCancel

	stop := context.AfterFunc(ctx, browserCancel)
	err = chromedp.Run(browserCtx)
	stop()
	if err != nil {
		_ = s.Close() //nolint:errcheck // startup error takes precedence
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	s.logger.Debug("browser session started", "page", s.baseURL, "headless", cfg.headless)
	return s, nil
}

// URL returns the address of the probe page.
func (s *Session) URL() string {
	return s.baseURL + "/"
}

// Close stops the browser and the page server.
func (s *Session) Close() error {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop probe page server: %w", err)
	}
	return nil
}

// Evaluate implements Page.
func (s *Session) Evaluate(ctx context.Context, script string, out any) error {
	tab, cancel := s.tab(ctx)
	defer cancel()

	err := chromedp.Run(tab,
		chromedp.Navigate(s.URL()),
		chromedp.Evaluate(script, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	if err != nil {
		return contextError(ctx, err)
	}
	return nil
}

// Headers implements Page.
func (s *Session) Headers(ctx context.Context) (http.Header, error) {
	tab, cancel := s.tab(ctx)
	defer cancel()

	id := uuid.NewString()
	if err := chromedp.Run(tab, chromedp.Navigate(s.baseURL+"/h/"+id)); err != nil {
		return nil, contextError(ctx, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.headers[id]
	if !ok {
		return nil, ErrNoHeaders
	}
	delete(s.headers, id)
	return h, nil
}

// tab opens a new tab that is closed when ctx ends or cancel is called.
func (s *Session) tab(ctx context.Context) (context.Context, context.CancelFunc) {
	tab, cancel := chromedp.NewContext(s.browserCtx)
	stop := context.AfterFunc(ctx, cancel)
	return tab, func() {
		stop()
		cancel()
	}
}

func (s *Session) servePage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(page)) //nolint:errcheck // nothing to do if the tab went away
}

func (s *Session) serveRecordedPage(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.headers[r.PathValue("id")] = r.Header.Clone()
	s.mu.Unlock()
	s.servePage(w, r)
}

// contextError prefers the probe's context error so that timeouts are
// reported as such rather than as a browser failure.
func contextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
