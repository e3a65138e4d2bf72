package probe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// ChromeOptions parameterise the headless browser loader.
type ChromeOptions struct {
	ExecPath    string
	UserAgent   string
	SettleDelay time.Duration
}

// ChromeLoader renders pages in a headless Chrome so client-side content is present.
// The browser is started by Open and torn down by Close; every Load uses its own tab.
type ChromeLoader struct {
	opts   ChromeOptions
	logger zerolog.Logger

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// NewChromeLoader constructs a loader; call Open before Load.
func NewChromeLoader(opts ChromeOptions, logger zerolog.Logger) *ChromeLoader {
	return &ChromeLoader{opts: opts, logger: logger.With().Str("component", "chrome_loader").Logger()}
}

// Open launches the browser. Calling Open twice is a no-op.
func (c *ChromeLoader) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browserCtx != nil {
		return nil
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
	)
	if c.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(c.opts.ExecPath))
	}
	if c.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(c.opts.UserAgent))
	}

	// the browser outlives the caller's context; Close owns its lifetime
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()
	select {
	case err := <-started:
		if err != nil {
			browserCancel()
			allocCancel()
			return fmt.Errorf("launch browser: %w", err)
		}
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return fmt.Errorf("launch browser: %w", ctx.Err())
	}

	c.browserCtx = browserCtx
	c.browserCancel = browserCancel
	c.allocCancel = allocCancel
	c.logger.Info().Msg("browser started")
	return nil
}

// Close shuts the browser down. It is safe to call when Open failed or never ran.
func (c *ChromeLoader) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browserCancel != nil {
		c.browserCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	if c.browserCtx != nil {
		c.logger.Info().Msg("browser stopped")
	}
	c.browserCtx, c.browserCancel, c.allocCancel = nil, nil, nil
	return nil
}

// Load opens a tab, waits for the page to settle and returns its HTML.
func (c *ChromeLoader) Load(ctx context.Context, url string) (string, error) {
	c.mu.Lock()
	browserCtx := c.browserCtx
	c.mu.Unlock()
	if browserCtx == nil {
		return "", errors.New("browser not initialized")
	}

	tabCtx, closeTab := chromedp.NewContext(browserCtx)
	defer closeTab()
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(c.opts.SettleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	return html, nil
}

var (
	_ PageLoader = (*ChromeLoader)(nil)
	_ Session    = (*ChromeLoader)(nil)
)
