// Package probe takes single open/closed observations of the monitored status page.
package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"hourswatch/internal/storage"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultExcerptLimit = 1000
)

// PageLoader returns the rendered content of a page.
type PageLoader interface {
	Load(ctx context.Context, url string) (string, error)
}

// Session is a probe resource that must be acquired before loading pages
// and released afterwards, such as a browser process.
type Session interface {
	Open(ctx context.Context) error
	Close() error
}

// Observer takes one observation of the restaurant page.
type Observer interface {
	Observe(ctx context.Context, schedule storage.ResourceSchedule) storage.Sample
}

// Options parameterise the probe.
type Options struct {
	Timeout      time.Duration
	ExcerptLimit int
}

// Probe decides open/closed from page content.
type Probe struct {
	opts   Options
	loader PageLoader
	logger zerolog.Logger
	now    func() time.Time
}

// New builds a probe around a page loader.
func New(opts Options, loader PageLoader, logger zerolog.Logger) *Probe {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.ExcerptLimit <= 0 {
		opts.ExcerptLimit = defaultExcerptLimit
	}
	return &Probe{
		opts:   opts,
		loader: loader,
		logger: logger.With().Str("component", "probe").Logger(),
		now:    time.Now,
	}
}

// Open acquires the loader's session, if it has one.
func (p *Probe) Open(ctx context.Context) error {
	if s, ok := p.loader.(Session); ok {
		return s.Open(ctx)
	}
	return nil
}

// Close releases the loader's session, if it has one.
func (p *Probe) Close() error {
	if s, ok := p.loader.(Session); ok {
		return s.Close()
	}
	return nil
}

// Observe loads the schedule's page and reports whether the restaurant is open.
// It never fails: load errors are returned as a closed sample carrying the cause.
func (p *Probe) Observe(ctx context.Context, schedule storage.ResourceSchedule) storage.Sample {
	started := p.now()

	content, err := p.load(ctx, schedule.URL)
	finished := p.now()
	latency := finished.Sub(started).Milliseconds()
	if latency < 0 {
		latency = 0
	}

	sample := storage.Sample{
		Timestamp:      finished.UTC(),
		ResponseTimeMS: &latency,
	}

	if err != nil {
		msg := err.Error()
		sample.ErrorMessage = &msg
		p.logger.Warn().Err(err).Str("url", schedule.URL).Int64("response_ms", latency).Msg("probe failed")
		return sample
	}

	sample.IsOpen = !strings.Contains(content, schedule.ClosedIndicator)
	excerpt := truncateRunes(content, p.opts.ExcerptLimit)
	sample.ContentExcerpt = &excerpt

	p.logger.Info().Bool("open", sample.IsOpen).Int64("response_ms", latency).Msg("status check")
	return sample
}

type loadResult struct {
	content string
	err     error
}

// load enforces the timeout even for loaders that ignore their context.
func (p *Probe) load(ctx context.Context, url string) (string, error) {
	if p.loader == nil {
		return "", errors.New("page loader not configured")
	}
	if url == "" {
		return "", errors.New("restaurant url not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	done := make(chan loadResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- loadResult{err: fmt.Errorf("page loader panic: %v", r)}
			}
		}()
		content, err := p.loader.Load(ctx, url)
		done <- loadResult{content: content, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() != nil {
			return "", fmt.Errorf("load %s: %w", url, ctx.Err())
		}
		return res.content, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("load %s: %w", url, ctx.Err())
	}
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	i := 0
	for pos := range s {
		if i == limit {
			return s[:pos]
		}
		i++
	}
	return s
}

var (
	_ Observer = (*Probe)(nil)
	_ Session  = (*Probe)(nil)
)
