package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrAlreadyStarted is returned by Start when the scheduler is not stopped.
	ErrAlreadyStarted = errors.New("scheduler already started")
	// ErrStoppedDuringStart is returned by Start when Stop raced the session open.
	ErrStoppedDuringStart = errors.New("scheduler stopped during start")
)

// TickFunc is invoked on every aligned interval.
type TickFunc func(ctx context.Context, bucket time.Time) error

// Session is the probe resource owned for the lifetime of a run.
type Session interface {
	Open(ctx context.Context) error
	Close() error
}

// State is the lifecycle phase of a Scheduler.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options tune scheduler behaviour.
type Options struct {
	Interval       time.Duration
	AlignToStart   bool
	StartupDelay   time.Duration
	RunImmediately bool
}

// Scheduler drives aligned execution of status checks.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	state   State
	session Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// State reports the current lifecycle phase.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start opens the session and runs the tick loop in the background until Stop.
// A failed session open leaves the scheduler stopped with the session released.
func (s *Scheduler) Start(ctx context.Context, session Session, tick TickFunc) error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.mu.Unlock()

	if session != nil {
		if err := session.Open(ctx); err != nil {
			if cerr := session.Close(); cerr != nil {
				s.logger.Warn().Err(cerr).Msg("release partially opened session")
			}
			s.setState(StateStopped)
			return fmt.Errorf("open probe session: %w", err)
		}
	}

	s.mu.Lock()
	if s.state != StateStarting {
		s.state = StateStopped
		s.mu.Unlock()
		if session != nil {
			_ = session.Close()
		}
		return ErrStoppedDuringStart
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.session = session
	s.cancel = cancel
	s.done = done
	s.state = StateRunning
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := s.Run(runCtx, tick); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("scheduler loop exited")
		}
	}()

	s.logger.Info().Dur("interval", s.opts.Interval).Bool("align", s.opts.AlignToStart).Msg("scheduler started")
	return nil
}

// Stop cancels the timer, waits for an in-flight tick and releases the session.
// It is safe to call at any point, including when Start never ran or failed.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	switch s.state {
	case StateStopped, StateStopping:
		s.mu.Unlock()
		return nil
	case StateStarting:
		// Start notices and releases the session itself
		s.state = StateStopping
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	cancel, done, session := s.cancel, s.done, s.session
	s.mu.Unlock()

	cancel()
	<-done

	var err error
	if session != nil {
		if err = session.Close(); err != nil {
			err = fmt.Errorf("close probe session: %w", err)
		}
	}

	s.mu.Lock()
	s.state = StateStopped
	s.session, s.cancel, s.done = nil, nil, nil
	s.mu.Unlock()

	s.logger.Info().Msg("scheduler stopped")
	return err
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run blocks, invoking the tick function at each aligned interval until ctx is cancelled.
// Ticks run one at a time; buckets missed while a tick is running are skipped.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.opts.RunImmediately {
		s.execute(ctx, tick, time.Now().UTC())
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_bucket", next).Msg("waiting for next bucket")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		s.execute(ctx, tick, s.bucketStart(next))
		next = next.Add(s.opts.Interval)
	}
}

// execute runs one tick. Stop does not abort a tick that has already begun.
func (s *Scheduler) execute(ctx context.Context, tick TickFunc, bucket time.Time) {
	s.logger.Info().Time("bucket", bucket).Msg("executing scheduled tick")

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Time("bucket", bucket).Msg("tick panicked")
		}
	}()

	tickCtx := context.WithoutCancel(ctx)
	if err := tick(tickCtx, bucket); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("tick execution failed")
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) bucketStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
