package recognizer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/skywave/skywave/internal/history"
)

// Log is the deduplicated track log the loop appends to.
type Log interface {
	Append(e history.Entry) error
	Last() (history.Entry, bool)
}

// Options configures the Loop.
type Options struct {
	Client Client
	Source Source
	Log    Log
	Logger *slog.Logger

	// Interval is the recognition cadence. Tunable; the default balances
	// detection latency against load on the recognition service.
	Interval time.Duration
	// SampleDuration is the audio window handed to the client per cycle.
	SampleDuration time.Duration
}

const (
	defaultInterval       = 45 * time.Second
	defaultSampleDuration = 12 * time.Second

	// MinSampleDuration is the shortest window worth fingerprinting;
	// anything below it rarely identifies.
	MinSampleDuration = 5 * time.Second
)

// Loop runs the recognition cycle: sample, identify, dedup, log. It is the
// only writer of its Status and of the history log, and it never blocks or
// interrupts playback — its sole contact with the audio path is the
// read-only Source.
type Loop struct {
	opts    Options
	updates chan Status
	trigger chan struct{}
	done    chan struct{}
	now     func() time.Time

	mu        sync.Mutex
	status    Status
	sampleDur time.Duration
}

// NewLoop creates a Loop. Client, Source and Log are required.
func NewLoop(opts Options) *Loop {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Interval == 0 {
		opts.Interval = defaultInterval
	}
	if opts.SampleDuration == 0 {
		opts.SampleDuration = defaultSampleDuration
	}
	return &Loop{
		opts:      opts,
		updates:   make(chan Status, 8),
		trigger:   make(chan struct{}, 1),
		done:      make(chan struct{}),
		now:       time.Now,
		sampleDur: opts.SampleDuration,
	}
}

// Updates returns the status channel. Sends never block the loop; a slow
// consumer misses intermediate transitions, not the latest Status().
func (l *Loop) Updates() <-chan Status { return l.updates }

// Status returns a copy of the current status.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// SampleDuration returns the audio window used per cycle.
func (l *Loop) SampleDuration() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sampleDur
}

// SetSampleDuration changes the window for subsequent cycles. Values below
// MinSampleDuration are raised to it; a cycle already in flight keeps the
// window it started with.
func (l *Loop) SetSampleDuration(d time.Duration) {
	if d < MinSampleDuration {
		d = MinSampleDuration
	}
	l.mu.Lock()
	l.sampleDur = d
	l.mu.Unlock()
}

// TriggerNow requests an immediate cycle. Ignored while a cycle is already
// running or another trigger is pending.
func (l *Loop) TriggerNow() {
	select {
	case l.trigger <- struct{}{}:
	default:
	}
}

// Run executes cycles until ctx is cancelled. It owns all loop state; run it
// on exactly one goroutine.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-l.trigger:
		}

		if l.opts.Source.Playing() {
			l.cycle(ctx)
		}

		// A tick that fired while the cycle was busy is dropped, never
		// queued: cycles that overrun the cadence skip a beat.
		select {
		case <-ticker.C:
		default:
		}
		select {
		case <-l.trigger:
		default:
		}
	}
}

// Wait blocks until Run has returned, or until the grace period elapses.
// Call it after cancelling Run's context so a stalled recognition call
// cannot hang shutdown.
func (l *Loop) Wait(grace time.Duration) {
	select {
	case <-l.done:
	case <-time.After(grace):
		l.opts.Logger.Warn("recognition loop did not stop within grace period",
			slog.Duration("grace", grace))
	}
}

func (l *Loop) cycle(ctx context.Context) {
	l.transition(func(s *Status) { s.State = StateSampling })

	sample, err := l.opts.Source.Sample(l.SampleDuration())
	if err != nil {
		// Not enough audio buffered yet; wait for the next interval.
		l.opts.Logger.Debug("sample unavailable, skipping cycle", slog.Any("err", err))
		l.transition(func(s *Status) {
			s.State = StateIdle
			s.Outcome = OutcomeSkipped
			s.At = l.now()
		})
		return
	}

	l.transition(func(s *Status) { s.State = StateRecognizing })

	track, err := l.opts.Client.Identify(ctx, sample)
	now := l.now()

	var outcome Outcome
	var cause error
	switch {
	case err == nil:
		outcome = OutcomeMatch
		if last, ok := l.opts.Log.Last(); ok && last.Same(history.Entry{Artist: track.Artist, Title: track.Title}) {
			outcome = OutcomeRepeat
		} else if aerr := l.opts.Log.Append(history.Entry{Time: now, Artist: track.Artist, Title: track.Title}); aerr != nil {
			// Skip persistence this cycle; the next match retries naturally.
			// The match still counts, but the error rides along in Status so
			// the UI can warn about it.
			cause = aerr
			l.opts.Logger.Warn("history append failed", slog.Any("err", aerr))
		}
		l.opts.Logger.Info("track identified",
			slog.String("artist", track.Artist),
			slog.String("title", track.Title),
			slog.String("outcome", outcome.String()))
	case ctx.Err() != nil:
		// Shutdown mid-recognition; report nothing.
		return
	case errors.Is(err, ErrNoMatch):
		outcome = OutcomeNoMatch
		l.opts.Logger.Debug("no match for sample")
	default:
		outcome = OutcomeFailure
		cause = err
		l.opts.Logger.Warn("recognition failed", slog.Any("err", err))
	}

	l.transition(func(s *Status) {
		s.State = StateCooldown
		s.Outcome = outcome
		s.Err = cause
		s.At = now
		if outcome == OutcomeMatch || outcome == OutcomeRepeat {
			s.Current = track
		}
	})

	// Cooldown is transient: re-arm immediately after notifying.
	l.transition(func(s *Status) { s.State = StateIdle })
}

func (l *Loop) transition(mutate func(*Status)) {
	l.mu.Lock()
	mutate(&l.status)
	snapshot := l.status
	l.mu.Unlock()

	select {
	case l.updates <- snapshot:
	default:
	}
}
