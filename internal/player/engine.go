// Package player owns the decode/output pipeline for a single radio stream
// and exposes a read-only tap over the audio it has recently played.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
)

var (
	// ErrStreamUnreachable means the stream URL could not be opened.
	ErrStreamUnreachable = errors.New("stream unreachable")
	// ErrDecode means the stream opened but is not decodable audio.
	ErrDecode = errors.New("undecodable audio stream")
	// ErrNotPlaying is returned by Sample when no stream is active.
	ErrNotPlaying = errors.New("nothing is playing")
)

// Stream is a playable stream: a display name plus a resolved URL.
type Stream struct {
	Name string
	URL  string
}

// EventKind classifies playback events.
type EventKind int

const (
	EventStarted EventKind = iota
	EventStopped
	EventInterrupted
	EventReconnected
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventInterrupted:
		return "interrupted"
	case EventReconnected:
		return "reconnected"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event describes a playback state change. EventInterrupted is recoverable;
// EventFailed is emitted exactly once, after the reconnect budget is spent.
type Event struct {
	Kind    EventKind
	Stream  Stream
	Attempt int
	Err     error
}

// DecodeFunc turns a raw stream body into a beep streamer. The default is
// MP3; tests substitute their own.
type DecodeFunc func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)

// Options configures the Engine.
type Options struct {
	Logger     *slog.Logger
	HTTPClient *http.Client
	Output     Output
	Decode     DecodeFunc

	// BufferSeconds is the tap ring capacity; it must cover the largest
	// sample window the recognition loop will request.
	BufferSeconds int
	// BitrateKbps sizes the tap ring and maps durations to byte counts.
	BitrateKbps int
	// ReconnectTries bounds automatic reconnects after a mid-stream drop.
	ReconnectTries int
	// ReconnectWait is the initial backoff delay; it doubles per attempt and
	// is capped at eight times this value.
	ReconnectWait time.Duration
	InitialVolume int
}

// Engine plays one stream at a time. Playback runs on the audio device's own
// goroutine and is never paused or blocked by tap reads.
type Engine struct {
	opts   Options
	events chan Event

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	tap      *Tap
	vol      *effects.Volume
	streamer beep.StreamSeekCloser
	current  Stream
	playing  bool
	volume   int
}

// New creates an Engine. Zero option fields get usable defaults.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HTTPClient == nil {
		// No client-level timeout: it would cut off the long-lived body.
		opts.HTTPClient = &http.Client{}
	}
	if opts.Output == nil {
		opts.Output = NewSpeakerOutput()
	}
	if opts.Decode == nil {
		opts.Decode = func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
			return mp3.Decode(rc)
		}
	}
	if opts.BufferSeconds == 0 {
		opts.BufferSeconds = 30
	}
	if opts.BitrateKbps == 0 {
		opts.BitrateKbps = 128
	}
	if opts.ReconnectTries == 0 {
		opts.ReconnectTries = 5
	}
	if opts.ReconnectWait == 0 {
		opts.ReconnectWait = time.Second
	}
	if opts.InitialVolume == 0 {
		opts.InitialVolume = 50
	}
	return &Engine{
		opts:   opts,
		events: make(chan Event, 16),
		volume: opts.InitialVolume,
	}
}

// Events returns the playback event channel.
func (e *Engine) Events() <-chan Event { return e.events }

// Play stops any current stream and starts s. ctx bounds the initial open
// only; after a nil return the stream outlives it. Play returns
// ErrStreamUnreachable or ErrDecode (wrapped) when the stream cannot be
// opened; once it returns nil, drops are handled by automatic reconnection
// and reported through Events.
func (e *Engine) Play(ctx context.Context, s Stream) error {
	e.Stop()

	runCtx, cancel := context.WithCancel(context.Background())
	tap := NewTap(time.Duration(e.opts.BufferSeconds)*time.Second, e.opts.BitrateKbps)

	// Tie the caller's ctx to the open, then detach so cancelling it later
	// does not tear down a stream that started fine.
	stop := context.AfterFunc(ctx, cancel)
	streamer, err := e.open(runCtx, s.URL, tap)
	stop()
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrStreamUnreachable, ctx.Err())
		}
		return err
	}
	if ctx.Err() != nil {
		cancel()
		_ = streamer.Close()
		return fmt.Errorf("%w: %v", ErrStreamUnreachable, ctx.Err())
	}

	done := make(chan struct{})
	e.mu.Lock()
	e.cancel = cancel
	e.done = done
	e.tap = tap
	e.streamer = streamer
	e.vol = e.wrapVolume(streamer)
	e.current = s
	e.playing = true
	e.mu.Unlock()

	go e.run(runCtx, s, done)

	e.opts.Logger.Info("playback started", slog.String("stream", s.Name), slog.String("url", s.URL))
	e.emit(Event{Kind: EventStarted, Stream: s})
	return nil
}

// Stop halts output. It is idempotent and always succeeds.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	done := e.done
	streamer := e.streamer
	current := e.current
	wasPlaying := e.playing
	e.cancel = nil
	e.done = nil
	e.streamer = nil
	e.vol = nil
	e.tap = nil
	e.playing = false
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	e.opts.Output.Clear()
	if done != nil {
		<-done
	}
	if streamer != nil {
		_ = streamer.Close()
	}
	if wasPlaying {
		e.opts.Logger.Info("playback stopped", slog.String("stream", current.Name))
		e.emit(Event{Kind: EventStopped, Stream: current})
	}
}

// Playing reports whether a stream is currently active.
func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// Current returns the active stream, valid only while Playing.
func (e *Engine) Current() Stream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Sample returns the most recent d of raw stream audio from the tap.
func (e *Engine) Sample(d time.Duration) ([]byte, error) {
	e.mu.Lock()
	tap := e.tap
	playing := e.playing
	e.mu.Unlock()
	if !playing || tap == nil {
		return nil, ErrNotPlaying
	}
	return tap.Snapshot(d)
}

// SetVolume sets playback volume in percent, clamped to 0..100.
func (e *Engine) SetVolume(v int) {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	e.mu.Lock()
	e.volume = v
	vol := e.vol
	e.mu.Unlock()
	if vol == nil {
		return
	}
	e.opts.Output.Lock()
	vol.Volume = gain(v)
	vol.Silent = v == 0
	e.opts.Output.Unlock()
}

// Volume returns the current volume in percent.
func (e *Engine) Volume() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

func (e *Engine) open(ctx context.Context, url string, tap *Tap) (beep.StreamSeekCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamUnreachable, err)
	}
	resp, err := e.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %s", ErrStreamUnreachable, resp.Status)
	}

	rc := teeCloser{Reader: io.TeeReader(resp.Body, tap), Closer: resp.Body}
	streamer, format, err := e.opts.Decode(rc)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := e.opts.Output.Init(format.SampleRate, format.SampleRate.N(100*time.Millisecond)); err != nil {
		_ = streamer.Close()
		return nil, fmt.Errorf("init audio output: %w", err)
	}
	return streamer, nil
}

// run supervises one Play session: it hands the stream to the output and,
// when the stream ends unexpectedly, drives the reconnect cycle.
func (e *Engine) run(ctx context.Context, s Stream, done chan struct{}) {
	defer close(done)
	for {
		if ctx.Err() != nil {
			return
		}

		e.mu.Lock()
		vol := e.vol
		e.mu.Unlock()
		if vol == nil {
			return
		}

		end := make(chan struct{})
		e.opts.Output.Clear()
		e.opts.Output.Play(beep.Seq(vol, beep.Callback(func() { close(end) })))

		select {
		case <-ctx.Done():
			return
		case <-end:
		}
		if ctx.Err() != nil {
			return
		}

		e.mu.Lock()
		old := e.streamer
		e.mu.Unlock()
		var cause error
		if old != nil {
			cause = old.Err()
			_ = old.Close()
		}
		e.opts.Logger.Warn("stream interrupted",
			slog.String("stream", s.Name), slog.Any("err", cause))
		e.emit(Event{Kind: EventInterrupted, Stream: s, Err: cause})

		if !e.reconnect(ctx, s) {
			if ctx.Err() == nil {
				e.mu.Lock()
				e.playing = false
				e.mu.Unlock()
				e.opts.Logger.Error("playback failed, reconnect budget spent",
					slog.String("stream", s.Name), slog.Int("tries", e.opts.ReconnectTries))
				e.emit(Event{Kind: EventFailed, Stream: s, Err: cause})
			}
			return
		}
	}
}

func (e *Engine) reconnect(ctx context.Context, s Stream) bool {
	delay := e.opts.ReconnectWait
	maxDelay := 8 * e.opts.ReconnectWait
	for attempt := 1; attempt <= e.opts.ReconnectTries; attempt++ {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		e.mu.Lock()
		tap := e.tap
		e.mu.Unlock()
		if tap == nil {
			return false
		}

		streamer, err := e.open(ctx, s.URL, tap)
		if err == nil {
			if ctx.Err() != nil {
				_ = streamer.Close()
				return false
			}
			e.mu.Lock()
			e.streamer = streamer
			e.vol = e.wrapVolume(streamer)
			e.mu.Unlock()
			e.opts.Logger.Info("stream reconnected",
				slog.String("stream", s.Name), slog.Int("attempt", attempt))
			e.emit(Event{Kind: EventReconnected, Stream: s, Attempt: attempt})
			return true
		}
		e.opts.Logger.Warn("reconnect attempt failed",
			slog.String("stream", s.Name), slog.Int("attempt", attempt),
			slog.Duration("delay", delay), slog.Any("err", err))

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return false
}

func (e *Engine) wrapVolume(s beep.Streamer) *effects.Volume {
	return &effects.Volume{
		Streamer: s,
		Base:     2,
		Volume:   gain(e.volume),
		Silent:   e.volume == 0,
	}
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.opts.Logger.Debug("player event dropped", slog.String("kind", ev.Kind.String()))
	}
}

// gain maps 0..100 percent onto a base-2 exponent: 100 is unity, each 20
// points halves the power.
func gain(v int) float64 {
	return (float64(v) - 100) / 20
}

type teeCloser struct {
	io.Reader
	io.Closer
}
