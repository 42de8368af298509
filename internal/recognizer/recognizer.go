// Package recognizer identifies the currently playing track by sampling
// live audio on a fixed cadence and matching it against an external
// fingerprint service.
package recognizer

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoMatch means the sample was processed but matched nothing.
	ErrNoMatch = errors.New("no match")
	// ErrTimeout means the recognition call exceeded its deadline.
	ErrTimeout = errors.New("recognition timed out")
)

// Track is an identified recording.
type Track struct {
	Artist string
	Title  string
}

// Client matches one audio sample against a fingerprint database. Identify
// must enforce its own timeout and return ErrTimeout instead of blocking;
// ErrNoMatch reports a clean miss. Clients do no retries and no caching —
// both are the Loop's call.
type Client interface {
	Identify(ctx context.Context, sample []byte) (Track, error)
}

// Source is the playback side the loop samples from.
type Source interface {
	// Playing reports whether audio is currently being played. While false
	// the loop suspends entirely.
	Playing() bool
	// Sample returns the most recent d of raw audio. Any error means "skip
	// this cycle"; player.ErrInsufficientBuffer is the expected one shortly
	// after playback starts.
	Sample(d time.Duration) ([]byte, error)
}

// State is the loop's observable position in its cycle.
type State int

const (
	StateIdle State = iota
	StateSampling
	StateRecognizing
	StateCooldown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSampling:
		return "sampling"
	case StateRecognizing:
		return "recognizing"
	case StateCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Outcome classifies the most recently completed cycle.
type Outcome int

const (
	// OutcomeNone means no cycle has completed yet.
	OutcomeNone Outcome = iota
	// OutcomeMatch means a new track was identified and logged.
	OutcomeMatch
	// OutcomeRepeat means the identified track equals the last logged one;
	// nothing was appended.
	OutcomeRepeat
	// OutcomeNoMatch means the sample matched nothing.
	OutcomeNoMatch
	// OutcomeFailure means the recognition call failed; see Status.Err.
	OutcomeFailure
	// OutcomeSkipped means the cycle ended early, before recognition ran.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeMatch:
		return "match"
	case OutcomeRepeat:
		return "repeat"
	case OutcomeNoMatch:
		return "no-match"
	case OutcomeFailure:
		return "failure"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Status is the loop's observable state value, published to the presentation
// layer on every transition. Current holds the latest identified track
// (repeats included) so "now playing" survives no-match cycles.
type Status struct {
	State   State
	Outcome Outcome
	Current Track
	Err     error
	At      time.Time
}
