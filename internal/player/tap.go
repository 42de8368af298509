package player

import (
	"errors"
	"sync"
	"time"
)

// ErrInsufficientBuffer is returned by Snapshot when less audio has been
// buffered than the requested window. Callers should retry on a later cycle
// rather than recognize truncated audio.
var ErrInsufficientBuffer = errors.New("not enough audio buffered")

// Tap is a read-only view into the most recently played audio. The decode
// path tees the raw encoded stream bytes into a bounded ring buffer where
// new audio overwrites the oldest; Snapshot copies a chronological window
// out without ever blocking the writer for more than a short memcpy.
type Tap struct {
	mu     sync.Mutex
	buf    []byte
	pos    int
	filled int
	bps    int // encoded bytes per second
}

// NewTap creates a tap holding the most recent capacity of audio, sized from
// the stream bitrate.
func NewTap(capacity time.Duration, bitrateKbps int) *Tap {
	bps := bitrateKbps * 1000 / 8
	n := int(capacity / time.Second * time.Duration(bps))
	if n <= 0 {
		n = bps
	}
	return &Tap{buf: make([]byte, n), bps: bps}
}

// Write feeds stream bytes into the ring. It always accepts the full slice
// and never blocks on readers, so it is safe to place on the decode path via
// an io.TeeReader.
func (t *Tap) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(p)
	// Only the last len(buf) bytes can survive anyway.
	if n > len(t.buf) {
		p = p[n-len(t.buf):]
	}
	for len(p) > 0 {
		c := copy(t.buf[t.pos:], p)
		t.pos = (t.pos + c) % len(t.buf)
		p = p[c:]
	}
	if t.filled < len(t.buf) {
		t.filled += n
		if t.filled > len(t.buf) {
			t.filled = len(t.buf)
		}
	}
	return n, nil
}

// Snapshot returns the most recent d of audio in chronological order, or
// ErrInsufficientBuffer if that much has not been buffered yet.
func (t *Tap) Snapshot(d time.Duration) ([]byte, error) {
	need := int(d / time.Second * time.Duration(t.bps))
	if need <= 0 {
		return nil, ErrInsufficientBuffer
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if need > len(t.buf) || t.filled < need {
		return nil, ErrInsufficientBuffer
	}
	out := make([]byte, need)
	start := (t.pos - need + len(t.buf)) % len(t.buf)
	c := copy(out, t.buf[start:])
	copy(out[c:], t.buf[:start])
	return out, nil
}

// Buffered reports how much audio the tap currently holds.
func (t *Tap) Buffered() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Duration(t.filled) * time.Second / time.Duration(t.bps)
}
