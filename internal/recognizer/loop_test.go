package recognizer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skywave/skywave/internal/history"
)

type fakeSource struct {
	playing   atomic.Bool
	sampleErr error
	samples   atomic.Int32
	lastDur   atomic.Int64
}

func (s *fakeSource) Playing() bool { return s.playing.Load() }

func (s *fakeSource) Sample(d time.Duration) ([]byte, error) {
	s.lastDur.Store(int64(d))
	s.samples.Add(1)
	if s.sampleErr != nil {
		return nil, s.sampleErr
	}
	return make([]byte, 64), nil
}

type identifyResult struct {
	track Track
	err   error
}

// fakeClient replays scripted results in order, repeating the last one.
type fakeClient struct {
	mu     sync.Mutex
	script []identifyResult
	next   int
	delay  time.Duration

	calls       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (c *fakeClient) Identify(ctx context.Context, sample []byte) (Track, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	if n > c.maxInFlight.Load() {
		c.maxInFlight.Store(n)
	}
	c.calls.Add(1)

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return Track{}, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.script) == 0 {
		return Track{}, ErrNoMatch
	}
	r := c.script[c.next]
	if c.next < len(c.script)-1 {
		c.next++
	}
	return r.track, r.err
}

type memLog struct {
	mu        sync.Mutex
	entries   []history.Entry
	appendErr error
}

func (l *memLog) Append(e history.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.appendErr != nil {
		return l.appendErr
	}
	l.entries = append(l.entries, e)
	return nil
}

func (l *memLog) Last() (history.Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return history.Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

func (l *memLog) all() []history.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]history.Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func testLoop(client *fakeClient, source *fakeSource, log *memLog, interval time.Duration) *Loop {
	return NewLoop(Options{
		Client:         client,
		Source:         source,
		Log:            log,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Interval:       interval,
		SampleDuration: time.Second,
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition never met")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestConsecutiveIdenticalResultsAreNotAppended(t *testing.T) {
	prev := history.Entry{Time: time.Now().Add(-time.Hour), Artist: "Artist A", Title: "Track 1"}
	log := &memLog{entries: []history.Entry{prev}}

	client := &fakeClient{script: []identifyResult{
		{track: Track{Artist: "Artist A", Title: "Track 1"}},
		{track: Track{Artist: "Artist A", Title: "Track 1"}},
		{track: Track{Artist: "Artist A", Title: "Track 1"}},
		{track: Track{Artist: "Artist B", Title: "Track 2"}},
	}}
	source := &fakeSource{}
	source.playing.Store(true)

	loop := testLoop(client, source, log, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	waitFor(t, func() bool { return client.calls.Load() >= 4 })
	cancel()
	loop.Wait(time.Second)

	entries := log.all()
	if len(entries) != 2 {
		t.Fatalf("expected exactly one new entry, got %d total", len(entries))
	}
	if entries[1].Artist != "Artist B" || entries[1].Title != "Track 2" {
		t.Errorf("unexpected appended entry: %+v", entries[1])
	}
	if entries[1].Time.Before(entries[0].Time) {
		t.Error("timestamps must be non-decreasing")
	}
	if got := loop.Status().Current; got.Title != "Track 2" {
		t.Errorf("expected current track updated, got %+v", got)
	}
}

func TestInsufficientBufferSkipsRecognition(t *testing.T) {
	log := &memLog{}
	client := &fakeClient{}
	source := &fakeSource{sampleErr: errors.New("not enough audio buffered")}
	source.playing.Store(true)

	loop := testLoop(client, source, log, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	waitFor(t, func() bool { return source.samples.Load() >= 3 })
	cancel()
	loop.Wait(time.Second)

	if got := client.calls.Load(); got != 0 {
		t.Fatalf("client must not be called when sampling fails, got %d calls", got)
	}
	if st := loop.Status(); st.Outcome != OutcomeSkipped || st.State != StateIdle {
		t.Errorf("expected skipped/idle status, got %+v", st)
	}
}

func TestAtMostOneRecognitionInFlight(t *testing.T) {
	log := &memLog{}
	client := &fakeClient{
		delay:  40 * time.Millisecond,
		script: []identifyResult{{err: ErrNoMatch}},
	}
	source := &fakeSource{}
	source.playing.Store(true)

	// Interval far shorter than the client delay: ticks fire while a cycle
	// is still recognizing and must be skipped, not queued.
	loop := testLoop(client, source, log, 2*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	time.Sleep(250 * time.Millisecond)
	cancel()
	loop.Wait(time.Second)

	if got := client.maxInFlight.Load(); got != 1 {
		t.Fatalf("expected at most one in-flight recognition, saw %d", got)
	}
	// ~6 full cycles fit in 250ms; anywhere near the tick count means ticks
	// were queued instead of skipped.
	if got := client.calls.Load(); got > 20 {
		t.Errorf("expected overlapping ticks to be skipped, got %d calls", got)
	}
}

func TestFailuresAreAbsorbed(t *testing.T) {
	log := &memLog{}
	client := &fakeClient{script: []identifyResult{{err: ErrTimeout}}}
	source := &fakeSource{}
	source.playing.Store(true)

	loop := testLoop(client, source, log, 5*time.Millisecond)

	var mu sync.Mutex
	var seen []Status
	go func() {
		for st := range loop.Updates() {
			mu.Lock()
			seen = append(seen, st)
			mu.Unlock()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	waitFor(t, func() bool { return client.calls.Load() >= 5 })
	cancel()
	loop.Wait(time.Second)

	if len(log.all()) != 0 {
		t.Error("failed cycles must not touch the history log")
	}

	mu.Lock()
	defer mu.Unlock()
	var sawRecognizing, sawFailureCooldown, sawIdleAfter bool
	for _, st := range seen {
		switch {
		case st.State == StateRecognizing:
			sawRecognizing = true
		case st.State == StateCooldown && st.Outcome == OutcomeFailure:
			sawFailureCooldown = true
			if !errors.Is(st.Err, ErrTimeout) {
				t.Errorf("expected timeout cause in status, got %v", st.Err)
			}
		case sawFailureCooldown && st.State == StateIdle:
			sawIdleAfter = true
		}
	}
	if !sawRecognizing || !sawFailureCooldown || !sawIdleAfter {
		t.Errorf("incomplete failure cycle: recognizing=%v cooldown=%v idle=%v",
			sawRecognizing, sawFailureCooldown, sawIdleAfter)
	}
}

func TestLoopSuspendsWhilePlaybackInactive(t *testing.T) {
	log := &memLog{}
	client := &fakeClient{}
	source := &fakeSource{} // not playing

	loop := testLoop(client, source, log, 2*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	cancel()
	loop.Wait(time.Second)

	if source.samples.Load() != 0 || client.calls.Load() != 0 {
		t.Errorf("expected no sampling while stopped, got %d samples %d calls",
			source.samples.Load(), client.calls.Load())
	}
}

func TestAppendFailureDoesNotStopTheLoop(t *testing.T) {
	appendErr := errors.New("disk full")
	log := &memLog{appendErr: appendErr}
	client := &fakeClient{script: []identifyResult{
		{track: Track{Artist: "Artist A", Title: "Track 1"}},
	}}
	source := &fakeSource{}
	source.playing.Store(true)

	loop := testLoop(client, source, log, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	waitFor(t, func() bool { return client.calls.Load() >= 3 })
	cancel()
	loop.Wait(time.Second)

	st := loop.Status()
	if st.Current.Title != "Track 1" {
		t.Errorf("expected status to carry the identification despite append failure, got %+v", st)
	}
	if st.Outcome != OutcomeMatch {
		t.Errorf("expected match outcome, got %v", st.Outcome)
	}
	if !errors.Is(st.Err, appendErr) {
		t.Errorf("expected append error in status, got %v", st.Err)
	}
}

func TestTriggerNowRunsACycleImmediately(t *testing.T) {
	log := &memLog{}
	client := &fakeClient{script: []identifyResult{
		{track: Track{Artist: "Artist A", Title: "Track 1"}},
	}}
	source := &fakeSource{}
	source.playing.Store(true)

	loop := testLoop(client, source, log, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	loop.TriggerNow()
	waitFor(t, func() bool { return client.calls.Load() >= 1 })

	if len(log.all()) != 1 {
		t.Fatalf("expected one entry after manual trigger, got %d", len(log.all()))
	}
}

func TestSetSampleDurationAppliesToNextCycle(t *testing.T) {
	log := &memLog{}
	client := &fakeClient{script: []identifyResult{{err: ErrNoMatch}}}
	source := &fakeSource{}
	source.playing.Store(true)

	loop := testLoop(client, source, log, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	loop.SetSampleDuration(20 * time.Second)
	if got := loop.SampleDuration(); got != 20*time.Second {
		t.Fatalf("expected 20s window, got %v", got)
	}

	loop.TriggerNow()
	waitFor(t, func() bool { return source.samples.Load() >= 1 })
	if got := time.Duration(source.lastDur.Load()); got != 20*time.Second {
		t.Errorf("expected sample with 20s window, got %v", got)
	}
}

func TestSetSampleDurationEnforcesFloor(t *testing.T) {
	loop := testLoop(&fakeClient{}, &fakeSource{}, &memLog{}, time.Hour)
	loop.SetSampleDuration(time.Second)
	if got := loop.SampleDuration(); got != MinSampleDuration {
		t.Errorf("expected floor %v, got %v", MinSampleDuration, got)
	}
}

func TestShutdownAbandonsInFlightCall(t *testing.T) {
	log := &memLog{}
	client := &fakeClient{delay: 10 * time.Second} // stalls until cancelled
	source := &fakeSource{}
	source.playing.Store(true)

	loop := testLoop(client, source, log, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	loop.TriggerNow()
	waitFor(t, func() bool { return client.calls.Load() == 1 })

	start := time.Now()
	cancel()
	loop.Wait(3 * time.Second)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("shutdown took %v, expected prompt abandon of in-flight call", elapsed)
	}
	if len(log.all()) != 0 {
		t.Error("abandoned cycle must not append")
	}
}
