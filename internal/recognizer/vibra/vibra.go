// Package vibra matches audio samples through the vibra command-line
// fingerprinting tool, which fronts the Shazam recognition service.
package vibra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/skywave/skywave/internal/recognizer"
)

const (
	// DefaultPath is the binary looked up on PATH when none is configured.
	DefaultPath = "vibra"
	// DefaultTimeout bounds one recognition call end to end. Tunable; it
	// must stay comfortably below the recognition cadence.
	DefaultTimeout = 12 * time.Second
	// pipeDrainDelay is how long after the deadline the child's pipes are
	// forcibly closed when an orphaned helper keeps them open.
	pipeDrainDelay = time.Second
)

// Options configures the Client.
type Options struct {
	Path    string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client shells out to vibra once per Identify call. It keeps no state and
// caches nothing; deduplication is the recognition loop's job.
type Client struct {
	path    string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{path: opts.Path, timeout: opts.Timeout, logger: opts.Logger}
}

// Identify writes the sample to a temp file and runs vibra over it. It
// returns recognizer.ErrTimeout when the call exceeds the configured
// timeout and recognizer.ErrNoMatch on a clean miss.
func (c *Client) Identify(ctx context.Context, sample []byte) (recognizer.Track, error) {
	if len(sample) == 0 {
		return recognizer.Track{}, errors.New("empty sample")
	}

	f, err := os.CreateTemp("", "skywave-sample-*.mp3")
	if err != nil {
		return recognizer.Track{}, fmt.Errorf("create sample file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(sample); err != nil {
		f.Close()
		return recognizer.Track{}, fmt.Errorf("write sample file: %w", err)
	}
	if err := f.Close(); err != nil {
		return recognizer.Track{}, fmt.Errorf("close sample file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, c.path, "-R", "--file", f.Name())
	// The context kill only reaches the direct child. Any helper it spawned
	// still holds the stdout pipe, so force the pipes closed shortly after
	// the deadline instead of waiting for the whole process tree to exit.
	cmd.WaitDelay = pipeDrainDelay
	out, err := cmd.Output()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.logger.Debug("vibra timed out", slog.Duration("timeout", c.timeout))
		return recognizer.Track{}, recognizer.ErrTimeout
	}
	if err != nil {
		return recognizer.Track{}, fmt.Errorf("run %s: %w", c.path, err)
	}
	c.logger.Debug("vibra finished",
		slog.Duration("took", time.Since(start)), slog.Int("sample_bytes", len(sample)))

	return parseResponse(out)
}

// response mirrors the fields of the Shazam payload vibra prints. A missing
// track object means the sample matched nothing.
type response struct {
	Track *struct {
		Title    string `json:"title"`
		Subtitle string `json:"subtitle"`
	} `json:"track"`
}

func parseResponse(out []byte) (recognizer.Track, error) {
	var resp response
	if err := json.Unmarshal(out, &resp); err != nil {
		return recognizer.Track{}, fmt.Errorf("parse vibra output: %w", err)
	}
	if resp.Track == nil || resp.Track.Title == "" {
		return recognizer.Track{}, recognizer.ErrNoMatch
	}
	// Shazam's "subtitle" carries the artist.
	return recognizer.Track{Artist: resp.Track.Subtitle, Title: resp.Track.Title}, nil
}
