// Package catalog lists the playable NTS streams: the two live channels and
// the on-demand mixtapes.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultBaseURL is the public NTS API host.
	DefaultBaseURL = "https://www.nts.live"

	liveStreamURL1 = "https://stream-mixtape-geo.ntslive.net/stream"
	liveStreamURL2 = "https://stream-mixtape-geo.ntslive.net/stream2"
)

// Stream is one playable catalog item.
type Stream struct {
	Name        string
	Subtitle    string
	Description string
	StreamURL   string
}

// Catalog is the full stream listing.
type Catalog struct {
	Channels []Stream
	Mixtapes []Stream
}

// Len returns the number of playable streams, channels first.
func (c Catalog) Len() int { return len(c.Channels) + len(c.Mixtapes) }

// At returns the stream at a flat index over channels then mixtapes.
func (c Catalog) At(i int) (Stream, bool) {
	if i < 0 || i >= c.Len() {
		return Stream{}, false
	}
	if i < len(c.Channels) {
		return c.Channels[i], true
	}
	return c.Mixtapes[i-len(c.Channels)], true
}

// Options configures the Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client fetches the catalog from the NTS API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{baseURL: opts.BaseURL, client: opts.HTTPClient, logger: opts.Logger}
}

type liveResponse struct {
	Results []struct {
		ChannelName string `json:"channel_name"`
		Now         struct {
			BroadcastTitle string `json:"broadcast_title"`
			Embeds         struct {
				Details struct {
					Description string `json:"description"`
				} `json:"details"`
			} `json:"embeds"`
		} `json:"now"`
	} `json:"results"`
}

type mixtapesResponse struct {
	Results []struct {
		Title               string `json:"title"`
		Subtitle            string `json:"subtitle"`
		Description         string `json:"description"`
		AudioStreamEndpoint string `json:"audio_stream_endpoint"`
	} `json:"results"`
}

// Fetch retrieves the current catalog.
func (c *Client) Fetch(ctx context.Context) (Catalog, error) {
	var cat Catalog

	var live liveResponse
	if err := c.get(ctx, "/api/v2/live", &live); err != nil {
		return Catalog{}, fmt.Errorf("fetch live channels: %w", err)
	}
	// The API does not expose the live stream endpoints; they are fixed.
	endpoints := []string{liveStreamURL1, liveStreamURL2}
	for i, r := range live.Results {
		if i >= len(endpoints) {
			break
		}
		cat.Channels = append(cat.Channels, Stream{
			Name:        fmt.Sprintf("NTS Live %d", i+1),
			Subtitle:    r.Now.BroadcastTitle,
			Description: r.Now.Embeds.Details.Description,
			StreamURL:   endpoints[i],
		})
	}

	var mixtapes mixtapesResponse
	if err := c.get(ctx, "/api/v2/mixtapes", &mixtapes); err != nil {
		return Catalog{}, fmt.Errorf("fetch mixtapes: %w", err)
	}
	for _, r := range mixtapes.Results {
		if r.AudioStreamEndpoint == "" {
			continue
		}
		cat.Mixtapes = append(cat.Mixtapes, Stream{
			Name:        r.Title,
			Subtitle:    r.Subtitle,
			Description: r.Description,
			StreamURL:   r.AudioStreamEndpoint,
		})
	}

	c.logger.Debug("catalog fetched",
		slog.Int("channels", len(cat.Channels)), slog.Int("mixtapes", len(cat.Mixtapes)))
	return cat, nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%s: decode: %w", path, err)
	}
	return nil
}

// NextRefresh returns how long to wait before refreshing the catalog: live
// broadcasts change on the hour, so refresh shortly after it.
func NextRefresh(now time.Time) time.Duration {
	next := now.Truncate(time.Hour).Add(time.Hour).Add(4 * time.Minute)
	return next.Sub(now)
}
