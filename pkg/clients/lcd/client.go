package lcd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// maxChannelPages bounds pagination against gateways that keep returning the same key.
const maxChannelPages = 100

// StatusError is returned when the gateway answers with a non 2xx status.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lcd request %s failed with status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Client talks to the REST (LCD) gateway of a single chain.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("lcd base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid lcd base url %q: %w", baseURL, err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetIbcChannels walks every page of the channel listing and keeps the open channels.
func (c *Client) GetIbcChannels(ctx context.Context) ([]Channel, error) {
	var (
		channels []Channel
		nextKey  string
	)
	for page := 0; page < maxChannelPages; page++ {
		query := url.Values{}
		if nextKey != "" {
			query.Set("pagination.key", nextKey)
		}
		var resp channelsResponse
		if err := c.getJSON(ctx, channelsPath, query, &resp); err != nil {
			return nil, err
		}
		for _, channel := range resp.Channels {
			if channel.State == ChannelStateOpen {
				channels = append(channels, channel)
			}
		}
		if resp.Pagination.NextKey == "" || resp.Pagination.NextKey == nextKey {
			return channels, nil
		}
		nextKey = resp.Pagination.NextKey
	}
	log.Warn().Str("gateway", c.baseURL).Msg("[LcdClient] [GetIbcChannels] page limit reached")
	return channels, nil
}

// GetDenomTrace looks up an IBC denom hash. The "ibc/" prefix is optional.
func (c *Client) GetDenomTrace(ctx context.Context, hash string) (*DenomTrace, error) {
	hash = strings.TrimPrefix(strings.TrimSpace(hash), "ibc/")
	if hash == "" {
		return nil, fmt.Errorf("denom hash is required")
	}
	var resp denomTraceResponse
	if err := c.getJSON(ctx, denomTracesPath+url.PathEscape(hash), nil, &resp); err != nil {
		return nil, err
	}
	if resp.DenomTrace.BaseDenom == "" {
		return nil, fmt.Errorf("denom trace for %s has no base denom", hash)
	}
	return &resp.DenomTrace, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{URL: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}
	log.Debug().Str("url", endpoint).Msg("[LcdClient] [getJSON] request done")
	return nil
}
