package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/estatehub/reportsweep/internal/logger"
)

const (
	summarizePath = "/v1/interactions/summaries"
	narrativePath = "/v1/reports/narrative"
)

var (
	// ErrRemote is returned for any transport failure, timeout, or
	// non-success status from the synthesis service
	ErrRemote = errors.New("synthesis service request failed")

	// ErrMalformedResponse is returned when the service responds with a
	// payload the contract does not allow
	ErrMalformedResponse = errors.New("malformed synthesis response")
)

// Client is the HTTP client for the narrative-synthesis service
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        logger.Logger
}

// NewClient creates a synthesis client. The timeout bounds each call
// end to end, including body reads.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		log:        logger.Default().WithComponent(logger.ComponentSynthesis),
	}
}

// SummarizeEvents submits events for per-event summarization
func (c *Client) SummarizeEvents(ctx context.Context, req *SummarizeRequest) (*SummarizeResponse, error) {
	var resp SummarizeResponse
	if err := c.post(ctx, summarizePath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ComposeNarrative submits property statistics and events for the aggregate
// narrative
func (c *Client) ComposeNarrative(ctx context.Context, req *NarrativeRequest) (*NarrativeResponse, error) {
	var resp NarrativeResponse
	if err := c.post(ctx, narrativePath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRemote, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned status %d: %s", ErrRemote, path, resp.StatusCode, string(snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, path, err)
	}

	c.log.Debug("Synthesis call completed",
		"path", path,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}
