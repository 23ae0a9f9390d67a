package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gosight/slidetrack/internal/model"
)

// HTTPClient POSTs snapshots as JSON to the collector endpoint
type HTTPClient struct {
	endpoint string
	http     *http.Client
}

func NewHTTPClient(endpoint string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

// Send delivers snap. Any 2xx response is success; everything else,
// transport errors included, is reported as a failed Outcome.
func (c *HTTPClient) Send(ctx context.Context, snap model.Snapshot) Outcome {
	start := time.Now()

	body, err := json.Marshal(snap)
	if err != nil {
		return Outcome{Err: fmt.Errorf("encode snapshot: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if snap.DeviceInfo.UserAgent != "" {
		req.Header.Set("User-Agent", snap.DeviceInfo.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Outcome{Err: err, Latency: time.Since(start)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	out := Outcome{
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		out.Err = fmt.Errorf("collector returned status %d", resp.StatusCode)
		return out
	}
	out.Delivered = true
	return out
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
