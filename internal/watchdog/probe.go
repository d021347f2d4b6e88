package watchdog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPProbe checks liveness with a GET against the service's status
// endpoint. Any 2xx response counts as alive.
type HTTPProbe struct {
	url    string
	client *http.Client
}

func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	return &HTTPProbe{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *HTTPProbe) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", p.url, err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused across probes.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("probe %s: unexpected status %d", p.url, resp.StatusCode)
	}
	return nil
}
