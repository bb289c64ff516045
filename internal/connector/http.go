package connector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"taskhub/pkg/circuitbreaker"
	"taskhub/pkg/metrics"
	"taskhub/pkg/trace"
)

// HTTPConnector fetches raw payloads from an HTTP endpoint. Each call
// carries the client timeout, so a hung external API surfaces as a
// fetch error rather than a stalled sync pass.
type HTTPConnector struct {
	source     string
	baseURL    string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
}

func NewHTTPConnector(source, baseURL string, timeout time.Duration) *HTTPConnector {
	cbConfig := circuitbreaker.Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 2,
	}

	return &HTTPConnector{
		source:  source,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cb: circuitbreaker.NewCircuitBreaker(cbConfig),
	}
}

// FetchRaw performs a GET against baseURL+query and returns the raw
// body. Non-2xx responses and breaker rejections are errors.
func (c *HTTPConnector) FetchRaw(ctx context.Context, query string) ([]byte, error) {
	var body []byte

	err := c.cb.Execute(func() error {
		start := time.Now()

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+query, nil)
		if reqErr != nil {
			return reqErr
		}
		if traceID := trace.FromContext(ctx); traceID != "" {
			req.Header.Set(trace.HeaderName(), traceID)
		}

		resp, doErr := c.httpClient.Do(req)
		latency := time.Since(start)

		if doErr != nil {
			metrics.RecordConnectorCall(c.source, "error", latency)
			return doErr
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			metrics.RecordConnectorCall(c.source, fmt.Sprintf("%d", resp.StatusCode), latency)
			return fmt.Errorf("connector %s returned status %d", c.source, resp.StatusCode)
		}

		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			metrics.RecordConnectorCall(c.source, "read_error", latency)
			return readErr
		}

		metrics.RecordConnectorCall(c.source, "success", latency)
		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}

	return body, nil
}
