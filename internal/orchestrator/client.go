// Package orchestrator provides the HTTP client for the ticket
// orchestrator collaborator. The orchestrator may retry transient
// failures internally; errors it surfaces are reported back to the
// workflow engine, which logs them and leaves the latch unset so the
// milestone retries on the next pass.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"taskhub/internal/workflow"
	"taskhub/pkg/circuitbreaker"
	"taskhub/pkg/trace"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	cbConfig := circuitbreaker.Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 2,
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cb: circuitbreaker.NewCircuitBreaker(cbConfig),
	}
}

// Execute posts a work order and decodes the ticket result. There is
// deliberately no fallback result: a failed call must surface as an
// error so the ticket latch stays unset.
func (c *Client) Execute(ctx context.Context, order workflow.WorkOrder) (workflow.TicketResult, error) {
	var result workflow.TicketResult

	err := c.cb.Execute(func() error {
		b, marshalErr := json.Marshal(order)
		if marshalErr != nil {
			return marshalErr
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(b))
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		if traceID := trace.FromContext(ctx); traceID != "" {
			req.Header.Set(trace.HeaderName(), traceID)
		}

		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return fmt.Errorf("failed to call orchestrator: %w", doErr)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("orchestrator returned error: %d", resp.StatusCode)
		}

		return json.NewDecoder(resp.Body).Decode(&result)
	})
	if err != nil {
		return workflow.TicketResult{}, err
	}

	return result, nil
}
