package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/lobbysim/eventpipe/internal/events"
	"github.com/lobbysim/eventpipe/internal/models"
)

// HTTPTransport delivers batches to the ingress endpoint over HTTP.
// Timeouts come from the flush's context, not the http.Client.
type HTTPTransport struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

// NewHTTPTransport targets the full /events URL. An empty client uses
// http.DefaultClient.
func NewHTTPTransport(client *http.Client, endpoint, apiKey string) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{client: client, endpoint: endpoint, apiKey: apiKey}
}

// Deliver posts one batch. Any non-2xx status is a delivery failure;
// the publisher decides whether to re-queue or open the circuit.
func (t *HTTPTransport) Deliver(ctx context.Context, batch []events.Envelope) error {
	body, err := json.Marshal(models.EventBatchRequest{Events: batch})
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("X-API-Key", t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ingress returned status %d", resp.StatusCode)
	}
	return nil
}
