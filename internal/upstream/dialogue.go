// Package upstream holds the contracts for the generative services the
// lobby proxies to. The services are opaque request/response
// collaborators; nothing here inspects or transforms their output.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DialogueRequest carries the scene context for one generated line.
type DialogueRequest struct {
	Scene      string `json:"scene"`
	Trigger    string `json:"trigger"`
	Atmosphere string `json:"atmosphere"`
}

// DialogueResponse is a short line of generated text.
type DialogueResponse struct {
	Text string `json:"text"`
}

// Dialogue generates one line of dialogue for a scene trigger.
type Dialogue interface {
	Generate(ctx context.Context, req DialogueRequest) (DialogueResponse, error)
}

// HTTPDialogue is the pass-through client for a remote dialogue
// service.
type HTTPDialogue struct {
	client   *http.Client
	endpoint string
}

func NewHTTPDialogue(client *http.Client, endpoint string) *HTTPDialogue {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDialogue{client: client, endpoint: endpoint}
}

func (d *HTTPDialogue) Generate(ctx context.Context, req DialogueRequest) (DialogueResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return DialogueResponse{}, fmt.Errorf("encode dialogue request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return DialogueResponse{}, fmt.Errorf("build dialogue request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return DialogueResponse{}, fmt.Errorf("dialogue service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return DialogueResponse{}, fmt.Errorf("dialogue service returned status %d", resp.StatusCode)
	}

	var out DialogueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return DialogueResponse{}, fmt.Errorf("decode dialogue response: %w", err)
	}
	return out, nil
}
