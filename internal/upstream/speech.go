package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// SpeechRequest asks for synthesized audio of one line.
type SpeechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// Speech synthesizes audio bytes for a line of text. The audio format
// is whatever the remote service produces; this layer never decodes it.
type Speech interface {
	Synthesize(ctx context.Context, req SpeechRequest) ([]byte, string, error)
}

// HTTPSpeech is the pass-through client for a remote text-to-speech
// service. Synthesize returns the raw bytes and the upstream content
// type.
type HTTPSpeech struct {
	client   *http.Client
	endpoint string
}

func NewHTTPSpeech(client *http.Client, endpoint string) *HTTPSpeech {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSpeech{client: client, endpoint: endpoint}
}

func (s *HTTPSpeech) Synthesize(ctx context.Context, req SpeechRequest) ([]byte, string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, "", fmt.Errorf("encode speech request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("build speech request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("speech service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", fmt.Errorf("speech service returned status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read speech response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return audio, contentType, nil
}
