// Package ml consumes the external stress inference service. The model
// itself lives elsewhere; this side only forwards an audio reference and
// reads back the binary verdict.
package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Predictor returns whether the referenced audio sample indicates stress.
type Predictor interface {
	Predict(ctx context.Context, audioRef string) (bool, error)
}

// HTTPPredictor calls a remote inference endpoint.
type HTTPPredictor struct {
	url    string
	client *http.Client
}

// NewHTTPPredictor creates a predictor posting to the given inference URL.
func NewHTTPPredictor(url string) *HTTPPredictor {
	return &HTTPPredictor{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type predictRequest struct {
	AudioRef string `json:"audio_ref"`
}

type predictResponse struct {
	Stressed bool `json:"stressed"`
}

// Predict forwards the audio reference and returns the verdict.
func (p *HTTPPredictor) Predict(ctx context.Context, audioRef string) (bool, error) {
	payload, err := json.Marshal(predictRequest{AudioRef: audioRef})
	if err != nil {
		return false, fmt.Errorf("marshal predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("call predictor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("predictor returned status %d", resp.StatusCode)
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode predict response: %w", err)
	}
	return out.Stressed, nil
}
