package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPProvider calls a remote reasoning service over JSON HTTP. The
// request body is the PromptRequest plus the configured model; the
// response body must be a Recommendation.
type HTTPProvider struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

func NewHTTPProvider(endpoint, apiKey, model string) *HTTPProvider {
	return &HTTPProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *HTTPProvider) Recommend(ctx context.Context, req PromptRequest) (*Recommendation, error) {
	body := struct {
		Model string `json:"model,omitempty"`
		PromptRequest
	}{Model: p.model, PromptRequest: req}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode prompt: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var rec Recommendation
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode recommendation: %w", err)
	}
	return &rec, nil
}
