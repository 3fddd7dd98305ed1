package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/siyinging/social-publisher/internal/domain"
)

const defaultHTTPTimeout = 60 * time.Second

// HTTPGenerator requests content from an external generation service.
type HTTPGenerator struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPGenerator creates a generator backed by the service at baseURL.
func NewHTTPGenerator(baseURL, apiKey string) *HTTPGenerator {
	return &HTTPGenerator{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
	}
}

// Generate posts the request to the service and validates the response.
func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: call generation service: %v", domain.ErrGeneration, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read generation response: %v", domain.ErrGeneration, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: generation service returned status %d",
			domain.ErrGeneration, resp.StatusCode)
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: decode generation response: %v", domain.ErrGeneration, err)
	}
	if err := validate(&result); err != nil {
		return nil, err
	}
	return &result, nil
}
