package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/NovaForgeApp/NovaForge/internal/pkg/env"
)

const defaultProviderAPIBaseURL = "https://api.forge-diffusion.example.com/v1"

// Request carries the work parameters for one generation.
type Request struct {
	Prompt string `json:"prompt" validate:"required,min=1,max=2000"`
	Tier   string `json:"tier" validate:"required"`
}

// Output is one produced artifact reference.
type Output struct {
	URL string `json:"url"`
}

// Provider is the external compute collaborator. Implementations must honor
// context cancellation; a timeout is indistinguishable from failure to the
// orchestrator.
type Provider interface {
	Generate(ctx context.Context, generationID string, req Request) ([]Output, error)
}

// Client calls the external diffusion API over HTTP.
type Client struct {
	APIKey     string
	APIBaseURL string

	HTTPClient *http.Client
}

// NewClientFromEnv builds a provider client from environment settings. The
// request deadline is enforced by the orchestrator's context, not here.
func NewClientFromEnv() *Client {
	return &Client{
		APIKey:     strings.TrimSpace(env.GetEnv("PROVIDER_API_KEY", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("PROVIDER_API_BASE_URL", defaultProviderAPIBaseURL)),
		HTTPClient: &http.Client{},
	}
}

func (c *Client) Generate(ctx context.Context, generationID string, req Request) ([]Output, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("PROVIDER_API_KEY is not configured")
	}

	body, err := json.Marshal(map[string]string{
		"prompt":       req.Prompt,
		"quality":      req.Tier,
		"reference_id": generationID,
	})
	if err != nil {
		return nil, err
	}

	base := strings.TrimRight(c.APIBaseURL, "/")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/generations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider generation failed: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var raw struct {
		Outputs []struct {
			URL string `json:"url"`
		} `json:"outputs"`
	}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, err
	}

	outputs := make([]Output, 0, len(raw.Outputs))
	for _, out := range raw.Outputs {
		if u := strings.TrimSpace(out.URL); u != "" {
			outputs = append(outputs, Output{URL: u})
		}
	}
	return outputs, nil
}

// ProviderTimeoutFromEnv returns the bound applied to each provider call.
func ProviderTimeoutFromEnv() time.Duration {
	seconds := env.GetEnv("PROVIDER_TIMEOUT_SECONDS", "60")
	d, err := time.ParseDuration(seconds + "s")
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}
