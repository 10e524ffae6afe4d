package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NovaForgeApp/NovaForge/internal/pkg/env"
)

const defaultIdentityAPIBaseURL = "https://api.identity.example.com/v1"

// ErrUserNotFound is returned when the identity provider has no user for
// the given id.
var ErrUserNotFound = errors.New("identity provider user not found")

// Client talks to the identity provider's management API. The ledger only
// needs it on the development lazy-create path, where a payment event can
// arrive before the user.created webhook.
type Client struct {
	APIKey     string
	APIBaseURL string

	HTTPClient *http.Client
}

// User is the provider-side profile of an identity.
type User struct {
	ID        string
	Email     string
	Name      string
	AvatarURL string
}

// NewClientFromEnv builds an identity API client from environment settings.
func NewClientFromEnv() *Client {
	return &Client{
		APIKey:     strings.TrimSpace(env.GetEnv("IDENTITY_API_KEY", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("IDENTITY_API_BASE_URL", defaultIdentityAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// GetUser fetches a user profile by its provider id.
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return nil, errors.New("user id is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("IDENTITY_API_KEY is not configured")
	}

	base := strings.TrimRight(c.APIBaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/users/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrUserNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("identity user request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var raw struct {
		ID             string `json:"id"`
		FirstName      string `json:"first_name"`
		LastName       string `json:"last_name"`
		ImageURL       string `json:"image_url"`
		EmailAddresses []struct {
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.ID) == "" {
		return nil, errors.New("identity user response missing id")
	}

	email := ""
	if len(raw.EmailAddresses) > 0 {
		email = strings.TrimSpace(raw.EmailAddresses[0].EmailAddress)
	}
	return &User{
		ID:        strings.TrimSpace(raw.ID),
		Email:     email,
		Name:      strings.TrimSpace(strings.TrimSpace(raw.FirstName) + " " + strings.TrimSpace(raw.LastName)),
		AvatarURL: strings.TrimSpace(raw.ImageURL),
	}, nil
}
