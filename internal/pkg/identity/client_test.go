package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientGetUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/usr_1", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "usr_1",
			"first_name": "Ada",
			"last_name": "Lovelace",
			"image_url": "https://img.example/ada.png",
			"email_addresses": [{"email_address": "ada@example.com"}]
		}`))
	}))
	defer server.Close()

	client := &Client{APIKey: "sk_test", APIBaseURL: server.URL, HTTPClient: server.Client()}

	user, err := client.GetUser(context.Background(), "usr_1")
	require.NoError(t, err)
	assert.Equal(t, "usr_1", user.ID)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, "Ada Lovelace", user.Name)
	assert.Equal(t, "https://img.example/ada.png", user.AvatarURL)
}

func TestClientGetUserNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := &Client{APIKey: "sk_test", APIBaseURL: server.URL, HTTPClient: server.Client()}

	_, err := client.GetUser(context.Background(), "usr_missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestClientGetUserServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := &Client{APIKey: "sk_test", APIBaseURL: server.URL, HTTPClient: server.Client()}

	_, err := client.GetUser(context.Background(), "usr_1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserNotFound)
}

func TestClientGetUserRequiresConfig(t *testing.T) {
	client := &Client{APIBaseURL: "http://localhost", HTTPClient: http.DefaultClient}

	_, err := client.GetUser(context.Background(), "usr_1")
	assert.Error(t, err, "missing api key must fail before any request is sent")

	client.APIKey = "sk_test"
	_, err = client.GetUser(context.Background(), "  ")
	assert.Error(t, err)
}
