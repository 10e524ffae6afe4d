package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventUserCreated(t *testing.T) {
	payload := []byte(`{
		"type": "user.created",
		"data": {
			"id": "usr_1",
			"first_name": "Ada",
			"last_name": "Lovelace",
			"image_url": "https://img.example/ada.png",
			"email_addresses": [{"email_address": "ada@example.com"}]
		}
	}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)

	created, ok := event.(*UserCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, "usr_1", created.IdentityID())
	assert.Equal(t, "ada@example.com", created.Email)
	assert.Equal(t, "Ada Lovelace", created.Name)
	assert.Equal(t, "https://img.example/ada.png", created.AvatarURL)
}

func TestParseEventUserCreatedFlatEmail(t *testing.T) {
	payload := []byte(`{"type":"user.created","data":{"id":"usr_1","email_address":"ada@example.com"}}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", event.(*UserCreatedEvent).Email)
}

func TestParseEventUserCreatedWithoutEmail(t *testing.T) {
	payload := []byte(`{"type":"user.created","data":{"id":"usr_1","first_name":"Ada"}}`)

	_, err := ParseEvent(payload)
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestParseEventUserUpdatedPartialPatch(t *testing.T) {
	payload := []byte(`{"type":"user.updated","data":{"id":"usr_1","first_name":"Ada"}}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)

	updated, ok := event.(*UserUpdatedEvent)
	require.True(t, ok)
	assert.Nil(t, updated.Email, "absent fields must stay nil so they are not overwritten")
	require.NotNil(t, updated.Name)
	assert.Equal(t, "Ada", *updated.Name)
	assert.Nil(t, updated.AvatarURL)
}

func TestParseEventUserDeleted(t *testing.T) {
	payload := []byte(`{"type":"user.deleted","data":{"id":"usr_1"}}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)
	assert.IsType(t, &UserDeletedEvent{}, event)
	assert.Equal(t, "usr_1", event.IdentityID())
}

func TestParseEventMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"invalid json", `{"type":`},
		{"missing user id", `{"type":"user.created","data":{"email_address":"a@b.com"}}`},
		{"missing type", `{"data":{"id":"usr_1"}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tc.payload))
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}

func TestParseEventUnknownType(t *testing.T) {
	payload := []byte(`{"type":"session.created","data":{"id":"usr_1"}}`)

	_, err := ParseEvent(payload)
	assert.ErrorIs(t, err, ErrUnknownEventType)
}
