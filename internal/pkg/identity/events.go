package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedEvent marks identity payloads that can never be processed.
	ErrMalformedEvent = errors.New("malformed identity event")

	// ErrUnknownEventType marks lifecycle kinds this consumer does not know.
	ErrUnknownEventType = errors.New("unknown identity event type")
)

// Event is the tagged union of identity lifecycle payloads.
type Event interface {
	IdentityID() string
	EventType() string
}

// UserCreatedEvent provisions a new account. Email is mandatory; an identity
// without a verified email is a permanent (non-retried) failure.
type UserCreatedEvent struct {
	ID        string
	Email     string
	Name      string
	AvatarURL string
}

func (e *UserCreatedEvent) IdentityID() string { return e.ID }
func (e *UserCreatedEvent) EventType() string  { return "user.created" }

// UserUpdatedEvent patches profile fields on an existing account.
type UserUpdatedEvent struct {
	ID        string
	Email     *string
	Name      *string
	AvatarURL *string
}

func (e *UserUpdatedEvent) IdentityID() string { return e.ID }
func (e *UserUpdatedEvent) EventType() string  { return "user.updated" }

// UserDeletedEvent terminally removes an account.
type UserDeletedEvent struct {
	ID string
}

func (e *UserDeletedEvent) IdentityID() string { return e.ID }
func (e *UserDeletedEvent) EventType() string  { return "user.deleted" }

type rawUserPayload struct {
	Type string `json:"type"`
	Data struct {
		ID             string `json:"id"`
		Email          string `json:"email_address"`
		FirstName      string `json:"first_name"`
		LastName       string `json:"last_name"`
		ImageURL       string `json:"image_url"`
		EmailAddresses []struct {
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
	} `json:"data"`
}

// ParseEvent decodes an identity lifecycle payload into the event union.
func ParseEvent(payload []byte) (Event, error) {
	var raw rawUserPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	id := strings.TrimSpace(raw.Data.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrMalformedEvent)
	}

	email := strings.TrimSpace(raw.Data.Email)
	if email == "" && len(raw.Data.EmailAddresses) > 0 {
		email = strings.TrimSpace(raw.Data.EmailAddresses[0].EmailAddress)
	}
	name := strings.TrimSpace(strings.TrimSpace(raw.Data.FirstName) + " " + strings.TrimSpace(raw.Data.LastName))
	avatar := strings.TrimSpace(raw.Data.ImageURL)

	switch strings.TrimSpace(raw.Type) {
	case "user.created":
		if email == "" {
			return nil, fmt.Errorf("%w: user.created without email address", ErrMalformedEvent)
		}
		return &UserCreatedEvent{ID: id, Email: email, Name: name, AvatarURL: avatar}, nil
	case "user.updated":
		event := &UserUpdatedEvent{ID: id}
		if email != "" {
			event.Email = &email
		}
		if name != "" {
			event.Name = &name
		}
		if avatar != "" {
			event.AvatarURL = &avatar
		}
		return event, nil
	case "user.deleted":
		return &UserDeletedEvent{ID: id}, nil
	case "":
		return nil, fmt.Errorf("%w: missing event type", ErrMalformedEvent)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, raw.Type)
	}
}
