package repository

import (
	"sync"
	"testing"

	"github.com/NovaForgeApp/NovaForge/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paymentEvent(eventID string) *models.WebhookEvent {
	return &models.WebhookEvent{
		Source:      models.WebhookSourcePayment,
		EventID:     eventID,
		EventType:   "checkout.session.completed",
		PayloadJSON: "{}",
	}
}

func TestTryClaimFirstWriterWins(t *testing.T) {
	repos := NewMemoryRepositories()

	claimed, stored, err := repos.WebhookEvent.TryClaim(paymentEvent("evt_1"))
	require.NoError(t, err)
	assert.True(t, claimed)
	require.NotNil(t, stored)
	assert.NotZero(t, stored.ID)

	claimed, dup, err := repos.WebhookEvent.TryClaim(paymentEvent("evt_1"))
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, stored.ID, dup.ID, "losers get the winner's row")
}

func TestTryClaimScopedBySource(t *testing.T) {
	repos := NewMemoryRepositories()

	claimed, _, err := repos.WebhookEvent.TryClaim(paymentEvent("evt_1"))
	require.NoError(t, err)
	require.True(t, claimed)

	// The same id from a different source is a different event.
	claimed, _, err = repos.WebhookEvent.TryClaim(&models.WebhookEvent{
		Source:      models.WebhookSourceIdentity,
		EventID:     "evt_1",
		EventType:   "user.created",
		PayloadJSON: "{}",
	})
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestTryClaimConcurrentClaimsYieldOneWinner(t *testing.T) {
	repos := NewMemoryRepositories()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, _, err := repos.WebhookEvent.TryClaim(paymentEvent("evt_race"))
			if err == nil && claimed {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestMarkProcessed(t *testing.T) {
	repos := NewMemoryRepositories()

	_, stored, err := repos.WebhookEvent.TryClaim(paymentEvent("evt_1"))
	require.NoError(t, err)

	require.NoError(t, repos.WebhookEvent.MarkProcessed(stored.ID, ""))

	_, dup, err := repos.WebhookEvent.TryClaim(paymentEvent("evt_1"))
	require.NoError(t, err)
	assert.NotNil(t, dup.ProcessedAt)
}
