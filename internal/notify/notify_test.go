package notify

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToSubscriber(t *testing.T) {
	hub := NewHub()
	userID := uuid.New()

	events, cancel := hub.Subscribe(userID)
	defer cancel()

	sent := Event{DocumentID: uuid.New(), Status: "processing", Progress: 25}
	hub.Publish(userID, sent)

	got := <-events
	assert.Equal(t, sent, got)
}

func TestHubIsolatesUsers(t *testing.T) {
	hub := NewHub()
	alice, bob := uuid.New(), uuid.New()

	aliceEvents, cancelAlice := hub.Subscribe(alice)
	defer cancelAlice()
	bobEvents, cancelBob := hub.Subscribe(bob)
	defer cancelBob()

	hub.Publish(alice, Event{Status: "completed"})

	require.Len(t, aliceEvents, 1)
	assert.Empty(t, bobEvents)
}

func TestHubPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	hub := NewHub()
	hub.Publish(uuid.New(), Event{Status: "processing"})
}

func TestHubDropsWhenSubscriberIsBehind(t *testing.T) {
	hub := NewHub()
	userID := uuid.New()

	events, cancel := hub.Subscribe(userID)
	defer cancel()

	// Channel buffer is 16; publishing more must not block.
	for i := 0; i < 40; i++ {
		hub.Publish(userID, Event{Progress: i})
	}
	assert.Len(t, events, 16)
}

func TestHubCancelStopsDelivery(t *testing.T) {
	hub := NewHub()
	userID := uuid.New()

	events, cancel := hub.Subscribe(userID)
	cancel()
	cancel() // idempotent

	hub.Publish(userID, Event{Status: "processing"})

	_, open := <-events
	assert.False(t, open)
}
