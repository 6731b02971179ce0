package services

import (
	"context"
	"testing"

	"glowdesk-backend/models"
	"glowdesk-backend/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliverQueued_SweepsStoredQueue(t *testing.T) {
	// With no broker configured the scheduled sweep is the only delivery
	// path; a queued notification must be picked up from the store and
	// moved out of the queued state.
	t.Setenv("AMQP_URL", "")
	st := store.NewMemoryStore()
	svc := NewNotificationService(st)
	defer svc.Close()
	ctx := context.Background()

	require.NoError(t, svc.Enqueue(ctx, models.Notification{
		ID:       "n-1",
		OwnerUID: "owner-1",
		Type:     models.NotifyBookingConfirmed,
		Message:  "Your booking GD-1042 is confirmed",
	}))

	var queued []models.Notification
	require.NoError(t, st.Query(ctx, store.ColNotifications, &queued,
		store.Filter{Field: "status", Value: "queued"}))
	require.Len(t, queued, 1)

	svc.DeliverQueued(ctx)

	// No destination phone, so delivery resolves to failed without any
	// provider call.
	var n models.Notification
	require.NoError(t, st.Get(ctx, store.ColNotifications, "n-1", &n))
	assert.Equal(t, "failed", n.Status)
	assert.Equal(t, "no destination phone", n.Error)

	// Nothing is left behind for the next sweep.
	queued = nil
	require.NoError(t, st.Query(ctx, store.ColNotifications, &queued,
		store.Filter{Field: "status", Value: "queued"}))
	assert.Empty(t, queued)
}
