package events_test

import (
	"testing"

	"github.com/scalarorg/ibc-tracker/pkg/db/models"
	"github.com/scalarorg/ibc-tracker/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastByTopic(t *testing.T) {
	bus := events.NewEventBus(4)
	inserted := bus.Subscribe(events.EVENT_TRANSFER_INSERTED)
	changed := bus.Subscribe(events.EVENT_TRANSFER_STATUS_CHANGED)
	changedToo := bus.Subscribe(events.EVENT_TRANSFER_STATUS_CHANGED)

	n := bus.BroadcastEvent(&events.EventEnvelope{
		Topic:    events.EVENT_TRANSFER_STATUS_CHANGED,
		RecordID: "r1",
		Previous: models.StatusProcessing,
		Current:  models.StatusSuccess,
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, "r1", (<-changed).RecordID)
	assert.Equal(t, models.StatusSuccess, (<-changedToo).Current)
	assert.Empty(t, inserted)
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	bus := events.NewEventBus(1)
	sub := bus.Subscribe(events.EVENT_TRANSFER_INSERTED)
	event := &events.EventEnvelope{Topic: events.EVENT_TRANSFER_INSERTED, RecordID: "r1"}

	assert.Equal(t, 1, bus.BroadcastEvent(event))
	assert.Equal(t, 0, bus.BroadcastEvent(event))
	assert.Len(t, sub, 1)
}

func TestCloseClosesSubscribers(t *testing.T) {
	bus := events.NewEventBus(1)
	sub := bus.Subscribe(events.EVENT_TRANSFER_INSERTED)
	bus.Close()
	bus.Close()

	_, ok := <-sub
	require.False(t, ok)
	assert.Equal(t, 0, bus.BroadcastEvent(&events.EventEnvelope{Topic: events.EVENT_TRANSFER_INSERTED}))

	late := bus.Subscribe(events.EVENT_TRANSFER_INSERTED)
	_, ok = <-late
	require.False(t, ok)
}
