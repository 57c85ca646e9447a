package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishJSONReachesSubscribers(t *testing.T) {
	bus := NewBus()

	var received []*Event
	bus.Subscribe(EventCheckoutCommitted, func(e *Event) error {
		received = append(received, e)
		return nil
	})
	bus.Subscribe(EventBookingCancelled, func(e *Event) error {
		t.Fatal("wrong event type delivered")
		return nil
	})

	payload := BookingEventPayload{BookingID: "bk1", TenantID: "t1", PriceEur: 12.5}
	require.NoError(t, bus.PublishJSON(EventCheckoutCommitted, payload))

	require.Len(t, received, 1)
	assert.Equal(t, EventCheckoutCommitted, received[0].Type)
	assert.False(t, received[0].CreatedAt.IsZero())

	var decoded BookingEventPayload
	require.NoError(t, json.Unmarshal(received[0].Payload, &decoded))
	assert.Equal(t, "bk1", decoded.BookingID)
	assert.Equal(t, 12.5, decoded.PriceEur)
}

func TestPublishJSONMultipleHandlers(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe(EventLockerAssigned, func(*Event) error {
		calls++
		return errors.New("handler failure must not stop delivery")
	})
	bus.Subscribe(EventLockerAssigned, func(*Event) error {
		calls++
		return nil
	})

	require.NoError(t, bus.PublishJSON(EventLockerAssigned, LockerEventPayload{BookingID: "bk1"}))
	assert.Equal(t, 2, calls)
}

func TestPublishJSONNilBus(t *testing.T) {
	var bus *Bus
	assert.NoError(t, bus.PublishJSON(EventCheckoutCommitted, "anything"))
}

func TestPublishJSONUnserializable(t *testing.T) {
	bus := NewBus()
	assert.Error(t, bus.PublishJSON(EventCheckoutCommitted, make(chan int)))
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	assert.NoError(t, bus.PublishJSON("unheard", struct{}{}))
}
