package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"
)

const (
	EventCheckoutCommitted = "checkout_committed"
	EventBookingUpdated    = "booking_updated"
	EventBookingCancelled  = "booking_cancelled"
	EventLockerAssigned    = "locker_assigned"
	EventLockerReleased    = "locker_released"
)

// BookingEventPayload is the booking snapshot handed to event consumers.
type BookingEventPayload struct {
	BookingID  string               `json:"booking_id"`
	TenantID   string               `json:"tenant_id"`
	UserID     string               `json:"user_id"`
	TimeBegin  int64                `json:"time_begin"`
	TimeEnd    int64                `json:"time_end"`
	Items      []models.BookingItem `json:"items"`
	CouponCode string               `json:"coupon_code,omitempty"`
	PriceEur   float64              `json:"price_eur"`
}

// LockerEventPayload describes one locker unit changing hands.
type LockerEventPayload struct {
	BookingID    string `json:"booking_id"`
	BookableID   string `json:"bookable_id"`
	UnitID       string `json:"unit_id"`
	LockerSystem string `json:"locker_system"`
}

// Event is a lightweight in-process domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Handler reacts to an event.
type Handler func(event *Event) error

// Bus provides in-process pub/sub for domain events.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event. A nil bus
// drops the event silently so callers can wire it optionally.
func (b *Bus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
