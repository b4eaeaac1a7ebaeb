package events

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventFundCreated          EventType = "FUND_CREATED"
	EventFundRevalued         EventType = "FUND_REVALUED"
	EventFundClosed           EventType = "FUND_CLOSED"
	EventDepositRecorded      EventType = "DEPOSIT_RECORDED"
	EventAllocationTransition EventType = "ALLOCATION_TRANSITION"
	EventError                EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Publisher is what the engines need to announce committed changes and
// failed operations. *EventBus implements it.
type Publisher interface {
	PublishFundCreated(fundID int64, name string, initialAmount decimal.Decimal, positions int)
	PublishFundRevalued(fundID int64, previous, current, fluctuation decimal.Decimal, reason string)
	PublishFundClosed(fundID int64, reference string, grossEarnings, clientsNet decimal.Decimal, participants int)
	PublishDepositRecorded(paymentID, payerUserID int64, amount decimal.Decimal, referralCreated bool)
	PublishAllocationTransition(allocationID, fundID int64, from, to string)
	PublishError(source string, fundID int64, err error)
}

var _ Publisher = (*EventBus)(nil)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers without blocking the caller.
// Publishing on a nil bus does nothing.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishFundCreated publishes a fund created event
func (eb *EventBus) PublishFundCreated(fundID int64, name string, initialAmount decimal.Decimal, positions int) {
	eb.Publish(Event{
		Type: EventFundCreated,
		Data: map[string]interface{}{
			"fund_id":        fundID,
			"name":           name,
			"initial_amount": initialAmount.String(),
			"positions":      positions,
		},
	})
}

// PublishFundRevalued publishes a fund revaluation event
func (eb *EventBus) PublishFundRevalued(fundID int64, previous, current, fluctuation decimal.Decimal, reason string) {
	eb.Publish(Event{
		Type: EventFundRevalued,
		Data: map[string]interface{}{
			"fund_id":             fundID,
			"previous_amount":     previous.String(),
			"new_amount":          current.String(),
			"fluctuation_percent": fluctuation.String(),
			"reason":              reason,
		},
	})
}

// PublishFundClosed publishes a fund closure event
func (eb *EventBus) PublishFundClosed(fundID int64, reference string, grossEarnings, clientsNet decimal.Decimal, participants int) {
	eb.Publish(Event{
		Type: EventFundClosed,
		Data: map[string]interface{}{
			"fund_id":              fundID,
			"reference":            reference,
			"total_gross_earnings": grossEarnings.String(),
			"clients_net_total":    clientsNet.String(),
			"participant_count":    participants,
		},
	})
}

// PublishDepositRecorded publishes a deposit intake event
func (eb *EventBus) PublishDepositRecorded(paymentID, payerUserID int64, amount decimal.Decimal, referralCreated bool) {
	eb.Publish(Event{
		Type: EventDepositRecorded,
		Data: map[string]interface{}{
			"payment_id":       paymentID,
			"payer_user_id":    payerUserID,
			"amount":           amount.String(),
			"referral_created": referralCreated,
		},
	})
}

// PublishAllocationTransition publishes an allocation status change
func (eb *EventBus) PublishAllocationTransition(allocationID, fundID int64, from, to string) {
	eb.Publish(Event{
		Type: EventAllocationTransition,
		Data: map[string]interface{}{
			"allocation_id": allocationID,
			"fund_id":       fundID,
			"from":          from,
			"to":            to,
		},
	})
}

// PublishError reports a failed operation. fundID is zero when the failure
// is not tied to a fund.
func (eb *EventBus) PublishError(source string, fundID int64, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": err.Error(),
	}
	if fundID != 0 {
		data["fund_id"] = fundID
	}
	eb.Publish(Event{Type: EventError, Data: data})
}
