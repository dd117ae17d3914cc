package service

// EventType defines the type of event
type EventType string

const (
	EventRecordCreated      EventType = "record.created"
	EventRecordsUpdated     EventType = "records.updated"
	EventRecordsDeleted     EventType = "records.deleted"
	EventLayerCreated       EventType = "layer.created"
	EventLayersApplied      EventType = "layers.applied"
	EventCounterCreated     EventType = "counter.created"
	EventCounterIncremented EventType = "counter.incremented"
	EventCounterDeleted     EventType = "counter.deleted"
	EventDatabaseCreated    EventType = "database.created"
	EventDatabaseDropped    EventType = "database.dropped"
)

// Event represents a change that occurred in the store
type Event struct {
	Type    EventType `json:"type"`
	Subject string    `json:"subject,omitempty"`
	Payload any       `json:"payload,omitempty"`
}

// EventBus allows publishing and subscribing to events
type EventBus struct {
	subscribers []chan<- Event
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.subscribers = append(eb.subscribers, ch)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
