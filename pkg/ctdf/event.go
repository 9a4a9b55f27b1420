package ctdf

import (
	"fmt"
	"time"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Body      interface{}
}

type EventType string

const (
	EventTypePassengerSpawned EventType = "PassengerSpawned"
	EventTypePassengerClaimed EventType = "PassengerClaimed"
	EventTypePassengerBoarded EventType = "PassengerBoarded"
	EventTypePassengerExpired EventType = "PassengerExpired"
)

// PassengerEventBody is the observer facing view of a passenger
type PassengerEventBody struct {
	RecordRef   string          `json:"record_id"`
	EntityRef   string          `json:"entity_id"`
	Coordinates []float64       `json:"coordinates"`
	Status      PassengerStatus `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
}

func NewPassengerEventBody(passenger *PassengerRecord, timestamp time.Time) PassengerEventBody {
	return PassengerEventBody{
		RecordRef:   passenger.PrimaryIdentifier,
		EntityRef:   passenger.EntityRef,
		Coordinates: passenger.Origin.Coordinates,
		Status:      passenger.Status,
		Timestamp:   timestamp,
	}
}

// NewPassengerEvent builds a single event carrying one or more passengers
func NewPassengerEvent(eventType EventType, timestamp time.Time, passengers ...*PassengerRecord) Event {
	bodies := make([]PassengerEventBody, 0, len(passengers))
	for _, passenger := range passengers {
		bodies = append(bodies, NewPassengerEventBody(passenger, timestamp))
	}

	return Event{
		Type:      eventType,
		Timestamp: timestamp,
		Body:      bodies,
	}
}

func (e *Event) GetNotificationData() EventNotificationData {
	eventNotificationData := EventNotificationData{}

	count := 0
	if bodies, ok := e.Body.([]PassengerEventBody); ok {
		count = len(bodies)
	} else if bodies, ok := e.Body.([]interface{}); ok {
		count = len(bodies)
	}

	switch e.Type {
	case EventTypePassengerSpawned:
		eventNotificationData.Title = "Passengers spawned"
		eventNotificationData.Message = fmt.Sprintf("%d passengers started waiting", count)
	case EventTypePassengerClaimed:
		eventNotificationData.Title = "Passenger claimed"
		eventNotificationData.Message = fmt.Sprintf("%d passengers were claimed by a vehicle", count)
	case EventTypePassengerBoarded:
		eventNotificationData.Title = "Passenger boarded"
		eventNotificationData.Message = fmt.Sprintf("%d passengers boarded", count)
	case EventTypePassengerExpired:
		eventNotificationData.Title = "Passengers expired"
		eventNotificationData.Message = fmt.Sprintf("%d passengers gave up waiting", count)
	}

	return eventNotificationData
}

type EventNotificationData struct {
	Title   string
	Message string
}
