package events

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/elastic_client"
)

const QueueName = "events-queue"

type bytesPublisher interface {
	PublishBytes(payload ...[]byte) error
}

// QueueSink pushes events onto the redis events queue for the events consumers
type QueueSink struct {
	Queue bytesPublisher
}

func (q *QueueSink) Send(event ctdf.Event) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return q.Queue.PublishBytes(eventBytes)
}

// ElasticSink indexes each passenger in an event as its own document
type ElasticSink struct{}

func (ElasticSink) Send(event ctdf.Event) error {
	bodies, ok := event.Body.([]ctdf.PassengerEventBody)
	if !ok {
		return fmt.Errorf("unexpected event body %T", event.Body)
	}

	indexName := EventsIndexName(event)
	for _, body := range bodies {
		document, err := json.Marshal(PassengerElasticEvent{
			Type:               event.Type,
			PassengerEventBody: body,
		})
		if err != nil {
			return err
		}

		elastic_client.IndexRequest(indexName, bytes.NewReader(document))
	}

	return nil
}

type PassengerElasticEvent struct {
	Type ctdf.EventType `json:"type"`
	ctdf.PassengerEventBody
}

func EventsIndexName(event ctdf.Event) string {
	yearNumber, weekNumber := event.Timestamp.ISOWeek()
	return fmt.Sprintf("ridership-passenger-events-%d-%d", yearNumber, weekNumber)
}
