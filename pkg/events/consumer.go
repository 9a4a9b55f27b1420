package events

import (
	"encoding/json"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
	"github.com/travigo/ridership/pkg/ctdf"
)

type queuedEvent struct {
	Type      ctdf.EventType
	Timestamp time.Time
	Body      []ctdf.PassengerEventBody
}

// BatchConsumer reads events off the queue, logs them and forwards them to a sink
type BatchConsumer struct {
	Sink Sink
}

func NewEventsBatchConsumer(sink Sink) *BatchConsumer {
	return &BatchConsumer{Sink: sink}
}

func (consumer *BatchConsumer) Consume(batch rmq.Deliveries) {
	payloads := batch.Payloads()

	for _, payload := range payloads {
		event, err := DecodeEvent([]byte(payload))
		if err != nil {
			log.Error().Err(err).Msg("Failed to decode event")
			continue
		}

		notification := event.GetNotificationData()
		log.Info().
			Str("type", string(event.Type)).
			Time("timestamp", event.Timestamp).
			Msg(notification.Message)

		if consumer.Sink != nil {
			if err := consumer.Sink.Send(event); err != nil {
				log.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to forward event")
			}
		}
	}

	if ackErrors := batch.Ack(); len(ackErrors) > 0 {
		for _, err := range ackErrors {
			log.Error().Err(err).Msg("Failed to ack event")
		}
	}
}

// DecodeEvent turns a queue payload back into an event with typed passenger bodies
func DecodeEvent(payload []byte) (ctdf.Event, error) {
	var decoded queuedEvent
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return ctdf.Event{}, err
	}

	return ctdf.Event{
		Type:      decoded.Type,
		Timestamp: decoded.Timestamp,
		Body:      decoded.Body,
	}, nil
}
