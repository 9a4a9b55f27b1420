package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/ridership/pkg/ctdf"
)

type recordingSink struct {
	mutex   sync.Mutex
	events  []ctdf.Event
	block   chan struct{}
	failing bool
}

func (r *recordingSink) Send(event ctdf.Event) error {
	if r.block != nil {
		<-r.block
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, event)

	if r.failing {
		return errors.New("sink down")
	}
	return nil
}

func (r *recordingSink) count() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.events)
}

type recordingQueue struct {
	payloads [][]byte
}

func (r *recordingQueue) PublishBytes(payload ...[]byte) error {
	r.payloads = append(r.payloads, payload...)
	return nil
}

func testEvent() ctdf.Event {
	return ctdf.NewPassengerEvent(ctdf.EventTypePassengerClaimed, time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC), &ctdf.PassengerRecord{
		PrimaryIdentifier: "p1",
		EntityRef:         "route-1",
		Origin:            ctdf.NewLocation(-0.1, 51.5),
		Status:            ctdf.PassengerStatusClaimed,
	})
}

func TestAsyncPublisherDelivers(t *testing.T) {
	sink := &recordingSink{}
	publisher := NewAsyncPublisher(sink, 10)
	stop := publisher.Start(context.Background())

	for i := 0; i < 5; i++ {
		publisher.Publish(testEvent())
	}

	stop()
	assert.Equal(t, 5, sink.count())
}

func TestAsyncPublisherNeverBlocks(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	publisher := NewAsyncPublisher(sink, 2)
	stop := publisher.Start(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			publisher.Publish(testEvent())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a stalled sink")
	}

	close(sink.block)
	stop()

	// one in flight plus a full buffer at most
	assert.LessOrEqual(t, sink.count(), 3)
	assert.GreaterOrEqual(t, sink.count(), 1)
}

func TestAsyncPublisherSurvivesSinkErrors(t *testing.T) {
	sink := &recordingSink{failing: true}
	publisher := NewAsyncPublisher(sink, 10)
	stop := publisher.Start(context.Background())

	publisher.Publish(testEvent())
	publisher.Publish(testEvent())
	stop()

	assert.Equal(t, 2, sink.count())
}

func TestQueueSinkRoundTrip(t *testing.T) {
	queue := &recordingQueue{}
	sink := &QueueSink{Queue: queue}

	require.NoError(t, sink.Send(testEvent()))
	require.Len(t, queue.payloads, 1)

	decoded, err := DecodeEvent(queue.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, ctdf.EventTypePassengerClaimed, decoded.Type)

	bodies, ok := decoded.Body.([]ctdf.PassengerEventBody)
	require.True(t, ok)
	require.Len(t, bodies, 1)
	assert.Equal(t, "p1", bodies[0].RecordRef)
	assert.Equal(t, "route-1", bodies[0].EntityRef)
	assert.Equal(t, ctdf.PassengerStatusClaimed, bodies[0].Status)
}

func TestMultiSinkAttemptsAll(t *testing.T) {
	failing := &recordingSink{failing: true}
	working := &recordingSink{}

	err := MultiSink{failing, working}.Send(testEvent())
	assert.Error(t, err)
	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 1, working.count())
}

func TestEventsIndexName(t *testing.T) {
	assert.Equal(t, "ridership-passenger-events-2024-10", EventsIndexName(testEvent()))

	// Indices roll over by ISO week, so the last days of December can land in the next year
	event := testEvent()
	event.Timestamp = time.Date(2024, 12, 30, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "ridership-passenger-events-2025-1", EventsIndexName(event))
}

func TestPassengerElasticEventShape(t *testing.T) {
	body := testEvent().Body.([]ctdf.PassengerEventBody)[0]
	document, err := json.Marshal(PassengerElasticEvent{Type: ctdf.EventTypePassengerClaimed, PassengerEventBody: body})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(document, &decoded))
	assert.Equal(t, "PassengerClaimed", decoded["type"])
	assert.Equal(t, "p1", decoded["record_id"])
	assert.Equal(t, "CLAIMED", decoded["status"])
}
