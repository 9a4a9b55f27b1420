package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/stats"
)

const defaultBufferSize = 1000

// Publisher hands events to observers. Publish never blocks and never fails the caller.
type Publisher interface {
	Publish(event ctdf.Event)
}

// Sink delivers a single event synchronously
type Sink interface {
	Send(event ctdf.Event) error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(ctdf.Event) {}

// AsyncPublisher buffers events and delivers them to a Sink on a background goroutine.
// When the buffer is full events are dropped.
type AsyncPublisher struct {
	Sink Sink

	events  chan ctdf.Event
	done    chan struct{}
	closing sync.Once
}

func NewAsyncPublisher(sink Sink, bufferSize int) *AsyncPublisher {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	return &AsyncPublisher{
		Sink:   sink,
		events: make(chan ctdf.Event, bufferSize),
		done:   make(chan struct{}),
	}
}

func (p *AsyncPublisher) Publish(event ctdf.Event) {
	select {
	case p.events <- event:
	default:
		stats.EventsDropped.Inc()
		log.Debug().Str("type", string(event.Type)).Msg("Event buffer full, dropping event")
	}
}

// Run delivers buffered events until the context is cancelled, then drains what is left
func (p *AsyncPublisher) Run(ctx context.Context) {
	defer close(p.done)

	for {
		select {
		case event := <-p.events:
			p.send(event)
		case <-ctx.Done():
			for {
				select {
				case event := <-p.events:
					p.send(event)
				default:
					return
				}
			}
		}
	}
}

// Start runs the publisher in the background, the returned function stops it and waits for the drain
func (p *AsyncPublisher) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	go p.Run(ctx)

	return func() {
		p.closing.Do(cancel)
		<-p.done
	}
}

func (p *AsyncPublisher) send(event ctdf.Event) {
	if err := p.Sink.Send(event); err != nil {
		log.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to publish event")
	}
}

// MultiSink fans an event out to every sink, all sinks are attempted even if one fails
type MultiSink []Sink

func (m MultiSink) Send(event ctdf.Event) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Send(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
