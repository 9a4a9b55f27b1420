package events

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/ridership/pkg/consumer"
	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/elastic_client"
	"github.com/travigo/ridership/pkg/redis_client"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Provides the passenger events runner",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run events consumers that log and index passenger events",
				Action: func(c *cli.Context) error {
					if err := redis_client.Connect(); err != nil {
						return err
					}
					if err := elastic_client.Connect(false); err != nil {
						return err
					}

					redisConsumer := consumer.RedisConsumer{
						QueueName:       QueueName,
						NumberConsumers: 5,
						BatchSize:       20,
						Timeout:         2 * time.Second,
						Consumer:        NewEventsBatchConsumer(ElasticSink{}),
					}
					if err := redisConsumer.Setup(); err != nil {
						return err
					}

					signals := make(chan os.Signal, 1)
					signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
					defer signal.Stop(signals)

					<-signals // wait for signal
					go func() {
						<-signals // hard exit on second signal (in case shutdown gets stuck)
						os.Exit(1)
					}()

					<-redis_client.QueueConnection.StopAllConsuming() // wait for all Consume() calls to finish
					elastic_client.WaitUntilQueueEmpty()

					return nil
				},
			},
			{
				Name:  "test-event",
				Usage: "publish a test spawned event",
				Action: func(c *cli.Context) error {
					if err := redis_client.Connect(); err != nil {
						return err
					}

					eventsQueue, err := redis_client.QueueConnection.OpenQueue(QueueName)
					if err != nil {
						return err
					}

					event := ctdf.NewPassengerEvent(ctdf.EventTypePassengerSpawned, time.Now(), &ctdf.PassengerRecord{
						PrimaryIdentifier: "RIDERSHIP:PASSENGER:TEST",
						EntityRef:         "TEST",
						Origin:            ctdf.NewLocation(-0.1276, 51.5072),
						Status:            ctdf.PassengerStatusWaiting,
					})

					eventBytes, _ := json.Marshal(event)

					if err := eventsQueue.PublishBytes(eventBytes); err != nil {
						return err
					}

					log.Info().Msg("Published test event")

					return nil
				},
			},
		},
	}
}

// NewQueuePublisher opens the events queue and wraps it in a non-blocking publisher,
// Elasticsearch indexing is added when a client is configured
func NewQueuePublisher() (*AsyncPublisher, error) {
	eventsQueue, err := redis_client.QueueConnection.OpenQueue(QueueName)
	if err != nil {
		return nil, err
	}

	sinks := MultiSink{&QueueSink{Queue: eventsQueue}}

	return NewAsyncPublisher(sinks, defaultBufferSize), nil
}
