package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PassengersSpawned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridership_passengers_spawned_total",
		Help: "Passengers persisted into a reservoir",
	}, []string{"entity_type"})

	PassengersPersistFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridership_passengers_persist_failed_total",
		Help: "Passengers that could not be persisted after retries",
	}, []string{"entity_type"})

	SpawnSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridership_spawn_skipped_total",
		Help: "Spawn windows skipped, labelled by reason",
	}, []string{"reason"})

	ClaimResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridership_claim_results_total",
		Help: "Claim attempts labelled by result",
	}, []string{"result"})

	PassengersBoarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ridership_passengers_boarded_total",
		Help: "Passengers confirmed as boarded",
	})

	PassengersExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ridership_passengers_expired_total",
		Help: "Passengers that expired while waiting",
	})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridership_cache_lookups_total",
		Help: "Reservoir cache lookups labelled hit or miss",
	}, []string{"outcome"})

	StoreTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ridership_store_timeouts_total",
		Help: "Durable store calls that hit their deadline",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ridership_events_dropped_total",
		Help: "Events dropped because the publish buffer was full",
	})
)
