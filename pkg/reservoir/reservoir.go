package reservoir

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/events"
	"github.com/travigo/ridership/pkg/stats"
	"go.mongodb.org/mongo-driver/mongo"
)

const DefaultStoreTimeout = 300 * time.Millisecond

// Reservoir holds the operations shared by both reservoir kinds: push, claim, board and expiry.
// The Store is authoritative, the Cache only ever serves queries.
type Reservoir struct {
	Store   Store
	Cache   *Cache
	Events  events.Publisher
	Timeout time.Duration

	// Caps route query lookahead in meters, zero uses DefaultMaxLookahead
	MaxLookahead float64

	Now func() time.Time
}

func NewReservoir(store Store, cache *Cache, publisher events.Publisher, timeout time.Duration) *Reservoir {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}

	return &Reservoir{
		Store:   store,
		Cache:   cache,
		Events:  publisher,
		Timeout: timeout,
		Now:     time.Now,
	}
}

func (r *Reservoir) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Reservoir) publish(event ctdf.Event) {
	if r.Events != nil {
		r.Events.Publish(event)
	}
}

// call bounds a single store operation by the store timeout
func (r *Reservoir) call(ctx context.Context, operation func(ctx context.Context) error) error {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := operation(ctx)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || mongo.IsTimeout(err)) {
		stats.StoreTimeouts.Inc()
		return fmt.Errorf("%w: %v", ErrStoreTimeout, err)
	}

	return err
}

// Push persists a batch of new passengers. Records that failed to persist are returned alongside
// an ErrPersistFailure so the caller can retry just those.
func (r *Reservoir) Push(ctx context.Context, records []*ctdf.PassengerRecord) (int, []*ctdf.PassengerRecord, error) {
	if len(records) == 0 {
		return 0, nil, nil
	}

	var failed []*ctdf.PassengerRecord
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		failed, err = r.Store.InsertMany(ctx, records)
		return err
	})
	if err != nil && len(failed) == 0 {
		failed = records
	}

	succeeded := len(records) - len(failed)

	if r.Cache != nil && succeeded > 0 {
		r.Cache.InvalidateRecords(ctx, persisted(records, failed)...)
	}

	if len(failed) > 0 {
		if err == nil {
			err = fmt.Errorf("%w: %d of %d records", ErrPersistFailure, len(failed), len(records))
		} else if !errors.Is(err, ErrStoreTimeout) {
			err = fmt.Errorf("%w: %v", ErrPersistFailure, err)
		}

		return succeeded, failed, err
	}

	return succeeded, nil, nil
}

func (r *Reservoir) Get(ctx context.Context, identifier string) (*ctdf.PassengerRecord, error) {
	var record *ctdf.PassengerRecord
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		record, err = r.Store.Get(ctx, identifier)
		return err
	})

	return record, err
}

// Claim atomically moves a WAITING passenger to CLAIMED for vehicleRef.
// Losing the race is reported through the result, the error is reserved for store faults.
// Claiming a passenger already CLAIMED by vehicleRef is OK so a timed out claim can be retried.
func (r *Reservoir) Claim(ctx context.Context, identifier string, vehicleRef string) (ctdf.ClaimResult, error) {
	now := r.now()

	var claimed *ctdf.PassengerRecord
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		claimed, err = r.Store.ConditionalUpdate(ctx, identifier,
			Condition{Status: ctdf.PassengerStatusWaiting, ExpiresAfter: now, SpawnedBy: now},
			Update{Status: ctdf.PassengerStatusClaimed, ClaimedBy: vehicleRef, At: now},
		)
		return err
	})
	if err != nil {
		return "", err
	}

	if claimed != nil {
		r.invalidate(ctx, claimed)
		r.publish(ctdf.NewPassengerEvent(ctdf.EventTypePassengerClaimed, now, claimed))
		stats.ClaimResults.WithLabelValues(string(ctdf.ClaimResultOK)).Inc()

		return ctdf.ClaimResultOK, nil
	}

	result, err := r.classifyLostClaim(ctx, identifier, vehicleRef, now)
	if err != nil {
		return "", err
	}
	stats.ClaimResults.WithLabelValues(string(result)).Inc()

	return result, nil
}

func (r *Reservoir) classifyLostClaim(ctx context.Context, identifier string, vehicleRef string, now time.Time) (ctdf.ClaimResult, error) {
	record, err := r.Get(ctx, identifier)
	if errors.Is(err, ErrNotFound) {
		return ctdf.ClaimResultNotFound, nil
	}
	if err != nil {
		return "", err
	}

	switch {
	case record.Status == ctdf.PassengerStatusClaimed && record.ClaimedBy == vehicleRef:
		r.invalidate(ctx, record)
		return ctdf.ClaimResultOK, nil
	case record.Status == ctdf.PassengerStatusWaiting && record.SpawnTime.After(now):
		// Not spawned yet
		return ctdf.ClaimResultNotFound, nil
	case record.IsExpiredAt(now):
		if expired := r.expire(ctx, record.PrimaryIdentifier, now); expired != nil {
			r.publish(ctdf.NewPassengerEvent(ctdf.EventTypePassengerExpired, now, expired))
		}
		return ctdf.ClaimResultExpired, nil
	case record.Status == ctdf.PassengerStatusExpired:
		return ctdf.ClaimResultExpired, nil
	case record.Status == ctdf.PassengerStatusWaiting:
		// Lost to a concurrent writer between the update and the read
		return ctdf.ClaimResultConflict, nil
	default:
		r.invalidate(ctx, record)
		return ctdf.ClaimResultConflict, nil
	}
}

// ClaimToken claims a passenger and returns the token for a won claim
func (r *Reservoir) ClaimToken(ctx context.Context, identifier string, vehicleRef string) (ctdf.ClaimResult, *ctdf.ClaimToken, error) {
	result, err := r.Claim(ctx, identifier, vehicleRef)
	if err != nil || !result.Won() {
		return result, nil, err
	}

	return result, &ctdf.ClaimToken{
		VehicleRef: vehicleRef,
		RecordRef:  identifier,
		ClaimedAt:  r.now(),
	}, nil
}

// Board confirms a claimed passenger got on the vehicle that claimed it.
// Returns false when the passenger is not CLAIMED by vehicleRef.
func (r *Reservoir) Board(ctx context.Context, identifier string, vehicleRef string) (bool, error) {
	now := r.now()

	var boarded *ctdf.PassengerRecord
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		boarded, err = r.Store.ConditionalUpdate(ctx, identifier,
			Condition{Status: ctdf.PassengerStatusClaimed, ClaimedBy: vehicleRef},
			Update{Status: ctdf.PassengerStatusBoarded, At: now},
		)
		return err
	})
	if err != nil {
		return false, err
	}

	if boarded == nil {
		if _, err := r.Get(ctx, identifier); err != nil {
			return false, err
		}
		return false, nil
	}

	stats.PassengersBoarded.Inc()
	r.publish(ctdf.NewPassengerEvent(ctdf.EventTypePassengerBoarded, now, boarded))

	return true, nil
}

// ExpireSweep marks WAITING passengers past their expiry as EXPIRED, returning how many moved
func (r *Reservoir) ExpireSweep(ctx context.Context, now time.Time, limit int64) (int, error) {
	var candidates []*ctdf.PassengerRecord
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		candidates, err = r.Store.Find(ctx, Query{
			Status:    ctdf.PassengerStatusWaiting,
			ExpiredBy: now,
			Limit:     limit,
		})
		return err
	})
	if err != nil {
		return 0, err
	}

	var expired []*ctdf.PassengerRecord
	for _, candidate := range candidates {
		if record := r.expire(ctx, candidate.PrimaryIdentifier, now); record != nil {
			expired = append(expired, record)
		}
	}

	if len(expired) > 0 {
		r.publish(ctdf.NewPassengerEvent(ctdf.EventTypePassengerExpired, now, expired...))
	}

	return len(expired), nil
}

func (r *Reservoir) expire(ctx context.Context, identifier string, now time.Time) *ctdf.PassengerRecord {
	var expired *ctdf.PassengerRecord
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		expired, err = r.Store.ConditionalUpdate(ctx, identifier,
			Condition{Status: ctdf.PassengerStatusWaiting},
			Update{Status: ctdf.PassengerStatusExpired, At: now},
		)
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("passenger", identifier).Msg("Failed to expire passenger")
		return nil
	}
	if expired == nil {
		return nil
	}

	stats.PassengersExpired.Inc()
	r.invalidate(ctx, expired)

	return expired
}

func (r *Reservoir) CountWaiting(ctx context.Context, entityType ctdf.PassengerEntityType, entityRef string) (int64, error) {
	var count int64
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		count, err = r.Store.CountWaiting(ctx, entityType, entityRef)
		return err
	})

	return count, err
}

func (r *Reservoir) invalidate(ctx context.Context, records ...*ctdf.PassengerRecord) {
	if r.Cache != nil {
		r.Cache.InvalidateRecords(ctx, records...)
	}
}

// load reads a cache bucket, falling back to the store on a miss and repopulating the bucket
func (r *Reservoir) load(ctx context.Context, key string, query Query) ([]*ctdf.PassengerRecord, error) {
	if r.Cache != nil {
		if records, hit := r.Cache.Get(ctx, key); hit {
			return records, nil
		}
	}

	var records []*ctdf.PassengerRecord
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		records, err = r.Store.Find(ctx, query)
		return err
	})
	if err != nil {
		return nil, err
	}

	if r.Cache != nil {
		r.Cache.Set(ctx, key, records)
	}

	return records, nil
}

func persisted(records []*ctdf.PassengerRecord, failed []*ctdf.PassengerRecord) []*ctdf.PassengerRecord {
	if len(failed) == 0 {
		return records
	}

	failedIDs := map[string]bool{}
	for _, record := range failed {
		failedIDs[record.PrimaryIdentifier] = true
	}

	var succeeded []*ctdf.PassengerRecord
	for _, record := range records {
		if !failedIDs[record.PrimaryIdentifier] {
			succeeded = append(succeeded, record)
		}
	}

	return succeeded
}
