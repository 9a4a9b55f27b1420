package reservoir

import (
	"context"
	"errors"
	"time"

	"github.com/travigo/ridership/pkg/ctdf"
)

var (
	ErrNotFound       = errors.New("passenger not found")
	ErrPersistFailure = errors.New("failed to persist passengers")
	ErrStoreTimeout   = errors.New("durable store timed out")
)

// Store is the durable home of passenger records and the only writer of their status.
// ConditionalUpdate must be atomic per record.
type Store interface {
	// InsertMany returns the records that could not be inserted, the rest are persisted
	InsertMany(ctx context.Context, records []*ctdf.PassengerRecord) ([]*ctdf.PassengerRecord, error)
	Get(ctx context.Context, identifier string) (*ctdf.PassengerRecord, error)
	Find(ctx context.Context, query Query) ([]*ctdf.PassengerRecord, error)
	// ConditionalUpdate applies update only when the record matches condition and returns the
	// updated record, or nil when the condition did not hold
	ConditionalUpdate(ctx context.Context, identifier string, condition Condition, update Update) (*ctdf.PassengerRecord, error)
	CountWaiting(ctx context.Context, entityType ctdf.PassengerEntityType, entityRef string) (int64, error)
}

// Query selects records by status, results are ordered by spawn time ascending
type Query struct {
	EntityType ctdf.PassengerEntityType
	EntityRef  string
	RouteRef   string
	Status     ctdf.PassengerStatus
	Direction  ctdf.PassengerDirection

	// Half open arc range [MinArc, MaxArc), only applied when HasArcRange is set
	HasArcRange bool
	MinArc      float64
	MaxArc      float64

	// Only records with ExpiresAt at or before this time
	ExpiredBy time.Time

	Limit int64
}

func (q *Query) matches(record *ctdf.PassengerRecord) bool {
	if q.EntityType != "" && record.EntityType != q.EntityType {
		return false
	}
	if q.EntityRef != "" && record.EntityRef != q.EntityRef {
		return false
	}
	if q.RouteRef != "" && record.RouteRef != q.RouteRef {
		return false
	}
	if q.Status != "" && record.Status != q.Status {
		return false
	}
	if q.Direction != "" && record.Direction != q.Direction {
		return false
	}
	if q.HasArcRange && (record.ArcPosition < q.MinArc || record.ArcPosition >= q.MaxArc) {
		return false
	}
	if !q.ExpiredBy.IsZero() && record.ExpiresAt.After(q.ExpiredBy) {
		return false
	}

	return true
}

type Condition struct {
	Status ctdf.PassengerStatus

	// When set the record must expire strictly after this time
	ExpiresAfter time.Time

	// When set the record must have spawned at or before this time
	SpawnedBy time.Time

	// When set the record must be claimed by this vehicle
	ClaimedBy string
}

func (c *Condition) matches(record *ctdf.PassengerRecord) bool {
	if record.Status != c.Status {
		return false
	}
	if !c.ExpiresAfter.IsZero() && !record.ExpiresAt.After(c.ExpiresAfter) {
		return false
	}
	if !c.SpawnedBy.IsZero() && record.SpawnTime.After(c.SpawnedBy) {
		return false
	}
	if c.ClaimedBy != "" && record.ClaimedBy != c.ClaimedBy {
		return false
	}

	return true
}

// Update moves a record to Status, stamping the matching timestamp with At
type Update struct {
	Status    ctdf.PassengerStatus
	ClaimedBy string
	At        time.Time
}

func (u *Update) apply(record *ctdf.PassengerRecord) {
	at := u.At
	record.Status = u.Status

	switch u.Status {
	case ctdf.PassengerStatusClaimed:
		record.ClaimedBy = u.ClaimedBy
		record.ClaimedAt = &at
	case ctdf.PassengerStatusBoarded:
		record.BoardedAt = &at
	case ctdf.PassengerStatusExpired:
		record.ExpiredAt = &at
	}
}
