package reservoir

import (
	"cmp"
	"context"
	"math"

	"github.com/travigo/ridership/pkg/ctdf"
	"golang.org/x/exp/slices"
)

const (
	DefaultMaxLookahead = 5000.0

	// Past this many cells a query skips the cache and reads the window in one range
	maxRouteBuckets = 64
)

// RouteReservoir indexes passengers by the arc position of their origin along a route
type RouteReservoir struct {
	*Reservoir
}

func NewRouteReservoir(reservoir *Reservoir) *RouteReservoir {
	return &RouteReservoir{Reservoir: reservoir}
}

type RouteQuery struct {
	RouteRef string

	// Vehicle arc position along the route in meters
	Position  float64
	Lookahead float64

	// Empty matches every direction
	Direction ctdf.PassengerDirection

	// Zero means no limit
	Capacity int
}

// Query returns WAITING passengers with an arc position in [Position, Position+Lookahead],
// nearest to the vehicle first. Passengers whose spawn time is still ahead are not yet waiting.
// Lookahead is capped at the reservoir's MaxLookahead.
func (r *RouteReservoir) Query(ctx context.Context, query RouteQuery) ([]*ctdf.PassengerRecord, error) {
	if query.Lookahead < 0 || !isFinite(query.Lookahead) || !isFinite(query.Position) {
		return nil, nil
	}

	windowStart := query.Position
	windowEnd := query.Position + math.Min(query.Lookahead, r.maxLookahead())

	var candidates []*ctdf.PassengerRecord
	for _, bucket := range r.buckets(query.RouteRef, windowStart, windowEnd) {
		records, err := r.load(ctx, bucket.key, Query{
			EntityType:  ctdf.PassengerEntityRoute,
			EntityRef:   query.RouteRef,
			Status:      ctdf.PassengerStatusWaiting,
			HasArcRange: true,
			MinArc:      bucket.min,
			MaxArc:      bucket.max,
		})
		if err != nil {
			return nil, err
		}

		candidates = append(candidates, records...)
	}

	now := r.now()
	eligible := slices.DeleteFunc(candidates, func(record *ctdf.PassengerRecord) bool {
		if record.Status != ctdf.PassengerStatusWaiting || record.IsExpiredAt(now) || record.SpawnTime.After(now) {
			return true
		}
		if query.Direction != "" && record.Direction != query.Direction {
			return true
		}
		return record.ArcPosition < windowStart || record.ArcPosition > windowEnd
	})

	slices.SortStableFunc(eligible, func(a, b *ctdf.PassengerRecord) int {
		return cmp.Compare(a.ArcPosition-windowStart, b.ArcPosition-windowStart)
	})

	if query.Capacity > 0 && len(eligible) > query.Capacity {
		eligible = eligible[:query.Capacity]
	}

	return eligible, nil
}

type routeBucket struct {
	key      string
	min, max float64
}

func (r *RouteReservoir) maxLookahead() float64 {
	if r.MaxLookahead > 0 {
		return r.MaxLookahead
	}
	return DefaultMaxLookahead
}

// buckets covers [start, end] with whole cache cells. Without a cache, or when the window spans
// more than maxRouteBuckets cells, a single uncached range query is used.
func (r *RouteReservoir) buckets(routeRef string, start float64, end float64) []routeBucket {
	uncached := []routeBucket{{min: start, max: math.Nextafter(end, math.Inf(1))}}
	if r.Cache == nil || (end-start)/r.Cache.CellMeters >= maxRouteBuckets {
		return uncached
	}
	// Cell numbers past this cannot be held exactly
	if math.Max(math.Abs(start), math.Abs(end))/r.Cache.CellMeters > 1<<53 {
		return uncached
	}

	first, last := r.Cache.Bucket(start), r.Cache.Bucket(end)
	if last-first >= maxRouteBuckets {
		return uncached
	}

	buckets := make([]routeBucket, 0, last-first+1)
	for bucket := first; bucket <= last; bucket++ {
		min, max := r.Cache.BucketRange(bucket)
		buckets = append(buckets, routeBucket{
			key: r.Cache.RouteKey(routeRef, bucket),
			min: min,
			max: max,
		})
	}

	return buckets
}

func isFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}
