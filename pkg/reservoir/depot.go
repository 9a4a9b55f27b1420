package reservoir

import (
	"context"

	"github.com/travigo/ridership/pkg/ctdf"
	"golang.org/x/exp/slices"
)

// DepotReservoir queues passengers at a depot per route, oldest first
type DepotReservoir struct {
	*Reservoir
}

func NewDepotReservoir(reservoir *Reservoir) *DepotReservoir {
	return &DepotReservoir{Reservoir: reservoir}
}

type DepotQuery struct {
	DepotRef string
	RouteRef string

	// Zero means no limit
	Capacity int
}

func (d *DepotReservoir) Query(ctx context.Context, query DepotQuery) ([]*ctdf.PassengerRecord, error) {
	storeQuery := Query{
		EntityType: ctdf.PassengerEntityDepot,
		EntityRef:  query.DepotRef,
		Status:     ctdf.PassengerStatusWaiting,
	}

	key := ""
	if d.Cache != nil {
		key = d.Cache.DepotKey(query.DepotRef)
	} else {
		// Nothing to share between routes without a cache so filter in the store
		storeQuery.RouteRef = query.RouteRef
	}

	records, err := d.load(ctx, key, storeQuery)
	if err != nil {
		return nil, err
	}

	now := d.now()
	eligible := slices.DeleteFunc(records, func(record *ctdf.PassengerRecord) bool {
		if record.Status != ctdf.PassengerStatusWaiting || record.IsExpiredAt(now) || record.SpawnTime.After(now) {
			return true
		}
		return query.RouteRef != "" && record.RouteRef != query.RouteRef
	})

	// Store order is spawn time ascending, keep it stable through the cache round trip
	slices.SortStableFunc(eligible, func(a, b *ctdf.PassengerRecord) int {
		return a.SpawnTime.Compare(b.SpawnTime)
	})

	if query.Capacity > 0 && len(eligible) > query.Capacity {
		eligible = eligible[:query.Capacity]
	}

	return eligible, nil
}
