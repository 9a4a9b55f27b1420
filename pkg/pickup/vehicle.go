package pickup

import (
	"math"
	"time"

	"github.com/travigo/ridership/pkg/ctdf"
)

// Vehicle is the state a coordinator needs about the vehicle it picks up for.
// A vehicle either runs along RouteRef or waits at DepotRef loading for RouteRef.
type Vehicle struct {
	PrimaryIdentifier string `groups:"basic" json:"id"`

	RouteRef string `groups:"basic" json:"route_id"`
	DepotRef string `groups:"basic" json:"depot_id,omitempty"`

	Location  ctdf.Location           `groups:"basic" json:"location"`
	Direction ctdf.PassengerDirection `groups:"basic" json:"direction"`

	Capacity int `groups:"basic" json:"capacity"`
	Onboard  int `groups:"basic" json:"onboard"`
}

func (v *Vehicle) RemainingCapacity() int {
	return max(v.Capacity-v.Onboard, 0)
}

func (v *Vehicle) AtDepot() bool {
	return v.DepotRef != ""
}

// DirectionCompatible is true unless both the vehicle and passenger have a direction and they differ
func (v *Vehicle) DirectionCompatible(direction ctdf.PassengerDirection) bool {
	if v.Direction == "" || v.Direction == ctdf.PassengerDirectionNone {
		return true
	}
	if direction == "" || direction == ctdf.PassengerDirectionNone {
		return true
	}
	return v.Direction == direction
}

// RouteDriver moves a vehicle along a route geometry at a fixed speed, turning around at each end.
// Everyone on board alights at the terminus.
type RouteDriver struct {
	Geometry *ctdf.RouteGeometry
	Speed    float64

	arc float64
}

func NewRouteDriver(geometry *ctdf.RouteGeometry, speed float64, startArc float64) *RouteDriver {
	return &RouteDriver{
		Geometry: geometry,
		Speed:    speed,
		arc:      math.Min(math.Max(startArc, 0), geometry.Length()),
	}
}

func (d *RouteDriver) Move(vehicle *Vehicle, elapsed time.Duration) {
	if vehicle.Direction != ctdf.PassengerDirectionInbound {
		vehicle.Direction = ctdf.PassengerDirectionOutbound
	}

	distance := d.Speed * elapsed.Seconds()
	if vehicle.Direction == ctdf.PassengerDirectionOutbound {
		d.arc += distance
		if d.arc >= d.Geometry.Length() {
			d.arc = d.Geometry.Length()
			vehicle.Direction = ctdf.PassengerDirectionInbound
			vehicle.Onboard = 0
		}
	} else {
		d.arc -= distance
		if d.arc <= 0 {
			d.arc = 0
			vehicle.Direction = ctdf.PassengerDirectionOutbound
			vehicle.Onboard = 0
		}
	}

	vehicle.Location = d.Geometry.LocationAt(d.arc)
}
