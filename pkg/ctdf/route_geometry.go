package ctdf

import "math"

// RouteGeometry is an ordered coordinate sequence with precomputed arc lengths.
// Arc positions are meters from the first coordinate along the route.
type RouteGeometry struct {
	Coordinates []Location
	Cumulative  []float64
}

func NewRouteGeometry(coordinates []Location) (*RouteGeometry, error) {
	if len(coordinates) < 2 {
		return nil, ErrInvalidGeometry
	}

	cumulative := make([]float64, len(coordinates))
	for i := 1; i < len(coordinates); i++ {
		cumulative[i] = cumulative[i-1] + coordinates[i-1].Distance(&coordinates[i])
	}

	return &RouteGeometry{
		Coordinates: coordinates,
		Cumulative:  cumulative,
	}, nil
}

func (g *RouteGeometry) Len() int {
	return len(g.Coordinates)
}

// Length is the total arc length of the route in meters
func (g *RouteGeometry) Length() float64 {
	return g.Cumulative[len(g.Cumulative)-1]
}

func (g *RouteGeometry) ArcPosition(index int) float64 {
	return g.Cumulative[index]
}

// Project finds the closest point on the route to location and returns its arc position
// along with how far (in meters) location is from the route
func (g *RouteGeometry) Project(location Location) (float64, float64) {
	bestArc := 0.0
	bestOffset := math.Inf(1)

	for i := 0; i < len(g.Coordinates)-1; i++ {
		a := g.Coordinates[i]
		b := g.Coordinates[i+1]

		param, closest := location.ProjectOntoLine(a, b)
		offset := location.Distance(&closest)

		if offset < bestOffset {
			bestOffset = offset
			bestArc = g.Cumulative[i] + param*(g.Cumulative[i+1]-g.Cumulative[i])
		}
	}

	return bestArc, bestOffset
}

// LocationAt interpolates the coordinate at an arc position, clamped to the route ends
func (g *RouteGeometry) LocationAt(arc float64) Location {
	if arc <= 0 {
		return g.Coordinates[0]
	}
	if arc >= g.Length() {
		return g.Coordinates[len(g.Coordinates)-1]
	}

	for i := 0; i < len(g.Coordinates)-1; i++ {
		start := g.Cumulative[i]
		end := g.Cumulative[i+1]

		if arc > end {
			continue
		}

		param := 0.0
		if end > start {
			param = (arc - start) / (end - start)
		}

		a := g.Coordinates[i]
		b := g.Coordinates[i+1]

		return NewLocation(
			a.Longitude()+param*(b.Longitude()-a.Longitude()),
			a.Latitude()+param*(b.Latitude()-a.Latitude()),
		)
	}

	return g.Coordinates[len(g.Coordinates)-1]
}
