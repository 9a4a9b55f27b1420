package ctdf

import "math"

const earthRadiusMeters = 6371000.0

// Location is a GeoJSON style point, Coordinates are [longitude, latitude]
type Location struct {
	Type        string    `json:"-" groups:"basic"`
	Coordinates []float64 `json:"coordinates" groups:"basic"`
}

func NewLocation(longitude float64, latitude float64) Location {
	return Location{
		Type:        "Point",
		Coordinates: []float64{longitude, latitude},
	}
}

func (l Location) Longitude() float64 {
	if len(l.Coordinates) < 2 {
		return 0
	}
	return l.Coordinates[0]
}

func (l Location) Latitude() float64 {
	if len(l.Coordinates) < 2 {
		return 0
	}
	return l.Coordinates[1]
}

func (l Location) IsValid() bool {
	return len(l.Coordinates) == 2 &&
		l.Latitude() >= -90 && l.Latitude() <= 90 &&
		l.Longitude() >= -180 && l.Longitude() <= 180
}

func (l Location) Equal(other Location) bool {
	return l.Longitude() == other.Longitude() && l.Latitude() == other.Latitude()
}

// Distance returns the haversine distance in meters
func (l *Location) Distance(other *Location) float64 {
	lat1 := l.Latitude() * math.Pi / 180
	lat2 := other.Latitude() * math.Pi / 180
	deltaLat := lat2 - lat1
	deltaLon := (other.Longitude() - l.Longitude()) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// ProjectOntoLine returns how far along the segment a->b the closest point to l is (clamped to 0..1)
// and that closest point. Longitudes are scaled by the cosine of the latitude so short segments
// project the same way they would on a local flat plane.
func (l *Location) ProjectOntoLine(a Location, b Location) (float64, Location) {
	scale := math.Cos(a.Latitude() * math.Pi / 180)

	A := (l.Longitude() - a.Longitude()) * scale
	B := l.Latitude() - a.Latitude()
	C := (b.Longitude() - a.Longitude()) * scale
	D := b.Latitude() - a.Latitude()

	dot := A*C + B*D
	lenSq := C*C + D*D

	param := 0.0
	if lenSq != 0 {
		param = dot / lenSq
	}

	if param < 0 {
		param = 0
	} else if param > 1 {
		param = 1
	}

	closest := NewLocation(
		a.Longitude()+param*(b.Longitude()-a.Longitude()),
		a.Latitude()+param*(b.Latitude()-a.Latitude()),
	)

	return param, closest
}

// DistanceFromLine returns the distance in meters from l to the closest point on segment a->b
func (l *Location) DistanceFromLine(a Location, b Location) float64 {
	_, closest := l.ProjectOntoLine(a, b)

	return l.Distance(&closest)
}
