package ctdf

import (
	"errors"
	"fmt"
)

var ErrInvalidGeometry = errors.New("route geometry needs at least 2 coordinates")

type Route struct {
	PrimaryIdentifier string `groups:"basic" bson:"primaryidentifier" yaml:"id"`
	PrimaryName       string `groups:"basic" bson:"primaryname" yaml:"name"`

	// Ordered coordinate sequence the route runs along
	Coordinates []Location `groups:"detailed" bson:"coordinates" yaml:"-"`

	// Relative popularity used by weighted destination strategies
	Popularity float64 `groups:"detailed" bson:"popularity" yaml:"popularity"`
}

func (r *Route) Geometry() (*RouteGeometry, error) {
	geometry, err := NewRouteGeometry(r.Coordinates)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", r.PrimaryIdentifier, err)
	}

	return geometry, nil
}

// Endpoints returns the first and last coordinate of the route
func (r *Route) Endpoints() (Location, Location, error) {
	if len(r.Coordinates) < 2 {
		return Location{}, Location{}, ErrInvalidGeometry
	}

	return r.Coordinates[0], r.Coordinates[len(r.Coordinates)-1], nil
}

type Depot struct {
	PrimaryIdentifier string   `groups:"basic" bson:"primaryidentifier" yaml:"id"`
	PrimaryName       string   `groups:"basic" bson:"primaryname" yaml:"name"`
	Location          Location `groups:"basic" bson:"location" yaml:"-"`

	// Routes that serve this depot
	RouteRefs []string `groups:"detailed" bson:"routerefs" yaml:"routes"`
}
