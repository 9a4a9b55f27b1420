package metadata

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/paulcager/osgridref"
	"github.com/travigo/ridership/pkg/ctdf"
	"gopkg.in/yaml.v3"
)

// StaticProvider serves routes and depots held in memory, loaded from a fixture file or built in tests
type StaticProvider struct {
	mutex  sync.RWMutex
	routes map[string]*ctdf.Route
	depots map[string]*ctdf.Depot
}

func NewStaticProvider(routes []*ctdf.Route, depots []*ctdf.Depot) *StaticProvider {
	s := &StaticProvider{
		routes: map[string]*ctdf.Route{},
		depots: map[string]*ctdf.Depot{},
	}
	for _, route := range routes {
		s.routes[route.PrimaryIdentifier] = route
	}
	for _, depot := range depots {
		s.depots[depot.PrimaryIdentifier] = depot
	}

	return s
}

func (s *StaticProvider) GetRoute(_ context.Context, identifier string) (*ctdf.Route, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	route, exists := s.routes[identifier]
	if !exists {
		return nil, notFound("route", identifier)
	}
	return route, nil
}

func (s *StaticProvider) GetDepot(_ context.Context, identifier string) (*ctdf.Depot, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	depot, exists := s.depots[identifier]
	if !exists {
		return nil, notFound("depot", identifier)
	}
	return depot, nil
}

func (s *StaticProvider) ListRoutes(_ context.Context) ([]*ctdf.Route, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	routes := make([]*ctdf.Route, 0, len(s.routes))
	for _, route := range s.routes {
		routes = append(routes, route)
	}
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].PrimaryIdentifier < routes[j].PrimaryIdentifier
	})

	return routes, nil
}

func (s *StaticProvider) ListDepots(_ context.Context) ([]*ctdf.Depot, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	depots := make([]*ctdf.Depot, 0, len(s.depots))
	for _, depot := range s.depots {
		depots = append(depots, depot)
	}
	sort.Slice(depots, func(i, j int) bool {
		return depots[i].PrimaryIdentifier < depots[j].PrimaryIdentifier
	})

	return depots, nil
}

type fixtureFile struct {
	Routes []fixtureRoute `yaml:"routes"`
	Depots []fixtureDepot `yaml:"depots"`
}

type fixtureRoute struct {
	ctdf.Route  `yaml:",inline"`
	Coordinates []fixturePoint `yaml:"coordinates"`
}

type fixtureDepot struct {
	ctdf.Depot `yaml:",inline"`
	Location   fixturePoint `yaml:"location"`
}

// fixturePoint is either a [longitude, latitude] pair or a mapping with
// longitude/latitude or OS grid easting/northing
type fixturePoint struct {
	Longitude float64 `yaml:"longitude"`
	Latitude  float64 `yaml:"latitude"`
	Easting   string  `yaml:"easting"`
	Northing  string  `yaml:"northing"`
}

func (p *fixturePoint) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		var pair []float64
		if err := value.Decode(&pair); err != nil {
			return err
		}
		if len(pair) != 2 {
			return fmt.Errorf("line %d: coordinate must be [longitude, latitude]", value.Line)
		}
		p.Longitude = pair[0]
		p.Latitude = pair[1]
		return nil
	}

	type plain fixturePoint
	return value.Decode((*plain)(p))
}

func (p fixturePoint) toLocation() (ctdf.Location, error) {
	if p.Longitude == 0 && p.Latitude == 0 && p.Easting != "" && p.Northing != "" {
		gridRef, err := osgridref.ParseOsGridRef(fmt.Sprintf("%s,%s", p.Easting, p.Northing))
		if err != nil {
			return ctdf.Location{}, err
		}

		latitude, longitude := gridRef.ToLatLon()
		return ctdf.NewLocation(longitude, latitude), nil
	}

	location := ctdf.NewLocation(p.Longitude, p.Latitude)
	if !location.IsValid() {
		return ctdf.Location{}, fmt.Errorf("coordinate %f,%f out of range", p.Longitude, p.Latitude)
	}
	return location, nil
}

// ParseStatic decodes a YAML fixture of routes and depots
func ParseStatic(contents []byte) ([]*ctdf.Route, []*ctdf.Depot, error) {
	var fixture fixtureFile
	decoder := yaml.NewDecoder(bytes.NewReader(contents))
	if err := decoder.Decode(&fixture); err != nil {
		return nil, nil, err
	}

	var routes []*ctdf.Route
	for _, fixtureRoute := range fixture.Routes {
		route := fixtureRoute.Route
		for _, point := range fixtureRoute.Coordinates {
			location, err := point.toLocation()
			if err != nil {
				return nil, nil, fmt.Errorf("route %s: %w", route.PrimaryIdentifier, err)
			}
			route.Coordinates = append(route.Coordinates, location)
		}
		routes = append(routes, &route)
	}

	var depots []*ctdf.Depot
	for _, fixtureDepot := range fixture.Depots {
		depot := fixtureDepot.Depot
		location, err := fixtureDepot.Location.toLocation()
		if err != nil {
			return nil, nil, fmt.Errorf("depot %s: %w", depot.PrimaryIdentifier, err)
		}
		depot.Location = location
		depots = append(depots, &depot)
	}

	return routes, depots, nil
}

func LoadStaticFile(path string) (*StaticProvider, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	routes, depots, err := ParseStatic(contents)
	if err != nil {
		return nil, err
	}

	return NewStaticProvider(routes, depots), nil
}
