package metadata

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/travigo/ridership/pkg/ctdf"
)

var ErrNotFound = errors.New("metadata not found")

// Provider looks up the static route and depot data demand is generated against
type Provider interface {
	GetRoute(ctx context.Context, identifier string) (*ctdf.Route, error)
	GetDepot(ctx context.Context, identifier string) (*ctdf.Depot, error)
	ListRoutes(ctx context.Context) ([]*ctdf.Route, error)
	ListDepots(ctx context.Context) ([]*ctdf.Depot, error)
}

// GeometryIndex memoises route geometries, route shapes are static so they are kept until invalidated
type GeometryIndex struct {
	Provider Provider

	geometries sync.Map
}

func NewGeometryIndex(provider Provider) *GeometryIndex {
	return &GeometryIndex{Provider: provider}
}

func (g *GeometryIndex) Geometry(ctx context.Context, routeRef string) (*ctdf.RouteGeometry, error) {
	if cached, ok := g.geometries.Load(routeRef); ok {
		return cached.(*ctdf.RouteGeometry), nil
	}

	route, err := g.Provider.GetRoute(ctx, routeRef)
	if err != nil {
		return nil, err
	}

	geometry, err := route.Geometry()
	if err != nil {
		return nil, err
	}

	g.geometries.Store(routeRef, geometry)

	return geometry, nil
}

func (g *GeometryIndex) Invalidate(routeRef string) {
	g.geometries.Delete(routeRef)
}

func notFound(kind string, identifier string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, identifier)
}
