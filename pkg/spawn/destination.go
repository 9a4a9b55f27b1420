package spawn

import (
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/travigo/ridership/pkg/ctdf"
)

// DestinationCandidate is one route a depot passenger could travel on and where it would take them
type DestinationCandidate struct {
	Route    *ctdf.Route
	Endpoint ctdf.Location
	Length   float64
}

// DestinationStrategy weights the candidate routes of a depot. Non positive weights are never chosen,
// if no weight is positive every candidate is equally likely.
type DestinationStrategy interface {
	Name() string
	Weights(candidates []DestinationCandidate) ([]float64, error)
}

type UniformStrategy struct{}

func (UniformStrategy) Name() string { return "uniform" }

func (UniformStrategy) Weights(candidates []DestinationCandidate) ([]float64, error) {
	weights := make([]float64, len(candidates))
	for i := range weights {
		weights[i] = 1
	}
	return weights, nil
}

// PopularityStrategy weights by Route.Popularity
type PopularityStrategy struct{}

func (PopularityStrategy) Name() string { return "popularity" }

func (PopularityStrategy) Weights(candidates []DestinationCandidate) ([]float64, error) {
	weights := make([]float64, len(candidates))
	for i, candidate := range candidates {
		weights[i] = math.Max(candidate.Route.Popularity, 0)
	}
	return weights, nil
}

// ExprStrategy evaluates an expression per candidate with popularity, length (meters) and stops in scope,
// eg. "popularity * 2 + stops / 10"
type ExprStrategy struct {
	Expression string

	program *vm.Program
}

func NewExprStrategy(expression string) (*ExprStrategy, error) {
	program, err := expr.Compile(expression, expr.Env(exprEnvironment(DestinationCandidate{Route: &ctdf.Route{}})), expr.AsFloat64())
	if err != nil {
		return nil, fmt.Errorf("invalid destination expression %q: %w", expression, err)
	}

	return &ExprStrategy{
		Expression: expression,
		program:    program,
	}, nil
}

func (e *ExprStrategy) Name() string { return "expr" }

func (e *ExprStrategy) Weights(candidates []DestinationCandidate) ([]float64, error) {
	weights := make([]float64, len(candidates))
	for i, candidate := range candidates {
		output, err := expr.Run(e.program, exprEnvironment(candidate))
		if err != nil {
			return nil, err
		}

		weight, _ := output.(float64)
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			weight = 0
		}
		weights[i] = weight
	}
	return weights, nil
}

func exprEnvironment(candidate DestinationCandidate) map[string]interface{} {
	return map[string]interface{}{
		"popularity": candidate.Route.Popularity,
		"length":     candidate.Length,
		"stops":      float64(len(candidate.Route.Coordinates)),
	}
}

// NewDestinationStrategy maps a policy name to a strategy, anything other than a known name is
// compiled as an expression
func NewDestinationStrategy(policy string) (DestinationStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case "", "uniform":
		return UniformStrategy{}, nil
	case "popularity":
		return PopularityStrategy{}, nil
	default:
		return NewExprStrategy(policy)
	}
}

// chooseDestination applies a strategy and samples one candidate
func chooseDestination(strategy DestinationStrategy, candidates []DestinationCandidate, sampler *Sampler) (int, error) {
	if len(candidates) == 0 {
		return -1, fmt.Errorf("%w: no destination routes", ErrInvalidGeometry)
	}

	weights, err := strategy.Weights(candidates)
	if err != nil {
		return -1, err
	}

	if chosen := sampler.Weighted(weights); chosen >= 0 {
		return chosen, nil
	}

	return sampler.IntN(len(candidates)), nil
}
