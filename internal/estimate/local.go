package estimate

import (
	"context"
	"fmt"

	"github.com/saadjs/carbon-cli/internal/model"
)

const (
	localBaseValue = 100
	localSource    = "local-formula"
)

// LocalFormula is a fixed demonstration formula scaled from a base value
// of 100 kg. It never calls out and is not comparable to remote results.
type LocalFormula struct{}

func (LocalFormula) Name() string { return StrategyLocal }

func (LocalFormula) Estimate(_ context.Context, req Request) (Result, error) {
	var (
		co2e    float64
		formula string
	)
	switch req.Category {
	case model.CategoryBusinessTravel:
		p := req.Travel
		if p == nil || !p.HasDistance {
			return Result{}, fmt.Errorf("%w: distance_km is required for the local formula", ErrMissingParameter)
		}
		trips := 1.0
		if p.ReturnTrip {
			trips = 2
		}
		co2e = localBaseValue * (p.DistanceKM / 100) * trips
		formula = "base * (distance_km / 100) * trips"
	case model.CategoryIntermodalFreight:
		p := req.Freight
		if p == nil || !p.HasDistance {
			return Result{}, fmt.Errorf("%w: distance_km is required for the local formula", ErrMissingParameter)
		}
		co2e = localBaseValue * (p.Weight / 10) * (p.DistanceKM / 1000)
		formula = "base * (weight / 10) * (distance_km / 1000)"
	case model.CategoryCloudCPU:
		p := req.Compute
		if p == nil {
			return Result{}, fmt.Errorf("%w: cpu_count", ErrMissingParameter)
		}
		co2e = localBaseValue * p.CPUCount * p.Utilization
		formula = "base * cpu_count * utilization"
	case model.CategoryCloudStorage:
		p := req.Compute
		if p == nil {
			return Result{}, fmt.Errorf("%w: data", ErrMissingParameter)
		}
		co2e = localBaseValue * (p.Data / 100)
		formula = "base * (data / 100)"
	case model.CategoryCloudMemory:
		p := req.Compute
		if p == nil {
			return Result{}, fmt.Errorf("%w: data", ErrMissingParameter)
		}
		co2e = localBaseValue * (p.Data / 10) * p.Utilization
		formula = "base * (data / 10) * utilization"
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedCategory, req.Category)
	}

	var details model.Payload
	details.Set("method", model.StringValue(localSource))
	details.Set("base_value", model.NumberValue(localBaseValue))
	details.Set("formula", model.StringValue(formula))
	return Result{
		Strategy: StrategyLocal,
		CO2e:     co2e,
		Unit:     "kg",
		Source:   localSource,
		Details:  details,
	}, nil
}
