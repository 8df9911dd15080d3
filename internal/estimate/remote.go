package estimate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/saadjs/carbon-cli/internal/model"
	"github.com/saadjs/carbon-cli/internal/provider/climatiq"
)

// Remote estimates through the Climatiq API. Failures are returned as is;
// there is no local fallback.
type Remote struct {
	Client *climatiq.Client
}

func (Remote) Name() string { return StrategyRemote }

func (r Remote) Estimate(ctx context.Context, req Request) (Result, error) {
	if r.Client == nil {
		return Result{}, fmt.Errorf("remote estimate: no climatiq client configured")
	}

	var (
		out climatiq.Estimation
		err error
	)
	multiplier := 1.0
	switch req.Category {
	case model.CategoryBusinessTravel:
		var body climatiq.TravelRequest
		body, err = travelBody(req.Travel)
		if err != nil {
			return Result{}, err
		}
		if req.Travel.ReturnTrip {
			multiplier = 2
		}
		out, err = r.Client.Travel(ctx, body)
	case model.CategoryIntermodalFreight:
		var body climatiq.FreightRequest
		body, err = freightBody(req.Freight)
		if err != nil {
			return Result{}, err
		}
		out, err = r.Client.Freight(ctx, body)
	case model.CategoryCloudCPU, model.CategoryCloudMemory, model.CategoryCloudStorage:
		p := req.Compute
		if p == nil || p.Region == "" {
			return Result{}, fmt.Errorf("%w: region", ErrMissingParameter)
		}
		if p.Duration == 0 {
			return Result{}, fmt.Errorf("%w: duration", ErrMissingParameter)
		}
		switch req.Category {
		case model.CategoryCloudCPU:
			out, err = r.Client.CPU(ctx, p.Provider, climatiq.CPURequest{
				Region:                 p.Region,
				CPUCount:               p.CPUCount,
				AverageVCPUUtilization: p.Utilization,
				Duration:               p.Duration,
				DurationUnit:           p.DurationUnit,
				Year:                   p.Year,
			})
		case model.CategoryCloudMemory:
			out, err = r.Client.Memory(ctx, p.Provider, climatiq.MemoryRequest{
				Region:       p.Region,
				Data:         p.Data,
				DataUnit:     p.DataUnit,
				Duration:     p.Duration,
				DurationUnit: p.DurationUnit,
				Year:         p.Year,
			})
		default:
			out, err = r.Client.Storage(ctx, p.Provider, climatiq.StorageRequest{
				Region:       p.Region,
				StorageType:  p.StorageType,
				Data:         p.Data,
				DataUnit:     p.DataUnit,
				Duration:     p.Duration,
				DurationUnit: p.DurationUnit,
				Year:         p.Year,
			})
		}
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedCategory, req.Category)
	}
	if err != nil {
		return Result{}, fmt.Errorf("remote estimate %s: %w", req.Category, err)
	}
	return resultFrom(out, multiplier), nil
}

func travelBody(p *TravelParams) (climatiq.TravelRequest, error) {
	if p == nil || p.Origin == "" {
		return climatiq.TravelRequest{}, fmt.Errorf("%w: origin", ErrMissingParameter)
	}
	if p.Destination == "" {
		return climatiq.TravelRequest{}, fmt.Errorf("%w: destination", ErrMissingParameter)
	}
	body := climatiq.TravelRequest{
		TravelMode:  p.Mode,
		Origin:      climatiq.Location{Query: p.Origin},
		Destination: climatiq.Location{Query: p.Destination},
		Year:        p.Year,
	}
	if p.HasDistance {
		d := p.DistanceKM
		body.DistanceKM = &d
	}
	switch p.Mode {
	case "car":
		if p.CarType != "" || p.CarSize != "" {
			body.CarDetails = &climatiq.CarDetails{CarType: p.CarType, CarSize: p.CarSize}
		}
	case "air":
		if p.AircraftType != "" || p.Class != "" {
			body.AirDetails = &climatiq.AirDetails{AircraftType: p.AircraftType, Class: p.Class}
		}
	}
	return body, nil
}

func freightBody(p *FreightParams) (climatiq.FreightRequest, error) {
	if p == nil || len(p.Legs) == 0 {
		return climatiq.FreightRequest{}, fmt.Errorf("%w: origin and destination", ErrMissingParameter)
	}
	route := []climatiq.RouteStep{{Location: &climatiq.Location{Query: p.Legs[0].From}}}
	for _, leg := range p.Legs {
		route = append(route,
			climatiq.RouteStep{TransportMode: leg.Mode},
			climatiq.RouteStep{Location: &climatiq.Location{Query: leg.To}},
		)
	}
	return climatiq.FreightRequest{
		Route: route,
		Cargo: climatiq.Cargo{Weight: p.Weight, WeightUnit: p.WeightUnit},
	}, nil
}

func resultFrom(out climatiq.Estimation, multiplier float64) Result {
	res := Result{
		Strategy: StrategyRemote,
		CO2e:     out.CO2e * multiplier,
		Unit:     out.CO2eUnit,
		Source:   "climatiq",
	}
	if res.Unit == "" {
		res.Unit = "kg"
	}
	if f := out.EmissionFactor; f != nil {
		if f.Source != "" {
			res.Source = f.Source
		}
		res.LCAActivity = f.SourceLCAActivity
	}
	if g := out.ConstituentGases; g != nil {
		res.CO2 = scaled(g.CO2, multiplier)
		res.CH4 = scaled(g.CH4, multiplier)
		res.N2O = scaled(g.N2O, multiplier)
	}
	if len(out.Raw) > 0 {
		var details model.Payload
		if err := json.Unmarshal(out.Raw, &details); err == nil {
			res.Details = details
		}
	}
	if multiplier != 1 {
		res.Details.Set("trip_multiplier", model.NumberValue(multiplier))
	}
	return res
}

func scaled(v *float64, m float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v * m
	return &out
}
