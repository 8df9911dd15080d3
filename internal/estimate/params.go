package estimate

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/saadjs/carbon-cli/internal/model"
)

var (
	ErrInvalidNumber       = errors.New("invalid number")
	ErrMissingParameter    = errors.New("missing parameter")
	ErrUnsupportedCategory = errors.New("unsupported category")
	ErrInvalidParameter    = errors.New("invalid parameter")
)

var decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// ParseQuantity is the single place user-entered numbers are converted.
// It accepts finite, non-negative decimals only.
func ParseQuantity(name, raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: %s is empty", ErrInvalidNumber, name)
	}
	if !decimalPattern.MatchString(s) {
		if l := strings.ToLower(strings.TrimLeft(s, "+-")); l == "nan" || strings.HasPrefix(l, "inf") {
			return 0, fmt.Errorf("%w: %s must be finite, got %q", ErrInvalidNumber, name, raw)
		}
		return 0, fmt.Errorf("%w: %s must be a number, got %q", ErrInvalidNumber, name, raw)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number, got %q", ErrInvalidNumber, name, raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s must be finite, got %q", ErrInvalidNumber, name, raw)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative, got %q", ErrInvalidNumber, name, raw)
	}
	return v, nil
}

type TravelParams struct {
	Mode         string
	Origin       string
	Destination  string
	DistanceKM   float64
	HasDistance  bool
	Year         int
	CarType      string
	CarSize      string
	AircraftType string
	Class        string
	ReturnTrip   bool
}

type FreightLeg struct {
	From string
	To   string
	Mode string
}

type FreightParams struct {
	Legs        []FreightLeg
	Weight      float64
	WeightUnit  string
	DistanceKM  float64
	HasDistance bool
}

// ComputeParams covers the three cloud categories. CPUCount and
// Utilization apply to cpu; StorageType applies to storage.
type ComputeParams struct {
	Provider     string
	Region       string
	CPUCount     float64
	Utilization  float64
	Data         float64
	DataUnit     string
	Duration     float64
	DurationUnit string
	Year         int
	StorageType  string
}

// Request is a parsed estimation form. Exactly one of the parameter
// pointers is set, matching Category. Form keeps the accepted inputs in
// field order with numbers stored as numbers.
type Request struct {
	Category model.Category
	Travel   *TravelParams
	Freight  *FreightParams
	Compute  *ComputeParams
	Form     model.Payload
}

type fieldKind uint8

const (
	kindText fieldKind = iota
	kindNumber
	kindFraction
	kindYear
	kindBool
)

type field struct {
	name    string
	kind    fieldKind
	options []string
	def     string
}

var (
	travelFields = []field{
		{name: "travel_mode", kind: kindText, options: []string{"air", "car", "rail"}, def: "air"},
		{name: "origin"},
		{name: "destination"},
		{name: "distance_km", kind: kindNumber},
		{name: "year", kind: kindYear},
		{name: "car_type", options: []string{"petrol", "diesel", "hybrid", "battery"}},
		{name: "car_size", options: []string{"small", "medium", "large", "average"}},
		{name: "aircraft_type", options: []string{"jet", "turboprop"}},
		{name: "class", options: []string{"economy", "premium_economy", "business", "first", "average"}},
		{name: "return_trip", kind: kindBool},
	}
	freightFields = []field{
		{name: "origin"},
		{name: "destination"},
		{name: "via"},
		{name: "transport_mode", def: "road"},
		{name: "weight", kind: kindNumber},
		{name: "weight_unit", options: []string{"t", "kg", "lb"}, def: "t"},
		{name: "distance_km", kind: kindNumber},
	}
	computeFields = []field{
		{name: "provider", options: []string{"aws", "azure", "gcp", "google"}, def: "aws"},
		{name: "region"},
		{name: "duration", kind: kindNumber},
		{name: "duration_unit", options: []string{"hour", "day", "month", "year"}, def: "hour"},
		{name: "year", kind: kindYear},
	}
	cpuFields = append(slices.Clone(computeFields),
		field{name: "cpu_count", kind: kindNumber},
		field{name: "utilization", kind: kindFraction, def: "0.5"},
	)
	memoryFields = append(slices.Clone(computeFields),
		field{name: "data", kind: kindNumber},
		field{name: "data_unit", options: []string{"MB", "GB", "TB"}, def: "GB"},
		field{name: "utilization", kind: kindFraction, def: "0.5"},
	)
	storageFields = append(slices.Clone(computeFields),
		field{name: "data", kind: kindNumber},
		field{name: "data_unit", options: []string{"MB", "GB", "TB"}, def: "GB"},
		field{name: "storage_type", options: []string{"ssd", "hdd"}, def: "ssd"},
	)

	transportModes = []string{"road", "rail", "sea", "air"}
)

func fieldsFor(c model.Category) ([]field, error) {
	switch c {
	case model.CategoryBusinessTravel:
		return travelFields, nil
	case model.CategoryIntermodalFreight:
		return freightFields, nil
	case model.CategoryCloudCPU:
		return cpuFields, nil
	case model.CategoryCloudMemory:
		return memoryFields, nil
	case model.CategoryCloudStorage:
		return storageFields, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCategory, c)
	}
}

// Fields lists the form keys accepted for a category.
func Fields(c model.Category) ([]string, error) {
	fields, err := fieldsFor(c)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.name)
	}
	return out, nil
}

type parsedForm struct {
	text    map[string]string
	numbers map[string]float64
	bools   map[string]bool
	payload model.Payload
}

func (p parsedForm) has(name string) bool {
	if _, ok := p.text[name]; ok {
		return true
	}
	if _, ok := p.numbers[name]; ok {
		return true
	}
	_, ok := p.bools[name]
	return ok
}

// ParseRequest validates raw form input for a category and returns the
// typed request. Unknown keys are rejected.
func ParseRequest(category model.Category, form map[string]string) (Request, error) {
	fields, err := fieldsFor(category)
	if err != nil {
		return Request{}, err
	}
	parsed, err := parseForm(fields, form)
	if err != nil {
		return Request{}, err
	}

	req := Request{Category: category, Form: parsed.payload}
	switch category {
	case model.CategoryBusinessTravel:
		req.Travel = &TravelParams{
			Mode:         parsed.text["travel_mode"],
			Origin:       parsed.text["origin"],
			Destination:  parsed.text["destination"],
			DistanceKM:   parsed.numbers["distance_km"],
			HasDistance:  parsed.has("distance_km"),
			Year:         int(parsed.numbers["year"]),
			CarType:      parsed.text["car_type"],
			CarSize:      parsed.text["car_size"],
			AircraftType: parsed.text["aircraft_type"],
			Class:        parsed.text["class"],
			ReturnTrip:   parsed.bools["return_trip"],
		}
	case model.CategoryIntermodalFreight:
		if !parsed.has("weight") {
			return Request{}, fmt.Errorf("%w: weight", ErrMissingParameter)
		}
		legs, err := freightLegs(parsed.text)
		if err != nil {
			return Request{}, err
		}
		req.Freight = &FreightParams{
			Legs:        legs,
			Weight:      parsed.numbers["weight"],
			WeightUnit:  parsed.text["weight_unit"],
			DistanceKM:  parsed.numbers["distance_km"],
			HasDistance: parsed.has("distance_km"),
		}
	default:
		switch category {
		case model.CategoryCloudCPU:
			if !parsed.has("cpu_count") {
				return Request{}, fmt.Errorf("%w: cpu_count", ErrMissingParameter)
			}
		default:
			if !parsed.has("data") {
				return Request{}, fmt.Errorf("%w: data", ErrMissingParameter)
			}
		}
		req.Compute = &ComputeParams{
			Provider:     parsed.text["provider"],
			Region:       parsed.text["region"],
			CPUCount:     parsed.numbers["cpu_count"],
			Utilization:  parsed.numbers["utilization"],
			Data:         parsed.numbers["data"],
			DataUnit:     parsed.text["data_unit"],
			Duration:     parsed.numbers["duration"],
			DurationUnit: parsed.text["duration_unit"],
			Year:         int(parsed.numbers["year"]),
			StorageType:  parsed.text["storage_type"],
		}
	}
	return req, nil
}

func parseForm(fields []field, form map[string]string) (parsedForm, error) {
	known := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		known[f.name] = struct{}{}
	}
	var unknown []string
	for k := range form {
		if _, ok := known[strings.TrimSpace(k)]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return parsedForm{}, fmt.Errorf("%w: unknown field %q", ErrInvalidParameter, unknown[0])
	}
	normalized := make(map[string]string, len(form))
	for k, v := range form {
		normalized[strings.TrimSpace(k)] = v
	}

	out := parsedForm{
		text:    map[string]string{},
		numbers: map[string]float64{},
		bools:   map[string]bool{},
	}
	for _, f := range fields {
		raw, ok := normalized[f.name]
		if !ok || strings.TrimSpace(raw) == "" {
			if f.def == "" {
				continue
			}
			raw = f.def
		}
		raw = strings.TrimSpace(raw)

		switch f.kind {
		case kindNumber:
			v, err := ParseQuantity(f.name, raw)
			if err != nil {
				return parsedForm{}, err
			}
			out.numbers[f.name] = v
			out.payload.Set(f.name, model.NumberValue(v))
		case kindFraction:
			v, err := ParseQuantity(f.name, raw)
			if err != nil {
				return parsedForm{}, err
			}
			if v > 1 {
				return parsedForm{}, fmt.Errorf("%w: %s must be a fraction between 0 and 1, got %q", ErrInvalidNumber, f.name, raw)
			}
			out.numbers[f.name] = v
			out.payload.Set(f.name, model.NumberValue(v))
		case kindYear:
			v, err := ParseQuantity(f.name, raw)
			if err != nil {
				return parsedForm{}, err
			}
			if v != math.Trunc(v) || v < 1990 || v > 2100 {
				return parsedForm{}, fmt.Errorf("%w: %s must be a calendar year, got %q", ErrInvalidNumber, f.name, raw)
			}
			out.numbers[f.name] = v
			out.payload.Set(f.name, model.NumberValue(v))
		case kindBool:
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return parsedForm{}, fmt.Errorf("%w: %s must be true or false, got %q", ErrInvalidParameter, f.name, raw)
			}
			out.bools[f.name] = v
			out.payload.Set(f.name, model.BoolValue(v))
		default:
			if len(f.options) > 0 {
				i := slices.IndexFunc(f.options, func(o string) bool { return strings.EqualFold(o, raw) })
				if i < 0 {
					return parsedForm{}, fmt.Errorf("%w: %s must be one of %s, got %q", ErrInvalidParameter, f.name, strings.Join(f.options, ", "), raw)
				}
				raw = f.options[i]
			}
			out.text[f.name] = raw
			out.payload.Set(f.name, model.StringValue(raw))
		}
	}
	return out, nil
}

// freightLegs expands origin, via stops and destination into legs.
// transport_mode is either one mode for every leg or a comma list with
// one mode per leg.
func freightLegs(text map[string]string) ([]FreightLeg, error) {
	stops := []string{}
	if o := text["origin"]; o != "" {
		stops = append(stops, o)
	}
	for _, v := range strings.Split(text["via"], ",") {
		if v = strings.TrimSpace(v); v != "" {
			stops = append(stops, v)
		}
	}
	if d := text["destination"]; d != "" {
		stops = append(stops, d)
	}
	if len(stops) < 2 {
		return nil, nil
	}

	var modes []string
	for _, m := range strings.Split(text["transport_mode"], ",") {
		m = strings.ToLower(strings.TrimSpace(m))
		if !slices.Contains(transportModes, m) {
			return nil, fmt.Errorf("%w: transport_mode must be one of %s, got %q", ErrInvalidParameter, strings.Join(transportModes, ", "), m)
		}
		modes = append(modes, m)
	}
	legCount := len(stops) - 1
	switch len(modes) {
	case 1:
		for len(modes) < legCount {
			modes = append(modes, modes[0])
		}
	case legCount:
	default:
		return nil, fmt.Errorf("%w: transport_mode lists %d modes for %d legs", ErrInvalidParameter, len(modes), legCount)
	}

	legs := make([]FreightLeg, 0, legCount)
	for i := 0; i < legCount; i++ {
		legs = append(legs, FreightLeg{From: stops[i], To: stops[i+1], Mode: modes[i]})
	}
	return legs, nil
}
