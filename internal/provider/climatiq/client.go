package climatiq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL        = "https://api.climatiq.io"
	defaultPreviewBaseURL = "https://preview.api.climatiq.io"

	defaultUtilization  = 0.5
	defaultDurationUnit = "hour"
	defaultDataUnit     = "GB"
)

// ErrRemoteCalculation matches every failure returned by Client calls,
// including *APIError values.
var ErrRemoteCalculation = errors.New("remote calculation failed")

type Client struct {
	APIKey         string
	BaseURL        string
	PreviewBaseURL string
	HTTPClient     *http.Client
}

type CloudProvider struct {
	ProviderID              string   `json:"provider_id"`
	ProviderFullName        string   `json:"provider_full_name"`
	Regions                 []string `json:"regions"`
	VirtualMachineInstances []string `json:"virtual_machine_instances,omitempty"`
}

type CloudMetadata struct {
	CloudProviders map[string]CloudProvider `json:"cloud_providers"`
}

type EmissionFactor struct {
	Name              string   `json:"name"`
	ActivityID        string   `json:"activity_id"`
	ID                string   `json:"id"`
	AccessType        string   `json:"access_type"`
	Source            string   `json:"source"`
	SourceDataset     string   `json:"source_dataset"`
	Year              int      `json:"year"`
	Region            string   `json:"region"`
	Category          string   `json:"category"`
	SourceLCAActivity string   `json:"source_lca_activity"`
	DataQualityFlags  []string `json:"data_quality_flags"`
}

type ConstituentGases struct {
	CO2eTotal *float64 `json:"co2e_total"`
	CO2eOther *float64 `json:"co2e_other"`
	CO2       *float64 `json:"co2"`
	CH4       *float64 `json:"ch4"`
	N2O       *float64 `json:"n2o"`
}

type ActivityData struct {
	ActivityValue float64 `json:"activity_value"`
	ActivityUnit  string  `json:"activity_unit"`
}

// Estimation is the common shape of compute, travel and freight
// responses. Raw keeps the full body for provenance.
type Estimation struct {
	CO2e              float64           `json:"co2e"`
	CO2eUnit          string            `json:"co2e_unit"`
	CalculationMethod string            `json:"co2e_calculation_method"`
	CalculationOrigin string            `json:"co2e_calculation_origin"`
	EmissionFactor    *EmissionFactor   `json:"emission_factor"`
	ConstituentGases  *ConstituentGases `json:"constituent_gases"`
	ActivityData      *ActivityData     `json:"activity_data"`
	DistanceKM        *float64          `json:"distance_km"`
	Raw               json.RawMessage   `json:"-"`
}

type CPURequest struct {
	Region                 string  `json:"region"`
	CPUCount               float64 `json:"cpu_count"`
	AverageVCPUUtilization float64 `json:"average_vcpu_utilization"`
	Duration               float64 `json:"duration"`
	DurationUnit           string  `json:"duration_unit"`
	Year                   int     `json:"year,omitempty"`
}

type MemoryRequest struct {
	Region       string  `json:"region"`
	Data         float64 `json:"data"`
	DataUnit     string  `json:"data_unit"`
	Duration     float64 `json:"duration"`
	DurationUnit string  `json:"duration_unit"`
	Year         int     `json:"year,omitempty"`
}

type StorageRequest struct {
	Region       string  `json:"region"`
	StorageType  string  `json:"storage_type"`
	Data         float64 `json:"data"`
	DataUnit     string  `json:"data_unit"`
	Duration     float64 `json:"duration"`
	DurationUnit string  `json:"duration_unit"`
	Year         int     `json:"year,omitempty"`
}

type LocationOptions struct {
	ToleranceKM float64 `json:"tolerance_km,omitempty"`
}

type Location struct {
	Query           string           `json:"query,omitempty"`
	Locode          string           `json:"locode,omitempty"`
	IATACode        string           `json:"iata_code,omitempty"`
	Latitude        *float64         `json:"latitude,omitempty"`
	Longitude       *float64         `json:"longitude,omitempty"`
	LocationOptions *LocationOptions `json:"location_options,omitempty"`
}

type CarDetails struct {
	CarType string `json:"car_type,omitempty"`
	CarSize string `json:"car_size,omitempty"`
}

type AirDetails struct {
	AircraftType          string   `json:"aircraft_type,omitempty"`
	RadiativeForcingIndex *float64 `json:"radiative_forcing_index,omitempty"`
	Class                 string   `json:"class,omitempty"`
}

type TravelRequest struct {
	TravelMode  string      `json:"travel_mode"`
	Origin      Location    `json:"origin"`
	Destination Location    `json:"destination"`
	Year        int         `json:"year,omitempty"`
	DistanceKM  *float64    `json:"distance_km,omitempty"`
	CarDetails  *CarDetails `json:"car_details,omitempty"`
	AirDetails  *AirDetails `json:"air_details,omitempty"`
}

// RouteStep is one element of an intermodal route: either a location or
// a transport leg between two locations.
type RouteStep struct {
	Location      *Location `json:"location,omitempty"`
	TransportMode string    `json:"transport_mode,omitempty"`
}

type Cargo struct {
	Weight     float64 `json:"weight"`
	WeightUnit string  `json:"weight_unit"`
}

type FreightRequest struct {
	Route []RouteStep `json:"route"`
	Cargo Cargo       `json:"cargo"`
}

func (c *Client) CloudMetadata(ctx context.Context) (CloudMetadata, error) {
	var out CloudMetadata
	body, err := c.do(ctx, http.MethodGet, c.baseURL()+"/compute/v1/metadata", nil, "Cloud metadata")
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("%w: decode cloud metadata: %w", ErrRemoteCalculation, err)
	}
	return out, nil
}

func (c *Client) CPU(ctx context.Context, provider string, req CPURequest) (Estimation, error) {
	if req.AverageVCPUUtilization == 0 {
		req.AverageVCPUUtilization = defaultUtilization
	}
	if req.DurationUnit == "" {
		req.DurationUnit = defaultDurationUnit
	}
	return c.estimate(ctx, c.computeURL(provider, "cpu"), req, "CPU calculation")
}

func (c *Client) Memory(ctx context.Context, provider string, req MemoryRequest) (Estimation, error) {
	if req.DataUnit == "" {
		req.DataUnit = defaultDataUnit
	}
	if req.DurationUnit == "" {
		req.DurationUnit = defaultDurationUnit
	}
	return c.estimate(ctx, c.computeURL(provider, "memory"), req, "Memory calculation")
}

func (c *Client) Storage(ctx context.Context, provider string, req StorageRequest) (Estimation, error) {
	if req.DataUnit == "" {
		req.DataUnit = defaultDataUnit
	}
	if req.DurationUnit == "" {
		req.DurationUnit = defaultDurationUnit
	}
	return c.estimate(ctx, c.computeURL(provider, "storage"), req, "Storage calculation")
}

func (c *Client) Travel(ctx context.Context, req TravelRequest) (Estimation, error) {
	return c.estimate(ctx, c.previewBaseURL()+"/travel/v1-preview1/distance", req, "Travel calculation")
}

func (c *Client) Freight(ctx context.Context, req FreightRequest) (Estimation, error) {
	return c.estimate(ctx, c.baseURL()+"/freight/v2/intermodal", req, "Freight calculation")
}

// ProviderAPIID maps a provider display name to the id used in compute
// URLs. Unknown names pass through lower-cased.
func ProviderAPIID(provider string) string {
	p := strings.ToLower(strings.TrimSpace(provider))
	switch p {
	case "google":
		return "gcp"
	default:
		return p
	}
}

func (c *Client) estimate(ctx context.Context, endpoint string, reqBody any, operation string) (Estimation, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Estimation{}, fmt.Errorf("marshal %s payload: %w", strings.ToLower(operation), err)
	}
	body, err := c.do(ctx, http.MethodPost, endpoint, payload, operation)
	if err != nil {
		return Estimation{}, err
	}
	var out Estimation
	if err := json.Unmarshal(body, &out); err != nil {
		return Estimation{}, fmt.Errorf("%w: decode %s response: %w", ErrRemoteCalculation, strings.ToLower(operation), err)
	}
	out.Raw = body
	return out, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte, operation string) ([]byte, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, fmt.Errorf("%w: missing Climatiq API key", ErrRemoteCalculation)
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", strings.ToLower(operation), err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: no response received from server, check your connection: %w", ErrRemoteCalculation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %w", ErrRemoteCalculation, strings.ToLower(operation), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, body, operation)
	}
	return body, nil
}

func (c *Client) baseURL() string {
	return trimBase(c.BaseURL, defaultBaseURL)
}

func (c *Client) previewBaseURL() string {
	return trimBase(c.PreviewBaseURL, defaultPreviewBaseURL)
}

func (c *Client) computeURL(provider, resource string) string {
	return fmt.Sprintf("%s/compute/v1/%s/%s", c.baseURL(), url.PathEscape(ProviderAPIID(provider)), resource)
}

func trimBase(raw, fallback string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base == "" {
		return fallback
	}
	return base
}
