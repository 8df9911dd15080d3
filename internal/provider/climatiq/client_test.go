package climatiq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const cpuResponse = `{
  "co2e": 0.0213,
  "co2e_unit": "kg",
  "co2e_calculation_method": "ar5",
  "co2e_calculation_origin": "source",
  "emission_factor": {
    "name": "Cloud CPU usage",
    "activity_id": "cloud-cpu-aws-us_east_1",
    "source": "CCF",
    "year": 2023,
    "region": "US",
    "source_lca_activity": "use_phase"
  },
  "constituent_gases": {"co2e_total": 0.0213, "co2": 0.02, "ch4": 0.0001, "n2o": null},
  "activity_data": {"activity_value": 24, "activity_unit": "hour"}
}`

func TestCPUSendsDefaultsAndParsesResponse(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(cpuResponse))
	}))
	defer ts.Close()

	c := &Client{APIKey: "demo", BaseURL: ts.URL, HTTPClient: ts.Client()}
	out, err := c.CPU(context.Background(), "AWS", CPURequest{Region: "us_east_1", CPUCount: 2, Duration: 24})
	if err != nil {
		t.Fatalf("cpu estimate: %v", err)
	}
	if gotPath != "/compute/v1/aws/cpu" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer demo" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotBody["average_vcpu_utilization"] != 0.5 || gotBody["duration_unit"] != "hour" {
		t.Fatalf("expected defaults in body, got %v", gotBody)
	}
	if _, ok := gotBody["year"]; ok {
		t.Fatalf("expected zero year to be omitted, got %v", gotBody)
	}
	if out.CO2e != 0.0213 || out.CO2eUnit != "kg" {
		t.Fatalf("unexpected estimation %+v", out)
	}
	if out.EmissionFactor == nil || out.EmissionFactor.Source != "CCF" || out.EmissionFactor.SourceLCAActivity != "use_phase" {
		t.Fatalf("unexpected emission factor %+v", out.EmissionFactor)
	}
	if out.ConstituentGases == nil || out.ConstituentGases.CO2 == nil || *out.ConstituentGases.CO2 != 0.02 {
		t.Fatalf("unexpected gases %+v", out.ConstituentGases)
	}
	if out.ConstituentGases.N2O != nil {
		t.Fatalf("expected null n2o to stay nil")
	}
	if !strings.Contains(string(out.Raw), "use_phase") {
		t.Fatalf("expected raw body to be kept")
	}
}

func TestComputeEndpointsAndProviderMapping(t *testing.T) {
	t.Parallel()

	var paths []string
	var bodies []map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		_, _ = w.Write([]byte(`{"co2e": 1.5, "co2e_unit": "kg"}`))
	}))
	defer ts.Close()

	c := &Client{APIKey: "demo", BaseURL: ts.URL + "/", HTTPClient: ts.Client()}
	ctx := context.Background()
	if _, err := c.Memory(ctx, "google", MemoryRequest{Region: "europe_west1", Data: 16, Duration: 10}); err != nil {
		t.Fatalf("memory estimate: %v", err)
	}
	if _, err := c.Storage(ctx, "azure", StorageRequest{Region: "uk_south", StorageType: "ssd", Data: 500, Duration: 720}); err != nil {
		t.Fatalf("storage estimate: %v", err)
	}

	want := []string{"/compute/v1/gcp/memory", "/compute/v1/azure/storage"}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("expected path %q, got %q", want[i], paths[i])
		}
		if bodies[i]["data_unit"] != "GB" || bodies[i]["duration_unit"] != "hour" {
			t.Fatalf("expected data and duration defaults, got %v", bodies[i])
		}
	}
	if bodies[1]["storage_type"] != "ssd" {
		t.Fatalf("expected storage type in body, got %v", bodies[1])
	}
}

func TestTravelUsesPreviewHost(t *testing.T) {
	t.Parallel()

	mainHits := 0
	main := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mainHits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer main.Close()

	var gotPath string
	var gotBody TravelRequest
	preview := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"co2e": 180.2, "co2e_unit": "kg", "distance_km": 878.5}`))
	}))
	defer preview.Close()

	c := &Client{APIKey: "demo", BaseURL: main.URL, PreviewBaseURL: preview.URL, HTTPClient: preview.Client()}
	out, err := c.Travel(context.Background(), TravelRequest{
		TravelMode:  "air",
		Origin:      Location{Query: "Berlin"},
		Destination: Location{Query: "Paris"},
		AirDetails:  &AirDetails{Class: "economy"},
	})
	if err != nil {
		t.Fatalf("travel estimate: %v", err)
	}
	if mainHits != 0 {
		t.Fatalf("travel must not hit the main host")
	}
	if gotPath != "/travel/v1-preview1/distance" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotBody.Origin.Query != "Berlin" || gotBody.AirDetails == nil || gotBody.AirDetails.Class != "economy" {
		t.Fatalf("unexpected travel body %+v", gotBody)
	}
	if out.DistanceKM == nil || *out.DistanceKM != 878.5 {
		t.Fatalf("expected distance in estimation, got %+v", out.DistanceKM)
	}
}

func TestFreightRouteEncoding(t *testing.T) {
	t.Parallel()

	var raw string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/freight/v2/intermodal" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		raw = string(b)
		_, _ = w.Write([]byte(`{"co2e": 42, "co2e_unit": "kg"}`))
	}))
	defer ts.Close()

	c := &Client{APIKey: "demo", BaseURL: ts.URL, HTTPClient: ts.Client()}
	_, err := c.Freight(context.Background(), FreightRequest{
		Route: []RouteStep{
			{Location: &Location{Query: "Hamburg"}},
			{TransportMode: "road"},
			{Location: &Location{Query: "Berlin"}},
		},
		Cargo: Cargo{Weight: 10, WeightUnit: "t"},
	})
	if err != nil {
		t.Fatalf("freight estimate: %v", err)
	}
	want := `{"route":[{"location":{"query":"Hamburg"}},{"transport_mode":"road"},{"location":{"query":"Berlin"}}],"cargo":{"weight":10,"weight_unit":"t"}}`
	if raw != want {
		t.Fatalf("unexpected freight body\nwant %s\ngot  %s", want, raw)
	}
}

func TestMissingAPIKeyFailsBeforeRequest(t *testing.T) {
	t.Parallel()

	hits := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer ts.Close()

	c := &Client{BaseURL: ts.URL, HTTPClient: ts.Client()}
	_, err := c.CloudMetadata(context.Background())
	if !errors.Is(err, ErrRemoteCalculation) {
		t.Fatalf("expected remote calculation error, got %v", err)
	}
	if hits != 0 {
		t.Fatalf("expected no request without an api key")
	}
}

func TestCloudMetadata(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/compute/v1/metadata" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"cloud_providers": {"aws": {"provider_id": "aws", "provider_full_name": "Amazon Web Services", "regions": ["us_east_1", "eu_west_1"]}}}`))
	}))
	defer ts.Close()

	c := &Client{APIKey: "demo", BaseURL: ts.URL, HTTPClient: ts.Client()}
	meta, err := c.CloudMetadata(context.Background())
	if err != nil {
		t.Fatalf("cloud metadata: %v", err)
	}
	aws, ok := meta.CloudProviders["aws"]
	if !ok || len(aws.Regions) != 2 || aws.ProviderFullName != "Amazon Web Services" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
}

func TestAPIErrorTranslation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{
			name:   "location tolerance",
			status: http.StatusBadRequest,
			body:   `{"error":"bad_request","error_code":"invalid_input","message":"Location 'Smallville' was not close enough to the closest transition point for the sea leg"}`,
			want:   `The location "Smallville" is not close enough to available sea infrastructure. Please try a nearby major city or port.`,
		},
		{
			name:   "route",
			status: http.StatusBadRequest,
			body:   `{"error_code":"invalid_input","message":"no route found"}`,
			want:   "Invalid route specified. Please check your origin and destination locations.",
		},
		{
			name:   "cargo",
			status: http.StatusBadRequest,
			body:   `{"error_code":"invalid_input","message":"weight must be positive"}`,
			want:   "Invalid cargo details. Please check your weight and unit values.",
		},
		{
			name:   "generic invalid input",
			status: http.StatusBadRequest,
			body:   `{"error_code":"invalid_input","message":"bad region"}`,
			want:   "Invalid input provided. Please check your form data and try again.",
		},
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"error":"unauthorized","message":"bad key"}`,
			want:   "Authentication failed. Please contact support.",
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"error_code":"rate_limited"}`,
			want:   "Too many requests. Please wait a moment and try again.",
		},
		{
			name:   "unavailable",
			status: http.StatusServiceUnavailable,
			body:   `{"error_code":"service_unavailable"}`,
			want:   "Service temporarily unavailable. Please try again later.",
		},
		{
			name:   "message only",
			status: http.StatusInternalServerError,
			body:   `{"message":"factor missing"}`,
			want:   "Calculation error: factor missing",
		},
		{
			name:   "empty object",
			status: http.StatusInternalServerError,
			body:   `{}`,
			want:   "CPU calculation failed. Please try again or contact support.",
		},
		{
			name:   "not json",
			status: http.StatusBadGateway,
			body:   `<html>bad gateway</html>`,
			want:   "CPU calculation failed. Please check your input and try again.",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer ts.Close()

			c := &Client{APIKey: "demo", BaseURL: ts.URL, HTTPClient: ts.Client()}
			_, err := c.CPU(context.Background(), "aws", CPURequest{Region: "us_east_1", CPUCount: 1, Duration: 1})
			if !errors.Is(err, ErrRemoteCalculation) {
				t.Fatalf("expected remote calculation error, got %v", err)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %T", err)
			}
			if apiErr.Status != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, apiErr.Status)
			}
			if err.Error() != tc.want {
				t.Fatalf("unexpected message\nwant %q\ngot  %q", tc.want, err.Error())
			}
		})
	}
}

func TestProviderAPIID(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{"AWS": "aws", " Azure ": "azure", "google": "gcp", "gcp": "gcp"} {
		if got := ProviderAPIID(in); got != want {
			t.Fatalf("ProviderAPIID(%q) = %q, want %q", in, got, want)
		}
	}
}
