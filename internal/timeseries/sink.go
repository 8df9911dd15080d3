package timeseries

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/saadjs/carbon-cli/internal/model"
)

const (
	MeasurementRecord = "emission_record"
	MeasurementTrend  = "emission_trend"

	dayLayout = "2006-01-02"
)

type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Sink writes emission history to an InfluxDB v2 bucket. Writes are
// synchronous so callers see server errors.
type Sink struct {
	client influxdb2.Client
	writer api.WriteAPIBlocking
}

func NewSink(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("influx url is required")
	}
	if cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influx org and bucket are required")
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetPrecision(time.Second))
	return &Sink{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}, nil
}

func (s *Sink) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping influx: %w", err)
	}
	if !ok {
		return errors.New("ping influx: server not ready")
	}
	return nil
}

// WriteRecords writes one point per record, tagged by owner and category.
func (s *Sink) WriteRecords(ctx context.Context, ownerID string, records []model.EmissionRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	points := make([]*write.Point, 0, len(records))
	for _, r := range records {
		points = append(points, RecordPoint(ownerID, r))
	}
	if err := s.writer.WritePoint(ctx, points...); err != nil {
		return 0, fmt.Errorf("write record points: %w", err)
	}
	return len(points), nil
}

// WriteTrend writes one point per day at local midnight in loc.
func (s *Sink) WriteTrend(ctx context.Context, ownerID string, trend []model.DailyTrendPoint, loc *time.Location) (int, error) {
	if len(trend) == 0 {
		return 0, nil
	}
	points := make([]*write.Point, 0, len(trend))
	for _, p := range trend {
		pt, err := TrendPoint(ownerID, p, loc)
		if err != nil {
			return 0, err
		}
		points = append(points, pt)
	}
	if err := s.writer.WritePoint(ctx, points...); err != nil {
		return 0, fmt.Errorf("write trend points: %w", err)
	}
	return len(points), nil
}

func (s *Sink) Close() {
	s.client.Close()
}

func RecordPoint(ownerID string, r model.EmissionRecord) *write.Point {
	fields := map[string]interface{}{
		"co2e":      r.CO2e,
		"record_id": r.ID,
	}
	if r.Label != "" {
		fields["label"] = r.Label
	}
	return write.NewPoint(
		MeasurementRecord,
		map[string]string{
			"owner":    ownerID,
			"category": string(r.Category),
		},
		fields,
		r.CreatedAt,
	)
}

func TrendPoint(ownerID string, p model.DailyTrendPoint, loc *time.Location) (*write.Point, error) {
	if loc == nil {
		loc = time.Local
	}
	day, err := time.ParseInLocation(dayLayout, p.Date, loc)
	if err != nil {
		return nil, fmt.Errorf("parse trend date %q: %w", p.Date, err)
	}
	return write.NewPoint(
		MeasurementTrend,
		map[string]string{"owner": ownerID},
		map[string]interface{}{"co2e": p.Emissions},
		day,
	), nil
}
