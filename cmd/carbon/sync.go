package carbon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saadjs/carbon-cli/internal/events"
	"github.com/saadjs/carbon-cli/internal/model"
	"github.com/saadjs/carbon-cli/internal/timeseries"
)

// trendSink is the part of timeseries.Sink that sync needs.
type trendSink interface {
	WriteRecords(ctx context.Context, ownerID string, records []model.EmissionRecord) (int, error)
	WriteTrend(ctx context.Context, ownerID string, trend []model.DailyTrendPoint, loc *time.Location) (int, error)
}

type syncReport struct {
	RecordPoints int
	TrendPoints  int
	Events       int
}

// syncHistory pushes records and trend to sink and one snapshot event per
// record to pub, concurrently. A nil sink or publisher is skipped.
func syncHistory(ctx context.Context, owner string, records []model.EmissionRecord, trend []model.DailyTrendPoint, loc *time.Location, sink trendSink, pub events.Publisher) (syncReport, error) {
	var report syncReport
	g, gctx := errgroup.WithContext(ctx)
	if sink != nil {
		g.Go(func() error {
			n, err := sink.WriteRecords(gctx, owner, records)
			if err != nil {
				return err
			}
			report.RecordPoints = n
			n, err = sink.WriteTrend(gctx, owner, trend, loc)
			if err != nil {
				return err
			}
			report.TrendPoints = n
			return nil
		})
	}
	if pub != nil {
		g.Go(func() error {
			for _, r := range records {
				if err := gctx.Err(); err != nil {
					return err
				}
				err := pub.Publish(gctx, events.Event{
					Type:     events.RecordSnapshot,
					OwnerID:  owner,
					RecordID: r.ID,
					Category: string(r.Category),
					CO2e:     r.CO2e,
					At:       r.CreatedAt,
				})
				if err != nil {
					return fmt.Errorf("publish snapshot %s: %w", r.ID, err)
				}
				report.Events++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push history and daily trend to InfluxDB and snapshot events to Kafka",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Influx.Enabled && !cfg.Kafka.Enabled {
			return errors.New("nothing to sync: enable influx and/or kafka in the config")
		}
		return withOwner(cmd, func(ctx context.Context, a *appContext, owner string) error {
			var sink trendSink
			if cfg.Influx.Enabled {
				s, err := timeseries.NewSink(timeseries.Config{
					URL:    cfg.Influx.URL,
					Token:  cfg.Influx.Token,
					Org:    cfg.Influx.Org,
					Bucket: cfg.Influx.Bucket,
				})
				if err != nil {
					return err
				}
				defer s.Close()
				sink = s
			}
			var pub events.Publisher
			if cfg.Kafka.Enabled {
				if _, nop := a.publisher.(events.Nop); nop {
					return errors.New("kafka is enabled but no broker is reachable")
				}
				pub = a.publisher
			}

			report, err := syncHistory(ctx, owner, a.repo.Records(owner), a.repo.EmissionTrend(owner, cfg.History.TrendDays), a.loc, sink, pub)
			if err != nil {
				return fmt.Errorf("sync history: %w", err)
			}
			logger.Info("history synced",
				zap.String("owner", owner),
				zap.Int("record_points", report.RecordPoints),
				zap.Int("trend_points", report.TrendPoints),
				zap.Int("events", report.Events))
			fmt.Fprintf(cmd.OutOrStdout(), "Synced %d record points, %d trend points, %d events\n", report.RecordPoints, report.TrendPoints, report.Events)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
