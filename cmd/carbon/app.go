package carbon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/saadjs/carbon-cli/internal/estimate"
	"github.com/saadjs/carbon-cli/internal/events"
	"github.com/saadjs/carbon-cli/internal/identity"
	"github.com/saadjs/carbon-cli/internal/metrics"
	"github.com/saadjs/carbon-cli/internal/model"
	"github.com/saadjs/carbon-cli/internal/provider/climatiq"
	"github.com/saadjs/carbon-cli/internal/service"
	"github.com/saadjs/carbon-cli/internal/storage"
)

// appContext holds the collaborators a command needs for one run.
type appContext struct {
	repo      *service.Repository
	store     storage.Store
	metrics   *metrics.Recorder
	publisher events.Publisher
	session   *identity.SessionFile
	identity  identity.Provider
	loc       *time.Location
}

// owner returns the active owner id and label or ErrNotAuthenticated.
func (a *appContext) owner() (string, string, error) {
	id, ok := a.identity.CurrentOwnerID()
	if !ok {
		return "", "", fmt.Errorf("%w: run `carbon login` or pass --user", service.ErrNotAuthenticated)
	}
	label, _ := a.identity.CurrentOwnerLabel()
	return id, label, nil
}

// withApp opens the configured store, wires metrics and events into a
// repository, hydrates it for the active owner and runs fn.
func withApp(cmd *cobra.Command, run func(ctx context.Context, a *appContext) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	store, err := storage.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return err
	}
	defer store.Close()

	rec := metrics.NewRecorder()
	publisher := newPublisher()
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("close event publisher", zap.Error(err))
		}
	}()

	session := identity.NewSessionFile(cfg.Auth.SessionPath)
	var provider identity.Provider = session
	if strings.TrimSpace(userFlag) != "" {
		provider = identity.Static{ID: strings.TrimSpace(userFlag)}
	}

	a := &appContext{
		repo: service.NewRepository(store,
			service.WithLogger(logger),
			service.WithLocation(loc),
			service.WithMetrics(rec),
			service.WithPublisher(publisher),
		),
		store:     store,
		metrics:   rec,
		publisher: publisher,
		session:   session,
		identity:  provider,
		loc:       loc,
	}
	if owner, ok := provider.CurrentOwnerID(); ok {
		a.repo.Load(ctx, owner)
	}

	runErr := run(ctx, a)
	if path := strings.TrimSpace(cfg.Metrics.Textfile); path != "" {
		if err := rec.WriteTextfile(path); err != nil {
			logger.Warn("write metrics textfile", zap.String("path", path), zap.Error(err))
		}
	}
	return runErr
}

// newPublisher returns the Kafka publisher when enabled. A broker that
// cannot be reached degrades to Nop so history commands keep working.
func newPublisher() events.Publisher {
	if !cfg.Kafka.Enabled {
		return events.Nop{}
	}
	p, err := events.NewKafkaPublisher(events.KafkaConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.Topic,
		ClientID: cfg.Kafka.ClientID,
	})
	if err != nil {
		logger.Warn("kafka disabled for this run", zap.Error(err))
		return events.Nop{}
	}
	return p
}

func newClimatiqClient() (*climatiq.Client, error) {
	timeout, err := cfg.ClimatiqTimeout()
	if err != nil {
		return nil, err
	}
	return &climatiq.Client{
		APIKey:         cfg.Climatiq.APIKey,
		BaseURL:        cfg.Climatiq.BaseURL,
		PreviewBaseURL: cfg.Climatiq.PreviewBaseURL,
		HTTPClient:     &http.Client{Timeout: timeout},
	}, nil
}

// parseKeyValues turns repeated k=v flags into a map. Later keys win.
func parseKeyValues(flag string, pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --%s %q (expected key=value)", flag, p)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json output: %w", err)
	}
	return nil
}

// formPayload stores flag values. Text that passes estimate.ParseQuantity
// is kept as a number; anything else stays a string or boolean.
func formPayload(values map[string]string) model.Payload {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var p model.Payload
	for _, k := range keys {
		v := values[k]
		if n, err := estimate.ParseQuantity(k, v); err == nil {
			p.Set(k, model.NumberValue(n))
			continue
		}
		if b, err := strconv.ParseBool(v); err == nil {
			p.Set(k, model.BoolValue(b))
			continue
		}
		p.Set(k, model.StringValue(v))
	}
	return p
}
