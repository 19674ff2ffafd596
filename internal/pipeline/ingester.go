package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/netatmo-ingest/internal/domain"
	"github.com/couchcryptid/netatmo-ingest/internal/observability"
)

// PublicDataSource fetches raw stations from the weather vendor.
type PublicDataSource interface {
	AccessToken(ctx context.Context) (string, error)
	PublicData(ctx context.Context, accessToken string, w domain.Window) ([]domain.RawDevice, error)
}

// LatestStore persists one LatestDeviceState per device. Get reports a
// missing device with a domain error of kind KindLatestNotFound.
type LatestStore interface {
	Get(ctx context.Context, deviceID string) (domain.LatestDeviceState, error)
	Create(ctx context.Context, state domain.LatestDeviceState) (domain.LatestDeviceState, error)
	Update(ctx context.Context, deviceID string, patch domain.LatestPatch) (domain.LatestDeviceState, error)
}

// Publisher hands observations to the message bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, obs domain.Observation) error
}

// WindowCalculator splits a region into request-sized windows.
type WindowCalculator interface {
	Windows(region domain.Region) []domain.Window
}

// Options tunes an Ingester.
type Options struct {
	Region      domain.Region
	Topic       string
	WindowDelay time.Duration
	SensorTTL   time.Duration
	// Clock stamps cycle summaries. Nil uses real time.
	Clock clockwork.Clock
}

// CycleSummary reports what one ingest cycle did.
type CycleSummary struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	Outcome      string    `json:"outcome"`
	Windows      int       `json:"windows"`
	WindowErrors int       `json:"windowErrors"`
	Devices      int       `json:"devices"`
	DeviceErrors int       `json:"deviceErrors"`
	Observations int       `json:"observations"`
}

// Cycle outcomes.
const (
	OutcomeSuccess    = "success"
	OutcomeTokenError = "token_error"
	OutcomeCancelled  = "cancelled"
)

// Ingester runs ingest cycles: fetch each window of the region, fold every
// station into its stored latest state and publish the readings that
// changed. Windows and devices are handled one at a time, so there is never
// more than one read-modify-write of a device in flight.
type Ingester struct {
	source    PublicDataSource
	store     LatestStore
	publisher Publisher
	windows   WindowCalculator
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool

	mu   sync.Mutex
	last *CycleSummary
}

// NewIngester creates an Ingester with the given collaborators.
func NewIngester(source PublicDataSource, store LatestStore, publisher Publisher, windows WindowCalculator,
	opts Options, logger *slog.Logger, metrics *observability.Metrics,
) *Ingester {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Ingester{
		source:    source,
		store:     store,
		publisher: publisher,
		windows:   windows,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once a cycle has completed, or an error
// describing why the service is not yet ready.
func (in *Ingester) CheckReadiness(_ context.Context) error {
	if !in.ready.Load() {
		return errors.New("no ingest cycle has completed yet")
	}
	return nil
}

// LastCycle returns the summary of the most recent cycle.
func (in *Ingester) LastCycle() (CycleSummary, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.last == nil {
		return CycleSummary{}, false
	}
	return *in.last, true
}

// Run executes one ingest cycle. It returns an error only when the cycle
// could not start or was cancelled; window and device failures are logged
// and counted.
func (in *Ingester) Run(ctx context.Context) (CycleSummary, error) {
	summary := CycleSummary{
		ID:        observability.NewCorrelationID(),
		StartedAt: in.opts.Clock.Now().UTC(),
	}
	ctx = observability.WithCorrelationID(ctx, summary.ID)
	logger := in.logger.With("cycle_id", summary.ID)

	err := in.runCycle(ctx, logger, &summary)

	summary.FinishedAt = in.opts.Clock.Now().UTC()
	switch {
	case err == nil:
		summary.Outcome = OutcomeSuccess
	case ctx.Err() != nil:
		summary.Outcome = OutcomeCancelled
	default:
		summary.Outcome = OutcomeTokenError
	}
	in.metrics.Cycles.WithLabelValues(summary.Outcome).Inc()
	in.metrics.CycleDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())

	in.mu.Lock()
	in.last = &summary
	in.mu.Unlock()

	if err != nil {
		logger.Error("ingest cycle failed", "error", err)
		return summary, err
	}
	in.ready.Store(true)
	logger.Info("ingest cycle complete",
		"windows", summary.Windows,
		"window_errors", summary.WindowErrors,
		"devices", summary.Devices,
		"device_errors", summary.DeviceErrors,
		"observations", summary.Observations,
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
	)
	return summary, nil
}

func (in *Ingester) runCycle(ctx context.Context, logger *slog.Logger, summary *CycleSummary) error {
	token, err := in.source.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("get access token: %w", err)
	}

	windows := in.windows.Windows(in.opts.Region)
	logger.Info("ingest cycle started", "region", in.opts.Region.String(), "windows", len(windows))

	for i, w := range windows {
		if i > 0 && !retry.SleepWithContext(ctx, in.opts.WindowDelay) {
			return ctx.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		summary.Windows++
		if err := in.processWindow(ctx, logger, token, w, summary); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			summary.WindowErrors++
			in.metrics.Windows.WithLabelValues("error").Inc()
			logger.Warn("window skipped", "window", w.String(), "error", err)
			continue
		}
		in.metrics.Windows.WithLabelValues("success").Inc()
	}
	return nil
}

// processWindow fetches one window and processes its devices in order.
// Only a failed fetch fails the window.
func (in *Ingester) processWindow(ctx context.Context, logger *slog.Logger, token string, w domain.Window, summary *CycleSummary) error {
	raw, err := in.source.PublicData(ctx, token, w)
	if err != nil {
		return fmt.Errorf("fetch public data: %w", err)
	}

	devices := make([]domain.NormalizedDevice, 0, len(raw))
	for _, r := range raw {
		d, err := domain.NormalizeDevice(r)
		if err != nil {
			summary.DeviceErrors++
			in.metrics.DeviceErrors.Inc()
			logger.Warn("device skipped", "device_id", r.ID, "error", err)
			continue
		}
		devices = append(devices, d)
	}
	devices = domain.FilterWithin(devices, w)
	logger.Debug("window fetched", "window", w.String(), "received", len(raw), "inside", len(devices))

	for _, d := range devices {
		if err := ctx.Err(); err != nil {
			return err
		}
		published, err := in.processDevice(ctx, logger, d)
		summary.Observations += published
		if err != nil {
			summary.DeviceErrors++
			in.metrics.DeviceErrors.Inc()
			logger.Error("device failed", "device_id", d.DeviceID, "error", err)
			continue
		}
		summary.Devices++
	}
	return ctx.Err()
}

// processDevice reads, merges, persists and publishes one device. It returns
// the number of observations published.
func (in *Ingester) processDevice(ctx context.Context, logger *slog.Logger, device domain.NormalizedDevice) (int, error) {
	logger = logger.With("device_id", device.DeviceID)

	latest, updated, err := in.fold(ctx, logger, device)
	if err != nil {
		return 0, err
	}

	for _, key := range updated {
		in.metrics.SensorsUpdated.WithLabelValues(string(key.Type)).Inc()
	}

	observations := domain.Project(domain.RestrictToSensors(latest, updated))
	for i, obs := range observations {
		if err := in.publisher.Publish(ctx, in.opts.Topic, obs); err != nil {
			return i, fmt.Errorf("publish %s: %w", obs.MadeBySensor, err)
		}
		in.metrics.ObservationsPublished.Inc()
	}
	logger.Debug("device processed", "updated_sensors", len(updated), "observations", len(observations))
	return len(observations), nil
}

// fold persists the merge of device into its stored state, creating the
// state on first sighting. It returns the persisted state and the sensors
// that took new values.
func (in *Ingester) fold(ctx context.Context, logger *slog.Logger, device domain.NormalizedDevice) (domain.LatestDeviceState, []domain.SensorKey, error) {
	existing, err := in.store.Get(ctx, device.DeviceID)
	switch domain.KindOf(err) {
	case domain.KindUnknown:
		if err != nil {
			return domain.LatestDeviceState{}, nil, fmt.Errorf("get latest: %w", err)
		}
	case domain.KindLatestNotFound:
		return in.create(ctx, device)
	default:
		return domain.LatestDeviceState{}, nil, err
	}

	res, err := domain.Merge(device, existing)
	if err != nil {
		return domain.LatestDeviceState{}, nil, err
	}
	for _, derr := range res.DerivationErrors {
		logger.Warn("rain derivation dropped", "error", derr)
	}

	combined, pruned := domain.PruneStaleSensors(res.Combined, in.opts.SensorTTL)
	if len(pruned) > 0 {
		logger.Info("stale sensors pruned", "sensors", pruned)
	}

	saved, err := in.store.Update(ctx, device.DeviceID, combined.Patch())
	if err != nil {
		return domain.LatestDeviceState{}, nil, err
	}
	in.metrics.DevicesProcessed.WithLabelValues("merge").Inc()
	return saved, res.Updated, nil
}

func (in *Ingester) create(ctx context.Context, device domain.NormalizedDevice) (domain.LatestDeviceState, []domain.SensorKey, error) {
	state := domain.NewLatestState(device)
	saved, err := in.store.Create(ctx, state)
	if err != nil {
		return domain.LatestDeviceState{}, nil, err
	}
	in.metrics.DevicesProcessed.WithLabelValues("create").Inc()

	keys := make([]domain.SensorKey, len(state.Sensors))
	for i, s := range state.Sensors {
		keys[i] = s.Key()
	}
	return saved, keys, nil
}
