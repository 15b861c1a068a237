package cloud

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/nerrad567/lumy-core/internal/display"
	"github.com/nerrad567/lumy-core/internal/infrastructure/influxdb"
)

// Heartbeat statuses.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// offlineTimeout bounds the final heartbeat sent during shutdown.
const offlineTimeout = 5 * time.Second

// Heartbeat is the body of POST /devices/{id}/status.
type Heartbeat struct {
	DeviceID       string      `json:"device_id"`
	Status         string      `json:"status"`
	LastRefresh    string      `json:"last_refresh,omitempty"`
	System         *SystemInfo `json:"system,omitempty"`
	DisplayPreview string      `json:"display_preview,omitempty"`
	Timestamp      string      `json:"timestamp"`
}

// Applier applies a changed configuration to the rest of the device.
type Applier interface {
	ApplyConfig(ctx context.Context, cfg *DeviceConfig) error
}

// Panel is the part of the display arbiter the agent reads.
type Panel interface {
	Snapshot() image.Image
	Status() display.Status
}

// TelemetrySink mirrors heartbeat health figures into a time-series store.
type TelemetrySink interface {
	WriteSystem(s influxdb.SystemSample)
}

// SyncAgent periodically pulls configuration from and pushes status to the
// backend.
//
// Thread Safety:
//   - Run, SyncConfig and SendHeartbeat are meant to be called from one
//     goroutine. Settings and ForgetApplied may be called from any goroutine.
type SyncAgent struct {
	client    *Client
	applier   Applier
	store     ConfigStore
	panel     Panel
	telemetry TelemetrySink
	logger    Logger
	collect   func() SystemInfo
	now       func() time.Time

	mu       sync.RWMutex
	settings Settings

	hashMu     sync.Mutex
	lastHash   string
	hashLoaded bool
	generation uint64 // bumped by ForgetApplied
}

// NewSyncAgent creates an agent. applier may be nil, in which case
// configuration changes only update the agent's own settings.
func NewSyncAgent(client *Client, applier Applier, settings Settings) *SyncAgent {
	if settings.HeartbeatInterval <= 0 {
		settings.HeartbeatInterval = 60 * time.Second
	}
	return &SyncAgent{
		client:   client,
		applier:  applier,
		logger:   noopLogger{},
		collect:  CollectSystemInfo,
		now:      time.Now,
		settings: settings,
	}
}

// SetLogger sets the logger.
func (a *SyncAgent) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	a.logger = logger
}

// SetStore makes the last applied hash survive restarts.
func (a *SyncAgent) SetStore(store ConfigStore) {
	a.store = store
}

// SetPanel enables last_refresh reporting and the display preview.
func (a *SyncAgent) SetPanel(panel Panel) {
	a.panel = panel
}

// SetTelemetry mirrors system health into sink.
func (a *SyncAgent) SetTelemetry(sink TelemetrySink) {
	a.telemetry = sink
}

// Settings returns a copy of the current runtime settings.
func (a *SyncAgent) Settings() Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings
}

func (a *SyncAgent) updateSettings(d DisplaySettings) Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings = a.settings.apply(d)
	return a.settings
}

// Run syncs immediately and then once per heartbeat interval until ctx
// ends, then sends a best-effort offline heartbeat. Failures are logged and
// retried on the next tick. With the cloud disabled Run returns at once.
func (a *SyncAgent) Run(ctx context.Context) error {
	if !a.client.Enabled() {
		a.logger.Info("cloud sync disabled: no api url or api key")
		return nil
	}

	interval := a.Settings().HeartbeatInterval
	a.logger.Info("cloud sync started",
		"device_id", a.client.DeviceID(),
		"interval", interval.String(),
	)

	a.syncOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return nil
		case <-ticker.C:
			a.syncOnce(ctx)
			if next := a.Settings().HeartbeatInterval; next != interval {
				interval = next
				ticker.Reset(interval)
				a.logger.Info("cloud sync interval changed", "interval", interval.String())
			}
		}
	}
}

func (a *SyncAgent) syncOnce(ctx context.Context) {
	if _, err := a.SyncConfig(ctx); err != nil && ctx.Err() == nil {
		switch {
		case errors.Is(err, ErrNotRegistered):
			a.logger.Warn("backend does not know this device", "device_id", a.client.DeviceID())
		case errors.Is(err, ErrPartiallyApplied):
			a.logger.Warn("config applied with errors", "error", err)
			a.report(ctx, LogLevelWarning, err.Error())
		case errors.Is(err, ErrApplyFailed):
			a.logger.Warn("config sync failed", "error", err)
			a.report(ctx, LogLevelError, err.Error())
		default:
			a.logger.Warn("config sync failed", "error", err)
		}
	}

	info := a.collect()
	if a.telemetry != nil {
		a.telemetry.WriteSystem(info.Sample())
	}
	if err := a.SendHeartbeat(ctx, StatusOnline, &info, a.preview()); err != nil && ctx.Err() == nil {
		a.logger.Warn("heartbeat failed", "error", err)
	}
}

func (a *SyncAgent) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), offlineTimeout)
	defer cancel()

	if err := a.SendHeartbeat(ctx, StatusOffline, nil, ""); err != nil {
		a.logger.Warn("offline heartbeat failed", "error", err)
	}
	a.client.CloseIdleConnections()
	a.logger.Info("cloud sync stopped")
}

// SyncConfig fetches the device configuration and applies it if its
// content hash differs from the last applied one. The hash is only
// committed after the apply succeeds, so a failed apply is retried on the
// next call. A partly applied document is committed and reported with an
// error wrapping ErrPartiallyApplied.
//
// Returns:
//   - *DeviceConfig: The fetched configuration (applied or unchanged)
//   - error: Fetch or decode failure, ErrApplyFailed or ErrPartiallyApplied
func (a *SyncAgent) SyncConfig(ctx context.Context) (*DeviceConfig, error) {
	raw, err := a.client.FetchConfig(ctx)
	if err != nil {
		return nil, err
	}

	cfg, hash, canonical, err := parseConfig(raw)
	if err != nil {
		return nil, err
	}

	last, gen := a.appliedHash(ctx)
	if hash == last {
		a.logger.Debug("config unchanged", "hash", shortHash(hash))
		return cfg, nil
	}

	var partial error
	if a.applier != nil {
		if err := a.applier.ApplyConfig(ctx, cfg); err != nil {
			if !errors.Is(err, ErrPartiallyApplied) {
				return cfg, fmt.Errorf("%w: %w", ErrApplyFailed, err)
			}
			partial = err
		}
	}
	settings := a.updateSettings(cfg.Display)

	if a.commitHash(hash, gen) && a.store != nil {
		if err := a.store.SaveApplied(ctx, hash, canonical); err != nil {
			a.logger.Warn("persisting config hash failed", "error", err)
		}
	}

	a.logger.Info("config applied from cloud",
		"hash", shortHash(hash),
		"widgets", len(cfg.Widgets),
		"heartbeat_interval", settings.HeartbeatInterval.String(),
	)
	return cfg, partial
}

// ForgetApplied drops the remembered hash so the next sync re-applies the
// cloud configuration even if it has not changed. An apply already in
// flight does not restore it.
func (a *SyncAgent) ForgetApplied() {
	a.hashMu.Lock()
	defer a.hashMu.Unlock()
	a.lastHash = ""
	a.hashLoaded = true
	a.generation++
}

// appliedHash returns the last applied hash, loading it from the store on
// first use, and the generation it belongs to.
func (a *SyncAgent) appliedHash(ctx context.Context) (string, uint64) {
	a.hashMu.Lock()
	defer a.hashMu.Unlock()
	if !a.hashLoaded && a.store != nil {
		hash, err := a.store.LastApplied(ctx)
		if err != nil {
			a.logger.Warn("loading applied config hash failed", "error", err)
		} else {
			a.lastHash = hash
			a.hashLoaded = true
		}
	}
	return a.lastHash, a.generation
}

// commitHash records hash unless ForgetApplied ran since gen was read.
func (a *SyncAgent) commitHash(hash string, gen uint64) bool {
	a.hashMu.Lock()
	defer a.hashMu.Unlock()
	if gen != a.generation {
		return false
	}
	a.lastHash = hash
	return true
}

// report forwards a problem to the backend log. Delivery is best effort.
func (a *SyncAgent) report(ctx context.Context, level, message string) {
	if err := a.client.SendLog(ctx, level, message); err != nil && ctx.Err() == nil {
		a.logger.Debug("sending log to backend failed", "error", err)
	}
}

// SendHeartbeat reports device status.
//
// Parameters:
//   - ctx: Bounds the request
//   - status: StatusOnline or StatusOffline
//   - info: System health; nil omits the section
//   - preview: Encoded display preview; "" omits it
func (a *SyncAgent) SendHeartbeat(ctx context.Context, status string, info *SystemInfo, preview string) error {
	hb := Heartbeat{
		DeviceID:       a.client.DeviceID(),
		Status:         status,
		System:         info,
		DisplayPreview: preview,
		Timestamp:      a.now().UTC().Format(time.RFC3339),
	}
	if a.panel != nil {
		if last := a.panel.Status().LastRefresh; !last.IsZero() {
			hb.LastRefresh = last.UTC().Format(time.RFC3339)
		}
	}
	return a.client.PostStatus(ctx, hb)
}

func (a *SyncAgent) preview() string {
	s := a.Settings()
	if !s.PreviewEnabled || a.panel == nil {
		return ""
	}
	img := a.panel.Snapshot()
	if img == nil {
		return ""
	}
	encoded, err := EncodePreview(img, s.PreviewMaxWidth)
	if err != nil {
		a.logger.Warn("encoding display preview failed", "error", err)
		return ""
	}
	return encoded
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
