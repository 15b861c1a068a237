package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coocood/freecache"

	"github.com/nerrad567/lumy-core/internal/api"
	"github.com/nerrad567/lumy-core/internal/cloud"
	"github.com/nerrad567/lumy-core/internal/command"
	"github.com/nerrad567/lumy-core/internal/display"
	"github.com/nerrad567/lumy-core/internal/infrastructure/config"
	"github.com/nerrad567/lumy-core/internal/infrastructure/database"
	"github.com/nerrad567/lumy-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/lumy-core/internal/infrastructure/logging"
	"github.com/nerrad567/lumy-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/lumy-core/internal/metrics"
	"github.com/nerrad567/lumy-core/internal/portal"
	"github.com/nerrad567/lumy-core/internal/registration"
	"github.com/nerrad567/lumy-core/internal/remote"
	"github.com/nerrad567/lumy-core/internal/widget"
	"github.com/nerrad567/lumy-core/internal/wifi"
)

const (
	// historyTimeout bounds one render history insert.
	historyTimeout = 2 * time.Second

	// widgetHTTPTimeout bounds one widget data fetch.
	widgetHTTPTimeout = 15 * time.Second

	// minCacheMB keeps the widget cache usable when the setting is absent.
	minCacheMB = 1
)

// Device is a fully wired device ready to run.
//
// Thread Safety:
//   - Run is called once. Close is called once, after Run returns.
type Device struct {
	ID string

	logger  *logging.Logger
	orch    *Orchestrator
	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// service adapts a Run method to Service.
type service struct {
	name string
	run  func(ctx context.Context) error
}

func (s service) Name() string                  { return s.name }
func (s service) Run(ctx context.Context) error { return s.run(ctx) }

// Build opens storage, resolves the device identity and wires every
// component described by cfg. Optional infrastructure (MQTT, InfluxDB)
// that cannot be reached is logged and left out.
//
// Parameters:
//   - ctx: Bounds connection attempts made while building
//   - cfg: Loaded and validated configuration
//   - logger: Shared by every component
//   - version: Reported by the API and metrics
//
// Returns:
//   - *Device: Call Close when done, even if Run was never called
//   - error: Storage, identity or construction failure; anything already
//     opened is closed before returning
func Build(ctx context.Context, cfg *config.Config, logger *logging.Logger, version string) (dev *Device, err error) {
	d := &Device{logger: logger}
	defer func() {
		if err != nil {
			d.Close() //nolint:errcheck // cleanup errors are logged
		}
	}()

	// Storage
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	d.onClose("database", db.Close)
	logger.Info("database connected", "path", cfg.Database.Path)

	if err := db.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	// Identity
	ids := registration.NewIdentityStore(cfg.Device)
	ids.SetLogger(logger)
	deviceID, err := ids.GetOrCreate()
	if err != nil && !errors.Is(err, registration.ErrNotPersisted) {
		return nil, fmt.Errorf("resolving device id: %w", err)
	}
	err = nil
	d.ID = deviceID
	logger.Info("device identity", "device_id", deviceID)

	m := metrics.New(version)

	// Display
	panel := display.Open(ctx, cfg.Display, logger)
	d.onClose("display", panel.Close)
	history := display.NewSQLiteHistory(db.DB, 0)

	// Command bus: the scheduler is its only consumer.
	bus := NewMeteredBus(command.NewBus(command.DefaultInboxSize), m)

	// Cloud
	client := cloud.NewClient(cfg.Cloud, deviceID, nil)
	client.SetOnRequest(m.ObserveCloud)
	if !client.Enabled() {
		logger.Warn("cloud api key not set; running offline")
	}

	registrar := registration.NewRegistrar(client, panel, cfg.Registration)
	registrar.SetLogger(logger)
	registrar.SetRepository(registration.NewSQLiteRepository(db.DB))

	// Widgets
	sched := buildScheduler(ctx, cfg, db.DB, panel, logger)

	agent := cloud.NewSyncAgent(client, NewBusApplier(bus, logger), cloud.SettingsFromConfig(cfg))
	agent.SetLogger(logger)
	agent.SetStore(cloud.NewSQLiteConfigStore(db.DB, deviceID))
	agent.SetPanel(panel)

	// Telemetry
	influx := d.connectInflux(ctx, cfg, deviceID)
	if influx != nil {
		agent.SetTelemetry(influx)
	}

	var services []Service

	// Remote commands
	bridge := d.connectRemote(cfg, deviceID, bus)
	if bridge != nil {
		services = append(services, service{name: "remote", run: bridge.Run})
	}

	// Local API
	var server *api.Server
	if cfg.API.Enabled {
		server, err = api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  logger,
			Bus:     bus,
			Panel:   panel,
			Pairing: registrar,
			Metrics: m,
			DB:      db.DB,
			Sync:    agent,
			Version: version,
		})
		if err != nil {
			return nil, fmt.Errorf("creating api server: %w", err)
		}
		m.GaugeFunc("websocket_clients", "Connected WebSocket clients.", func() float64 {
			return float64(server.Hub().ClientCount())
		})
		services = append(services, service{name: "api", run: server.Run})
	}

	// Event fan-out
	panel.SetOnRender(func(ev display.Event) {
		m.ObserveDisplay(ev.Operation, ev.Success, ev.Duration, ev.At)

		hctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		if err := history.Record(hctx, ev); err != nil {
			logger.Debug("recording render failed", "error", err)
		}
		cancel()

		if influx != nil {
			influx.WriteRender(ev.Operation, ev.Success, ev.Duration)
		}
		payload := renderPayload(ev)
		if server != nil {
			server.Broadcast(api.EventDisplayRendered, payload)
		}
		if bridge != nil {
			go bridge.PublishEvent(api.EventDisplayRendered, payload)
		}
	})
	sched.SetOnUpdate(func(ev widget.UpdateEvent) {
		m.ObserveWidget(ev.Type, ev.Success, ev.Duration)
		if influx != nil {
			influx.WriteWidgetUpdate(ev.ID, ev.Type, ev.Success, ev.Duration)
		}
		if server != nil {
			server.Broadcast(api.EventWidgetUpdated, map[string]any{
				"widget_id":   ev.ID,
				"type":        ev.Type,
				"success":     ev.Success,
				"duration_ms": ev.Duration.Milliseconds(),
			})
		}
	})

	// Network
	prov := wifi.NewProvisioner(cfg.WiFi)
	prov.SetLogger(logger)
	cp, err := portal.New(cfg.Portal, prov)
	if err != nil {
		return nil, fmt.Errorf("creating captive portal: %w", err)
	}
	cp.SetLogger(logger)
	prov.SetPortal(cp)

	d.orch, err = New(Components{
		Provisioner: prov,
		Registrar:   registrar,
		Scheduler:   sched,
		Inbox:       bus.Inbox(),
		Sync:        agent,
		Services:    services,
	})
	if err != nil {
		return nil, err
	}
	d.orch.SetLogger(logger)

	return d, nil
}

// buildScheduler creates the widget registry from the configured instances
// and restores the last good data of each.
func buildScheduler(ctx context.Context, cfg *config.Config, db *sql.DB, panel *display.Arbiter, logger *logging.Logger) *widget.Scheduler {
	loc := time.Local
	if tz := cfg.Device.Timezone; tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			logger.Warn("unknown timezone, using local time", "timezone", tz, "error", err)
		} else {
			loc = l
		}
	}

	reg := widget.NewRegistry(widget.Deps{
		HTTPClient: &http.Client{Timeout: widgetHTTPTimeout},
		Cache:      freecache.NewCache(max(cfg.Widgets.CacheSizeMB, minCacheMB) * 1024 * 1024),
		Location:   loc,
	})
	for _, inst := range Instances(cfg.Widgets.Instances) {
		if err := reg.Add(ctx, inst); err != nil {
			logger.Warn("adding widget failed", "widget", inst.ID, "type", inst.Type, "error", err)
		}
	}

	sched := widget.NewScheduler(reg, panel, cfg.GetUpdateInterval())
	sched.SetLogger(logger)
	sched.SetRepository(widget.NewSQLiteRepository(db))
	sched.Restore(ctx)
	logger.Info("widgets loaded", "count", reg.Len())
	return sched
}

// connectInflux returns nil when telemetry is disabled or unreachable.
func (d *Device) connectInflux(ctx context.Context, cfg *config.Config, deviceID string) *influxdb.Client {
	if !cfg.InfluxDB.Enabled {
		return nil
	}
	c, err := influxdb.Connect(ctx, cfg.InfluxDB, deviceID)
	if err != nil {
		d.logger.Warn("influxdb unavailable, telemetry disabled", "url", cfg.InfluxDB.URL, "error", err)
		return nil
	}
	c.SetOnError(func(err error) {
		d.logger.Debug("influxdb write failed", "error", err)
	})
	d.onClose("influxdb", c.Close)
	d.logger.Info("influxdb connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	return c
}

// connectRemote returns nil when remote commands are disabled or the broker
// is unreachable.
func (d *Device) connectRemote(cfg *config.Config, deviceID string, bus remote.Submitter) *remote.Bridge {
	if !cfg.MQTT.Enabled {
		return nil
	}
	c, err := mqtt.Connect(cfg.MQTT, deviceID)
	if err != nil {
		d.logger.Warn("mqtt broker unavailable, remote commands disabled",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"error", err,
		)
		return nil
	}
	c.SetLogger(d.logger)
	c.SetOnConnect(func() {
		d.logger.Info("mqtt reconnected")
	})
	c.SetOnDisconnect(func(err error) {
		d.logger.Warn("mqtt disconnected", "error", err)
	})
	d.onClose("mqtt", c.Close)
	d.logger.Info("mqtt connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
	)

	b := remote.NewBridge(c, c.Topics(), bus, remote.DefaultTimeout)
	b.SetLogger(d.logger)
	return b
}

// Run runs the device until ctx ends.
func (d *Device) Run(ctx context.Context) error {
	return d.orch.Run(ctx)
}

// Close releases everything Build opened, newest first.
func (d *Device) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		c := d.closers[i]
		d.logger.Info("closing " + c.name)
		if err := c.fn(); err != nil {
			d.logger.Error("error closing "+c.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func (d *Device) onClose(name string, fn func() error) {
	d.closers = append(d.closers, closer{name: name, fn: fn})
}

func renderPayload(ev display.Event) map[string]any {
	p := map[string]any{
		"operation":   ev.Operation,
		"success":     ev.Success,
		"duration_ms": ev.Duration.Milliseconds(),
		"at":          ev.At.UTC().Format(time.RFC3339),
	}
	if ev.Err != nil {
		p["error"] = ev.Err.Error()
	}
	return p
}
