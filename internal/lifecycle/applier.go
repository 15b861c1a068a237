package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/lumy-core/internal/cloud"
	"github.com/nerrad567/lumy-core/internal/command"
	"github.com/nerrad567/lumy-core/internal/infrastructure/config"
	"github.com/nerrad567/lumy-core/internal/widget"
)

// applyTimeout bounds one configuration change, re-render included.
const applyTimeout = 60 * time.Second

// Submitter queues a command and waits for its reply.
type Submitter interface {
	Submit(ctx context.Context, name string, payload any) (command.Reply, error)
}

// BusApplier hands cloud configuration to the widget scheduler through the
// command bus. It implements cloud.Applier.
type BusApplier struct {
	bus    Submitter
	logger Logger
}

// NewBusApplier creates an applier submitting to bus.
func NewBusApplier(bus Submitter, logger Logger) *BusApplier {
	if logger == nil {
		logger = noopLogger{}
	}
	return &BusApplier{bus: bus, logger: logger}
}

// ApplyConfig submits cfg as an apply_config command.
//
// The scheduler applies every valid part of a document and reports the rest.
// A partly rejected document therefore counts as applied: the problems are
// returned wrapped in cloud.ErrPartiallyApplied and the same document is not
// pushed again.
//
// Returns:
//   - error: cloud.ErrPartiallyApplied, or the reason the command never
//     reached the scheduler
func (a *BusApplier) ApplyConfig(ctx context.Context, cfg *cloud.DeviceConfig) error {
	ctx, cancel := context.WithTimeout(ctx, applyTimeout)
	defer cancel()

	rep, err := a.bus.Submit(ctx, command.ApplyConfig, ConfigUpdate(cfg))
	if err != nil {
		return fmt.Errorf("submitting config: %w", err)
	}
	if !rep.Success {
		a.logger.Warn("cloud config partly rejected", "error", rep.Error)
		return fmt.Errorf("%w: %s", cloud.ErrPartiallyApplied, rep.Error)
	}
	return nil
}

// ConfigUpdate converts a cloud document into the scheduler's update.
func ConfigUpdate(cfg *cloud.DeviceConfig) widget.ConfigUpdate {
	if cfg == nil {
		return widget.ConfigUpdate{}
	}
	up := widget.ConfigUpdate{RefreshInterval: cfg.Display.RefreshInterval}
	for _, w := range cfg.Widgets {
		up.Widgets = append(up.Widgets, widget.InstanceConfig{
			ID:       w.ID,
			Type:     w.Type,
			Enabled:  w.Enabled,
			Settings: widget.Settings(w.Config),
		})
	}
	return up
}

// Instances converts the configured widget list.
func Instances(in []config.WidgetInstance) []widget.InstanceConfig {
	out := make([]widget.InstanceConfig, 0, len(in))
	for _, w := range in {
		out = append(out, widget.InstanceConfig{
			ID:       w.ID,
			Type:     w.Type,
			Enabled:  w.Enabled,
			Settings: widget.Settings(w.Settings),
		})
	}
	return out
}
