package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/lumy-core/internal/cloud"
	"github.com/nerrad567/lumy-core/internal/command"
	"github.com/nerrad567/lumy-core/internal/infrastructure/config"
	"github.com/nerrad567/lumy-core/internal/widget"
)

func boolPtr(b bool) *bool { return &b }

// serve answers every request on bus with fn until the test ends.
func serve(t *testing.T, bus *command.Bus, fn func(*command.Request)) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-bus.Inbox():
				fn(req)
			}
		}
	}()
}

// =============================================================================
// Conversion
// =============================================================================

func TestConfigUpdate(t *testing.T) {
	doc := &cloud.DeviceConfig{
		Display: cloud.DisplaySettings{RefreshInterval: 120, HeartbeatInterval: 30},
		Widgets: []cloud.WidgetConfig{
			{ID: "clock", Enabled: boolPtr(true), Config: map[string]any{"format": "24h"}},
			{ID: "news", Type: "message", Enabled: boolPtr(false)},
		},
	}

	up := ConfigUpdate(doc)
	if up.RefreshInterval != 120 {
		t.Errorf("RefreshInterval = %d", up.RefreshInterval)
	}
	if len(up.Widgets) != 2 {
		t.Fatalf("widgets = %d, want 2", len(up.Widgets))
	}
	if w := up.Widgets[0]; w.ID != "clock" || w.Type != "" || !*w.Enabled || w.Settings["format"] != "24h" {
		t.Errorf("widget[0] = %+v", w)
	}
	if w := up.Widgets[1]; w.Type != "message" || *w.Enabled {
		t.Errorf("widget[1] = %+v", w)
	}

	if got := ConfigUpdate(nil); got.RefreshInterval != 0 || got.Widgets != nil {
		t.Errorf("ConfigUpdate(nil) = %+v", got)
	}
}

func TestInstances(t *testing.T) {
	in := []config.WidgetInstance{
		{ID: "weather", Settings: map[string]any{"city": "Leeds"}},
		{ID: "todo", Type: "message", Enabled: boolPtr(false)},
	}
	out := Instances(in)
	if len(out) != 2 {
		t.Fatalf("len = %d", len(out))
	}
	if out[0].ID != "weather" || out[0].Enabled != nil || out[0].Settings["city"] != "Leeds" {
		t.Errorf("out[0] = %+v", out[0])
	}
	if out[1].Type != "message" || out[1].Enabled == nil || *out[1].Enabled {
		t.Errorf("out[1] = %+v", out[1])
	}
	if got := Instances(nil); got == nil || len(got) != 0 {
		t.Errorf("Instances(nil) = %#v", got)
	}
}

// =============================================================================
// BusApplier
// =============================================================================

func TestBusApplier_SubmitsApplyConfig(t *testing.T) {
	bus := command.NewBus(1)
	got := make(chan widget.ConfigUpdate, 1)
	serve(t, bus, func(req *command.Request) {
		if req.Name != command.ApplyConfig {
			req.Respond(nil, errors.New("unexpected "+req.Name))
			return
		}
		var up widget.ConfigUpdate
		err := req.Decode(&up)
		got <- up
		req.Respond(nil, err)
	})

	a := NewBusApplier(bus, nil)
	doc := &cloud.DeviceConfig{
		Display: cloud.DisplaySettings{RefreshInterval: 300},
		Widgets: []cloud.WidgetConfig{{ID: "clock", Config: map[string]any{"format": "12h"}}},
	}
	if err := a.ApplyConfig(context.Background(), doc); err != nil {
		t.Fatalf("ApplyConfig() error = %v", err)
	}

	up := <-got
	if up.RefreshInterval != 300 || len(up.Widgets) != 1 || up.Widgets[0].Settings["format"] != "12h" {
		t.Errorf("scheduler received %+v", up)
	}
}

func TestBusApplier_PartialRejectionCountsAsApplied(t *testing.T) {
	bus := command.NewBus(1)
	serve(t, bus, func(req *command.Request) {
		req.Respond(nil, widget.ErrUnknownType)
	})

	a := NewBusApplier(bus, nil)
	err := a.ApplyConfig(context.Background(), &cloud.DeviceConfig{})
	if !errors.Is(err, cloud.ErrPartiallyApplied) {
		t.Errorf("ApplyConfig() error = %v, want ErrPartiallyApplied", err)
	}
}

func TestBusApplier_Undelivered(t *testing.T) {
	a := NewBusApplier(command.NewBus(1), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := a.ApplyConfig(ctx, &cloud.DeviceConfig{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ApplyConfig() error = %v, want DeadlineExceeded", err)
	}
}

// =============================================================================
// MeteredBus
// =============================================================================

type countingObserver struct {
	results map[string][]bool
}

func (c *countingObserver) ObserveCommand(name string, success bool) {
	if c.results == nil {
		c.results = make(map[string][]bool)
	}
	c.results[name] = append(c.results[name], success)
}

func TestMeteredBus(t *testing.T) {
	inner := command.NewBus(2)
	serve(t, inner, func(req *command.Request) {
		if req.Name == command.Ping {
			req.Respond("pong", nil)
			return
		}
		req.Respond(nil, command.ErrUnknownCommand)
	})

	obs := &countingObserver{}
	bus := NewMeteredBus(inner, obs)

	if rep, err := bus.Submit(context.Background(), command.Ping, nil); err != nil || !rep.Success {
		t.Fatalf("ping = %+v, %v", rep, err)
	}
	if rep, err := bus.SubmitWithID(context.Background(), "r-1", "dance", nil); err != nil || rep.Success || rep.ID != "r-1" {
		t.Fatalf("dance = %+v, %v", rep, err)
	}

	if got := obs.results[command.Ping]; len(got) != 1 || !got[0] {
		t.Errorf("ping observed = %v", got)
	}
	if got := obs.results["dance"]; len(got) != 1 || got[0] {
		t.Errorf("dance observed = %v", got)
	}
}
