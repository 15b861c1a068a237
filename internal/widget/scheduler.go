package widget

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"golang.org/x/image/draw"

	"github.com/nerrad567/lumy-core/internal/command"
	"github.com/nerrad567/lumy-core/internal/display"
)

const (
	// DefaultInterval is the periodic update cadence.
	DefaultInterval = 60 * time.Second

	// minInterval stops a bad cloud setting from hammering the panel.
	minInterval = 10 * time.Second
)

// Logger defines the logging interface for the scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Display is the part of the display arbiter the scheduler uses.
type Display interface {
	RenderImage(ctx context.Context, img image.Image) bool
	Clear(ctx context.Context) bool
	Size() image.Point
	Status() display.Status
}

// UpdateEvent describes one widget update attempt.
type UpdateEvent struct {
	ID       string
	Type     string
	Success  bool
	Duration time.Duration
}

// ConfigUpdate is a runtime change pushed from the cloud.
type ConfigUpdate struct {
	// RefreshInterval in seconds; zero leaves the interval unchanged.
	RefreshInterval int              `json:"refresh_interval,omitempty"`
	Widgets         []InstanceConfig `json:"widgets,omitempty"`
}

// Status is the reply to get_status.
type Status struct {
	IntervalSeconds int            `json:"interval_seconds"`
	LastTick        time.Time      `json:"last_tick,omitzero"`
	LastRenderOK    bool           `json:"last_render_ok"`
	Widgets         []State        `json:"widgets"`
	Display         display.Status `json:"display"`
}

// Scheduler updates widgets and composes them onto the display.
//
// Thread Safety:
//   - Not safe for concurrent use. Run owns the scheduler; other goroutines
//     talk to it through the command inbox.
type Scheduler struct {
	registry *Registry
	display  Display
	repo     Repository
	logger   Logger
	now      func() time.Time

	interval     time.Duration
	ticker       *time.Ticker
	lastTick     time.Time
	lastRenderOK bool

	onUpdate func(UpdateEvent)
}

// NewScheduler creates a scheduler over registry that renders to disp.
func NewScheduler(registry *Registry, disp Display, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		registry: registry,
		display:  disp,
		logger:   noopLogger{},
		now:      time.Now,
		interval: interval,
	}
}

// SetLogger sets the logger.
func (s *Scheduler) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetRepository enables persistence of each widget's last good data.
func (s *Scheduler) SetRepository(repo Repository) {
	s.repo = repo
}

// SetOnUpdate registers a callback for every update attempt.
func (s *Scheduler) SetOnUpdate(fn func(UpdateEvent)) {
	s.onUpdate = fn
}

// Interval returns the current tick interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Restore loads persisted widget data so the first composite after a
// restart shows the last good content even before any update succeeds.
func (s *Scheduler) Restore(ctx context.Context) {
	if s.repo == nil {
		return
	}
	for _, inst := range s.registry.order {
		saved, err := s.repo.Load(ctx, inst.state.ID)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.logger.Warn("loading widget state failed", "widget", inst.state.ID, "error", err)
			}
			continue
		}
		if saved.Type != inst.state.Type {
			continue
		}
		inst.state.Data = saved.Data
		inst.state.LastUpdate = saved.LastUpdate
	}
}

// ResetData forgets every instance's data and update history. Widgets
// start from empty data on their next update.
func (s *Scheduler) ResetData() {
	for _, inst := range s.registry.order {
		inst.state.Data = Data{}
		inst.state.LastUpdate = time.Time{}
		inst.state.LastError = ""
	}
	s.logger.Info("widget data reset", "widgets", s.registry.Len())
}

// Run ticks immediately and then every interval, serving commands from
// inbox in between, until ctx ends.
func (s *Scheduler) Run(ctx context.Context, inbox <-chan *command.Request) error {
	s.logger.Info("widget scheduler started",
		"widgets", s.registry.Len(),
		"interval", s.interval.String(),
	)

	s.Tick(ctx)

	s.ticker = time.NewTicker(s.interval)
	defer func() {
		s.ticker.Stop()
		s.ticker = nil
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("widget scheduler stopped")
			return nil
		case <-s.ticker.C:
			s.Tick(ctx)
		case req, ok := <-inbox:
			if !ok {
				inbox = nil
				continue
			}
			s.Handle(ctx, req)
		}
	}
}

// Tick updates every enabled widget in order and renders the composite.
// It returns whether the display accepted the frame. A cancelled ctx stops
// the cycle without composing or rendering.
func (s *Scheduler) Tick(ctx context.Context) bool {
	for _, inst := range s.registry.enabled() {
		if ctx.Err() != nil {
			return false
		}
		s.update(ctx, inst, inst.state.Data, nil)
	}
	if ctx.Err() != nil {
		return false
	}
	s.lastTick = s.now()
	return s.render(ctx)
}

// UpdateOne merges data into widget id's current data, runs an update and
// re-renders the whole composite.
func (s *Scheduler) UpdateOne(ctx context.Context, id string, data Data) bool {
	return s.updateOne(ctx, id, data) == nil
}

func (s *Scheduler) updateOne(ctx context.Context, id string, data Data) error {
	inst, ok := s.registry.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.update(ctx, inst, inst.state.Data.Merge(data), nil); err != nil {
		return err
	}
	if !s.render(ctx) {
		return ErrRenderFailed
	}
	return nil
}

// TriggerOne delivers a one-off action to widget id and re-renders.
// Widgets without a Trigger method get a forced update with payload merged in.
func (s *Scheduler) TriggerOne(ctx context.Context, id string, payload Data) bool {
	return s.triggerOne(ctx, id, payload) == nil
}

func (s *Scheduler) triggerOne(ctx context.Context, id string, payload Data) error {
	inst, ok := s.registry.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var trigger func(ctx context.Context, current Data) (Data, error)
	if t, ok := inst.widget.(Triggerable); ok {
		trigger = func(ctx context.Context, current Data) (Data, error) {
			return t.Trigger(ctx, current, payload)
		}
	}

	input := inst.state.Data
	if trigger == nil {
		input = input.Merge(payload)
	}
	if err := s.update(ctx, inst, input, trigger); err != nil {
		return err
	}
	if !s.render(ctx) {
		return ErrRenderFailed
	}
	return nil
}

// ApplyConfig applies a cloud configuration change and re-renders.
//
// Known instances are enabled, disabled or re-initialised with merged
// settings; new instances of known types are appended. Unknown types are
// skipped with a warning. The returned error joins every problem found;
// the valid parts are applied regardless.
func (s *Scheduler) ApplyConfig(ctx context.Context, cfg ConfigUpdate) error {
	var errs []error

	if cfg.RefreshInterval > 0 {
		s.setInterval(time.Duration(cfg.RefreshInterval) * time.Second)
	}

	for _, wc := range cfg.Widgets {
		inst, exists := s.registry.get(wc.ID)
		if !exists {
			if err := s.registry.Add(ctx, wc); err != nil {
				s.logger.Warn("widget from cloud config not added", "widget", wc.ID, "error", err)
				errs = append(errs, err)
			}
			continue
		}

		// An entry without the flag is enabled, as it is for new instances.
		inst.state.Enabled = wc.Enabled == nil || *wc.Enabled
		if len(wc.Settings) > 0 {
			merged := Settings(Data(inst.settings).Merge(Data(wc.Settings)))
			if err := inst.widget.Initialize(ctx, merged); err != nil {
				s.logger.Warn("widget rejected new settings", "widget", wc.ID, "error", err)
				errs = append(errs, fmt.Errorf("initializing widget %s: %w", wc.ID, err))
				continue
			}
			inst.settings = merged
			// Data computed under the old settings is stale.
			inst.state.Data = Data{}
		}
	}

	s.logger.Info("widget configuration applied",
		"widgets", len(cfg.Widgets),
		"interval", s.interval.String(),
	)

	s.Tick(ctx)
	return errors.Join(errs...)
}

func (s *Scheduler) setInterval(d time.Duration) {
	if d < minInterval {
		d = minInterval
	}
	if d == s.interval {
		return
	}
	s.interval = d
	if s.ticker != nil {
		s.ticker.Reset(d)
	}
}

// Status returns a snapshot of the scheduler and the display.
func (s *Scheduler) Status() Status {
	return Status{
		IntervalSeconds: int(s.interval / time.Second),
		LastTick:        s.lastTick,
		LastRenderOK:    s.lastRenderOK,
		Widgets:         s.registry.States(),
		Display:         s.display.Status(),
	}
}

// update runs one widget update and commits the result on success.
// A result that arrives after ctx was cancelled is discarded.
func (s *Scheduler) update(ctx context.Context, inst *instance, input Data,
	fn func(ctx context.Context, current Data) (Data, error)) error {
	start := s.now()

	var out Data
	var err error
	if fn != nil {
		out, err = safeCall(ctx, fn, input.Clone())
	} else {
		out, err = safeUpdate(ctx, inst.widget, input.Clone())
	}
	elapsed := s.now().Sub(start)

	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.emit(UpdateEvent{ID: inst.state.ID, Type: inst.state.Type, Success: err == nil, Duration: elapsed})

	if err != nil {
		inst.state.LastError = err.Error()
		s.logger.Warn("widget update failed", "widget", inst.state.ID, "error", err)
		return err
	}

	if out == nil {
		out = Data{}
	}
	inst.state.Data = out
	inst.state.LastUpdate = s.now()
	inst.state.LastError = ""
	s.persist(ctx, inst.state)
	return nil
}

func safeCall(ctx context.Context, fn func(context.Context, Data) (Data, error), in Data) (out Data, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: trigger: %v", ErrPanic, r)
		}
	}()
	return fn(ctx, in)
}

func (s *Scheduler) emit(ev UpdateEvent) {
	if s.onUpdate != nil {
		s.onUpdate(ev)
	}
}

func (s *Scheduler) persist(ctx context.Context, st State) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(ctx, st); err != nil {
		s.logger.Warn("saving widget state failed", "widget", st.ID, "error", err)
	}
}

// render composes all enabled widgets and submits the frame.
func (s *Scheduler) render(ctx context.Context) bool {
	frame := s.Compose()
	ok := s.display.RenderImage(ctx, frame)
	s.lastRenderOK = ok
	return ok
}

// Compose renders every enabled widget into an equal horizontal band of
// the display, top to bottom in registry order. A widget that fails to
// render gets a placeholder band.
func (s *Scheduler) Compose() image.Image {
	size := s.display.Size()
	canvas := display.NewCanvas(size)

	enabled := s.registry.enabled()
	if len(enabled) == 0 || size.Y == 0 {
		return canvas
	}

	band := size.Y / len(enabled)
	for i, inst := range enabled {
		top := i * band
		bottom := top + band
		if i == len(enabled)-1 {
			bottom = size.Y
		}
		slot := image.Rect(0, top, size.X, bottom)
		local := image.Rect(0, 0, slot.Dx(), slot.Dy())

		img, err := safeRender(inst.widget, inst.state.Data, local)
		if err != nil || img == nil {
			s.logger.Warn("widget render failed", "widget", inst.state.ID, "error", err)
			drawPlaceholder(canvas, slot, inst.state.ID)
			continue
		}
		if err := safeDraw(canvas, slot, img); err != nil {
			s.logger.Warn("widget render failed", "widget", inst.state.ID, "error", err)
			display.Fill(canvas, slot, color.White)
			drawPlaceholder(canvas, slot, inst.state.ID)
		}
	}
	return canvas
}

// safeDraw copies img into slot. Images that panic when read are reported
// as ErrPanic.
func safeDraw(canvas *image.RGBA, slot image.Rectangle, img image.Image) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: compose: %v", ErrPanic, r)
		}
	}()
	draw.Draw(canvas, slot, img, img.Bounds().Min, draw.Src)
	return nil
}

func drawPlaceholder(canvas *image.RGBA, slot image.Rectangle, id string) {
	label := id + " unavailable"
	y := slot.Min.Y + (slot.Dy()-display.TextHeight(1))/2
	display.DrawCentered(canvas, label, slot, y, 1, color.Gray{Y: 0x80})
}
