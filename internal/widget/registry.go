package widget

import (
	"context"
	"fmt"
	"time"
)

// InstanceConfig describes one widget instance.
type InstanceConfig struct {
	ID       string   `json:"id"`
	Type     string   `json:"type,omitempty"`
	Enabled  *bool    `json:"enabled,omitempty"`
	Settings Settings `json:"config,omitempty"`
}

// State is the scheduler's record of one instance.
type State struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Enabled    bool      `json:"enabled"`
	Data       Data      `json:"data"`
	LastUpdate time.Time `json:"last_update,omitzero"`
	LastError  string    `json:"last_error,omitempty"`
}

// instance pairs a widget with its state.
type instance struct {
	widget   Widget
	settings Settings
	state    State
}

// Registry is an ordered collection of widget instances.
//
// It is not safe for concurrent use: it belongs to the Scheduler goroutine.
type Registry struct {
	deps  Deps
	order []*instance
	byID  map[string]*instance
}

// NewRegistry returns an empty registry whose widgets share deps.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps: deps.withDefaults(),
		byID: make(map[string]*instance),
	}
}

// Add creates, initialises and appends an instance.
//
// An instance whose Initialize fails is still added, so a later settings
// change or update can bring it back; the error is returned for logging.
//
// Parameters:
//   - ctx: Passed to Initialize
//   - cfg: Instance description; Type defaults to ID, Enabled to true
//
// Returns:
//   - error: ErrDuplicateID, ErrUnknownType, or the Initialize error
func (r *Registry) Add(ctx context.Context, cfg InstanceConfig) error {
	if cfg.ID == "" {
		return ErrMissingID
	}
	if _, exists := r.byID[cfg.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, cfg.ID)
	}
	typ := cfg.Type
	if typ == "" {
		typ = cfg.ID
	}
	factory, ok := factories[typ]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, typ)
	}

	enabled := true
	if cfg.Enabled != nil {
		enabled = *cfg.Enabled
	}

	settings := cfg.Settings
	if settings == nil {
		settings = Settings{}
	}

	inst := &instance{
		widget:   factory(r.deps),
		settings: settings,
		state:    State{ID: cfg.ID, Type: typ, Enabled: enabled, Data: Data{}},
	}
	r.order = append(r.order, inst)
	r.byID[cfg.ID] = inst

	if err := inst.widget.Initialize(ctx, settings); err != nil {
		inst.state.LastError = err.Error()
		return fmt.Errorf("initializing widget %s: %w", cfg.ID, err)
	}
	return nil
}

func (r *Registry) get(id string) (*instance, bool) {
	inst, ok := r.byID[id]
	return inst, ok
}

func (r *Registry) enabled() []*instance {
	out := make([]*instance, 0, len(r.order))
	for _, inst := range r.order {
		if inst.state.Enabled {
			out = append(out, inst)
		}
	}
	return out
}

// States returns a copy of every instance's state in registry order.
func (r *Registry) States() []State {
	out := make([]State, len(r.order))
	for i, inst := range r.order {
		s := inst.state
		s.Data = inst.state.Data.Clone()
		out[i] = s
	}
	return out
}

// Len returns the number of instances.
func (r *Registry) Len() int {
	return len(r.order)
}
