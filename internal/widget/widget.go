package widget

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"time"

	"github.com/coocood/freecache"
)

// Data holds a widget's render inputs.
type Data map[string]any

// Clone returns a shallow copy. Nested values are shared and must be
// treated as read-only by widgets.
func (d Data) Clone() Data {
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Merge returns a copy of d with every key of other applied on top.
func (d Data) Merge(other Data) Data {
	out := d.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Settings are a widget instance's configuration.
type Settings map[string]any

// Widget is the capability every widget type implements.
type Widget interface {
	// Initialize applies settings. It is called once when the instance is
	// created and again whenever its settings change.
	Initialize(ctx context.Context, settings Settings) error

	// Update returns fresh data derived from current. It must not modify
	// current; an error leaves the last good data in place.
	Update(ctx context.Context, current Data) (Data, error)

	// Render draws data into an image the size of bounds.
	Render(data Data, bounds image.Rectangle) (image.Image, error)
}

// Triggerable is implemented by widgets that react to one-off actions
// (a button press on the phone app, say) differently from an update.
type Triggerable interface {
	Trigger(ctx context.Context, current, payload Data) (Data, error)
}

// Deps are shared resources handed to widget factories.
type Deps struct {
	HTTPClient *http.Client
	Cache      *freecache.Cache
	Now        func() time.Time
	Location   *time.Location
}

func (d Deps) withDefaults() Deps {
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if d.Cache == nil {
		d.Cache = freecache.NewCache(512 * 1024)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	return d
}

// Factory creates an uninitialised widget.
type Factory func(deps Deps) Widget

// factories is the static table of widget types.
var factories = map[string]Factory{
	"clock":    newClock,
	"weather":  newWeather,
	"calendar": newCalendar,
	"message":  newMessage,
}

// KnownType reports whether typ has a factory.
func KnownType(typ string) bool {
	_, ok := factories[typ]
	return ok
}

// =============================================================================
// Settings and data accessors
// =============================================================================

func stringValue(m map[string]any, key, def string) string {
	switch v := m[key].(type) {
	case string:
		if v != "" {
			return v
		}
	case fmt.Stringer:
		return v.String()
	}
	return def
}

func intValue(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func boolValue(m map[string]any, key string, def bool) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// safeUpdate calls w.Update, converting a panic into an error.
func safeUpdate(ctx context.Context, w Widget, current Data) (out Data, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: update: %v", ErrPanic, r)
		}
	}()
	return w.Update(ctx, current)
}

// safeRender calls w.Render, converting a panic into an error.
func safeRender(w Widget, data Data, bounds image.Rectangle) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: render: %v", ErrPanic, r)
		}
	}()
	return w.Render(data, bounds)
}
