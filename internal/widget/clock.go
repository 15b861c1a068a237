package widget

import (
	"context"
	"fmt"
	"image"
	"time"
	_ "time/tzdata" // devices may ship without a zoneinfo database
)

// clock shows the local time and, optionally, the date.
//
// Settings:
//   - format: "24h" (default) or "12h"
//   - timezone: IANA name; defaults to the device location
//   - show_date: default true
//   - show_seconds: default false
type clock struct {
	deps        Deps
	loc         *time.Location
	twelveHour  bool
	showDate    bool
	showSeconds bool
}

func newClock(deps Deps) Widget {
	return &clock{deps: deps, loc: deps.Location, showDate: true}
}

func (c *clock) Initialize(_ context.Context, settings Settings) error {
	c.loc = c.deps.Location
	if tz := stringValue(settings, "timezone", ""); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("timezone %q: %w", tz, err)
		}
		c.loc = loc
	}

	switch format := stringValue(settings, "format", "24h"); format {
	case "24h":
		c.twelveHour = false
	case "12h":
		c.twelveHour = true
	default:
		return fmt.Errorf("format %q: must be 12h or 24h", format)
	}

	c.showDate = boolValue(settings, "show_date", true)
	c.showSeconds = boolValue(settings, "show_seconds", false)
	return nil
}

func (c *clock) Update(_ context.Context, _ Data) (Data, error) {
	now := c.deps.Now().In(c.loc)

	layout := "15:04"
	switch {
	case c.twelveHour && c.showSeconds:
		layout = "3:04:05 PM"
	case c.twelveHour:
		layout = "3:04 PM"
	case c.showSeconds:
		layout = "15:04:05"
	}

	out := Data{
		"time":     now.Format(layout),
		"timezone": c.loc.String(),
	}
	if c.showDate {
		out["date"] = now.Format("Monday, 2 January 2006")
	}
	return out, nil
}

func (c *clock) Render(data Data, bounds image.Rectangle) (image.Image, error) {
	img := blank(bounds)
	text := stringValue(data, "time", "--:--")

	y := drawHero(img, text, margin, 0.6)
	if date := stringValue(data, "date", ""); date != "" {
		drawLines(img, []string{date}, y, 2, faint)
	}
	return img, nil
}
