package widget

import (
	"context"
	"image"
	"sort"
	"time"
)

// calendar lists upcoming events pushed to it with update_widget.
//
// Data in: "events", a list of {title, start} where start is RFC 3339, or
// {title, date, time} free text shown as given.
// Data out: the same plus "upcoming", the filtered and formatted list.
//
// Settings:
//   - max_events: default 5
//   - days_ahead: default 7
type calendar struct {
	deps      Deps
	maxEvents int
	daysAhead int
}

func newCalendar(deps Deps) Widget {
	return &calendar{deps: deps, maxEvents: 5, daysAhead: 7}
}

func (c *calendar) Initialize(_ context.Context, settings Settings) error {
	c.maxEvents = intValue(settings, "max_events", 5)
	c.daysAhead = intValue(settings, "days_ahead", 7)
	if c.maxEvents < 1 {
		c.maxEvents = 1
	}
	if c.daysAhead < 0 {
		c.daysAhead = 0
	}
	return nil
}

type upcoming struct {
	title string
	when  string
	start time.Time
}

func (c *calendar) Update(_ context.Context, current Data) (Data, error) {
	now := c.deps.Now().In(c.deps.Location)
	horizon := now.AddDate(0, 0, c.daysAhead)

	var list []upcoming
	for _, ev := range eventMaps(current["events"]) {
		title := stringValue(ev, "title", "Untitled")

		if raw := stringValue(ev, "start", ""); raw != "" {
			start, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				continue
			}
			start = start.In(c.deps.Location)
			if start.Before(now) || start.After(horizon) {
				continue
			}
			list = append(list, upcoming{title: title, when: start.Format("Jan 02 at 3:04 PM"), start: start})
			continue
		}

		// Free-text entries have no ordering key and sort last.
		when := stringValue(ev, "date", "")
		if t := stringValue(ev, "time", ""); t != "" {
			if when != "" {
				when += " at "
			}
			when += t
		}
		list = append(list, upcoming{title: title, when: when, start: horizon.Add(time.Second)})
	}

	sort.SliceStable(list, func(i, j int) bool { return list[i].start.Before(list[j].start) })
	if len(list) > c.maxEvents {
		list = list[:c.maxEvents]
	}

	items := make([]any, len(list))
	for i, u := range list {
		items[i] = map[string]any{"title": u.title, "when": u.when}
	}

	out := current.Clone()
	out["upcoming"] = items
	out["count"] = len(items)
	return out, nil
}

func (c *calendar) Render(data Data, bounds image.Rectangle) (image.Image, error) {
	img := blank(bounds)
	y := drawLines(img, []string{"Upcoming Events"}, margin, 3, ink)

	items := eventMaps(data["upcoming"])
	if len(items) == 0 {
		drawLines(img, []string{"No upcoming events"}, y, 2, faint)
		return img, nil
	}

	for _, item := range items {
		next := drawLines(img, []string{stringValue(item, "title", "Untitled")}, y, 2, ink)
		if next == y {
			break
		}
		y = drawLines(img, []string{stringValue(item, "when", "")}, next, 1, faint)
	}
	return img, nil
}

// eventMaps accepts the shapes an event list takes after JSON decoding or
// when built in Go.
func eventMaps(v any) []map[string]any {
	switch list := v.(type) {
	case []map[string]any:
		return list
	case []any:
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			switch m := item.(type) {
			case map[string]any:
				out = append(out, m)
			case Data:
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
