package widget

import (
	"context"
	"image"
	"strings"
)

// message shows free text pushed from the phone app or the cloud.
//
// Data in: "text" and optionally "title".
// Settings:
//   - text: initial text, default empty
//   - title: heading, default none
type message struct {
	deps     Deps
	defaults Data
}

func newMessage(deps Deps) Widget {
	return &message{deps: deps, defaults: Data{}}
}

func (m *message) Initialize(_ context.Context, settings Settings) error {
	m.defaults = Data{
		"text":  stringValue(settings, "text", ""),
		"title": stringValue(settings, "title", ""),
	}
	return nil
}

func (m *message) Update(_ context.Context, current Data) (Data, error) {
	out := m.defaults.Merge(current)
	return out, nil
}

// Trigger replaces the message outright and stamps it.
func (m *message) Trigger(_ context.Context, current, payload Data) (Data, error) {
	out := current.Clone()
	out["text"] = stringValue(payload, "text", "")
	if title, ok := payload["title"]; ok {
		out["title"] = title
	}
	out["posted_at"] = m.deps.Now().UTC().Format("2006-01-02T15:04:05Z")
	return out, nil
}

func (m *message) Render(data Data, bounds image.Rectangle) (image.Image, error) {
	img := blank(bounds)
	y := margin
	if title := stringValue(data, "title", ""); title != "" {
		y = drawLines(img, []string{title}, y, 3, ink)
	}
	text := stringValue(data, "text", "")
	if text == "" {
		return img, nil
	}
	drawLines(img, wrap(text, img.Bounds().Dx()-2*margin), y, 2, ink)
	return img, nil
}

// wrap breaks text into lines of at most width pixels at scale 2.
func wrap(text string, width int) []string {
	const glyph = 7 * 2
	perLine := width / glyph
	if perLine < 1 {
		perLine = 1
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		var line string
		for _, word := range strings.Fields(para) {
			switch {
			case line == "":
				line = word
			case len(line)+1+len(word) <= perLine:
				line += " " + word
			default:
				lines = append(lines, line)
				line = word
			}
		}
		lines = append(lines, line)
	}
	return lines
}
