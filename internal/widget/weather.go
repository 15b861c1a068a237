package widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultWeatherEndpoint = "https://api.openweathermap.org/data/2.5/weather"
	defaultWeatherTTL      = 600 // seconds
	maxWeatherBody         = 64 * 1024
)

// weather shows current conditions from OpenWeatherMap.
//
// Settings:
//   - api_key: without one the widget shows sample data
//   - location: city query, default "New York"
//   - units: "metric" (default) or "imperial"
//   - cache_ttl: seconds to reuse a response, default 600
//   - endpoint: API URL override
type weather struct {
	deps     Deps
	apiKey   string
	location string
	units    string
	ttl      int
	endpoint string
}

func newWeather(deps Deps) Widget {
	return &weather{deps: deps}
}

func (w *weather) Initialize(_ context.Context, settings Settings) error {
	w.apiKey = stringValue(settings, "api_key", "")
	w.location = stringValue(settings, "location", "New York")
	w.units = stringValue(settings, "units", "metric")
	w.ttl = intValue(settings, "cache_ttl", defaultWeatherTTL)
	w.endpoint = stringValue(settings, "endpoint", defaultWeatherEndpoint)

	if w.units != "metric" && w.units != "imperial" {
		return fmt.Errorf("units %q: must be metric or imperial", w.units)
	}
	if w.ttl < 0 {
		w.ttl = 0
	}
	return nil
}

// owmResponse is the subset of the current-weather response we use.
type owmResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
}

func (w *weather) Update(ctx context.Context, _ Data) (Data, error) {
	if w.apiKey == "" {
		return w.sample(), nil
	}

	body, err := w.fetch(ctx)
	if err != nil {
		return nil, err
	}

	var resp owmResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding weather response: %w", err)
	}

	condition := "Unknown"
	if len(resp.Weather) > 0 && resp.Weather[0].Main != "" {
		condition = resp.Weather[0].Main
	}
	location := resp.Name
	if location == "" {
		location = w.location
	}

	return Data{
		"temperature": fmt.Sprintf("%d°%s", int(math.Round(resp.Main.Temp)), w.unitSymbol()),
		"condition":   condition,
		"humidity":    fmt.Sprintf("%d%%", int(math.Round(resp.Main.Humidity))),
		"location":    location,
	}, nil
}

// fetch returns the raw response, served from the cache while fresh.
func (w *weather) fetch(ctx context.Context) ([]byte, error) {
	key := []byte("weather:" + strings.ToLower(w.location) + ":" + w.units)
	if body, err := w.deps.Cache.Get(key); err == nil {
		return body, nil
	}

	q := url.Values{}
	q.Set("q", w.location)
	q.Set("units", w.units)
	q.Set("appid", w.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building weather request: %w", err)
	}

	resp, err := w.deps.HTTPClient.Do(req)
	if err != nil {
		// The URL carries the key; report the host only.
		return nil, fmt.Errorf("weather request failed: %w", stripURL(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWeatherBody))
	if err != nil {
		return nil, fmt.Errorf("reading weather response: %w", err)
	}

	if w.ttl > 0 {
		_ = w.deps.Cache.Set(key, body, w.ttl) //nolint:errcheck // an uncached response is still valid
	}
	return body, nil
}

func (w *weather) sample() Data {
	temp := "22°C"
	if w.units == "imperial" {
		temp = "72°F"
	}
	return Data{
		"temperature": temp,
		"condition":   "Sunny",
		"humidity":    "45%",
		"location":    w.location,
		"sample":      true,
	}
}

func (w *weather) unitSymbol() string {
	if w.units == "imperial" {
		return "F"
	}
	return "C"
}

func (w *weather) Render(data Data, bounds image.Rectangle) (image.Image, error) {
	img := blank(bounds)

	y := drawLines(img, []string{stringValue(data, "location", w.location)}, margin, 2, faint)
	// basicfont has no degree sign.
	temp := strings.ReplaceAll(stringValue(data, "temperature", "--"), "°", " ")
	y = drawHero(img, temp, y, 0.45)
	drawLines(img, []string{
		stringValue(data, "condition", "Unknown"),
		"Humidity " + stringValue(data, "humidity", "--"),
	}, y, 2, ink)
	return img, nil
}

// stripURL unwraps a *url.Error so the request URL is not repeated.
func stripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
