package cloud

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DeviceConfig is the configuration document the backend serves for a
// device. Fields the device does not act on (timestamps, echoes of the
// device id) are dropped on decode and so never affect the content hash.
type DeviceConfig struct {
	Display DisplaySettings `json:"display"`
	Widgets []WidgetConfig  `json:"widgets"`
}

// DisplaySettings is the display section of DeviceConfig.
type DisplaySettings struct {
	// RefreshInterval is the widget update interval in seconds.
	RefreshInterval int `json:"refresh_interval,omitempty"`

	// HeartbeatInterval overrides the sync interval in seconds.
	HeartbeatInterval int `json:"heartbeat_interval,omitempty"`

	// Preview toggles the panel preview in heartbeats.
	Preview *bool `json:"preview,omitempty"`
}

// WidgetConfig is one entry of DeviceConfig.Widgets.
type WidgetConfig struct {
	ID      string         `json:"id"`
	Type    string         `json:"type,omitempty"`
	Enabled *bool          `json:"enabled,omitempty"`
	Config  map[string]any `json:"config,omitempty"`
}

// ParseConfig decodes a raw configuration document and returns it with its
// content hash: the hex SHA-256 of its canonical JSON encoding. Two documents
// that differ only in key order, whitespace or ignored fields hash equal.
func ParseConfig(raw []byte) (*DeviceConfig, string, error) {
	cfg, hash, _, err := parseConfig(raw)
	return cfg, hash, err
}

// parseConfig is ParseConfig that also returns the canonical encoding.
func parseConfig(raw []byte) (*DeviceConfig, string, []byte, error) {
	var cfg DeviceConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, "", nil, fmt.Errorf("%w: config: %w", ErrMalformedResponse, err)
	}
	canonical, hash, err := cfg.canonical()
	if err != nil {
		return nil, "", nil, err
	}
	return &cfg, hash, canonical, nil
}

// Hash returns the content hash of cfg.
func (cfg *DeviceConfig) Hash() (string, error) {
	_, hash, err := cfg.canonical()
	return hash, err
}

func (cfg *DeviceConfig) canonical() ([]byte, string, error) {
	// encoding/json writes struct fields in declaration order and map keys
	// sorted, which is all the canonicalisation needed here.
	canonical, err := json.Marshal(cfg)
	if err != nil {
		return nil, "", fmt.Errorf("encoding config: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return canonical, hex.EncodeToString(sum[:]), nil
}
