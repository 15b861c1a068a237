package cloud

import (
	"time"

	"github.com/nerrad567/lumy-core/internal/infrastructure/config"
)

// minHeartbeatInterval stops a bad cloud value from flooding the backend.
const minHeartbeatInterval = 10 * time.Second

// Settings are the runtime values the backend may change. They start from
// the immutable file configuration and are owned by the SyncAgent.
type Settings struct {
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	RefreshInterval   time.Duration `json:"refresh_interval"`
	PreviewEnabled    bool          `json:"preview_enabled"`
	PreviewMaxWidth   int           `json:"preview_max_width"`
}

// SettingsFromConfig returns the boot-time settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		HeartbeatInterval: cfg.GetHeartbeatInterval(),
		RefreshInterval:   cfg.GetUpdateInterval(),
		PreviewEnabled:    cfg.Cloud.Preview.Enabled,
		PreviewMaxWidth:   cfg.Cloud.Preview.MaxWidth,
	}
}

// apply folds the display section of a cloud document into s.
func (s Settings) apply(d DisplaySettings) Settings {
	if d.RefreshInterval > 0 {
		s.RefreshInterval = time.Duration(d.RefreshInterval) * time.Second
	}
	if d.HeartbeatInterval > 0 {
		s.HeartbeatInterval = max(time.Duration(d.HeartbeatInterval)*time.Second, minHeartbeatInterval)
	}
	if d.Preview != nil {
		s.PreviewEnabled = *d.Preview
	}
	return s
}
