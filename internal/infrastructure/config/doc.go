// Package config handles loading and validating Lumy Core configuration.
//
// This package manages:
//   - Loading configuration from a YAML file (optional on a fresh device)
//   - Overriding with LUMY_* environment variables
//   - Validation of every section, reporting all problems at once
//   - Default values matching a stock 7.3" panel on a Raspberry Pi
//
// The loaded Config is immutable: it is passed by reference into component
// constructors. Settings that change at runtime (heartbeat cadence, refresh
// interval pushed from the cloud) live in cloud.Settings instead.
//
// Security Considerations:
//   - The cloud API key and MQTT password should come from the environment
//   - The config file should have restricted permissions (0600)
//   - WiFi credentials are never stored here; they go straight to wpa_supplicant
//
// Usage:
//
//	cfg, err := config.Load("/etc/lumy/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Display.Width, cfg.Display.Height)
package config
