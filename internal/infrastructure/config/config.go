package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Lumy Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
// It is loaded once at startup and treated as read-only afterwards.
type Config struct {
	Device       DeviceConfig       `yaml:"device"`
	WiFi         WiFiConfig         `yaml:"wifi"`
	Portal       PortalConfig       `yaml:"portal"`
	Registration RegistrationConfig `yaml:"registration"`
	Cloud        CloudConfig        `yaml:"cloud"`
	Display      DisplayConfig      `yaml:"display"`
	Widgets      WidgetsConfig      `yaml:"widgets"`
	API          APIConfig          `yaml:"api"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Database     DatabaseConfig     `yaml:"database"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// DeviceConfig contains device identity settings.
type DeviceConfig struct {
	// ID pins the device id. Normally empty: the id is derived and persisted on first boot.
	ID string `yaml:"id"`

	// IDFile is the primary location of the persisted device id.
	IDFile string `yaml:"id_file"`

	// IDFallbackFile is used when IDFile is not writable. A leading "~/" expands to $HOME.
	IDFallbackFile string `yaml:"id_fallback_file"`

	// Interfaces are tried in order when deriving the id from a hardware address.
	Interfaces []string `yaml:"interfaces"`

	// Timezone is used by time-based widgets. Empty means local time.
	Timezone string `yaml:"timezone"`
}

// WiFiConfig contains provisioning and access point settings.
type WiFiConfig struct {
	Interface         string   `yaml:"interface"`
	SSIDPrefix        string   `yaml:"ssid_prefix"`
	Country           string   `yaml:"country"`
	Channel           int      `yaml:"channel"`
	Address           string   `yaml:"address"`
	PrefixLength      int      `yaml:"prefix_length"`
	DHCPRange         string   `yaml:"dhcp_range"`
	WPASupplicantPath string   `yaml:"wpa_supplicant_path"`
	RuntimeDir        string   `yaml:"runtime_dir"`
	HostapdBinary     string   `yaml:"hostapd_binary"`
	DnsmasqBinary     string   `yaml:"dnsmasq_binary"`
	IPBinary          string   `yaml:"ip_binary"`
	ScanBinary        string   `yaml:"scan_binary"`
	RebootDelay       int      `yaml:"reboot_delay"` // seconds
	RebootCommand     []string `yaml:"reboot_command"`
}

// PortalConfig contains captive portal listener settings.
type PortalConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RegistrationConfig contains pairing settings.
type RegistrationConfig struct {
	PollInterval int    `yaml:"poll_interval"` // seconds
	Timeout      int    `yaml:"timeout"`       // seconds
	CodeExpiry   int    `yaml:"code_expiry"`   // seconds, sent to the cloud as expires_in
	PairingURL   string `yaml:"pairing_url"`
}

// Cloud authentication schemes.
const (
	AuthSchemeAPIKey = "api_key"
	AuthSchemeBearer = "bearer"
)

// Cloud registration status endpoint variants.
const (
	StatusEndpointRegistration = "registration"
	StatusEndpointStatus       = "status"
)

// CloudConfig contains backend connection settings.
type CloudConfig struct {
	URL               string        `yaml:"url"`
	APIKey            string        `yaml:"api_key"`
	AuthScheme        string        `yaml:"auth_scheme"`
	StatusEndpoint    string        `yaml:"status_endpoint"`
	HeartbeatInterval int           `yaml:"heartbeat_interval"` // seconds
	RequestTimeout    int           `yaml:"request_timeout"`    // seconds
	Preview           PreviewConfig `yaml:"preview"`
}

// PreviewConfig controls the display preview attached to heartbeats.
type PreviewConfig struct {
	Enabled  bool `yaml:"enabled"`
	MaxWidth int  `yaml:"max_width"`
}

// Display drivers.
const (
	DisplayDriverMock    = "mock"
	DisplayDriverFile    = "file"
	DisplayDriverCommand = "command"
)

// DisplayConfig contains e-paper panel settings.
type DisplayConfig struct {
	Driver            string   `yaml:"driver"`
	Model             string   `yaml:"model"`
	Width             int      `yaml:"width"`
	Height            int      `yaml:"height"`
	ColorMode         string   `yaml:"color_mode"`
	Rotation          int      `yaml:"rotation"`
	SleepAfterRefresh bool     `yaml:"sleep_after_refresh"`
	SettleDelayMS     int      `yaml:"settle_delay_ms"`
	OutputPath        string   `yaml:"output_path"`
	Command           string   `yaml:"command"`
	CommandArgs       []string `yaml:"command_args"`
	CommandTimeout    int      `yaml:"command_timeout"` // seconds
}

// WidgetsConfig contains scheduler settings and the widget instance list.
type WidgetsConfig struct {
	UpdateInterval int              `yaml:"update_interval"` // seconds
	CacheSizeMB    int              `yaml:"cache_size_mb"`
	Instances      []WidgetInstance `yaml:"instances"`
}

// WidgetInstance describes one configured widget.
// Type defaults to ID when empty; a missing enabled key means enabled.
type WidgetInstance struct {
	ID       string         `yaml:"id"`
	Type     string         `yaml:"type"`
	Enabled  *bool          `yaml:"enabled"`
	Settings map[string]any `yaml:"settings"`
}

// APIConfig contains local control API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket event stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT broker connection settings for remote commands.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
// An empty ClientID is replaced by the device id at connect time.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB telemetry settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// A missing file is not an error: a factory-fresh device boots on defaults and
// environment variables alone. Any other read or parse failure is returned.
//
// Environment variables follow the pattern: LUMY_SECTION_KEY
// For example: LUMY_DATABASE_PATH, LUMY_CLOUD_API_KEY. LUMY_API_URL and
// LUMY_API_KEY are accepted as aliases for the cloud settings.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case os.IsNotExist(err):
		// defaults + environment only
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with the values a stock device ships with.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			IDFile:         "/etc/lumy/device_id",
			IDFallbackFile: "~/.lumy_device_id",
			Interfaces:     []string{"wlan0", "eth0"},
		},
		WiFi: WiFiConfig{
			Interface:         "wlan0",
			SSIDPrefix:        "Lumy",
			Country:           "US",
			Channel:           6,
			Address:           "192.168.4.1",
			PrefixLength:      24,
			DHCPRange:         "192.168.4.10,192.168.4.100,255.255.255.0,12h",
			WPASupplicantPath: "/etc/wpa_supplicant/wpa_supplicant.conf",
			RuntimeDir:        "/run/lumy",
			HostapdBinary:     "/usr/sbin/hostapd",
			DnsmasqBinary:     "/usr/sbin/dnsmasq",
			IPBinary:          "/usr/sbin/ip",
			ScanBinary:        "/usr/sbin/iwlist",
			RebootDelay:       2,
			RebootCommand:     []string{"/usr/bin/systemctl", "reboot"},
		},
		Portal: PortalConfig{
			Host: "0.0.0.0",
			Port: 80,
		},
		Registration: RegistrationConfig{
			PollInterval: 5,
			Timeout:      3600,
			CodeExpiry:   3600,
			PairingURL:   "lumy.app/pair",
		},
		Cloud: CloudConfig{
			AuthScheme:        AuthSchemeAPIKey,
			StatusEndpoint:    StatusEndpointRegistration,
			HeartbeatInterval: 60,
			RequestTimeout:    10,
			Preview: PreviewConfig{
				Enabled:  true,
				MaxWidth: 400,
			},
		},
		Display: DisplayConfig{
			Driver:            DisplayDriverMock,
			Model:             "epd_7in3e",
			Width:             800,
			Height:            480,
			ColorMode:         "rgb",
			SleepAfterRefresh: true,
			SettleDelayMS:     1000,
			OutputPath:        "/var/lib/lumy/display.png",
			CommandTimeout:    60,
		},
		Widgets: WidgetsConfig{
			UpdateInterval: 60,
			CacheSizeMB:    1,
			Instances: []WidgetInstance{
				{ID: "clock", Type: "clock"},
				{ID: "weather", Type: "weather"},
				{ID: "calendar", Type: "calendar"},
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8000,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS:         1,
			TopicPrefix: "lumy",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     50,
			FlushInterval: 10,
		},
		Database: DatabaseConfig{
			Path:        "/var/lib/lumy/lumy.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LUMY_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("LUMY_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	// Cloud (LUMY_API_URL / LUMY_API_KEY are the names older images were provisioned with)
	if v := firstEnv("LUMY_CLOUD_URL", "LUMY_API_URL"); v != "" {
		cfg.Cloud.URL = v
	}
	if v := firstEnv("LUMY_CLOUD_API_KEY", "LUMY_API_KEY"); v != "" {
		cfg.Cloud.APIKey = v
	}
	if v := os.Getenv("LUMY_CLOUD_AUTH_SCHEME"); v != "" {
		cfg.Cloud.AuthScheme = v
	}
	if v := os.Getenv("LUMY_CLOUD_STATUS_ENDPOINT"); v != "" {
		cfg.Cloud.StatusEndpoint = v
	}

	// Display
	if v := os.Getenv("LUMY_DISPLAY_DRIVER"); v != "" {
		cfg.Display.Driver = v
	}

	// Widgets
	if v := os.Getenv("LUMY_WEATHER_API_KEY"); v != "" {
		for i := range cfg.Widgets.Instances {
			inst := &cfg.Widgets.Instances[i]
			if inst.widgetType() != "weather" {
				continue
			}
			if inst.Settings == nil {
				inst.Settings = make(map[string]any)
			}
			if _, ok := inst.Settings["api_key"]; !ok {
				inst.Settings["api_key"] = v
			}
		}
	}

	// API
	if v := os.Getenv("LUMY_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("LUMY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LUMY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LUMY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("LUMY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Database
	if v := os.Getenv("LUMY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Logging
	if v := os.Getenv("LUMY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// firstEnv returns the first non-empty environment variable of keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// normalise fills derived values after all sources are merged.
func (c *Config) normalise() {
	c.Cloud.URL = strings.TrimRight(c.Cloud.URL, "/")
	c.Cloud.AuthScheme = strings.ToLower(c.Cloud.AuthScheme)
	c.Cloud.StatusEndpoint = strings.ToLower(c.Cloud.StatusEndpoint)
	c.Display.Driver = strings.ToLower(c.Display.Driver)
	c.Display.ColorMode = strings.ToLower(c.Display.ColorMode)

	for i := range c.Widgets.Instances {
		if c.Widgets.Instances[i].Type == "" {
			c.Widgets.Instances[i].Type = c.Widgets.Instances[i].ID
		}
	}

	c.Device.IDFallbackFile = ExpandHome(c.Device.IDFallbackFile)
}

func (w WidgetInstance) widgetType() string {
	if w.Type != "" {
		return w.Type
	}
	return w.ID
}

// ExpandHome replaces a leading "~/" with the current user's home directory.
// The path is returned unchanged if the home directory cannot be determined.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// validColorModes lists the colour modes the display package can normalise to.
var validColorModes = map[string]bool{
	"rgb":      true,
	"gray":     true,
	"mono":     true,
	"palette7": true,
}

// Validate checks the configuration for errors.
//
// All problems are collected so a misconfigured device reports everything
// at once instead of one error per boot.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Device
	if c.Device.IDFile == "" {
		errs = append(errs, "device.id_file is required")
	}

	// WiFi
	if c.WiFi.Interface == "" {
		errs = append(errs, "wifi.interface is required")
	}
	if c.WiFi.RebootDelay < 1 {
		errs = append(errs, "wifi.reboot_delay must be at least 1 second")
	}
	if c.WiFi.WPASupplicantPath == "" {
		errs = append(errs, "wifi.wpa_supplicant_path is required")
	}
	if len(c.WiFi.RebootCommand) == 0 {
		errs = append(errs, "wifi.reboot_command is required")
	}

	// Portal
	if c.Portal.Port < 1 || c.Portal.Port > 65535 {
		errs = append(errs, "portal.port must be between 1 and 65535")
	}

	// Registration
	if c.Registration.PollInterval < 1 {
		errs = append(errs, "registration.poll_interval must be at least 1 second")
	}
	if c.Registration.Timeout < c.Registration.PollInterval {
		errs = append(errs, "registration.timeout must not be shorter than registration.poll_interval")
	}
	if c.Registration.CodeExpiry < 1 {
		errs = append(errs, "registration.code_expiry must be positive")
	}

	// Cloud: both knobs are deployment choices and must match the backend contract.
	switch c.Cloud.AuthScheme {
	case AuthSchemeAPIKey, AuthSchemeBearer:
	default:
		errs = append(errs, fmt.Sprintf("cloud.auth_scheme must be %q or %q", AuthSchemeAPIKey, AuthSchemeBearer))
	}
	switch c.Cloud.StatusEndpoint {
	case StatusEndpointRegistration, StatusEndpointStatus:
	default:
		errs = append(errs, fmt.Sprintf("cloud.status_endpoint must be %q or %q", StatusEndpointRegistration, StatusEndpointStatus))
	}
	if c.Cloud.URL != "" && !strings.HasPrefix(c.Cloud.URL, "http://") && !strings.HasPrefix(c.Cloud.URL, "https://") {
		errs = append(errs, "cloud.url must be an http or https URL")
	}
	if c.Cloud.HeartbeatInterval < 1 {
		errs = append(errs, "cloud.heartbeat_interval must be at least 1 second")
	}
	if c.Cloud.RequestTimeout < 1 {
		errs = append(errs, "cloud.request_timeout must be at least 1 second")
	}

	// Display
	switch c.Display.Driver {
	case DisplayDriverMock, DisplayDriverFile:
	case DisplayDriverCommand:
		if c.Display.Command == "" {
			errs = append(errs, "display.command is required for the command driver")
		}
	default:
		errs = append(errs, "display.driver must be mock, file, or command")
	}
	if c.Display.Width < 1 || c.Display.Height < 1 {
		errs = append(errs, "display.width and display.height must be positive")
	}
	if !validColorModes[c.Display.ColorMode] {
		errs = append(errs, "display.color_mode must be rgb, gray, mono, or palette7")
	}
	switch c.Display.Rotation {
	case 0, 90, 180, 270:
	default:
		errs = append(errs, "display.rotation must be 0, 90, 180, or 270")
	}

	// Widgets
	if c.Widgets.UpdateInterval < 1 {
		errs = append(errs, "widgets.update_interval must be at least 1 second")
	}
	seen := make(map[string]bool, len(c.Widgets.Instances))
	for i, inst := range c.Widgets.Instances {
		if inst.ID == "" {
			errs = append(errs, fmt.Sprintf("widgets.instances[%d].id is required", i))
			continue
		}
		if seen[inst.ID] {
			errs = append(errs, fmt.Sprintf("widgets.instances: duplicate id %q", inst.ID))
		}
		seen[inst.ID] = true
	}

	// API
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	// InfluxDB
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	// Database
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// CloudEnabled reports whether enough cloud settings are present to talk to the backend.
func (c *Config) CloudEnabled() bool {
	return c.Cloud.URL != "" && c.Cloud.APIKey != ""
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetRebootDelay returns the delay between accepting WiFi credentials and rebooting.
func (c *Config) GetRebootDelay() time.Duration {
	return time.Duration(c.WiFi.RebootDelay) * time.Second
}

// GetPollInterval returns the registration poll interval.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Registration.PollInterval) * time.Second
}

// GetRegistrationTimeout returns how long the device waits to be claimed.
func (c *Config) GetRegistrationTimeout() time.Duration {
	return time.Duration(c.Registration.Timeout) * time.Second
}

// GetHeartbeatInterval returns the cloud sync interval.
func (c *Config) GetHeartbeatInterval() time.Duration {
	return time.Duration(c.Cloud.HeartbeatInterval) * time.Second
}

// GetRequestTimeout returns the per-request cloud timeout.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Cloud.RequestTimeout) * time.Second
}

// GetUpdateInterval returns the widget scheduler interval.
func (c *Config) GetUpdateInterval() time.Duration {
	return time.Duration(c.Widgets.UpdateInterval) * time.Second
}

// GetSettleDelay returns the pause between a panel refresh and putting it to sleep.
func (c *Config) GetSettleDelay() time.Duration {
	return time.Duration(c.Display.SettleDelayMS) * time.Millisecond
}
