package wifi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nerrad567/lumy-core/internal/infrastructure/config"
	"github.com/nerrad567/lumy-core/internal/process"
)

// Logger defines the logging interface for the wifi package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// State is the provisioning state.
type State string

// Provisioning states.
const (
	Disconnected        State = "disconnected"
	Connected           State = "connected"
	APMode              State = "ap_mode"
	CredentialsReceived State = "credentials_received"
	RebootPending       State = "reboot_pending"
)

// Portal serves the setup page until ctx ends.
type Portal interface {
	Serve(ctx context.Context) error
}

// Provisioner owns the wireless interface during setup.
//
// Thread Safety:
//   - All methods are safe for concurrent use. The captive portal calls
//     SubmitCredentials and ScanNetworks from its own goroutines.
type Provisioner struct {
	cfg     config.WiFiConfig
	runner  process.Runner
	inspect Inspector
	portal  Portal
	logger  Logger

	newDaemon func(process.Config) daemon
	schedule  func(d time.Duration, fn func())
	syncDisks func()

	mu       sync.Mutex
	state    State
	ssid     string
	daemons  []daemon
	rebooted chan error
}

// NewProvisioner creates a provisioner for the interface in cfg.
func NewProvisioner(cfg config.WiFiConfig) *Provisioner {
	p := &Provisioner{
		cfg:       cfg,
		runner:    process.ExecRunner{Timeout: 15 * time.Second},
		inspect:   netInspector{},
		logger:    noopLogger{},
		schedule:  func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
		syncDisks: unix.Sync,
		state:     Disconnected,
		rebooted:  make(chan error, 1),
	}
	p.newDaemon = func(c process.Config) daemon {
		m := process.NewManager(c)
		m.SetLogger(p.logger)
		return m
	}
	return p
}

// SetLogger sets the logger.
func (p *Provisioner) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	p.logger = logger
}

// SetRunner replaces the command runner.
func (p *Provisioner) SetRunner(r process.Runner) {
	p.runner = r
}

// SetInspector replaces the interface inspector.
func (p *Provisioner) SetInspector(i Inspector) {
	p.inspect = i
}

// SetPortal sets the captive portal served by Ensure.
func (p *Provisioner) SetPortal(portal Portal) {
	p.portal = portal
}

// State returns the provisioning state.
func (p *Provisioner) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SSID returns the access point name, or "" outside AP mode.
func (p *Provisioner) SSID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ssid
}

// IsConnected reports whether the wireless interface holds an IPv4
// address other than the access point's own.
func (p *Provisioner) IsConnected(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	ips, err := p.inspect.IPv4Addrs(p.cfg.Interface)
	if err != nil {
		p.logger.Warn("reading interface addresses failed", "interface", p.cfg.Interface, "error", err)
		return false
	}
	for _, ip := range ips {
		if ip.String() != p.cfg.Address {
			p.logger.Debug("interface has an address", "interface", p.cfg.Interface, "ip", ip.String())
			return true
		}
	}
	return false
}

// ScanNetworks lists nearby networks. Failures yield an empty list.
func (p *Provisioner) ScanNetworks(ctx context.Context) []Network {
	out, err := p.runner.Run(ctx, p.cfg.ScanBinary, p.cfg.Interface, "scan")
	if err != nil {
		p.logger.Warn("network scan failed", "error", err)
		return []Network{}
	}
	networks := parseScan(out)
	p.logger.Debug("network scan complete", "networks", len(networks))
	return networks
}

// ApplyCredentials validates c and rewrites the wpa_supplicant
// configuration, keeping a backup of the previous file. It does not reboot.
func (p *Provisioner) ApplyCredentials(_ context.Context, c Credentials) error {
	if err := c.Validate(); err != nil {
		return err
	}

	path := p.cfg.WPASupplicantPath
	if err := backupFile(path); err != nil {
		p.logger.Warn("backing up wpa_supplicant config failed", "error", err)
	}
	if err := writeFileAtomic(path, supplicantConfig(p.cfg.Country, c), 0o600); err != nil {
		return fmt.Errorf("writing wpa_supplicant config: %w", err)
	}

	p.logger.Info("wifi credentials saved", "ssid", maskSSID(c.SSID), "open", c.Open())
	return nil
}

// SubmitCredentials is the captive portal's entry point. Valid credentials
// are applied and a reboot is scheduled; anything else returns the
// provisioner to AP mode with the same SSID. Only one submission is
// accepted at a time, and only while the device is not connected.
func (p *Provisioner) SubmitCredentials(ctx context.Context, c Credentials) error {
	p.mu.Lock()
	switch p.state {
	case APMode, Disconnected:
	case RebootPending:
		p.mu.Unlock()
		return ErrRebootPending
	default:
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotAccepting, state)
	}
	p.state = CredentialsReceived
	p.mu.Unlock()

	if err := p.ApplyCredentials(ctx, c); err != nil {
		p.setState(APMode)
		p.logger.Warn("wifi credentials rejected", "ssid", maskSSID(c.SSID), "error", err)
		return err
	}

	delay := max(time.Duration(p.cfg.RebootDelay)*time.Second, time.Second)
	p.setState(RebootPending)
	p.logger.Info("rebooting to join network", "delay", delay.String())
	p.schedule(delay, p.reboot)
	return nil
}

func (p *Provisioner) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// reboot flushes filesystems and runs the reboot command. The outcome is
// reported to Ensure.
func (p *Provisioner) reboot() {
	p.syncDisks()

	var err error
	if len(p.cfg.RebootCommand) == 0 {
		err = errors.New("no reboot command configured")
	} else {
		_, err = p.runner.Run(context.Background(), p.cfg.RebootCommand[0], p.cfg.RebootCommand[1:]...)
	}
	if err != nil {
		p.logger.Error("reboot failed", "error", err)
		err = fmt.Errorf("rebooting: %w", err)
	}

	select {
	case p.rebooted <- err:
	default:
	}
}

// Ensure is the boot entry point.
//
// A connected device returns at once. Otherwise the access point comes up,
// the captive portal is served, and Ensure blocks until ctx ends or the
// reboot after a successful submission has been issued.
//
// Returns:
//   - bool: true only if the device was already connected
//   - error: Access point, portal or reboot failures
func (p *Provisioner) Ensure(ctx context.Context) (bool, error) {
	if p.IsConnected(ctx) {
		p.setState(Connected)
		p.logger.Info("wifi connected", "interface", p.cfg.Interface)
		return true, nil
	}

	ssid, err := p.StartAccessPoint(ctx)
	if err != nil {
		return false, err
	}
	defer p.StopAccessPoint(context.WithoutCancel(ctx))

	p.logger.Info("waiting for wifi setup", "ssid", ssid)

	portalCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	portalErr := make(chan error, 1)
	if p.portal != nil {
		go func() { portalErr <- p.portal.Serve(portalCtx) }()
	}

	for {
		select {
		case <-ctx.Done():
			return false, nil
		case err := <-p.rebooted:
			return false, err
		case err := <-portalErr:
			if err != nil {
				return false, fmt.Errorf("captive portal: %w", err)
			}
			portalErr = nil
		}
	}
}
