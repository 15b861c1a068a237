package wifi

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nerrad567/lumy-core/internal/process"
)

// Inspector reads interface state from the kernel.
type Inspector interface {
	IPv4Addrs(iface string) ([]net.IP, error)
	HardwareAddr(iface string) (net.HardwareAddr, error)
}

type netInspector struct{}

func (netInspector) IPv4Addrs(iface string) ([]net.IP, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, err
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, a := range addrs {
		if n, ok := a.(*net.IPNet); ok && n.IP.To4() != nil {
			ips = append(ips, n.IP)
		}
	}
	return ips, nil
}

func (netInspector) HardwareAddr(iface string) (net.HardwareAddr, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, err
	}
	return ifi.HardwareAddr, nil
}

// daemon is the part of process.Manager the access point uses.
type daemon interface {
	Start(ctx context.Context) error
	Stop() error
}

// apSSID returns "<prefix>-<last six hex digits of mac>", upper case.
// Without a usable address the suffix is random.
func apSSID(prefix string, mac net.HardwareAddr) string {
	digits := strings.ToUpper(strings.ReplaceAll(mac.String(), ":", ""))
	if len(digits) < 6 {
		digits = strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}
	return prefix + "-" + digits[len(digits)-6:]
}

func (p *Provisioner) hostapdConfig(ssid string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "interface=%s\n", p.cfg.Interface)
	b.WriteString("driver=nl80211\n")
	fmt.Fprintf(&b, "ssid=%s\n", ssid)
	b.WriteString("hw_mode=g\n")
	fmt.Fprintf(&b, "channel=%d\n", p.cfg.Channel)
	if p.cfg.Country != "" {
		fmt.Fprintf(&b, "country_code=%s\n", p.cfg.Country)
	}
	b.WriteString("auth_algs=1\n")
	b.WriteString("ignore_broadcast_ssid=0\n")
	b.WriteString("wmm_enabled=0\n")
	return b.Bytes()
}

// dnsmasqConfig hands out leases on the AP subnet and answers every DNS
// query with the portal address so clients land on the setup page.
func (p *Provisioner) dnsmasqConfig() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "interface=%s\n", p.cfg.Interface)
	b.WriteString("bind-interfaces\n")
	b.WriteString("no-resolv\n")
	fmt.Fprintf(&b, "dhcp-range=%s\n", p.cfg.DHCPRange)
	fmt.Fprintf(&b, "dhcp-option=option:router,%s\n", p.cfg.Address)
	fmt.Fprintf(&b, "address=/#/%s\n", p.cfg.Address)
	return b.Bytes()
}

// StartAccessPoint brings up the setup network.
//
// The interface gets the portal address, then hostapd and dnsmasq start as
// supervised daemons with configs written to the runtime directory. Any
// failure undoes the steps already taken.
//
// Returns:
//   - string: The SSID, e.g. "Lumy-DDEEFF"
//   - error: Wraps ErrAccessPoint
func (p *Provisioner) StartAccessPoint(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == APMode {
		return p.ssid, nil
	}

	mac, err := p.inspect.HardwareAddr(p.cfg.Interface)
	if err != nil {
		p.logger.Warn("reading hardware address failed", "interface", p.cfg.Interface, "error", err)
	}
	ssid := apSSID(p.cfg.SSIDPrefix, mac)
	p.logger.Info("starting access point", "ssid", ssid, "interface", p.cfg.Interface)

	hostapdConf := filepath.Join(p.cfg.RuntimeDir, "hostapd.conf")
	dnsmasqConf := filepath.Join(p.cfg.RuntimeDir, "dnsmasq.conf")
	if err := writeFileAtomic(hostapdConf, p.hostapdConfig(ssid), 0o644); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAccessPoint, err)
	}
	if err := writeFileAtomic(dnsmasqConf, p.dnsmasqConfig(), 0o644); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAccessPoint, err)
	}

	cidr := p.cfg.Address + "/" + strconv.Itoa(p.cfg.PrefixLength)
	steps := [][]string{
		{"addr", "flush", "dev", p.cfg.Interface},
		{"addr", "add", cidr, "dev", p.cfg.Interface},
		{"link", "set", p.cfg.Interface, "up"},
	}
	for _, args := range steps {
		if _, err := p.runner.Run(ctx, p.cfg.IPBinary, args...); err != nil {
			return "", fmt.Errorf("%w: %w", ErrAccessPoint, err)
		}
	}

	hostapd := p.newDaemon(process.Config{
		Name:             "hostapd",
		Binary:           p.cfg.HostapdBinary,
		Args:             []string{hostapdConf},
		RestartOnFailure: true,
	})
	dnsmasq := p.newDaemon(process.Config{
		Name:             "dnsmasq",
		Binary:           p.cfg.DnsmasqBinary,
		Args:             []string{"--keep-in-foreground", "--conf-file=" + dnsmasqConf},
		RestartOnFailure: true,
	})

	// The daemons outlive this call, so they must not inherit a
	// request-scoped cancellation.
	dctx := context.WithoutCancel(ctx)
	if err := hostapd.Start(dctx); err != nil {
		p.flushAddress(ctx)
		return "", fmt.Errorf("%w: %w", ErrAccessPoint, err)
	}
	if err := dnsmasq.Start(dctx); err != nil {
		hostapd.Stop() //nolint:errcheck // already failing
		p.flushAddress(ctx)
		return "", fmt.Errorf("%w: %w", ErrAccessPoint, err)
	}

	p.daemons = []daemon{dnsmasq, hostapd}
	p.ssid = ssid
	p.state = APMode
	p.logger.Info("access point up", "ssid", ssid, "address", p.cfg.Address)
	return ssid, nil
}

// StopAccessPoint stops the daemons and removes the portal address.
func (p *Provisioner) StopAccessPoint(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.daemons) == 0 {
		return
	}
	for _, d := range p.daemons {
		if err := d.Stop(); err != nil {
			p.logger.Warn("stopping access point daemon failed", "error", err)
		}
	}
	p.daemons = nil
	p.flushAddress(ctx)
	if p.state == APMode {
		p.state = Disconnected
	}
	p.logger.Info("access point stopped")
}

func (p *Provisioner) flushAddress(ctx context.Context) {
	if _, err := p.runner.Run(ctx, p.cfg.IPBinary, "addr", "flush", "dev", p.cfg.Interface); err != nil {
		p.logger.Warn("removing portal address failed", "error", err)
	}
}
