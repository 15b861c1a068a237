package wifi

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // WPA2-PSK key derivation is defined over HMAC-SHA1
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Credentials are what the captive portal collects.
type Credentials struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// Open reports whether the network has no passphrase.
func (c Credentials) Open() bool {
	return c.Password == ""
}

// Validate checks the SSID length and passphrase shape.
func (c Credentials) Validate() error {
	if len(c.SSID) == 0 || len(c.SSID) > 32 {
		return ErrInvalidSSID
	}
	if c.Open() {
		return nil
	}
	if len(c.Password) < 8 || len(c.Password) > 63 {
		return ErrInvalidPassword
	}
	for i := 0; i < len(c.Password); i++ {
		if c.Password[i] < 0x20 || c.Password[i] > 0x7e {
			return ErrInvalidPassword
		}
	}
	return nil
}

// PSK derives the 256-bit pre-shared key from the passphrase and SSID,
// as wpa_passphrase does.
func (c Credentials) PSK() string {
	key := pbkdf2.Key([]byte(c.Password), []byte(c.SSID), 4096, 32, sha1.New)
	return hex.EncodeToString(key)
}

// supplicantConfig renders a wpa_supplicant.conf for one network.
func supplicantConfig(country string, c Credentials) []byte {
	var b bytes.Buffer
	if country != "" {
		fmt.Fprintf(&b, "country=%s\n", country)
	}
	b.WriteString("ctrl_interface=DIR=/var/run/wpa_supplicant GROUP=netdev\n")
	b.WriteString("update_config=1\n\n")
	b.WriteString("network={\n")
	fmt.Fprintf(&b, "\tssid=%s\n", ssidValue(c.SSID))
	if c.Open() {
		b.WriteString("\tkey_mgmt=NONE\n")
	} else {
		fmt.Fprintf(&b, "\tpsk=%s\n", c.PSK())
		b.WriteString("\tkey_mgmt=WPA-PSK\n")
	}
	b.WriteString("}\n")
	return b.Bytes()
}

// ssidValue quotes printable SSIDs and hex-encodes anything else, which
// wpa_supplicant accepts unquoted.
func ssidValue(ssid string) string {
	for i := 0; i < len(ssid); i++ {
		if ssid[i] < 0x20 || ssid[i] > 0x7e || ssid[i] == '"' || ssid[i] == '\\' {
			return hex.EncodeToString([]byte(ssid))
		}
	}
	return `"` + ssid + `"`
}

// backupFile copies path to path.backup with mode 0600. A missing source
// is not an error.
func backupFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return writeFileAtomic(path+".backup", data, 0o600)
}

// writeFileAtomic replaces path with data via a temporary file in the same
// directory, so readers see either the old or the new content.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	name := tmp.Name()
	defer os.Remove(name) //nolint:errcheck // no-op after a successful rename

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("setting mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(name, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// maskSSID is used in logs only when the SSID has control characters.
func maskSSID(ssid string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return '?'
		}
		return r
	}, ssid)
}
