package wifi

import (
	"bufio"
	"bytes"
	"strings"
)

// Network is one entry in a scan result.
type Network struct {
	SSID      string `json:"ssid"`
	Encrypted bool   `json:"encrypted"`
}

// parseScan reads `iwlist <iface> scan` output. Hidden networks are
// dropped and each SSID is reported once, in first-seen order.
func parseScan(out []byte) []Network {
	networks := []Network{}
	seen := make(map[string]bool)

	var cur *Network
	flush := func() {
		if cur != nil && cur.SSID != "" && !seen[cur.SSID] {
			seen[cur.SSID] = true
			networks = append(networks, *cur)
		}
		cur = nil
	}

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "Cell "):
			flush()
			cur = &Network{}
		case cur == nil:
		case strings.HasPrefix(line, "ESSID:"):
			cur.SSID = essid(strings.TrimPrefix(line, "ESSID:"))
		case strings.HasPrefix(line, "Encryption key:"):
			cur.Encrypted = strings.TrimSpace(strings.TrimPrefix(line, "Encryption key:")) == "on"
		}
	}
	flush()
	return networks
}

// essid unquotes an iwlist ESSID value. Names made only of escaped NULs
// belong to hidden networks and come back empty.
func essid(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		v = v[1 : len(v)-1]
	}
	if strings.ReplaceAll(v, `\x00`, "") == "" {
		return ""
	}
	return v
}
