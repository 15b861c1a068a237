package cloud

import (
	"encoding/base64"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadCPUTemp(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "temp")
	if err := os.WriteFile(good, []byte("48312\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got := readCPUTemp(good)
	if got == nil || *got != 48.3 {
		t.Errorf("readCPUTemp() = %v, want 48.3", got)
	}

	if readCPUTemp(filepath.Join(dir, "missing")) != nil {
		t.Error("readCPUTemp(missing) != nil")
	}

	bad := filepath.Join(dir, "bad")
	if err := os.WriteFile(bad, []byte("warm"), 0o600); err != nil {
		t.Fatal(err)
	}
	if readCPUTemp(bad) != nil {
		t.Error("readCPUTemp(garbage) != nil")
	}
}

func TestSystemInfo_Sample(t *testing.T) {
	temp := 51.2
	s := SystemInfo{CPUTemp: &temp, MemoryUsage: 30, Uptime: 99, Load1: 0.4}.Sample()
	if s.CPUTempC != 51.2 || s.MemoryUsedPct != 30 || s.UptimeSeconds != 99 || s.Load1 != 0.4 {
		t.Errorf("Sample() = %+v", s)
	}
}

func TestEncodePreview(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 800, 480))

	encoded, err := EncodePreview(img, 200)
	if err != nil {
		t.Fatalf("EncodePreview() error = %v", err)
	}
	data, ok := strings.CutPrefix(encoded, "data:image/png;base64,")
	if !ok {
		t.Fatalf("preview %q is not a PNG data URL", encoded[:20])
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		t.Fatalf("decoding base64: %v", err)
	}
	if !strings.HasPrefix(string(raw), "\x89PNG") {
		t.Error("payload is not a PNG")
	}

	if _, err := EncodePreview(nil, 200); err == nil {
		t.Error("EncodePreview(nil) error = nil")
	}
}
