package registration

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/lumy-core/internal/infrastructure/config"
)

const (
	idPrefix   = "lumy-"
	macSuffix  = 6
	idDirPerm  = 0755
	idFilePerm = 0644
)

// IdentityStore derives and persists the device id.
//
// Thread Safety:
//   - Safe for concurrent use; the id is computed once per process.
type IdentityStore struct {
	pinned     string
	primary    string
	fallback   string
	interfaces []string
	logger     Logger

	// hardwareAddr is replaceable in tests.
	hardwareAddr func(name string) (net.HardwareAddr, error)
	random       func() string

	once sync.Once
	id   string
	err  error
}

// NewIdentityStore creates a store from the device configuration.
func NewIdentityStore(cfg config.DeviceConfig) *IdentityStore {
	return &IdentityStore{
		pinned:       cfg.ID,
		primary:      cfg.IDFile,
		fallback:     config.ExpandHome(cfg.IDFallbackFile),
		interfaces:   cfg.Interfaces,
		logger:       noopLogger{},
		hardwareAddr: interfaceHardwareAddr,
		random:       randomHex,
	}
}

// SetLogger sets the logger.
func (s *IdentityStore) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// GetOrCreate returns the device id, creating and persisting it on first use.
//
// Lookup order: the pinned id from configuration, the primary id file, the
// fallback id file. Otherwise a new id is derived from the first configured
// interface with a hardware address ("lumy-<6 hex of MAC>-<4 random hex>"),
// or is fully random ("lumy-<12 random hex>"), and written to the primary
// file, or to the fallback file when the primary is not writable.
//
// Returns:
//   - string: The device id; always usable
//   - error: ErrNotPersisted when the new id could not be saved anywhere
func (s *IdentityStore) GetOrCreate() (string, error) {
	s.once.Do(func() {
		s.id, s.err = s.resolve()
	})
	return s.id, s.err
}

func (s *IdentityStore) resolve() (string, error) {
	if s.pinned != "" {
		return s.pinned, nil
	}

	for _, path := range []string{s.primary, s.fallback} {
		if id := readID(path); id != "" {
			s.logger.Debug("device id loaded", "path", path)
			return id, nil
		}
	}

	id := s.derive()
	path, err := s.persist(id)
	if err != nil {
		s.logger.Warn("device id could not be saved; it will change on reboot", "device_id", id, "error", err)
		return id, fmt.Errorf("%w: %w", ErrNotPersisted, err)
	}
	s.logger.Info("device id created", "device_id", id, "path", path)
	return id, nil
}

func (s *IdentityStore) derive() string {
	for _, name := range s.interfaces {
		mac, err := s.hardwareAddr(name)
		if err != nil || len(mac) == 0 {
			continue
		}
		hex := strings.ReplaceAll(mac.String(), ":", "")
		if len(hex) < macSuffix {
			continue
		}
		return idPrefix + hex[len(hex)-macSuffix:] + "-" + s.random()[:4]
	}
	return idPrefix + s.random()[:12]
}

// persist writes id to the primary file, falling back on a permission error.
func (s *IdentityStore) persist(id string) (string, error) {
	err := writeID(s.primary, id)
	if err == nil {
		return s.primary, nil
	}
	if !errors.Is(err, fs.ErrPermission) || s.fallback == "" {
		return "", err
	}
	if ferr := writeID(s.fallback, id); ferr != nil {
		return "", errors.Join(err, ferr)
	}
	return s.fallback, nil
}

func readID(path string) string {
	if path == "" {
		return ""
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func writeID(path, id string) error {
	if path == "" {
		return fs.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(path), idDirPerm); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(id+"\n"), idFilePerm)
}

func interfaceHardwareAddr(name string) (net.HardwareAddr, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	return iface.HardwareAddr, nil
}

// randomHex returns 32 lowercase hex characters.
func randomHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
