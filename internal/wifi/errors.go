package wifi

import "errors"

var (
	// ErrInvalidSSID is returned for an empty or over-long network name.
	ErrInvalidSSID = errors.New("wifi: ssid must be 1-32 bytes")

	// ErrInvalidPassword is returned for a passphrase that is not empty and
	// not 8-63 printable ASCII characters.
	ErrInvalidPassword = errors.New("wifi: password must be empty or 8-63 printable characters")

	// ErrAccessPoint is returned when the access point could not be brought up.
	ErrAccessPoint = errors.New("wifi: access point failed")

	// ErrRebootPending is returned by SubmitCredentials once a reboot is scheduled.
	ErrRebootPending = errors.New("wifi: reboot already pending")

	// ErrNotAccepting is returned by SubmitCredentials while another
	// submission is being applied or the device is already connected.
	ErrNotAccepting = errors.New("wifi: not accepting credentials")
)
