// Package wifi gets the device onto a wireless network.
//
// At boot Ensure checks whether the wireless interface holds an IPv4
// address. If it does not, the device becomes an open access point named
// after its hardware address (Lumy-DDEEFF), serves the captive portal and
// waits. Credentials submitted through the portal are written to the
// wpa_supplicant configuration and the device reboots to join the network.
//
// State machine:
//
//	Disconnected -> APMode -> CredentialsReceived -> RebootPending
//	                  ^                |
//	                  +--- invalid ----+
//
// Connected is entered directly when the interface already has an address.
//
// Security:
//   - The passphrase is never logged and never written in plaintext; the
//     configuration holds the derived 256-bit PSK.
//   - wpa_supplicant.conf is replaced atomically with mode 0600.
package wifi
