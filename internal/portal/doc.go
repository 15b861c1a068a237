// Package portal serves the WiFi setup page while the device is an access
// point.
//
// The page is embedded with go:embed. Every path the server does not know,
// including the connectivity probes phones and laptops send after joining
// a network, answers with the setup page, which makes the operating system
// open it as a captive portal.
//
// The portal only talks to the provisioner: it lists networks and submits
// credentials. It has no other side effects.
package portal
