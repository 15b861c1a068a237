// Package lifecycle assembles the device from configuration and runs it.
//
// Boot order is fixed:
//
//  1. Network: the WiFi provisioner returns at once when the device is
//     connected. Otherwise it serves the captive portal until the device
//     reboots or is told to stop, and nothing else starts.
//  2. Pairing: the registrar checks the claim with the backend and, when
//     the device is unclaimed, shows a pairing code until it is claimed or
//     the timeout passes. Widgets run either way.
//  3. Steady state: the widget scheduler, the cloud sync agent and the
//     optional services (local API, remote command bridge) run together
//     until the context ends.
//
// The scheduler is the only consumer of the command bus, and so the only
// goroutine that renders widgets. The sync agent, the API and the remote
// bridge reach it through the bus.
//
// Build wires real components from a config.Config. Orchestrator holds
// only the ordering and is tested with fakes.
package lifecycle
