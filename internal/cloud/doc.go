// Package cloud talks to the Lumy backend.
//
// Client is the REST client shared by the registrar and the sync agent. It
// knows the backend's paths, the configured authentication header and the
// configured registration-status endpoint; it never logs the API key.
//
// SyncAgent is the long-running half: every heartbeat interval it fetches
// the device configuration, applies it only when its content hash changed,
// and reports device health (optionally with a small preview of the panel).
// On shutdown it sends a final "offline" heartbeat.
package cloud
