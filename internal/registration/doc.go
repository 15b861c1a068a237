// Package registration gives the device an identity and pairs it with a user.
//
// The device id is derived once from a hardware address and persisted; it
// never changes afterwards. Pairing shows a short human-readable code on the
// panel and polls the backend until a user claims the device with that code
// or the wait times out. Every state change is driven by a backend answer:
// the device never assumes it was claimed.
package registration
