package mqtt

import "strings"

// DefaultTopicPrefix is used when the configuration leaves the prefix empty.
const DefaultTopicPrefix = "lumy"

// Topics builds the per-device topic tree:
//
//	{prefix}/devices/{device_id}/command   cloud -> device requests
//	{prefix}/devices/{device_id}/response  device -> cloud replies
//	{prefix}/devices/{device_id}/status    retained online/offline
//	{prefix}/devices/{device_id}/events    display and widget events
type Topics struct {
	base string
}

// NewTopics returns a builder rooted at prefix for deviceID.
func NewTopics(prefix, deviceID string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{base: prefix + "/devices/" + deviceID}
}

// Command is the topic the device subscribes to for remote requests.
func (t Topics) Command() string { return t.base + "/command" }

// Response is where replies to remote requests are published.
func (t Topics) Response() string { return t.base + "/response" }

// Status is the retained online/offline topic, also used for the Last Will.
func (t Topics) Status() string { return t.base + "/status" }

// Events carries display refresh and widget change notifications.
func (t Topics) Events() string { return t.base + "/events" }
