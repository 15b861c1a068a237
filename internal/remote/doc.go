// Package remote carries device commands over MQTT.
//
// The bridge subscribes to {prefix}/devices/{device_id}/command, submits
// each request to the command bus and publishes the reply, not retained,
// on {prefix}/devices/{device_id}/response:
//
//	-> {"command": "update_widget", "request_id": "r-17", "data": {"widget_id": "weather", "data": {...}}}
//	<- {"command": "update_widget_response", "request_id": "r-17", "success": true, "data": {...}}
//
// Display and widget events are published on the events topic. Presence
// is handled by the mqtt client's retained status message and Last Will.
package remote
