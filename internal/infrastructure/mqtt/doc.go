// Package mqtt provides the MQTT client behind Lumy's remote command channel.
//
// A device that has an MQTT broker configured subscribes to its own command
// topic and answers on its response topic, so the cloud can drive the same
// operations the local API exposes without polling. The retained status
// topic, backed by a Last Will, tells the cloud whether the device is up.
//
// This package manages:
//   - Connection with auto-reconnect and subscription restore
//   - Publishing with QoS and payload size checks
//   - Per-device topic naming
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) for any broker outside the LAN
//   - Credentials come from config or LUMY_MQTT_USERNAME/LUMY_MQTT_PASSWORD
//     and are never logged
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, deviceID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().Command(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
package mqtt
