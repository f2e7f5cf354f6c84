// Package mqtt provides MQTT client connectivity for govee2mqtt.
//
// This package manages:
//   - Connection to the broker with paho auto-reconnect
//   - Message publishing with QoS and retain flags
//   - Topic subscriptions restored after every reconnect
//   - Last Will and Testament on the bridge status topic
//   - Topic builders for the bridge's flat topic layout
//
// # Topic layout
//
//	<prefix>/bridge/status                 online / offline (retained, LWT)
//	<prefix>/<device>/set                  inbound JSON commands
//	<prefix>/<device>                      aggregate JSON state (retained)
//	<prefix>/<device>/<attribute>          one JSON value per attribute (retained)
//	<homeassistant>/light/govee_<id>/config discovery descriptor (retained)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.NewTopics(cfg.MQTT.Prefix, cfg.MQTT.HomeAssistant)
//	err = client.Subscribe(topics.SetSubscribe(), 0,
//	    func(topic string, payload []byte) error {
//	        id, _ := topics.DeviceIDFromSetTopic(topic)
//	        return handle(id, payload)
//	    })
package mqtt
