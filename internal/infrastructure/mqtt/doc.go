// Package mqtt connects the room sync service to the MQTT broker.
//
// The broker carries three kinds of traffic:
//   - registry change notifications from the platform (roomsync/event/...)
//   - reload requests to the HomeKit bridge and its answers
//     (homekit/request/reload/<id>, homekit/response/reload/<id>)
//   - retained per-bridge sync results (roomsync/sync/<bridge>/result)
//
// The Client wraps paho.mqtt.golang with auto-reconnect, subscription
// restoration after reconnect, panic recovery in handlers and a retained
// online/offline status on roomsync/system/status backed by a Last Will.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllRegistryEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        debouncer.Trigger()
//	        return nil
//	    })
package mqtt
