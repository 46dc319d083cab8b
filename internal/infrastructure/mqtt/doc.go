// Package mqtt provides the MQTT transport of the platform message bus.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and a caller deadline
//   - Topic subscriptions, restored after every reconnect
//   - A retained per-instance status topic with Last Will and Testament
//
// # Topics
//
// Platform messages are published per place. Broadcasts go to
// graylogic/platform/{placeID}/broadcast and addressed messages to
// graylogic/platform/{placeID}/to/{group}/{namespace}. The subsystem
// runtime subscribes to every broadcast and to the SERV group.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllPlaceBroadcasts(), 1,
//	    func(topic string, payload []byte) error {
//	        return router.HandleMessage(ctx, topic, payload)
//	    })
//
// Handlers are invoked on paho's goroutines. A handler panic is recovered
// and logged.
package mqtt
