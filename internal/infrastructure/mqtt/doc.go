// Package mqtt connects the hub to its MQTT broker.
//
// The broker is the hub's bus to the outside world. Presence reports,
// location fixes and bridged device state arrive on it; notifications,
// hub events and bridged device commands leave on it. Topic builders in
// topics.go keep the tree consistent:
//
//	graylogic/presence/{host}                     inbound presence
//	graylogic/location/{device}                   inbound location fixes
//	graylogic/bridge/mqtt/state/{device}/{cluster}    bridged device state
//	graylogic/bridge/mqtt/command/{device}/{cluster}  bridged device commands
//	graylogic/notify                              outbound notifications
//	graylogic/core/...                            hub events
//	graylogic/system/status                       retained hub status (LWT)
//
// The client reconnects on its own and restores its subscriptions. Its
// connection state is exposed through State as a reactive cell.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllPresence(), 1,
//	    func(topic string, payload []byte) error {
//	        host, _ := mqtt.Segment(topic, -1)
//	        return detector.Report(host, payload)
//	    })
package mqtt
