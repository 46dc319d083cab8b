// Package bus connects the MQTT platform message bus to the subsystem
// runtime.
//
// Inbound, the Router subscribes to every place broadcast topic and to the
// unicast topics of the subsystem namespaces, decodes each payload and
// queues it on the place's executor:
//
//	graylogic/platform/{placeID}/broadcast
//	graylogic/platform/{placeID}/to/SERV/{namespace}
//
// A message rejected by a full dispatch queue is redelivered after a delay
// a bounded number of times before it is dropped. After a place's own
// base:Deleted broadcast has been queued, the place's executor is
// invalidated.
//
// Outbound, Sender implements subsystem.Sender by encoding the message and
// publishing it on the topic chosen from its destination.
package bus
