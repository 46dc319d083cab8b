package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the platform message bus.
//
// Every platform message travels on a per-place topic:
//
//	graylogic/platform/{placeID}/broadcast
//	graylogic/platform/{placeID}/to/{group}/{namespace}
//
// Unicast topics stop at the namespace so one subscription covers every
// instance of a service; the full destination address is in the payload.
const (
	// TopicPrefixPlatform is the base for platform message topics.
	TopicPrefixPlatform = "graylogic/platform"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"

	topicBroadcast = "broadcast"
	topicUnicast   = "to"
)

// Topics provides builders for Gray Logic MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.PlaceUnicast("p1", "SERV", "subalarm")
//	// Returns: "graylogic/platform/p1/to/SERV/subalarm"
type Topics struct{}

// PlaceBroadcast returns the broadcast topic of a place.
//
// Example: graylogic/platform/p1/broadcast
func (Topics) PlaceBroadcast(placeID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixPlatform, placeID, topicBroadcast)
}

// PlaceUnicast returns the topic for messages addressed to a namespace
// of an address group within a place.
//
// Example: graylogic/platform/p1/to/DRIV/dev
func (Topics) PlaceUnicast(placeID, group, namespace string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", TopicPrefixPlatform, placeID, topicUnicast, group, namespace)
}

// SystemStatus returns the retained status topic of a service instance.
//
// Example: graylogic/system/status/graylogic-subsystems
func (Topics) SystemStatus(clientID string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefixSystem, clientID)
}

// AllPlaceBroadcasts matches the broadcasts of every place.
//
// Pattern: graylogic/platform/+/broadcast
func (Topics) AllPlaceBroadcasts() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixPlatform, topicBroadcast)
}

// AllPlaceUnicasts matches messages to any namespace of group in every place.
//
// Pattern: graylogic/platform/+/to/SERV/+
func (Topics) AllPlaceUnicasts(group string) string {
	return fmt.Sprintf("%s/+/%s/%s/+", TopicPrefixPlatform, topicUnicast, group)
}

// AllTopics returns a pattern matching all Gray Logic topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: graylogic/#
func (Topics) AllTopics() string {
	return "graylogic/#"
}

// PlatformTopic is a parsed platform message topic.
type PlatformTopic struct {
	PlaceID   string
	Broadcast bool

	// Group and Namespace are set for unicast topics.
	Group     string
	Namespace string
}

// ParseTopic parses a topic built by PlaceBroadcast or PlaceUnicast.
func ParseTopic(topic string) (PlatformTopic, error) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixPlatform+"/")
	if !ok {
		return PlatformTopic{}, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 2 && parts[0] != "" && parts[1] == topicBroadcast:
		return PlatformTopic{PlaceID: parts[0], Broadcast: true}, nil
	case len(parts) == 4 && parts[0] != "" && parts[1] == topicUnicast && parts[2] != "" && parts[3] != "":
		return PlatformTopic{PlaceID: parts[0], Group: parts[2], Namespace: parts[3]}, nil
	}
	return PlatformTopic{}, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
}
