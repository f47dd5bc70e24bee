package protocol

import "strings"

// The relay splits a room into an ingress destination that clients publish
// to and a broadcast topic that clients subscribe to.
const (
	TopicPrefix       = "/topic/room/"
	DestinationPrefix = "/app/room/"
)

// Topic returns the broadcast topic subscribers of roomID listen on.
func Topic(roomID string) string {
	return TopicPrefix + roomID
}

// Destination returns the ingress path publishes for roomID are sent to.
func Destination(roomID string) string {
	return DestinationPrefix + roomID
}

// RoomFromTopic extracts the room id from a broadcast topic.
func RoomFromTopic(topic string) (string, bool) {
	return roomFrom(topic, TopicPrefix)
}

// RoomFromDestination extracts the room id from an ingress destination.
func RoomFromDestination(dest string) (string, bool) {
	return roomFrom(dest, DestinationPrefix)
}

func roomFrom(path, prefix string) (string, bool) {
	room, ok := strings.CutPrefix(path, prefix)
	if !ok || room == "" || strings.Contains(room, "/") {
		return "", false
	}
	return room, true
}
