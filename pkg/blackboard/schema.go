package blackboard

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so that
// several Atelier instances can share one Redis server.
//
// Key pattern: atelier:{instance_name}:{entity}:{id}
// Channel pattern: atelier:{instance_name}:{event_type}_events

// ProjectKey returns the Redis key for a project hash.
// Pattern: atelier:{instance_name}:project:{project_id}
func ProjectKey(instanceName, projectID string) string {
	return fmt.Sprintf("atelier:%s:project:%s", instanceName, projectID)
}

// ProjectKeyPattern returns the SCAN pattern matching project keys whose ID
// starts with prefix. An empty prefix matches every project.
func ProjectKeyPattern(instanceName, prefix string) string {
	return fmt.Sprintf("atelier:%s:project:%s*", instanceName, prefix)
}

// ProjectIndexKey returns the Redis key for the ZSET of project IDs scored
// by creation time.
// Pattern: atelier:{instance_name}:projects
func ProjectIndexKey(instanceName string) string {
	return fmt.Sprintf("atelier:%s:projects", instanceName)
}

// WeightsKey returns the Redis key for an agent's strategy weight hash.
// Pattern: atelier:{instance_name}:weights:{role}
func WeightsKey(instanceName string, role Role) string {
	return fmt.Sprintf("atelier:%s:weights:%s", instanceName, role)
}

// MessageEventsChannel returns the Pub/Sub channel carrying every routed
// bus message.
// Pattern: atelier:{instance_name}:message_events
func MessageEventsChannel(instanceName string) string {
	return fmt.Sprintf("atelier:%s:message_events", instanceName)
}

// ProjectEventsChannel returns the Pub/Sub channel carrying project snapshots
// after every stage transition.
// Pattern: atelier:{instance_name}:project_events
func ProjectEventsChannel(instanceName string) string {
	return fmt.Sprintf("atelier:%s:project_events", instanceName)
}
