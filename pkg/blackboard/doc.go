// Package blackboard provides the type-safe data model shared by every
// Atelier component and the Redis schema used to persist it.
//
// # Overview
//
// Agents never share memory. They exchange immutable Messages over a bus,
// and the Director records the resulting Projects on the blackboard, a Redis
// namespace that observers (CLI, dashboards) read from.
//
// # Core Concepts
//
// A Project moves through a fixed pipeline of Stages:
//
//	planning → styling → refinement → critique → completed
//
// Each non-terminal stage creates exactly one Task, assigned to the agent
// that owns that task type (ideation → ideator, styling → stylist,
// refinement → refiner, critique → critic). Completed tasks are appended to
// the project and never mutated afterwards.
//
// Messages carry a MessageType (request, response, update, feedback) and a
// typed Action payload. The action set is closed; handlers switch on the
// concrete type:
//
//	switch a := msg.Action().(type) {
//	case blackboard.AssignTask:
//		...
//	case blackboard.ProvideFeedback:
//		...
//	}
//
// # Redis Schema
//
// Projects: atelier:{instance_name}:project:{project_id} (hash)
// Project index: atelier:{instance_name}:projects (zset scored by created_at_ms)
// Strategy weights: atelier:{instance_name}:weights:{role} (hash)
//
// Pub/Sub channels:
//
// Message events: atelier:{instance_name}:message_events
// Project events: atelier:{instance_name}:project_events
package blackboard
