// Package event provides a pub-sub event bus for decoupled inter-component
// communication in the discussion engine.
//
// This package enables loose coupling between the Controller, FrameworkManager,
// and ClientHub bridge by allowing them to communicate through events rather
// than direct method calls. Components can publish events without knowing who
// will receive them, and subscribe to events without knowing who will produce
// them.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// The package defines several categories of events:
//
// Room Lifecycle:
//   - [RoomStartedEvent]: Emitted when a room's discussion begins
//   - [RoomStoppedEvent]: Emitted when a room's discussion stops
//
// Turn and Decision Events:
//   - [TurnStartedEvent]: Emitted when the Controller begins a Think call
//   - [TurnAppendedEvent]: Emitted when an agent's turn is appended to a room
//   - [TurnFailedEvent]: Emitted when a Think call fails without producing a turn
//   - [SVRComputedEvent]: Emitted when a parallel SVR scoring pass completes
//   - [DecisionMadeEvent]: Emitted when an SVRDecider reaches a decision
//
// Agent Health Events:
//   - [AgentSubstitutedEvent]: Emitted when a degraded agent is substituted
//   - [AgentDegradedEvent]: Emitted when an agent accumulates permanent failures
//
// Status Events:
//   - [PhaseChangeEvent]: Emitted when a room's Controller phase changes
//   - [PersistenceDegradedEvent]: Emitted when the async save backlog exceeds its cap
//   - [MetricsUpdateEvent]: Emitted when an agent's token usage is updated
//
// Connection Events:
//   - [ConnectionOpenedEvent]: Emitted when a client connects to the ClientHub
//   - [ConnectionClosedEvent]: Emitted when a client disconnects
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Multiple goroutines can publish
// and subscribe concurrently. Handlers are called synchronously and protected
// against panics - a panicking handler will not prevent other handlers from
// being called.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	// Subscribe to specific event types
//	bus.Subscribe("room.started", func(e event.Event) {
//	    started := e.(event.RoomStartedEvent)
//	    log.Printf("Room %s started", started.RoomID)
//	})
//
//	// Subscribe to all events (useful for logging)
//	bus.SubscribeAll(func(e event.Event) {
//	    log.Printf("Event: %s at %v", e.EventType(), e.Timestamp())
//	})
//
//	// Publish events
//	bus.Publish(event.NewRoomStartedEvent("room-1", "should we ship it?"))
//
//	// Unsubscribe when done
//	id := bus.Subscribe("decision.made", handler)
//	bus.Unsubscribe(id)
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action":
//   - room.started, room.stopped
//   - turn.started, turn.appended, turn.failed
//   - svr.computed, decision.made
//   - agent.substituted, agent.degraded
//   - phase.changed, persistence.degraded, metrics.updated
//   - connection.opened, connection.closed
package event
