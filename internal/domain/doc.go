// Package domain contains the core domain entities and value objects for mmsgate.
//
// This package represents the innermost layer of the Clean Architecture. It has
// no dependencies on infrastructure concerns (HTTP, file system, logging) and
// contains only pure business logic.
//
// # Entities
//
//   - [Request]: An immutable descriptor of requested work (kind + target)
//   - [ConnectionSettings]: Endpoint and proxy used to reach the relay
//   - [Completion]: The outcome of one finished transaction
//   - [PendingItem]: Persisted work that has not completed yet
//
// # Design Principles
//
// Domain entities are:
//   - Immutable after construction (where practical)
//   - Free of infrastructure dependencies
//   - Focused on business rules and invariants
//   - Testable without mocks or external systems
package domain
