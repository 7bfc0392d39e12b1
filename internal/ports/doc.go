// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// In Clean Architecture / Hexagonal Architecture, ports are the boundaries
// between the application core and the outside world. They define what the
// scheduler needs from external systems without specifying how those needs
// are fulfilled.
//
// # Port Interfaces
//
//   - [ConnectivityProvider]: Requests and releases the shared network feature
//   - [ResourceGuard]: Non-reference-counted wake lock held while the lease is up
//   - [MessageStore]: Persists messages and enumerates unfinished work
//   - [Transfer]: Moves message bytes to and from the relay
//   - [RetryArmer]: Schedules a future re-scan when no work remains
//   - [Advisor]: Shows one-shot advisories when work cannot start
//   - [Logger]: Structured logging abstraction
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement these interfaces
// with concrete implementations (net.Interfaces polling, HTTP, SQLite,
// zerolog, etc.).
package ports
