/*
Package ports defines the driven ports (interfaces) for the Switchboard session orchestrator.

These interfaces decouple the orchestration logic from external implementations, allowing
the session manager to work with various automation bridges, event transports and
storage backends.

# Key Interfaces

  - EngineFactory / Engine: Open and drive one session on the external automation bridge.
  - EventSink: Accepts normalized events for asynchronous delivery to subscribers.
  - CredentialStore: Locates and removes the engine's persisted credentials.
  - SessionJournal: Persists a durable summary of each tenant's session.
*/
package ports
