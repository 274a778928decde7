/*
Package domain contains the core domain models of the Switchboard session orchestrator.

It defines tenants, session states, the outward event records and the messaging
payloads exchanged with callers. This package is kept pure and free of external
dependencies like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - TenantID: The caller-supplied key a session is scoped to.
  - SessionState: The lifecycle position of a tenant's session.
  - Event: A normalized record published to event sinks.
  - Group, Member, Channel: Read models returned by introspection queries.
*/
package domain
