/*
Package session implements the session orchestrator.

A Manager multiplexes many long-lived tenant sessions over a small number of
expensive engine handles. It admits sessions under a concurrency ceiling,
serializes every engine call per tenant, caches read-only queries with a
stale-on-error fallback, drives the lifecycle state machine from engine events,
and restores previously authenticated sessions at startup.

Inbound engine traffic is normalized into domain.Event values and published
to every configured ports.EventSink.
*/
package session
