// Package bridge implements ports.EngineFactory against an external automation
// bridge: a process that drives the chat client in a browser profile and exposes
// it over HTTP, with a websocket stream for engine events.
//
// Each tenant maps to one engine on the bridge, addressed as /engines/{tenant}.
// Commands are JSON requests; failures come back as {"error": "..."} bodies and
// are translated into the domain sentinels (ErrSessionInvalidated, ErrTimeout,
// ErrGroupNotFound, ErrConnectTimeout).
//
// Events arrive as text frames of the form {"type": "...", "data": {...}}.
package bridge
