/*
Package switchboard runs many authenticated chat sessions, one per tenant, in a
single process and exposes them as one API.

Each session is backed by an engine handle (a browser-driven chat client behind
an automation bridge). The session manager admits at most a fixed number of
concurrent engines, drives each tenant through its lifecycle (QR login,
authentication, ready, disconnection, recovery) and serializes every operation
of a tenant so two commands never race on the same engine.

# Layout

  - pkg/domain: session states, events, read models and error sentinels.
  - pkg/ports: the driven ports (engine, credentials, journal, event sink).
  - pkg/session: the Manager, which owns admission, lifecycle, operations and restore.
  - pkg/adapters: bridge engine, file/bolt/redis/memory journals, HTTP and MCP transports.
  - cmd/switchboard: the command line (serve, mcp, sessions, events, config, version).

# Usage

	factory, err := bridge.NewFactory("http://127.0.0.1:3000")
	if err != nil {
		log.Fatal(err)
	}
	events := memory.NewSink()
	mgr := session.New(factory,
		file.NewCredentials(".switchboard/auth", file.WithProbe(bridge.ProfileProbe)),
		session.WithJournal(file.NewJournal(".switchboard/journal")),
		session.WithSink(events),
	)
	defer mgr.Close(context.Background())

	res, err := mgr.CreateSession(ctx, "acme")
	if err != nil {
		log.Fatal(err)
	}
	if res.State == domain.StateQRReady {
		qr, _ := mgr.PendingCredential("acme")
		fmt.Println("scan:", qr)
	}
*/
package switchboard
