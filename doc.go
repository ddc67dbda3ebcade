/*
Package plotlink hosts plot endpoints: mediators between a remote drawing
client and a local rendering surface.

Each plot owns a surface and an accept gate. Event text sent by the client is
parsed into a typed event and dispatched to the surface only while the gate is
open; refresh requests redraw the surface once its one-time setup completed.
The bound client is tracked so the host can ask whether it is still valid and
responding, and the binding survives until the host invalidates it.

# Layout

The core lives in pkg/plot (the Endpoint state machine) and pkg/domain (events,
snapshots and sentinel errors). Everything else is a host around it:

  - pkg/runner drives one endpoint from a single dispatch goroutine.
  - pkg/session keeps the registry of open plots and serialises bind sequences.
  - pkg/adapters provides stores (memory, file, redis), client transports
    (websocket, local process), surfaces and the HTTP and MCP servers.
  - cmd/plotlink is the CLI.

# Usage

	store := memory.NewStore()
	mgr := session.NewManager(store)
	defer mgr.CloseAll(ctx)

	ep, err := mgr.Open(ctx, "scatter", surface.NewRecorder(true))
	if err != nil {
		return err
	}
	mgr.SetAccepting(ctx, ep.ID(), true)
	mgr.Post(ep.ID(), "mouseDown 10,20")
*/
package plotlink
