/*
Package ports defines the driven ports (interfaces) around the plot endpoint.

These interfaces decouple the endpoint protocol from the processes, windows and
storage backends it runs against.

# Key Interfaces

  - Responder: Liveness capability of a remote drawing client.
  - Surface: Rendering sink receiving redraws and dispatched events.
  - PlotStore: Persists endpoint snapshots for inspection and recovery.
  - DistributedLocker: Serialises bind sequences for a plot across replicas.
*/
package ports
