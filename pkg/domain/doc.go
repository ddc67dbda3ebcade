/*
Package domain contains the core domain models of the plotlink endpoint protocol.

It defines the values exchanged between a remote drawing client, the plot endpoint
and the rendering surface. This package is kept pure and free of I/O and
persistence, following Hexagonal Architecture principles.

# Key Entities

  - Phase: Lifecycle position of an endpoint (Created, Ready, Closed).
  - ClientInfo: Descriptive pid/name of the bound client.
  - Event: A parsed inbound event (opaque kind plus payload).
  - Snapshot: Serialisable view of one endpoint, used by stores and watchers.
  - LifecycleHooks: Callbacks for binds, probes, dispatches, drops and redraws.
*/
package domain
