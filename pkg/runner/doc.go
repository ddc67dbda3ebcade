/*
Package runner drives a plot endpoint from a single dispatch goroutine.

Inbound messages (event text, refresh requests and control functions) are
queued and applied to the endpoint strictly in arrival order. Liveness probes
may block on the remote client, so Probe runs them off the dispatch goroutine
and reports the outcome on a channel.
*/
package runner
