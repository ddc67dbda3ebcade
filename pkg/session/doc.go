/*
Package session keeps the registry of open plot endpoints.

Each plot gets its own dispatch runner. Mutations of one plot (bind, invalidate,
gate changes, readiness) are serialised by a reference-counted local lock,
optionally backed by a distributed lock shared across replicas, and every
mutation is followed by a snapshot save to the configured ports.PlotStore.
*/
package session
