/*
Package observability turns plot lifecycle hooks into Prometheus metrics and
structured log lines, and instruments snapshot stores.
*/
package observability
