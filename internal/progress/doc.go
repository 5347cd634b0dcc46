// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces used to report migration progress. Events are batched on a
// background goroutine and fanned out to pluggable sinks such as Prometheus
// metrics or persistent storage.
package progress
