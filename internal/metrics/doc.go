// Package metrics defines the Prometheus collectors for the audio engine:
// mixer frame/stream activity, player lifecycle events and HTTP API usage.
// All record helpers are safe to call on a nil receiver so components can
// run without metrics in tests.
package metrics
