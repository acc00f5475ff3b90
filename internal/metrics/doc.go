// Package metrics provides in-process counters for monitoring the engine.
//
// Key metrics:
//   - State transitions, including rejected illegal edges
//   - Heartbeats sent, replies matched, pong timeouts, connection drops
//   - Reconnection requests, dropped requests, hook invocations, attach timeouts
//   - Failed backend health checks
//   - Self-consistency audit violations
//
// Counters are lock-free and exposed through Snapshot on the debug endpoint.
package metrics
