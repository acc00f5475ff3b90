// Package connection implements the connection health and reconnection engine.
//
// The Manager:
//   - Owns the single attached Handle and the connection state machine
//   - Sends application heartbeats once a sync batch has arrived and drops
//     the connection after consecutive missed replies
//   - Confirms the backend is reachable before asking the owner for a new
//     connection, with a fixed floor between attempts
//   - Fans inbound frames out to registered consumers via the router
//   - Publishes rate-limited health summaries
//
// All mutable state sits behind one mutex. Timer callbacks carry the
// connection generation and do nothing once it is stale.
package connection
