// Package api provides the REST client used for out-of-band backend checks.
//
// The client never touches the persistent sync connection. It exists so the
// reconnection scheduler can tell "our socket is bad" apart from "the whole
// backend is down" before asking for a new connection.
package api
