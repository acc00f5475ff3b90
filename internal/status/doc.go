// Package status derives a coarse connection-health summary from engine
// state and heartbeat metrics, and rate-limits how often that summary is
// handed to an external notifier.
package status
