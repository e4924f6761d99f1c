// Package session provides the process-wide feature accumulator: per-session
// append-only buffers of per-chunk features, safe under concurrent appends
// from many streaming connections, with an exactly-once atomic drain that
// reduces a session's history to aggregate statistics at finalization.
package session
