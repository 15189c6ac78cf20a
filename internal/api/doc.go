// Package api defines the wire-format types shared by the daemon HTTP server
// and the CLI client, plus converters from the internal run and event
// models.
//
// Field names are snake_case. Timestamps are RFC3339 with milliseconds in
// UTC. Run parameters and event payloads pass through as json.RawMessage so
// they are never double-encoded.
package api
