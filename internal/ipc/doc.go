// Package ipc carries daemon control over a Unix domain socket using
// JSON-RPC. The server registers the daemon facade under the Vigil service
// name; the client wraps each method in a typed call the CLI consumes.
// Request and response types mirror the store models with JSON tags so
// external tooling can speak the protocol directly.
package ipc
