// Package services defines shared utilities consumed by pipeline stages, the
// lease manager, and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp video IDs, stage names, worker identities,
//     and correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     (validation, transient, fatal, lease conflict) for retry decisions.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
