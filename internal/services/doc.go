// Package services defines shared utilities consumed by the pipeline stage
// executors and the orchestrator.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, caller keys, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and Classify which turns
//     a stage failure into the transient/permanent class recorded in events.
//
// Use these helpers when wiring new stage logic so failure reporting stays
// uniform across the pipeline.
package services
