// Package stage defines the contract between the pipeline orchestrator and
// the six stage executors.
//
// Stages run in the fixed order image, loop, audio, render, thumbnail,
// publish. Each executor receives the run parameters and a read-only view
// of the artifacts produced by earlier stages, and returns one new artifact
// reference. Executors signal failures with errors tagged by the markers in
// the services package so the orchestrator can record whether the failure
// was transient or permanent.
package stage
