// Package services defines shared utilities consumed by the reduction stages
// and the command line front end.
//
// Key responsibilities:
//   - Context helpers that stamp run identifiers, stage codes, and folder
//     roles for logging and the run journal.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent process exit statuses.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
