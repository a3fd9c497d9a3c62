// Package main hosts the theli CLI entrypoint and command graph.
//
// The Cobra command tree turns terminal invocations into reduction runs
// against the THELI scripts, parameter file maintenance, folder inspection
// and run history queries. Configuration resolution, logger and lock setup
// live in the shared command context so subcommands only wire the internal
// packages together.
package main
