// Package logs reads the per-invocation script logs theli writes.
//
// Tail returns the last lines of a log and can follow it while a script is
// still writing, which backs `theli log --follow`. Around extracts the lines
// surrounding the fatal line the classifier reported, for the failure
// summary printed after a run aborts.
package logs
