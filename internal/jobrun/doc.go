// Package jobrun invokes THELI processing scripts and decides from their
// captured output whether they succeeded.
//
// Execution, classification and logging are separate: an Executor spawns the
// script and returns its merged output lines, Classify matches those lines
// against the keyword table, and LogWriter persists them under the state
// directory. Runner composes the three while holding the system lock.
package jobrun
