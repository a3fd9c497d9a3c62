// Package journal keeps the history of reduction runs in SQLite.
//
// Every run gets a row keyed by a random UUID. While the run proceeds, the
// reduction controller records one decision per stage and folder (executed,
// skipped, redo skipped, ...) and the script runner records every invocation
// with its classified outcome. "theli history" and "theli status" read the
// journal back; nothing in a reduction depends on it, so journal failures
// only produce warnings.
package journal
