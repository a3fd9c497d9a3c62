// Package preflight provides readiness checks for the THELI installation
// and the filesystem paths a reduction touches.
//
// These checks run in two contexts:
//   - "theli run" calls RunAll before the first job and aborts when a
//     required check fails, before any script modifies data.
//   - "theli doctor" prints every check, including the optional catalog
//     server lookup.
package preflight
