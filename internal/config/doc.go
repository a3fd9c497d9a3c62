// Package config loads, normalizes, and validates theli configuration data.
//
// It supplies defaults rooted at the THELI pipe home (~/.theli), expands user
// paths (including tilde shortcuts), reads TOML files, and honours the
// THELI_HOME and THELI_SCRIPTS environment overrides. When the THELI install
// description (scripts/progs.ini) is present, LoadProgs resolves its shell
// variables so the scripts, binaries and temp directories are discovered in
// one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
