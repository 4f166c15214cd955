// Package bootstrap runs a single launcher self-update cycle.
//
// It waits for the launcher that spawned it to exit, compares the installed
// artifact with the one published by the update authority, replaces it when
// they differ and starts the launcher again. Every failure short of having
// nothing to start is logged and the cycle carries on.
package bootstrap
