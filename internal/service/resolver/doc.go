// Package resolver determines the local version of the launcher artifact and
// the remote update target, and decides whether an update is required.
//
// Local versions are read from metadata embedded in the artifact: the Go
// build info main-module version and the PE file-version resource. Remote
// targets come from a single query to the update authority. Neither side ever
// fails the bootstrap; unknown means absent.
package resolver
