// Package authority implements the HTTP transport of the update authority.
//
// It exposes the version record and the artifact it describes on two
// configurable endpoints and calls into a provided release-service interface.
package authority
