// Package common contains helpers shared by the services.
//
// Client is the HTTP client for the update authority: a single version query
// and a streaming artifact download, each bounded by its own timeout.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
