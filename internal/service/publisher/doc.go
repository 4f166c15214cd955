// Package publisher prepares a release for the update server.
//
// It reads the version of an artifact the same way the bootstrapper does,
// copies the artifact into the publish directory and writes the version
// record announcing it.
package publisher
