// Package artifact contains core domain types for launcher artifact reconciliation.
//
// It defines RemoteVersion (the target published by the update authority),
// Kind (native executable or managed-runtime module), the update Decision
// and the file naming rules for backups and partial downloads.
package artifact
