// Package release persists the published version record.
//
// The FileRepository stores the record as JSON inside a publish directory,
// next to the artifact it describes. The publisher writes it and the update
// server serves it.
package release
