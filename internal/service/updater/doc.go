// Package updater replaces the launcher artifact with the one published by the
// update authority.
//
// The new artifact is streamed to a temporary file next to the target, the
// previous artifact is kept as a single ".bak" generation, and the temporary
// file is moved into place. A failed download never touches the installed
// artifact.
package updater
