// Package waiter blocks until the predecessor process has exited.
//
// The wait happens before any read or write of the launcher artifact so the
// exiting process has released its file handles. Failures never stop the
// bootstrap: the caller is told what happened and proceeds.
package waiter
