// Package launcher starts the launcher artifact as a detached process.
package launcher
