// Package server runs the HTTP update authority over a publish directory.
package server
