// Package config defines settings used by the launcher-updater binaries and
// provides helpers to load, validate and save them in YAML format.
//
// Config holds the update authority URL and endpoints, log destination,
// timeouts for every blocking stage and the managed-runtime launch settings.
// Values from the process environment (optionally seeded from a .env file next
// to the settings file) override the file.
package config
