// Package vault drives the password-manager CLI session used to inject
// secrets into configuration documents.
//
// Secrets are fetched once per run as a decoded JSON list and handed to the
// resolution engine; the engine navigates them by name and dotted field
// path. The session lifecycle (login, unlock, list, lock, logout) shells
// out through the runner package so tests can substitute a fake CLI.
package vault
