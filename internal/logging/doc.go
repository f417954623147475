// Package logging configures structured slog output for amanidx.
// Logs are JSON lines written to stderr and, when a file path is configured,
// to a size-rotated log file under the data directory.
package logging
