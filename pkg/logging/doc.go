// Package logging provides the structured logging used across tokenkit.
//
// It is a thin layer over log/slog that tags every entry with a subsystem
// name so that output from the cache, the flows and the CLI can be filtered:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Cache", "Loaded token %s", hash)
//	logging.Warn("Expiry", "Provider did not return an expiry, assuming one hour")
//	logging.Error("Flow", err, "Token request failed")
//
// # Audit Logging
//
// Cache writes and deletions are recorded through Audit with structured
// attributes:
//
//	logging.Audit("token_stored", slog.String("hash", hash))
//
// When InitForCLI has not been called, for example when tokenkit is used as
// a library, entries go to slog's process default logger.
package logging
