// Package storage persists the small amount of state the bot keeps across
// restarts: named boolean flags such as "startup message already sent".
//
// Drivers:
//   - "file":   one flag file per key inside a directory (compatible with
//     the historical startup_sent.flag layout)
//   - "sqlite": a single SQLite database file
//   - "memory": process-local, for tests and dry runs
package storage
