// Package mongo registers MongoDB-backed log sink storage for cascade runs.
//
// Use clients/mongo to build the low-level client and pass it to NewStore to
// obtain a logsink.Store that persists append-only cascade log entries.
package mongo
