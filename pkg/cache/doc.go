// Package cache holds the broker's hot in-memory state: client
// sessions, topic subscriber sets, and retained messages, each a
// separate concurrent map so one busy topic never contends with session
// lookups on another connection.
package cache
