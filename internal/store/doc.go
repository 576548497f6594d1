// ABOUTME: Package doc for the store package

// Package store persists runtime-registered MCP servers in SQLite.
//
// The gateway keeps its working state in memory; the store exists so servers
// added through the management API (including their OAuth tokens) come back
// after a restart. Headers and token payloads are stored as JSON columns.
//
// The SQLite implementation uses modernc.org/sqlite (pure Go, no cgo) with
// WAL journaling and creates its schema on open.
package store
