// Package progress records crawl milestones emitted by the engine and keeps the latest
// snapshot for the status server.
package progress
