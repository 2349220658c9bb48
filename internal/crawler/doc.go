// Package crawler holds the domain types and contracts shared by the crawl
// engine: search results, page tasks, checkpoints, transports, and the
// retry and politeness policies that pace page fetches.
package crawler
