// Command serpcrawl crawls a bounded range of search result pages through rotating
// proxies, appends every new result to the configured store and checkpoints after
// each batch so an interrupted run can resume.
//
// Usage:
//
//	serpcrawl crawl --query "crispr" --pages 20
//	serpcrawl crawl --config serpcrawl.yaml --engine scholar --query "graph neural networks" --resume
//	serpcrawl proxies --config serpcrawl.yaml
package main
