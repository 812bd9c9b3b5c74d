// Package crawler defines the types shared by the news crawling pipeline:
// site identifiers, article records, fetch outcomes, and the small
// interfaces the fetcher, walker, resolver, and orchestrator depend on.
package crawler
