package fetcher

import "context"

// FeedFetcher downloads the rate feed and returns the local file path.
type FeedFetcher interface {
	Fetch(ctx context.Context) (string, error)
}
