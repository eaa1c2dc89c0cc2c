package fetch

import (
	"casescraper/internal/domain"
	"context"
	"net/http"
)

// routedFetcher splits retrieval by method: GET navigation renders through
// the browser, form POSTs go over plain HTTP. The court site's search and
// case-detail requests are POSTs a browser navigation cannot express.
type routedFetcher struct {
	get  Fetcher
	post Fetcher
}

// NewRoutedFetcher combines a browser fetcher for GET navigation with an
// HTTP fetcher for form POSTs behind a single Fetcher.
func NewRoutedFetcher(get, post Fetcher) Fetcher {
	return &routedFetcher{get: get, post: post}
}

func (f *routedFetcher) Fetch(ctx context.Context, req domain.FetchRequest) domain.FetchResult {
	if req.Method == http.MethodPost {
		return f.post.Fetch(ctx, req)
	}
	return f.get.Fetch(ctx, req)
}
