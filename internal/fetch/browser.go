package fetch

import (
	"casescraper/internal/domain"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// BrowserFetcher retrieves pages through a headless browser for listings
// that render their case tables with JavaScript. It honors the same
// contract as HTTPFetcher: tagged results, shared rate limiter, bounded
// retries. Form POSTs are not supported; NewRoutedFetcher pairs this
// fetcher with an HTTP fetcher that carries them.
type BrowserFetcher struct {
	limiter  *rate.Limiter
	detector Detector
	timeout  time.Duration
	retries  int
	backoff  time.Duration
	logger   *zap.Logger
	allocs   sync.Pool
}

func NewBrowserFetcher(timeout time.Duration, retries int, limiter *rate.Limiter, detector Detector, logger *zap.Logger) *BrowserFetcher {
	f := &BrowserFetcher{
		limiter:  limiter,
		detector: detector,
		timeout:  timeout,
		retries:  retries,
		backoff:  defaultBackoff,
		logger:   logger,
	}
	f.allocs.New = func() interface{} {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", ""),
			chromedp.Flag("disable-dev-shm-usage", ""),
		)
		allocCtx, _ := chromedp.NewExecAllocator(context.Background(), opts...)
		return allocCtx
	}
	return f
}

func (f *BrowserFetcher) Fetch(ctx context.Context, req domain.FetchRequest) domain.FetchResult {
	if req.Method == "POST" {
		return domain.FetchResult{
			Outcome: domain.FetchFailed,
			ErrKind: domain.ErrKindNetwork,
			Err:     fmt.Errorf("browser fetcher does not support POST to %s", req.URL),
		}
	}

	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			if !sleepBackoff(ctx, f.backoff, attempt) {
				return cancelled(ctx)
			}
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return cancelled(ctx)
		}

		html, err := f.render(ctx, req.URL)
		if err != nil {
			if ctx.Err() != nil {
				return cancelled(ctx)
			}
			lastErr = err
			f.logger.Warn("browser fetch attempt failed",
				zap.String("url", req.URL),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			if !isTransient(err) && attempt > 0 {
				break
			}
			continue
		}

		if params, ok := f.detector.Detect(html, req.URL); ok {
			return domain.FetchResult{Outcome: domain.FetchChallenged, HTML: html, Status: 200, Challenge: params}
		}
		return domain.FetchResult{Outcome: domain.FetchContent, HTML: html, Status: 200}
	}

	return domain.FetchResult{
		Outcome: domain.FetchFailed,
		ErrKind: domain.ErrKindNetwork,
		Err:     fmt.Errorf("browser retries exhausted for %s: %w", req.URL, lastErr),
	}
}

func (f *BrowserFetcher) render(ctx context.Context, url string) (string, error) {
	allocCtx := f.allocs.Get().(context.Context)
	defer f.allocs.Put(allocCtx)

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, f.timeout)
	defer timeoutCancel()

	// Propagate caller cancellation into the browser task.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-taskCtx.Done():
		}
	}()

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", err
	}
	return html, nil
}
