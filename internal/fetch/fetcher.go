package fetch

import (
	"casescraper/internal/domain"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Detector reports whether a page body is an anti-automation challenge and,
// if so, the parameters the solving service needs. Supplied by the captcha
// package so challenge knowledge stays out of the fetch layer.
type Detector interface {
	Detect(html, pageURL string) (*domain.ChallengeParams, bool)
}

// Fetcher retrieves one page and classifies the response.
type Fetcher interface {
	Fetch(ctx context.Context, req domain.FetchRequest) domain.FetchResult
}

// HTTPFetcher performs plain HTTP retrieval with bounded retries,
// exponential backoff with jitter, and a shared token-bucket rate limiter.
type HTTPFetcher struct {
	client   *resty.Client
	limiter  *rate.Limiter
	detector Detector
	agents   *AgentPool
	retries  int
	backoff  time.Duration
	logger   *zap.Logger
}

const defaultBackoff = 500 * time.Millisecond

func NewHTTPFetcher(timeout time.Duration, retries int, limiter *rate.Limiter, detector Detector, logger *zap.Logger) *HTTPFetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	return &HTTPFetcher{
		client:   client,
		limiter:  limiter,
		detector: detector,
		agents:   NewAgentPool(),
		retries:  retries,
		backoff:  defaultBackoff,
		logger:   logger,
	}
}

// Fetch retrieves the requested page. Transient failures (timeouts, 5xx,
// connection resets) are retried up to the configured limit; the caller
// always receives a tagged result, never a panic or raw error.
func (f *HTTPFetcher) Fetch(ctx context.Context, req domain.FetchRequest) domain.FetchResult {
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

		resp, err := f.do(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return cancelled(ctx)
			}
			lastErr = err
			f.logger.Warn("fetch attempt failed",
				zap.String("url", req.URL),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}

		status := resp.StatusCode()
		body := string(resp.Body())

		if status >= 500 {
			lastErr = fmt.Errorf("server error: status %d", status)
			f.logger.Warn("fetch got server error",
				zap.String("url", req.URL),
				zap.Int("status", status),
				zap.Int("attempt", attempt+1))
			continue
		}
		if status >= 400 {
			return domain.FetchResult{
				Outcome: domain.FetchFailed,
				Status:  status,
				ErrKind: domain.ErrKindNetwork,
				Err:     fmt.Errorf("client error: status %d", status),
			}
		}

		if params, ok := f.detector.Detect(body, req.URL); ok {
			return domain.FetchResult{
				Outcome:   domain.FetchChallenged,
				HTML:      body,
				Status:    status,
				Challenge: params,
			}
		}
		return domain.FetchResult{Outcome: domain.FetchContent, HTML: body, Status: status}
	}

	return domain.FetchResult{
		Outcome: domain.FetchFailed,
		ErrKind: domain.ErrKindNetwork,
		Err:     fmt.Errorf("retries exhausted for %s: %w", req.URL, lastErr),
	}
}

func (f *HTTPFetcher) do(ctx context.Context, req domain.FetchRequest) (*resty.Response, error) {
	r := f.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", f.agents.Get())
	for k, v := range req.Headers {
		r.SetHeader(k, v)
	}
	if req.Method == http.MethodPost {
		return r.SetFormData(req.Form).Post(req.URL)
	}
	return r.Get(req.URL)
}

// sleepBackoff waits for an exponentially growing interval with jitter,
// returning false if the context is cancelled first.
func sleepBackoff(ctx context.Context, base time.Duration, attempt int) bool {
	backoff := base << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
	select {
	case <-time.After(backoff + jitter):
		return true
	case <-ctx.Done():
		return false
	}
}

func cancelled(ctx context.Context) domain.FetchResult {
	return domain.FetchResult{
		Outcome: domain.FetchFailed,
		ErrKind: domain.ErrKindCancelled,
		Err:     ctx.Err(),
	}
}

// isTransient reports whether an error is worth retrying. Kept for the
// browser fetcher which surfaces raw errors rather than statuses.
func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
