package scrape

import (
	"casescraper/internal/captcha"
	"casescraper/internal/domain"
	"casescraper/internal/extract"
	"casescraper/internal/monitoring"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Fetcher retrieves one page and classifies the response.
type Fetcher interface {
	Fetch(ctx context.Context, req domain.FetchRequest) domain.FetchResult
}

// Solver runs one challenge instance to a terminal state.
type Solver interface {
	Solve(ctx context.Context, params *domain.ChallengeParams) (string, error)
}

// CaseStore is the persistence port. Upsert must be atomic per identity.
type CaseStore interface {
	Upsert(ctx context.Context, identity string, record *domain.CaseRecord) (domain.PersistSummary, error)
}

// RecentCache suppresses refetching of cases scraped inside the dedup window.
type RecentCache interface {
	IsRecentlyScraped(ctx context.Context, caseID string) (bool, error)
	MarkCaseScraped(ctx context.Context, caseID string, ttl time.Duration) error
}

// Options configure one Service.
type Options struct {
	PageURL      string
	SearchURL    string
	CaseInfoPath string
	County       string
	Workers      int
	DedupTTL     time.Duration
}

// Service drives one scrape run end to end: fetch the gated search page,
// solve the challenge, post the search form, then fan detail pages out to
// a bounded worker pool. A single page's failure never aborts the run.
type Service struct {
	fetcher Fetcher
	solver  Solver
	store   CaseStore
	cache   RecentCache
	metrics *monitoring.Metrics
	opts    Options
	logger  *zap.Logger
}

func NewService(f Fetcher, s Solver, store CaseStore, cache RecentCache, m *monitoring.Metrics, opts Options, logger *zap.Logger) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Service{
		fetcher: f,
		solver:  s,
		store:   store,
		cache:   cache,
		metrics: m,
		opts:    opts,
		logger:  logger,
	}
}

// Each challenge instance gets exactly one solve and one token-bearing
// refetch; a fresh challenge after that starts one new instance. Solves
// are billed, so the cycle is hard-capped.
const maxSolvesPerPage = 2

// runState accumulates the summary across workers.
type runState struct {
	mu      sync.Mutex
	summary domain.RunSummary
}

func (s *runState) addFetched() {
	s.mu.Lock()
	s.summary.PagesFetched++
	s.mu.Unlock()
}

func (s *runState) addSolved() {
	s.mu.Lock()
	s.summary.Solved++
	s.mu.Unlock()
}

func (s *runState) addExtracted(n int) {
	s.mu.Lock()
	s.summary.Extracted += n
	s.mu.Unlock()
}

func (s *runState) addParseFailures(n int) {
	s.mu.Lock()
	s.summary.ParseFailures += n
	s.mu.Unlock()
}

func (s *runState) addPersisted(p domain.PersistSummary) {
	s.mu.Lock()
	s.summary.Persisted.Add(p)
	s.mu.Unlock()
}

func (s *runState) addFailure(f domain.PageFailure) {
	s.mu.Lock()
	s.summary.PagesFailed++
	s.summary.Failures = append(s.summary.Failures, f)
	s.mu.Unlock()
}

// Run executes one scrape run and returns its summary. Only cancellation
// stops the run early; page and record failures are counted and skipped.
func (s *Service) Run(ctx context.Context) domain.RunSummary {
	state := &runState{}
	state.summary.StartedAt = time.Now()
	defer func() { state.summary.FinishedAt = time.Now() }()

	listingHTML, ok := s.fetchListing(ctx, state)
	if !ok {
		return state.summary
	}

	rows, parseFailures, err := extract.CaseListing(listingHTML)
	state.addParseFailures(parseFailures)
	if err != nil {
		s.metrics.IncErrorsTotal(string(domain.ErrKindParse))
		state.addFailure(domain.PageFailure{
			URL:     s.opts.SearchURL,
			Kind:    domain.ErrKindParse,
			Message: err.Error(),
		})
		return state.summary
	}
	s.logger.Info("listing extracted",
		zap.Int("cases", len(rows)),
		zap.Int("parse_failures", parseFailures))

	s.scrapeDetails(ctx, rows, state)
	return state.summary
}

// fetchListing performs the gated two-step listing retrieval. The search
// form page itself carries the reCAPTCHA widget, so a Challenged result on
// the initial GET is the expected path: its HTML still holds the ASP.NET
// form state, and the solved token is spent on the search POST that the
// site actually gates.
func (s *Service) fetchListing(ctx context.Context, state *runState) (string, bool) {
	initial := s.fetcher.Fetch(ctx, domain.FetchRequest{URL: s.opts.PageURL, Method: http.MethodGet})
	state.addFetched()
	s.metrics.IncPagesFetched()

	var token string
	switch initial.Outcome {
	case domain.FetchFailed:
		s.recordPageFailure(state, s.opts.PageURL, "", initial)
		return "", false
	case domain.FetchChallenged:
		t, err := s.solver.Solve(ctx, initial.Challenge)
		if err != nil {
			s.recordPageFailure(state, s.opts.PageURL, "", solveFailure(ctx, err))
			return "", false
		}
		token = t
		state.addSolved()
		s.metrics.IncChallengesSolved()
	}

	viewState, eventValidation, err := extract.FormState(initial.HTML)
	if err != nil {
		s.metrics.IncErrorsTotal(string(domain.ErrKindParse))
		state.addFailure(domain.PageFailure{
			URL:     s.opts.PageURL,
			Kind:    domain.ErrKindParse,
			Message: err.Error(),
		})
		return "", false
	}

	search := domain.FetchRequest{
		URL:    s.opts.SearchURL,
		Method: http.MethodPost,
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
			"Origin":       trimSlash(s.opts.PageURL),
			"Referer":      s.opts.PageURL,
		},
		Form: searchForm(viewState, eventValidation),
	}
	if token != "" {
		search = search.WithToken(token)
	}

	searchRes := s.fetchAndSolve(ctx, search, state)
	if searchRes.Outcome != domain.FetchContent {
		s.recordPageFailure(state, s.opts.SearchURL, "", searchRes)
		return "", false
	}
	return searchRes.HTML, true
}

// solveFailure maps a solver error onto a tagged failure result.
func solveFailure(ctx context.Context, err error) domain.FetchResult {
	kind := domain.ErrKindSolver
	if errors.Is(err, captcha.ErrChallengeTimeout) {
		kind = domain.ErrKindChallengeTimeout
	}
	if ctx.Err() != nil {
		kind = domain.ErrKindCancelled
	}
	return domain.FetchResult{Outcome: domain.FetchFailed, ErrKind: kind, Err: err}
}

// scrapeDetails fans the detail pages out to the worker pool.
func (s *Service) scrapeDetails(ctx context.Context, rows []extract.ListingRow, state *runState) {
	tasks := make(chan extract.ListingRow)
	var wg sync.WaitGroup

	for i := 0; i < s.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range tasks {
				s.scrapeCase(ctx, row, state)
			}
		}()
	}

	for _, row := range rows {
		select {
		case tasks <- row:
		case <-ctx.Done():
			close(tasks)
			wg.Wait()
			state.addFailure(domain.PageFailure{
				URL:     s.opts.SearchURL,
				Kind:    domain.ErrKindCancelled,
				Message: ctx.Err().Error(),
			})
			return
		}
	}
	close(tasks)
	wg.Wait()
}

// scrapeCase handles one case detail page: fetch, extract, validate,
// persist. Failures are isolated to this case.
func (s *Service) scrapeCase(ctx context.Context, row extract.ListingRow, state *runState) {
	detailURL := trimSlash(s.opts.PageURL) + s.opts.CaseInfoPath

	if s.cache != nil {
		recent, err := s.cache.IsRecentlyScraped(ctx, row.CaseID)
		if err != nil {
			s.logger.Error("recent-case cache check failed",
				zap.String("case_id", row.CaseID), zap.Error(err))
		}
		if recent {
			s.logger.Info("skipping recently scraped case", zap.String("case_id", row.CaseID))
			state.addPersisted(domain.PersistSummary{Skipped: 1})
			return
		}
	}

	req := domain.FetchRequest{
		URL:    detailURL,
		Method: http.MethodPost,
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
			"Origin":       trimSlash(s.opts.PageURL),
			"Referer":      s.opts.PageURL,
		},
		Form: map[string]string{
			"case_id": row.CaseID,
			"screen":  "summary",
		},
	}
	res := s.fetchAndSolve(ctx, req, state)
	if res.Outcome != domain.FetchContent {
		s.recordPageFailure(state, detailURL, row.CaseID, res)
		return
	}

	sourceURL := fmt.Sprintf("%s%s?case_id=%s", trimSlash(s.opts.PageURL), s.opts.CaseInfoPath, row.CaseID)
	record, err := extract.CaseDetail(res.HTML, row.CaseID, s.opts.County, sourceURL)
	if err != nil {
		s.metrics.IncErrorsTotal(string(domain.ErrKindParse))
		state.addParseFailures(1)
		return
	}
	if record.CaseStatus == "" {
		record.CaseStatus = row.Status
	}

	identity, ok := record.Identity()
	if !ok {
		s.logger.Warn("record has no derivable identity, skipping",
			zap.String("url", sourceURL))
		s.metrics.IncErrorsTotal(string(domain.ErrKindParse))
		state.addParseFailures(1)
		return
	}
	if identity != record.CaseID {
		record.NeedsReview = true
	}
	state.addExtracted(1)
	s.metrics.AddCasesExtracted(1)

	if !validCase(record) {
		s.logger.Info("skipping case outside filter",
			zap.String("case_id", row.CaseID),
			zap.String("filing_type", record.FilingType),
			zap.String("case_status", record.CaseStatus))
		state.addPersisted(domain.PersistSummary{Skipped: 1})
		return
	}

	persisted, err := s.store.Upsert(ctx, identity, record)
	if err != nil {
		s.logger.Error("failed to persist case",
			zap.String("case_id", row.CaseID), zap.Error(err))
		s.metrics.IncErrorsTotal(string(domain.ErrKindStorage))
		state.addFailure(domain.PageFailure{
			URL:     detailURL,
			CaseID:  row.CaseID,
			Kind:    domain.ErrKindStorage,
			Message: err.Error(),
		})
		return
	}
	state.addPersisted(persisted)
	s.metrics.AddPersisted(map[string]int{
		"inserted": persisted.Inserted,
		"updated":  persisted.Updated,
		"skipped":  persisted.Skipped,
	})

	if s.cache != nil {
		if err := s.cache.MarkCaseScraped(ctx, row.CaseID, s.opts.DedupTTL); err != nil {
			s.logger.Error("failed to mark case as scraped",
				zap.String("case_id", row.CaseID), zap.Error(err))
		}
	}
}

// fetchAndSolve fetches a page, resolving challenges along the way. Each
// challenge instance yields one solve and one token-bearing refetch; the
// cycle count is capped so a page that keeps challenging eventually fails
// instead of burning billed solves.
func (s *Service) fetchAndSolve(ctx context.Context, req domain.FetchRequest, state *runState) domain.FetchResult {
	res := s.fetcher.Fetch(ctx, req)
	state.addFetched()
	s.metrics.IncPagesFetched()

	for solves := 0; res.Outcome == domain.FetchChallenged; solves++ {
		if solves >= maxSolvesPerPage {
			return domain.FetchResult{
				Outcome: domain.FetchFailed,
				ErrKind: domain.ErrKindSolver,
				Err:     fmt.Errorf("page still challenged after %d solves: %s", solves, req.URL),
			}
		}

		token, err := s.solver.Solve(ctx, res.Challenge)
		if err != nil {
			return solveFailure(ctx, err)
		}
		state.addSolved()
		s.metrics.IncChallengesSolved()

		// Fresh request per attempt; the previous token is spent.
		res = s.fetcher.Fetch(ctx, req.WithToken(token))
		state.addFetched()
		s.metrics.IncPagesFetched()
	}
	return res
}

func (s *Service) recordPageFailure(state *runState, url, caseID string, res domain.FetchResult) {
	msg := ""
	if res.Err != nil {
		msg = res.Err.Error()
	}
	s.logger.Warn("page failed",
		zap.String("url", url),
		zap.String("case_id", caseID),
		zap.String("kind", string(res.ErrKind)),
		zap.String("error", msg))
	s.metrics.IncErrorsTotal(string(res.ErrKind))
	state.addFailure(domain.PageFailure{URL: url, CaseID: caseID, Kind: res.ErrKind, Message: msg})
}

// validCase applies the persistence filter: only open mortgage
// foreclosure cases are stored.
func validCase(r *domain.CaseRecord) bool {
	if r.FilingType != "MORTGAGE FORECLOSURE (MF)" {
		return false
	}
	return r.CaseStatus == "OPEN" || r.CaseStatus == "REOPENED"
}

// searchForm builds the ASP.NET search payload with the MF/OPEN filters.
func searchForm(viewState, eventValidation string) map[string]string {
	return map[string]string{
		"__VIEWSTATE":       viewState,
		"__EVENTVALIDATION": eventValidation,
		"__EVENTTARGET":     "",
		"__EVENTARGUMENT":   "",
		"searchType":        "general",

		"ctl00$ContentPlaceHolder1$txtCaseNumber":        "",
		"ctl00$ContentPlaceHolder1$txtPartyName":         "",
		"ctl00$ContentPlaceHolder1$txtAttorneyName":      "",
		"ctl00$ContentPlaceHolder1$txtAttorneyBarNumber": "",
		"ctl00$ContentPlaceHolder1$txtCaseType":          "MF",
		"ctl00$ContentPlaceHolder1$txtCaseStatus":        "OPEN",
		"ctl00$ContentPlaceHolder1$txtFilingDateFrom":    "",
		"ctl00$ContentPlaceHolder1$txtFilingDateTo":      "",
		"ctl00$ContentPlaceHolder1$btnSearch":            "Search",
	}
}

func trimSlash(u string) string {
	for len(u) > 0 && u[len(u)-1] == '/' {
		u = u[:len(u)-1]
	}
	return u
}
