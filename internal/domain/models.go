package domain

import (
	"fmt"
	"strings"
	"time"
)

// CaseRecord holds one structured foreclosure case extracted from the court
// website. CaseID is the natural dedup key as published by the source; when
// the source omits it, a composite fallback key is derived and NeedsReview
// is set so unrelated cases are never silently merged.
type CaseRecord struct {
	CaseID          string    `json:"case_id"`
	FilingType      string    `json:"filing_type"`
	FilingDate      string    `json:"filing_date"`
	CaseStatus      string    `json:"case_status"`
	Plaintiff       string    `json:"plaintiff"`
	Defendants      []string  `json:"defendants"`
	ParcelNumber    string    `json:"parcel_number"`
	CaseFilingID    string    `json:"case_filing_id"`
	County          string    `json:"county"`
	PropertyAddress string    `json:"property_address"`
	SourceURL       string    `json:"source_url"`
	NeedsReview     bool      `json:"needs_review"`
	ScrapedAt       time.Time `json:"scraped_at,omitempty"`
}

// Identity returns the dedup key for the record: the source case id when
// present, otherwise a composite of address and filing date. Returns false
// when neither is derivable and the record must be skipped.
func (r *CaseRecord) Identity() (string, bool) {
	if r.CaseID != "" {
		return r.CaseID, true
	}
	if r.PropertyAddress == "" || r.FilingDate == "" {
		return "", false
	}
	addr := strings.Join(strings.Fields(strings.ToUpper(r.PropertyAddress)), " ")
	return fmt.Sprintf("fb:%s|%s", addr, r.FilingDate), true
}

// Equal reports whether two records carry the same scraped content,
// ignoring bookkeeping fields. Used to suppress no-op updates.
func (r *CaseRecord) Equal(o *CaseRecord) bool {
	if r.CaseID != o.CaseID ||
		r.FilingType != o.FilingType ||
		r.FilingDate != o.FilingDate ||
		r.CaseStatus != o.CaseStatus ||
		r.Plaintiff != o.Plaintiff ||
		r.ParcelNumber != o.ParcelNumber ||
		r.CaseFilingID != o.CaseFilingID ||
		r.County != o.County ||
		r.PropertyAddress != o.PropertyAddress ||
		r.SourceURL != o.SourceURL ||
		r.NeedsReview != o.NeedsReview ||
		len(r.Defendants) != len(o.Defendants) {
		return false
	}
	for i := range r.Defendants {
		if r.Defendants[i] != o.Defendants[i] {
			return false
		}
	}
	return true
}

// FetchRequest describes one page retrieval. Immutable per attempt; a retry
// with a solved captcha token derives a new request via WithToken.
type FetchRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Form    map[string]string
}

// WithToken derives a new request carrying a challenge solution token in
// its form payload.
func (r FetchRequest) WithToken(token string) FetchRequest {
	form := make(map[string]string, len(r.Form)+1)
	for k, v := range r.Form {
		form[k] = v
	}
	form["captchaToken"] = token
	out := r
	out.Form = form
	return out
}

// FetchOutcome tags a FetchResult.
type FetchOutcome int

const (
	FetchContent FetchOutcome = iota
	FetchChallenged
	FetchFailed
)

// ErrorKind classifies page-level failures.
type ErrorKind string

const (
	ErrKindNetwork          ErrorKind = "network_error"
	ErrKindChallengeTimeout ErrorKind = "challenge_timeout"
	ErrKindSolver           ErrorKind = "solver_error"
	ErrKindParse            ErrorKind = "parse_error"
	ErrKindStorage          ErrorKind = "storage_error"
	ErrKindCancelled        ErrorKind = "cancelled"
)

// FetchResult is the tagged outcome of a fetch: real content, a detected
// anti-automation challenge, or a terminal failure after retries.
type FetchResult struct {
	Outcome   FetchOutcome
	HTML      string
	Status    int
	Challenge *ChallengeParams
	ErrKind   ErrorKind
	Err       error
}

// ChallengeParams is the minimal data the external solving service needs.
// Owned transiently by the solver; never persisted.
type ChallengeParams struct {
	SiteKey string
	PageURL string
	Action  string
	Type    string
}

// PersistSummary reports the outcome of one persist batch.
type PersistSummary struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// Add accumulates another summary into this one.
func (p *PersistSummary) Add(o PersistSummary) {
	p.Inserted += o.Inserted
	p.Updated += o.Updated
	p.Skipped += o.Skipped
}

// RunSummary aggregates one scrape run. Ephemeral; reported to the caller
// and not stored by the pipeline.
type RunSummary struct {
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	PagesFetched  int            `json:"pages_fetched"`
	Solved        int            `json:"solved"`
	Extracted     int            `json:"extracted"`
	Persisted     PersistSummary `json:"persisted"`
	ParseFailures int            `json:"parse_failures"`
	PagesFailed   int            `json:"pages_failed"`
	Failures      []PageFailure  `json:"failures,omitempty"`
}

// PageFailure records one failed page with enough context for diagnosis.
type PageFailure struct {
	URL     string    `json:"url"`
	CaseID  string    `json:"case_id,omitempty"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ScrapeRequest is the payload for the scrape trigger endpoint.
type ScrapeRequest struct {
	County string `json:"county,omitempty"`
}

// CaseStatusResponse is the API response for a case lookup.
type CaseStatusResponse struct {
	CaseID          string    `json:"case_id"`
	CaseStatus      string    `json:"case_status"`
	FilingType      string    `json:"filing_type"`
	PropertyAddress string    `json:"property_address,omitempty"`
	NeedsReview     bool      `json:"needs_review"`
	UpdatedAt       time.Time `json:"updated_at"`
}
