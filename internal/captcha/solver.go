package captcha

import (
	"casescraper/internal/domain"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Terminal solve failures. A timeout means the poll budget ran out while
// the service still reported processing; a solver error means the service
// declared the task unsolvable.
var (
	ErrChallengeTimeout = errors.New("captcha: challenge solve timed out")
	ErrSolverFailed     = errors.New("captcha: solving service failed")
)

// solveState tracks one challenge instance through its lifecycle:
// detected -> submitted -> polling -> solved | expired | failed.
type solveState int

const (
	stateDetected solveState = iota
	stateSubmitted
	statePolling
	stateSolved
	stateExpired
	stateFailed
)

func (s solveState) String() string {
	switch s {
	case stateDetected:
		return "detected"
	case stateSubmitted:
		return "submitted"
	case statePolling:
		return "polling"
	case stateSolved:
		return "solved"
	case stateExpired:
		return "expired"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

type createTaskRequest struct {
	ClientKey string   `json:"clientKey"`
	Task      taskSpec `json:"task"`
}

type taskSpec struct {
	Type       string  `json:"type"`
	WebsiteURL string  `json:"websiteURL"`
	WebsiteKey string  `json:"websiteKey"`
	MinScore   float64 `json:"minScore,omitempty"`
	PageAction string  `json:"pageAction,omitempty"`
}

type createTaskResponse struct {
	ErrorID   int    `json:"errorId"`
	ErrorCode string `json:"errorCode"`
	TaskID    int64  `json:"taskId"`
}

type taskResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskID    int64  `json:"taskId"`
}

type taskResultResponse struct {
	ErrorID   int    `json:"errorId"`
	ErrorCode string `json:"errorCode"`
	Status    string `json:"status"`
	Solution  struct {
		GRecaptchaResponse string `json:"gRecaptchaResponse"`
	} `json:"solution"`
}

// Solver submits challenges to a CapMonster-compatible solving service and
// polls for the solution token. Solves are billed per task, so the poll
// loop is capped both by iteration count and by the caller's context.
type Solver struct {
	client       *resty.Client
	apiKey       string
	minScore     float64
	pollInterval time.Duration
	maxPolls     int
	logger       *zap.Logger
}

func NewSolver(baseURL, apiKey string, minScore float64, pollInterval time.Duration, maxPolls int, logger *zap.Logger) *Solver {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &Solver{
		client:       client,
		apiKey:       apiKey,
		minScore:     minScore,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
		logger:       logger,
	}
}

// Solve runs one challenge instance to a terminal state and returns the
// solution token. The token is single-use; callers that see a fresh
// challenge after spending it must call Solve again rather than retry the
// token.
func (s *Solver) Solve(ctx context.Context, params *domain.ChallengeParams) (string, error) {
	taskID, err := s.submit(ctx, params)
	if err != nil {
		s.logger.Warn("captcha task rejected",
			zap.Stringer("state", stateFailed),
			zap.String("page_url", params.PageURL),
			zap.Error(err))
		return "", err
	}
	s.logger.Info("captcha task submitted",
		zap.Stringer("state", stateSubmitted),
		zap.Int64("task_id", taskID),
		zap.String("page_url", params.PageURL))

	for poll := 0; poll < s.maxPolls; poll++ {
		if !sleepWithContext(ctx, s.pollInterval) {
			return "", fmt.Errorf("%w: %v", ErrChallengeTimeout, ctx.Err())
		}

		token, done, err := s.poll(ctx, taskID)
		if err != nil {
			s.logger.Warn("captcha task failed",
				zap.Stringer("state", stateFailed),
				zap.Int64("task_id", taskID),
				zap.Error(err))
			return "", err
		}
		if done {
			s.logger.Info("captcha solved",
				zap.Stringer("state", stateSolved),
				zap.Int64("task_id", taskID),
				zap.Int("polls", poll+1))
			return token, nil
		}
		s.logger.Debug("captcha still processing",
			zap.Stringer("state", statePolling),
			zap.Int64("task_id", taskID),
			zap.Int("poll", poll+1),
			zap.Int("max_polls", s.maxPolls))
	}

	s.logger.Warn("captcha solve expired",
		zap.Stringer("state", stateExpired),
		zap.Int64("task_id", taskID),
		zap.Int("max_polls", s.maxPolls))
	return "", fmt.Errorf("%w after %d polls", ErrChallengeTimeout, s.maxPolls)
}

func (s *Solver) submit(ctx context.Context, params *domain.ChallengeParams) (int64, error) {
	var out createTaskResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(createTaskRequest{
			ClientKey: s.apiKey,
			Task: taskSpec{
				Type:       params.Type,
				WebsiteURL: params.PageURL,
				WebsiteKey: params.SiteKey,
				MinScore:   s.minScore,
				PageAction: params.Action,
			},
		}).
		SetResult(&out).
		Post("/createTask")
	if err != nil {
		return 0, fmt.Errorf("%w: create task: %v", ErrSolverFailed, err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("%w: create task: status %d", ErrSolverFailed, resp.StatusCode())
	}
	if out.ErrorID != 0 {
		return 0, fmt.Errorf("%w: create task: %s", ErrSolverFailed, out.ErrorCode)
	}
	return out.TaskID, nil
}

// poll asks the service for the task result once. done is true only when a
// token is available; a processing status returns (false, nil).
func (s *Solver) poll(ctx context.Context, taskID int64) (token string, done bool, err error) {
	var out taskResultResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(taskResultRequest{ClientKey: s.apiKey, TaskID: taskID}).
		SetResult(&out).
		Post("/getTaskResult")
	if err != nil {
		return "", false, fmt.Errorf("%w: get result: %v", ErrSolverFailed, err)
	}
	if resp.IsError() {
		return "", false, fmt.Errorf("%w: get result: status %d", ErrSolverFailed, resp.StatusCode())
	}
	if out.ErrorID != 0 {
		return "", false, fmt.Errorf("%w: task %d: %s", ErrSolverFailed, taskID, out.ErrorCode)
	}
	if out.Status == "ready" {
		if out.Solution.GRecaptchaResponse == "" {
			return "", false, fmt.Errorf("%w: task %d: empty solution", ErrSolverFailed, taskID)
		}
		return out.Solution.GRecaptchaResponse, true, nil
	}
	return "", false, nil
}

// sleepWithContext sleeps for d or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
