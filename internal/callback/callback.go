// Package callback delivers completion notifications to the callback URL
// optionally attached to a review request. Delivery is best-effort: the
// review outcome is already persisted and posted to the platform by the
// time a callback fires, so failures are logged and never fail the task.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/reviewhub/reviewhub/internal/config"
	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/pkg/logger"
)

// Event names delivered to callback URLs
const (
	EventReviewCompleted = "review.completed"
	EventReviewFailed    = "review.failed"
)

const initialBackoff = 500 * time.Millisecond

// Event is the JSON envelope posted to a callback URL
type Event struct {
	Event        string    `json:"event"`
	ReviewID     string    `json:"review_id"`
	TaskID       string    `json:"task_id"`
	RepoID       string    `json:"repo_id"`
	PRNumber     int       `json:"pr_number"`
	HeadSHA      string    `json:"head_sha"`
	Status       string    `json:"status"`
	Summary      string    `json:"summary,omitempty"`
	FindingCount int       `json:"finding_count"`
	Error        string    `json:"error,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Client posts callback events with bounded retries
type Client struct {
	httpClient *http.Client
	maxRetries uint64
}

// NewClient creates a callback client from the delivery configuration
func NewClient(cfg config.CallbackConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: uint64(maxRetries),
	}
}

// CompletedEvent builds the envelope for a finished review
func CompletedEvent(meta *model.PRMetadata, taskID string, resp *model.ReviewResponse) *Event {
	return &Event{
		Event:        EventReviewCompleted,
		ReviewID:     resp.ReviewID,
		TaskID:       taskID,
		RepoID:       meta.RepoID,
		PRNumber:     meta.PRNumber,
		HeadSHA:      meta.HeadSHA,
		Status:       string(model.ReviewStatusCompleted),
		Summary:      resp.Summary,
		FindingCount: len(resp.Comments),
		OccurredAt:   time.Now().UTC(),
	}
}

// FailedEvent builds the envelope for a terminally failed review
func FailedEvent(meta *model.PRMetadata, taskID, reviewID, errMsg string) *Event {
	return &Event{
		Event:      EventReviewFailed,
		ReviewID:   reviewID,
		TaskID:     taskID,
		RepoID:     meta.RepoID,
		PRNumber:   meta.PRNumber,
		HeadSHA:    meta.HeadSHA,
		Status:     string(model.ReviewStatusFailed),
		Error:      errMsg,
		OccurredAt: time.Now().UTC(),
	}
}

// Deliver posts the event to url. Network errors and 5xx responses are
// retried with exponential backoff; 4xx responses are the receiver's
// problem and are not retried.
func (c *Client) Deliver(ctx context.Context, url string, ev *Event) {
	if c == nil || url == "" || ev == nil {
		return
	}

	body, err := json.Marshal(ev)
	if err != nil {
		logger.Error("Encoding callback event failed",
			zap.String("url", url),
			zap.Error(err),
		)
		return
	}

	b := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(initialBackoff))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		return retry.RetryableError(c.post(ctx, url, body))
	})
	if err != nil {
		logger.Warn("Callback delivery failed",
			zap.String("url", url),
			zap.String("event", ev.Event),
			zap.String("review_id", ev.ReviewID),
			zap.Error(err),
		)
		return
	}

	logger.Debug("Callback delivered",
		zap.String("url", url),
		zap.String("event", ev.Event),
		zap.String("review_id", ev.ReviewID),
	)
}

func (c *Client) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("callback endpoint returned %d", resp.StatusCode)
	default:
		// the receiver rejected the event; retrying cannot help
		logger.Warn("Callback rejected by receiver",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
		)
		return nil
	}
}
