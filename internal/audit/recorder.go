// Package audit records resolved submissions for operators. Nothing here is
// read back into a capture workflow.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/face-match/internal/capture"
	"github.com/example/face-match/internal/logging"
	"github.com/example/face-match/internal/matcher"
	"github.com/example/face-match/internal/repository"
)

const (
	cacheTTL     = 5 * time.Minute
	writeTimeout = 10 * time.Second
)

// SubmissionRepository defines the persistence operations needed by the recorder.
type SubmissionRepository interface {
	SaveLog(ctx context.Context, log *repository.SubmissionLog) error
	FindByRequestID(ctx context.Context, requestID string) (*repository.SubmissionLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Recorder persists submission outcomes to Redis and the database.
type Recorder struct {
	repo           SubmissionRepository
	cache          Cache
	logger         *zap.Logger
	now            func() time.Time
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

type cachedSubmission struct {
	RequestID      string    `json:"request_id"`
	SessionID      string    `json:"session_id"`
	Generation     uint64    `json:"generation"`
	Outcome        string    `json:"outcome"`
	CandidateCount int       `json:"candidate_count"`
	TopCandidateID string    `json:"top_candidate_id,omitempty"`
	TopScore       float64   `json:"top_score"`
	LatencyMs      int64     `json:"latency_ms"`
	Hash           string    `json:"sha1_hash"`
	Details        string    `json:"details"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewRecorder constructs a new recorder instance.
func NewRecorder(repo SubmissionRepository, cache Cache, logger *zap.Logger) *Recorder {
	return &Recorder{
		repo:           repo,
		cache:          cache,
		logger:         logger.Named("audit_recorder"),
		now:            time.Now,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

var _ capture.Observer = (*Recorder)(nil)

// SubmissionResolved implements capture.Observer. Errors are logged only.
func (r *Recorder) SubmissionResolved(ctx context.Context, outcome capture.Outcome) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := r.Record(ctx, outcome); err != nil {
		logging.WithOperation(r.logger, "audit.submission_resolved", outcome.SessionID).
			Warn("failed to record submission", zap.Error(err), zap.String("request_id", outcome.RequestID))
	}
}

// Record persists one outcome and then caches it. A cache failure is logged
// and does not fail the record; the database row is the durable copy.
func (r *Recorder) Record(ctx context.Context, outcome capture.Outcome) error {
	log := toLog(outcome, r.now().UTC())
	opLogger := logging.WithOperation(r.logger, "audit.record", outcome.SessionID)

	if err := r.repo.SaveLog(ctx, log); err != nil {
		wrapped := logging.NewOperationError("audit.save_log", outcome.SessionID, err)
		opLogger.Error("failed to persist submission log", zap.Error(wrapped))
		return wrapped
	}

	cached := cachedSubmission{
		RequestID:      log.RequestID,
		SessionID:      log.SessionID,
		Generation:     log.Generation,
		Outcome:        log.Outcome,
		CandidateCount: log.CandidateCount,
		TopCandidateID: log.TopCandidateID,
		TopScore:       log.TopScore,
		LatencyMs:      log.LatencyMs,
		Hash:           log.SHA1Hash,
		Details:        log.Details,
		CreatedAt:      log.CreatedAt,
	}
	serialized, err := json.Marshal(cached)
	if err != nil {
		opLogger.Warn("failed to serialize submission for cache", zap.Error(err))
		return nil
	}

	if err := r.withRedisRetry(ctx, outcome.SessionID, "cache.set.submission", func() error {
		return r.cache.Put(ctx, cacheKey(log.RequestID), serialized, cacheTTL)
	}); err != nil {
		opLogger.Warn("failed to cache submission", zap.Error(err), zap.String("request_id", log.RequestID))
	}
	return nil
}

// GetSubmission retrieves a cached submission or loads it from persistence.
func (r *Recorder) GetSubmission(ctx context.Context, requestID string) (*repository.SubmissionLog, error) {
	if cached, err := r.withRedisGet(ctx, "cache.get.submission", cacheKey(requestID)); err == nil {
		var payload cachedSubmission
		if err := json.Unmarshal(cached, &payload); err != nil {
			logging.WithOperation(r.logger, "audit.get_submission", "").Warn("failed to decode cached submission", zap.Error(err))
		} else {
			return &repository.SubmissionLog{
				RequestID:      requestID,
				SessionID:      payload.SessionID,
				Generation:     payload.Generation,
				Outcome:        payload.Outcome,
				CandidateCount: payload.CandidateCount,
				TopCandidateID: payload.TopCandidateID,
				TopScore:       payload.TopScore,
				LatencyMs:      payload.LatencyMs,
				SHA1Hash:       payload.Hash,
				Details:        payload.Details,
				CreatedAt:      payload.CreatedAt,
			}, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logging.WithOperation(r.logger, "audit.get_submission", "").Warn("failed to read cache", zap.Error(err))
	}

	return r.repo.FindByRequestID(ctx, requestID)
}

func toLog(outcome capture.Outcome, createdAt time.Time) *repository.SubmissionLog {
	log := &repository.SubmissionLog{
		RequestID:  outcome.RequestID,
		SessionID:  outcome.SessionID,
		Generation: outcome.Generation,
		LatencyMs:  outcome.Latency.Milliseconds(),
		SHA1Hash:   outcome.ImageSHA1,
		CreatedAt:  createdAt,
	}

	switch {
	case outcome.Succeeded():
		best := outcome.Results.Best()
		log.Outcome = repository.OutcomeSucceeded
		log.CandidateCount = len(outcome.Results)
		log.TopCandidateID = best.ID
		log.TopScore = best.Score
		log.Details = fmt.Sprintf("candidates:%d best:%s score:%.1f", len(outcome.Results), best.ID, best.Score)
	case outcome.Failure == matcher.NoFaceDetected:
		log.Outcome = repository.OutcomeNoFace
	default:
		log.Outcome = repository.OutcomeRequestFailed
	}
	if outcome.Err != nil {
		log.Details = outcome.Err.Error()
	}
	return log
}

func cacheKey(requestID string) string {
	return fmt.Sprintf("submission:%s", requestID)
}

func (r *Recorder) withRedisRetry(ctx context.Context, sessionID, operation string, fn func() error) error {
	if r.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, sessionID, err)
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, sessionID)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, sessionID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if errors.Is(err, redis.Nil) || !repository.IsTransientError(err) || attempt == r.retryAttempts-1 {
			if !errors.Is(err, redis.Nil) {
				opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			}
			return logging.NewOperationError(operation, sessionID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, sessionID, err)
}

func (r *Recorder) withRedisGet(ctx context.Context, operation, cacheKey string) ([]byte, error) {
	var result []byte
	err := r.withRedisRetry(ctx, "", operation, func() error {
		value, err := r.cache.Fetch(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
