package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/atlasgate/atlasgate/internal/metrics"
	"github.com/atlasgate/atlasgate/internal/model"
	"github.com/atlasgate/atlasgate/internal/repository"
)

// DefaultUsageWindow is the trailing window quotas are measured over.
const DefaultUsageWindow = 24 * time.Hour

// UsageTracker appends one record per billable call and answers windowed
// counts over them. Records are never updated or deleted.
type UsageTracker struct {
	store   UsageStore
	window  time.Duration
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// NewUsageTracker creates a tracker. A non-positive window means
// DefaultUsageWindow.
func NewUsageTracker(store UsageStore, window time.Duration, logger *slog.Logger, recorder metrics.Recorder) *UsageTracker {
	if window <= 0 {
		window = DefaultUsageWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &UsageTracker{
		store:   store,
		window:  window,
		logger:  logger.With("component", "usage"),
		metrics: recorder,
		now:     utcNow,
	}
}

// WithClock replaces the time source. Used by tests.
func (t *UsageTracker) WithClock(now func() time.Time) *UsageTracker {
	t.now = now
	return t
}

// Window returns the configured trailing window.
func (t *UsageTracker) Window() time.Duration {
	return t.window
}

// Record appends a usage record stamped with the current time.
func (t *UsageTracker) Record(ctx context.Context, userID int64, keyPrefix, endpoint string) (*model.UsageRecord, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, inputError("endpoint is required")
	}

	now := t.now()
	id, err := ulid.New(ulid.Timestamp(now), ulid.DefaultEntropy())
	if err != nil {
		return nil, fmt.Errorf("generate usage id: %w", err)
	}
	rec := &model.UsageRecord{
		ID:        id.String(),
		UserID:    userID,
		KeyPrefix: keyPrefix,
		Endpoint:  endpoint,
		CreatedAt: now,
	}

	if err := t.store.InsertUsage(ctx, rec); err != nil {
		t.metrics.IncUsageRecorded(metrics.StatusFailure)
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, persistenceError("insert usage", err)
	}

	t.metrics.IncUsageRecorded(metrics.StatusSuccess)
	t.logger.Debug("usage recorded",
		slog.Int64("user_id", userID),
		slog.String("endpoint", endpoint),
	)
	return rec, nil
}

// WindowedCount counts the user's records with timestamp in
// (now-window, now].
func (t *UsageTracker) WindowedCount(ctx context.Context, userID int64, window time.Duration) (int64, error) {
	now := t.now()
	n, err := t.store.CountUsageBetween(ctx, userID, now.Add(-window), now)
	if err != nil {
		return 0, persistenceError("count usage", err)
	}
	return n, nil
}

// Count is WindowedCount over the configured window.
func (t *UsageTracker) Count(ctx context.Context, userID int64) (int64, error) {
	return t.WindowedCount(ctx, userID, t.window)
}

// UsageByEndpoint groups all of the user's records by endpoint.
// Users without records get an empty map.
func (t *UsageTracker) UsageByEndpoint(ctx context.Context, userID int64) (map[string]model.EndpointUsage, error) {
	rows, err := t.store.UsageByEndpoint(ctx, userID)
	if err != nil {
		return nil, persistenceError("usage by endpoint", err)
	}

	out := make(map[string]model.EndpointUsage, len(rows))
	for _, r := range rows {
		out[r.Endpoint] = r
	}
	return out, nil
}
