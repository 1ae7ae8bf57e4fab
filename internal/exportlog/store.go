package exportlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoRun is returned when no export has been recorded yet (or the
// record has expired).
var ErrNoRun = errors.New("no export run recorded")

const lastRunKey = "schoolleads:export:last_run"

// defaultTTL keeps the record around long enough to cover the longest
// plausible gap between scheduler triggers.
const defaultTTL = 14 * 24 * time.Hour

// Run summarizes one successful export for operator visibility.
type Run struct {
	RanAt      time.Time `json:"ran_at"`
	Rows       int       `json:"rows"`
	Bytes      int       `json:"bytes"`
	DurationMS int64     `json:"duration_ms"`
}

// Store keeps the most recent export run in Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore wires a run log. Returns nil when client is nil so callers
// can treat the log as optional.
func NewStore(client *redis.Client) *Store {
	if client == nil {
		return nil
	}
	return &Store{client: client, ttl: defaultTTL}
}

// Record overwrites the last-run summary.
func (s *Store) Record(ctx context.Context, run Run) error {
	if s == nil {
		return nil
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("exportlog: marshal run: %w", err)
	}
	if err := s.client.Set(ctx, lastRunKey, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("exportlog: set: %w", err)
	}
	return nil
}

// Last returns the most recent recorded run.
func (s *Store) Last(ctx context.Context) (*Run, error) {
	if s == nil {
		return nil, ErrNoRun
	}
	payload, err := s.client.Get(ctx, lastRunKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoRun
	}
	if err != nil {
		return nil, fmt.Errorf("exportlog: get: %w", err)
	}
	var run Run
	if err := json.Unmarshal(payload, &run); err != nil {
		return nil, fmt.Errorf("exportlog: unmarshal run: %w", err)
	}
	return &run, nil
}
