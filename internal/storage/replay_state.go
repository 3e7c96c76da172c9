package storage

import (
	"context"
	"fmt"
	"time"
)

// Replay statuses.
const (
	ReplayClean   = "clean"
	ReplayPending = "pending"
	ReplayFailed  = "failed"
)

// ReplayState says whether the latest local snapshot still has to reach the
// remote document.
type ReplayState struct {
	Status    string
	Attempts  int
	LastError string
	UpdatedAt time.Time
}

func (s ReplayState) Pending() bool {
	return s.Status == ReplayPending
}

// ReplayStatus reads the current replay state.
func (s *SQLiteStore) ReplayStatus(ctx context.Context) (ReplayState, error) {
	var (
		st  ReplayState
		raw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, attempts, last_error, updated_at FROM remote_replay WHERE id = 1`).
		Scan(&st.Status, &st.Attempts, &st.LastError, &raw)
	if err != nil {
		return ReplayState{}, fmt.Errorf("read replay state: %w", err)
	}
	st.UpdatedAt = parseTime(raw)
	return st, nil
}

// MarkReplayPending flags the local snapshot as newer than the remote one.
// Attempts restart from zero unless a replay was already pending.
func (s *SQLiteStore) MarkReplayPending(ctx context.Context, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE remote_replay
		SET attempts = CASE WHEN status = 'pending' THEN attempts ELSE 0 END,
		    status = 'pending',
		    last_error = ?,
		    updated_at = ?
		WHERE id = 1`, reason, s.stamp())
	if err != nil {
		return fmt.Errorf("mark replay pending: %w", err)
	}
	return nil
}

// MarkReplayDone clears the replay state after a successful remote write.
func (s *SQLiteStore) MarkReplayDone(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE remote_replay
		SET status = 'clean', attempts = 0, last_error = '', updated_at = ?
		WHERE id = 1`, s.stamp())
	if err != nil {
		return fmt.Errorf("mark replay done: %w", err)
	}
	return nil
}

// MarkReplayAttemptFailed records a failed replay. Once attempts reach
// maxRetries the state moves to failed and polling stops until
// RetryFailedReplay is called.
func (s *SQLiteStore) MarkReplayAttemptFailed(ctx context.Context, errMsg string, maxRetries int) (ReplayState, error) {
	var (
		st  ReplayState
		raw string
	)
	err := s.db.QueryRowContext(ctx, `
		UPDATE remote_replay
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= ? THEN 'failed' ELSE status END,
		    last_error = ?,
		    updated_at = ?
		WHERE id = 1
		RETURNING status, attempts, last_error, updated_at`,
		maxRetries, errMsg, s.stamp()).
		Scan(&st.Status, &st.Attempts, &st.LastError, &raw)
	if err != nil {
		return ReplayState{}, fmt.Errorf("mark replay attempt failed: %w", err)
	}
	st.UpdatedAt = parseTime(raw)
	return st, nil
}

// RetryFailedReplay moves a failed replay back to pending. It reports
// whether anything changed.
func (s *SQLiteStore) RetryFailedReplay(ctx context.Context) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE remote_replay
		SET status = 'pending', attempts = 0, updated_at = ?
		WHERE id = 1 AND status = 'failed'`, s.stamp())
	if err != nil {
		return false, fmt.Errorf("retry failed replay: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("retry failed replay: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
