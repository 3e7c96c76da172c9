package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const leasePollInterval = 20 * time.Millisecond

var ErrLeaseHeld = errors.New("remote push lease held by another writer")

// TryAcquirePushLease takes the remote push lease for owner unless another
// owner holds an unexpired one. Re-acquiring extends the lease.
func (s *SQLiteStore) TryAcquirePushLease(ctx context.Context, owner string, ttl time.Duration) error {
	now := s.now().UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		UPDATE remote_push_lease
		SET owner = ?, expires_at = ?
		WHERE id = 1 AND (owner = '' OR owner = ? OR expires_at <= ?)`,
		owner, now+ttl.Milliseconds(), owner, now)
	if err != nil {
		return fmt.Errorf("acquire push lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("acquire push lease: %w", err)
	}
	if n == 0 {
		return ErrLeaseHeld
	}
	return nil
}

// AcquirePushLease waits until owner holds the remote push lease or ctx
// ends.
func (s *SQLiteStore) AcquirePushLease(ctx context.Context, owner string, ttl time.Duration) error {
	ticker := time.NewTicker(leasePollInterval)
	defer ticker.Stop()
	for {
		err := s.TryAcquirePushLease(ctx, owner, ttl)
		if !errors.Is(err, ErrLeaseHeld) {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("acquire push lease: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// ReleasePushLease gives the lease up if owner still holds it.
func (s *SQLiteStore) ReleasePushLease(ctx context.Context, owner string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE remote_push_lease SET owner = '', expires_at = 0
		WHERE id = 1 AND owner = ?`, owner)
	if err != nil {
		return fmt.Errorf("release push lease: %w", err)
	}
	return nil
}
