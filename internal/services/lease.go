package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	applog "gastos/internal/log"
)

// pushLeaseTTL bounds how long a writer that died holding the lease keeps
// the others out.
const pushLeaseTTL = 2 * time.Minute

func leaseOwner(role string) string {
	return role + "-" + uuid.NewString()
}

// holdPushLease waits up to pushTimeout for the remote push lease and
// returns the function that gives it back.
func holdPushLease(ctx context.Context, store ReplayStore, owner string, logger *slog.Logger) (func(), error) {
	wctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()
	if err := store.AcquirePushLease(wctx, owner, pushLeaseTTL); err != nil {
		return nil, fmt.Errorf("wait for push lease: %w", err)
	}
	return func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.ReleasePushLease(rctx, owner); err != nil {
			logger.Error("Failed to release push lease", applog.FieldError, err)
		}
	}, nil
}
