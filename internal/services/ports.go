package services

import (
	"context"
	"time"

	"gastos/internal/core"
	"gastos/internal/remote"
	"gastos/internal/storage"
)

// Ports used by the services. Concrete stores live in storage, filestore
// and remote.
type (
	// LocalStore is the durable copy of the whole collection.
	LocalStore interface {
		Save(ctx context.Context, c core.Collection) error
		Load(ctx context.Context) (core.Collection, error)
	}

	// RemoteStore mirrors the collection to the shared document.
	// *remote.Sync implements it.
	RemoteStore interface {
		Initialize(ctx context.Context) error
		Available() bool
		Save(ctx context.Context, c core.Collection) error
		Load(ctx context.Context) (remote.Document, error)
		Subscribe(ctx context.Context, fn func(remote.Event)) (remote.Subscription, error)
	}

	// ReplayStore records whether the local snapshot still has to reach
	// the remote document. *storage.SQLiteStore implements it.
	ReplayStore interface {
		ReplayStatus(ctx context.Context) (storage.ReplayState, error)
		MarkReplayPending(ctx context.Context, reason string) error
		MarkReplayDone(ctx context.Context) error
		MarkReplayAttemptFailed(ctx context.Context, errMsg string, maxRetries int) (storage.ReplayState, error)
		RetryFailedReplay(ctx context.Context) (bool, error)
		// The push lease serializes remote writes between the tracker and
		// replayers, in this process or another.
		AcquirePushLease(ctx context.Context, owner string, ttl time.Duration) error
		ReleasePushLease(ctx context.Context, owner string) error
	}

	// ReplayNotifier wakes an out-of-process replayer. *amqp.Client
	// implements it.
	ReplayNotifier interface {
		PublishRemoteReplay(ctx context.Context, revision int64, reason string) error
	}
)

var (
	_ RemoteStore = (*remote.Sync)(nil)
	_ ReplayStore = (*storage.SQLiteStore)(nil)
)
