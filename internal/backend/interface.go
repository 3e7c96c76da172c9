package backend

import (
	"context"
	"time"

	"gastos/internal/amqp"
	"gastos/internal/metrics"
	"gastos/internal/remote"
	"gastos/internal/services"
	"gastos/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result holds the stores wired for one process. Optional parts are nil
// when not configured.
type Result struct {
	Local services.LocalStore
	// SQLite is set whenever the SQLite database is open, either as the
	// local backend or for queued replay.
	SQLite *storage.SQLiteStore
	// Replay is set only with the queue replay policy.
	Replay   services.ReplayStore
	Remote   *remote.Sync
	Notifier *amqp.Client
	Cleanup  CleanupFunc
}

// TrackerOptions returns the collaborators the tracker needs, leaving nil
// interfaces nil.
func (r *Result) TrackerOptions() services.TrackerOptions {
	var opts services.TrackerOptions
	if r.Remote != nil {
		opts.Remote = r.Remote
	}
	if r.Replay != nil {
		opts.Replay = r.Replay
		if r.Notifier != nil {
			opts.Notifier = r.Notifier
		}
	}
	return opts
}

// Ready reports whether the durable local store answers.
func (r *Result) Ready(ctx context.Context) error {
	if r.SQLite != nil {
		return r.SQLite.Ping(ctx)
	}
	return nil
}

// Factory creates the stores based on configuration
type Factory interface {
	Create(ctx context.Context, config Config, m *metrics.Metrics) (*Result, error)
}

// Config holds configuration for store creation
type Config struct {
	Local  LocalType
	Remote RemoteType

	// Local
	SQLiteDBPath string
	DataFile     string
	ReplayQueue  bool

	// Remote document
	RemoteCollection string
	RemoteDocument   string
	RemoteTimeout    time.Duration

	// Redis specific
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Google Sheets specific
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	SheetsPollInterval       time.Duration

	// AMQP, used only with ReplayQueue
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// LocalType is the local backend
type LocalType string

const (
	LocalSQLite LocalType = "sqlite"
	LocalFile   LocalType = "file"
	LocalMemory LocalType = "memory"
)

func (t LocalType) String() string { return string(t) }

func (t LocalType) IsValid() bool {
	switch t {
	case LocalSQLite, LocalFile, LocalMemory:
		return true
	default:
		return false
	}
}

// RemoteType is the remote document backend
type RemoteType string

const (
	RemoteNone   RemoteType = "none"
	RemoteRedis  RemoteType = "redis"
	RemoteSheets RemoteType = "sheets"
	RemoteMemory RemoteType = "memory"
)

func (t RemoteType) String() string { return string(t) }

func (t RemoteType) IsValid() bool {
	switch t {
	case RemoteNone, RemoteRedis, RemoteSheets, RemoteMemory:
		return true
	default:
		return false
	}
}
