package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gastos/internal/amqp"
	"gastos/internal/filestore"
	applog "gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/remote"
	gsheets "gastos/internal/remote/google"
	"gastos/internal/remote/memory"
	rredis "gastos/internal/remote/redis"
	"gastos/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	base   *slog.Logger
	logger *slog.Logger
}

// NewFactory creates a new store factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		base:   logger,
		logger: logger.With(applog.FieldComponent, applog.ComponentBackend),
	}
}

// Create opens the local store, the optional remote document and the
// optional replay transport. A remote that cannot be reached yet is not an
// error: the tracker runs local only until it can.
func (f *DefaultFactory) Create(ctx context.Context, config Config, m *metrics.Metrics) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	res := &Result{}
	var closers []func() error
	res.Cleanup = func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*Result, error) {
		res.Cleanup()
		return nil, err
	}

	if config.needsSQLite() {
		db, err := storage.NewSQLiteStore(config.SQLiteDBPath)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize SQLite store: %w", err))
		}
		closers = append(closers, db.Close)
		res.SQLite = db
		f.logger.Info("Initialized SQLite store", "db_path", config.SQLiteDBPath)
	}

	switch config.Local {
	case LocalSQLite:
		res.Local = res.SQLite
	case LocalFile:
		res.Local = filestore.New(config.DataFile)
		f.logger.Info("Initialized file store", "path", config.DataFile)
	case LocalMemory:
		res.Local = storage.NewMemoryStore()
		f.logger.Info("Initialized memory store")
	}

	if config.Remote == RemoteNone {
		f.logger.Info("No remote document configured, running local only")
		return res, nil
	}

	docStore, closeDoc, err := f.createDocumentStore(ctx, config)
	if err != nil {
		return fail(err)
	}
	if closeDoc != nil {
		closers = append(closers, closeDoc)
	}

	res.Remote = remote.NewSync(docStore,
		remote.WithTimeout(config.RemoteTimeout),
		remote.WithMetrics(m),
		remote.WithLogger(f.base.With(applog.FieldComponent, applog.ComponentRemote, applog.FieldBackend, config.Remote.String())))
	if err := res.Remote.Initialize(ctx); err != nil {
		f.logger.Warn("Remote document unavailable, continuing with local store", applog.FieldError, err)
	}

	if config.ReplayQueue {
		res.Replay = res.SQLite
		if config.AMQPURL != "" {
			client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
			if err != nil {
				f.logger.Warn("Failed to initialize AMQP client, replay runs in process only", applog.FieldError, err)
			} else {
				closers = append(closers, client.Close)
				res.Notifier = client
				f.logger.Info("Initialized AMQP client",
					"exchange", config.AMQPExchange,
					"queue", config.AMQPQueue)
			}
		}
	}

	return res, nil
}

func (f *DefaultFactory) createDocumentStore(ctx context.Context, config Config) (remote.DocumentStore, func() error, error) {
	switch config.Remote {
	case RemoteRedis:
		store := rredis.New(rredis.Options{
			Addr:       config.RedisAddr,
			Password:   config.RedisPassword,
			DB:         config.RedisDB,
			Collection: config.RemoteCollection,
			Document:   config.RemoteDocument,
		})
		f.logger.Info("Initialized redis document store", "addr", config.RedisAddr)
		return store, store.Close, nil
	case RemoteSheets:
		store, err := gsheets.New(ctx, gsheets.Options{
			SpreadsheetID:      config.GoogleSpreadsheetID,
			SheetName:          config.GoogleSheetName,
			ServiceAccountJSON: config.GoogleServiceAccountJSON,
			ServiceAccountFile: config.GoogleServiceAccountFile,
			PollInterval:       config.SheetsPollInterval,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Google Sheets store: %w", err)
		}
		f.logger.Info("Initialized Google Sheets document store", "sheet", config.GoogleSheetName)
		return store, nil, nil
	case RemoteMemory:
		f.logger.Info("Initialized memory document store")
		return memory.New(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported remote backend: %s", config.Remote)
	}
}
